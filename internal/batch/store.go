package batch

import (
	"context"

	"custodia/pkg/domain"
)

// Store persists batches and the per-product enumeration index.
//
// Sentinel contract: sentinel.ErrNotFound for unknown ids;
// sentinel.ErrConflict when a Save collides with an existing id, which the
// monotonic allocator makes an invariant breach.
type Store interface {
	// AllocateID returns the next batch id. Ids are never reused, even when
	// the logical operation that requested one later fails.
	AllocateID(ctx context.Context) (domain.BatchID, error)

	Save(ctx context.Context, b Batch) error
	Get(ctx context.Context, id domain.BatchID) (Batch, error)

	// ListForProduct returns batch ids in insertion order.
	ListForProduct(ctx context.Context, productID domain.ProductID) ([]domain.BatchID, error)
}
