package custody

import (
	"context"
	"time"

	"custodia/pkg/domain"
)

// Store owns the distribution arenas, one per batch. Implementations must
// make AppendChild and Consume atomic with their conservation check: two
// spenders racing against the same node must serialize, so their combined
// quantity can never exceed what the node has left.
//
// Sentinel contract: sentinel.ErrNotFound for unknown batches, nodes, or
// active-index misses; sentinel.ErrConflict for re-initializing a batch;
// sentinel.ErrInsufficient when a spend exceeds remaining quantity.
type Store interface {
	// InitBatch creates the arena and its root node (from = sentinel,
	// to = manufacturer, quantity = total manufactured). The root is not
	// entered into the active index; the manufacturer resolves through the
	// root fallback instead.
	InitBatch(ctx context.Context, batchID domain.BatchID, manufacturer domain.Identity, quantity uint64, now time.Time) (Distribution, error)

	// Get returns one node.
	Get(ctx context.Context, batchID domain.BatchID, id domain.DistributionID) (Distribution, error)

	// Active resolves the active-holding index entry for (batch, holder).
	Active(ctx context.Context, batchID domain.BatchID, holder domain.Identity) (Distribution, error)

	// AppendChild atomically validates quantity against remaining(parent),
	// links a new child node, and overwrites the active index entry for the
	// recipient.
	AppendChild(ctx context.Context, batchID domain.BatchID, parent domain.DistributionID, from, to domain.Identity, quantity, unitPrice uint64, now time.Time) (Distribution, error)

	// Consume atomically validates quantity against remaining(node) and
	// records point-of-sale depletion against it.
	Consume(ctx context.Context, batchID domain.BatchID, node domain.DistributionID, quantity uint64) error

	// Remaining recomputes the node's outstanding quantity on read.
	Remaining(ctx context.Context, batchID domain.BatchID, node domain.DistributionID) (uint64, error)

	// Chain returns the node's ancestry, root-first, ending at the node
	// itself.
	Chain(ctx context.Context, batchID domain.BatchID, node domain.DistributionID) ([]Distribution, error)
}
