package trace

import (
	"context"

	"custodia/pkg/domain"
)

// Store persists the flat log and the pharmacy dispensation index.
type Store interface {
	// Append adds a transaction to the batch's chronological log.
	Append(ctx context.Context, tx Transaction) error

	// ListForBatch returns the batch's log in append order.
	ListForBatch(ctx context.Context, batchID domain.BatchID) ([]Transaction, error)

	// IndexPharmacyBatch records that the pharmacy dispensed from the batch.
	IndexPharmacyBatch(ctx context.Context, pharmacy domain.Identity, productID domain.ProductID, batchID domain.BatchID) error

	// BatchesForPharmacy returns the batches of a product the pharmacy has
	// dispensed from, ascending by batch id.
	BatchesForPharmacy(ctx context.Context, pharmacy domain.Identity, productID domain.ProductID) ([]domain.BatchID, error)
}
