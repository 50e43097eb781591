package pos

import (
	"context"

	"custodia/pkg/domain"
)

// Store persists unit sales. Sale ids are allocated per batch by Append so
// the id and the record land in one atomic step.
//
// Sentinel contract: sentinel.ErrNotFound for unknown (batch, sale) pairs.
type Store interface {
	// Append assigns the next sale id within the batch and stores the record.
	Append(ctx context.Context, sale UnitSale) (UnitSale, error)

	Get(ctx context.Context, batchID domain.BatchID, saleID domain.SaleID) (UnitSale, error)

	// ListForBatch returns sales in append order.
	ListForBatch(ctx context.Context, batchID domain.BatchID) ([]UnitSale, error)
}
