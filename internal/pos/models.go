// Package pos is the point-of-sale ledger: an append-only log of retail
// dispensations (pharmacy → consumer). Sales do not create custody nodes;
// they deplete the pharmacy's active node through the custody ledger.
package pos

import (
	"time"

	"custodia/pkg/domain"
)

// UnitSale is one retail dispensation. Append-only; never mutated.
type UnitSale struct {
	// ID is scoped to the batch, monotonic from 1.
	ID       domain.SaleID
	BatchID  domain.BatchID
	Pharmacy domain.Identity
	Consumer domain.Identity
	Quantity uint64
	// Node is the pharmacy's distribution node the sale depleted.
	Node      domain.DistributionID
	CreatedAt time.Time
}
