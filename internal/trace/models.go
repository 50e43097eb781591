// Package trace is the derived traceability layer: a flat chronological
// transaction log per batch plus a pharmacy → product → batch index. It is
// built purely by replaying ledger events and is never consulted by the
// core; losing it loses convenience, not truth.
package trace

import (
	"time"

	"custodia/pkg/domain"
)

// Kind classifies a flat-log entry.
type Kind string

const (
	KindCreated     Kind = "created"
	KindTransferred Kind = "transferred"
	KindSold        Kind = "sold"
)

// Transaction is one flat-log entry, in event order per batch.
type Transaction struct {
	Kind      Kind                  `json:"kind"`
	BatchID   domain.BatchID        `json:"batchId"`
	ProductID domain.ProductID      `json:"productId,omitempty"`
	Reference domain.DistributionID `json:"distributionId,omitempty"`
	SaleRef   domain.SaleID         `json:"saleId,omitempty"`
	From      domain.Identity       `json:"from,omitempty"`
	To        domain.Identity       `json:"to"`
	Quantity  uint64                `json:"quantity"`
	Timestamp time.Time             `json:"timestamp"`
}
