// Package events defines the ledger's outbound event contract. Payload field
// sets and order are stable; the traceability log and any external consumer
// replay these to build their own indexes. The core never reads them back.
package events

import (
	"time"

	"custodia/pkg/domain"
)

// Event is one ledger fact. Key groups events of a batch for ordered
// consumption.
type Event interface {
	Name() string
	Key() string
}

// BatchCreated is emitted once per manufactured batch.
type BatchCreated struct {
	BatchID      domain.BatchID   `json:"batchId"`
	ProductID    domain.ProductID `json:"productId"`
	Manufacturer domain.Identity  `json:"manufacturer"`
	Quantity     uint64           `json:"quantity"`
}

func (BatchCreated) Name() string  { return "BatchCreated" }
func (e BatchCreated) Key() string { return e.BatchID.String() }

// BatchTransferred is emitted once per custody transfer.
type BatchTransferred struct {
	BatchID        domain.BatchID        `json:"batchId"`
	DistributionID domain.DistributionID `json:"distributionId"`
	From           domain.Identity       `json:"from"`
	To             domain.Identity       `json:"to"`
	Quantity       uint64                `json:"quantity"`
	Timestamp      time.Time             `json:"timestamp"`
}

func (BatchTransferred) Name() string  { return "BatchTransferred" }
func (e BatchTransferred) Key() string { return e.BatchID.String() }

// UnitsSold is emitted once per retail dispensation.
type UnitsSold struct {
	BatchID   domain.BatchID  `json:"batchId"`
	SaleID    domain.SaleID   `json:"saleId"`
	Pharmacy  domain.Identity `json:"pharmacy"`
	Consumer  domain.Identity `json:"consumer"`
	Quantity  uint64          `json:"quantity"`
	Timestamp time.Time       `json:"timestamp"`
}

func (UnitsSold) Name() string  { return "UnitsSold" }
func (e UnitsSold) Key() string { return e.BatchID.String() }
