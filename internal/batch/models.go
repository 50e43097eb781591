// Package batch is the registry of manufactured lots. A batch is immutable
// once created; it anchors the batch's custody tree at its root distribution.
package batch

import (
	"time"

	"custodia/pkg/domain"
)

// Batch is one manufactured lot. Never mutated or deleted after creation.
type Batch struct {
	ID              domain.BatchID
	ProductID       domain.ProductID
	Quantity        uint64
	ManufactureDate time.Time
	ExpiryDate      time.Time
	Manufacturer    domain.Identity
	// RootDistribution is the synthetic initial holding (sentinel → manufacturer).
	RootDistribution domain.DistributionID
	CreatedAt        time.Time
	// Metadata carries free-form lot attributes (composition, storage class).
	Metadata map[string]string
}
