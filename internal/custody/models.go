// Package custody is the core ledger: per-batch trees of transfer records,
// the active-holding index, and the conservation invariant
//
//	remaining(node) = node.Quantity − Σ child.Quantity − consumed(node) ≥ 0
//
// where consumed(node) is quantity dispensed through point-of-sale records.
// Remaining quantity is recomputed on read, never cached, so it cannot drift.
package custody

import (
	"time"

	"custodia/pkg/domain"
)

// Distribution is one custody-transfer node in a batch's tree. Created
// exactly once; Quantity never changes afterwards. Parent is the explicit
// tree edge — ancestry is walked through it, never reconstructed through the
// active-holding index, so branching and reacquisition cannot corrupt
// history.
type Distribution struct {
	ID      domain.DistributionID
	BatchID domain.BatchID
	// Parent is 0 on the root node.
	Parent domain.DistributionID
	// From is the sentinel on the root node.
	From     domain.Identity
	To       domain.Identity
	Quantity uint64
	// UnitPrice in minor currency units; 0 when the transfer is unpriced.
	UnitPrice uint64
	CreatedAt time.Time
}

// IsRoot reports whether this node is the batch's synthetic initial holding.
func (d Distribution) IsRoot() bool { return d.Parent.IsZero() }

// BatchInfo is what the ledger needs to know about a batch from the batch
// registry: who manufactured it and where its tree starts.
type BatchInfo struct {
	ProductID    domain.ProductID
	Manufacturer domain.Identity
	Root         domain.DistributionID
	Quantity     uint64
}
