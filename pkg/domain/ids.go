// Package domain holds the primitive identifier and role types shared by
// every layer. Construct values via the Parse helpers at trust boundaries;
// direct casting bypasses validation.
package domain

import (
	"strconv"

	dErrors "custodia/pkg/domain-errors"
)

// Identity is a stakeholder address. The zero value is the root sentinel:
// the synthetic predecessor of a batch's root distribution node.
type Identity string

// Sentinel is the "from nobody" identity carried by root distribution nodes.
const Sentinel Identity = ""

// IsSentinel reports whether the identity is the root sentinel.
func (i Identity) IsSentinel() bool { return i == Sentinel }

func (i Identity) String() string { return string(i) }

// ParseIdentity validates a stakeholder address from an untrusted source.
// The sentinel is not addressable from the outside.
func ParseIdentity(s string) (Identity, error) {
	if s == "" {
		return Sentinel, dErrors.New(dErrors.CodeBadRequest, "identity must not be empty")
	}
	return Identity(s), nil
}

// ProductID is assigned by the external product registry and opaque here.
type ProductID string

func (p ProductID) String() string { return string(p) }

// ParseProductID validates a product identifier from an untrusted source.
func ParseProductID(s string) (ProductID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "product id must not be empty")
	}
	return ProductID(s), nil
}

// BatchID identifies a manufactured lot. IDs are dense integers starting at
// 1; 0 is the not-found discriminator and never allocated.
type BatchID uint64

// DistributionID identifies one custody-transfer node within a batch's tree.
// 0 marks "no parent" on root nodes and is never allocated.
type DistributionID uint64

// SaleID identifies a point-of-sale record. Scoped to a batch, starting at 1.
type SaleID uint64

func (b BatchID) IsZero() bool        { return b == 0 }
func (d DistributionID) IsZero() bool { return d == 0 }
func (s SaleID) IsZero() bool         { return s == 0 }

func (b BatchID) String() string        { return strconv.FormatUint(uint64(b), 10) }
func (d DistributionID) String() string { return strconv.FormatUint(uint64(d), 10) }
func (s SaleID) String() string         { return strconv.FormatUint(uint64(s), 10) }

// ParseBatchID validates a batch identifier from a route parameter.
func ParseBatchID(s string) (BatchID, error) {
	n, err := parseID(s, "batch id")
	return BatchID(n), err
}

// ParseSaleID validates a sale identifier from a route parameter.
func ParseSaleID(s string) (SaleID, error) {
	n, err := parseID(s, "sale id")
	return SaleID(n), err
}

func parseID(s, what string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "invalid "+what)
	}
	return n, nil
}
