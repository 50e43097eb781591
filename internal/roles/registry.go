// Package roles exposes the external role registry's query surface. The
// custody ledger consumes these predicates and never mutates role state;
// identity issuance and the approval workflow live outside this service.
package roles

import (
	"context"

	"custodia/pkg/domain"
)

//go:generate mockgen -source=registry.go -destination=mocks/registry_mocks.go -package=mocks Registry

// Registry answers role membership and product approval questions.
type Registry interface {
	// HasRole reports whether the identity currently holds the role.
	HasRole(ctx context.Context, identity domain.Identity, role domain.Role) (bool, error)

	// ApprovedProductOwner returns the manufacturer of record for an approved
	// product. Returns sentinel.ErrNotFound (wrapped) when the product is
	// unknown or not yet approved.
	ApprovedProductOwner(ctx context.Context, productID domain.ProductID) (domain.Identity, error)
}
