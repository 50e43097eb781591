package roles

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// InMemoryRegistry backs the registry interface for local runs and tests.
// Role state is administered out of band (seed file or test setup).
type InMemoryRegistry struct {
	mu       sync.RWMutex
	grants   map[domain.Identity]map[domain.Role]bool
	products map[domain.ProductID]domain.Identity
}

func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		grants:   make(map[domain.Identity]map[domain.Role]bool),
		products: make(map[domain.ProductID]domain.Identity),
	}
}

// Grant records role membership for an identity.
func (r *InMemoryRegistry) Grant(identity domain.Identity, roleList ...domain.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.grants[identity] == nil {
		r.grants[identity] = make(map[domain.Role]bool)
	}
	for _, role := range roleList {
		r.grants[identity][role] = true
	}
}

// ApproveProduct records the manufacturer of record for a product.
func (r *InMemoryRegistry) ApproveProduct(productID domain.ProductID, owner domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[productID] = owner
}

func (r *InMemoryRegistry) HasRole(_ context.Context, identity domain.Identity, role domain.Role) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.grants[identity][role], nil
}

func (r *InMemoryRegistry) ApprovedProductOwner(_ context.Context, productID domain.ProductID) (domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.products[productID]
	if !ok {
		return domain.Sentinel, fmt.Errorf("product %s: %w", productID, sentinel.ErrNotFound)
	}
	return owner, nil
}

// seedFile mirrors the JSON shape administrators maintain for local stacks.
type seedFile struct {
	Grants []struct {
		Identity string   `json:"identity"`
		Roles    []string `json:"roles"`
	} `json:"grants"`
	Products []struct {
		ProductID string `json:"productId"`
		Owner     string `json:"owner"`
	} `json:"products"`
}

// LoadSeed populates the registry from a JSON seed file.
func (r *InMemoryRegistry) LoadSeed(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read roles seed: %w", err)
	}
	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("parse roles seed: %w", err)
	}
	for _, g := range seed.Grants {
		identity, err := domain.ParseIdentity(g.Identity)
		if err != nil {
			return fmt.Errorf("roles seed grant: %w", err)
		}
		for _, roleName := range g.Roles {
			role, err := domain.ParseRole(roleName)
			if err != nil {
				return fmt.Errorf("roles seed grant for %s: %w", g.Identity, err)
			}
			r.Grant(identity, role)
		}
	}
	for _, p := range seed.Products {
		productID, err := domain.ParseProductID(p.ProductID)
		if err != nil {
			return fmt.Errorf("roles seed product: %w", err)
		}
		owner, err := domain.ParseIdentity(p.Owner)
		if err != nil {
			return fmt.Errorf("roles seed product %s: %w", p.ProductID, err)
		}
		r.ApproveProduct(productID, owner)
	}
	return nil
}
