package trace

import (
	"context"
	"sort"
	"sync"

	"custodia/pkg/domain"
)

// InMemoryStore is the default trace sink.
type InMemoryStore struct {
	mu       sync.RWMutex
	logs     map[domain.BatchID][]Transaction
	pharmacy map[string]map[domain.BatchID]bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		logs:     make(map[domain.BatchID][]Transaction),
		pharmacy: make(map[string]map[domain.BatchID]bool),
	}
}

func pharmacyKey(pharmacy domain.Identity, productID domain.ProductID) string {
	return pharmacy.String() + "\x00" + productID.String()
}

func (s *InMemoryStore) Append(_ context.Context, tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[tx.BatchID] = append(s.logs[tx.BatchID], tx)
	return nil
}

func (s *InMemoryStore) ListForBatch(_ context.Context, batchID domain.BatchID) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Transaction{}, s.logs[batchID]...), nil
}

func (s *InMemoryStore) IndexPharmacyBatch(_ context.Context, pharmacy domain.Identity, productID domain.ProductID, batchID domain.BatchID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pharmacyKey(pharmacy, productID)
	if s.pharmacy[key] == nil {
		s.pharmacy[key] = make(map[domain.BatchID]bool)
	}
	s.pharmacy[key][batchID] = true
	return nil
}

func (s *InMemoryStore) BatchesForPharmacy(_ context.Context, pharmacy domain.Identity, productID domain.ProductID) ([]domain.BatchID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.pharmacy[pharmacyKey(pharmacy, productID)]
	ids := make([]domain.BatchID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
