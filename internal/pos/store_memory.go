package pos

import (
	"context"
	"fmt"
	"sync"

	"custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps sales per batch with per-batch id sequences.
type InMemoryStore struct {
	mu    sync.RWMutex
	sales map[domain.BatchID][]UnitSale
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sales: make(map[domain.BatchID][]UnitSale)}
}

func (s *InMemoryStore) Append(_ context.Context, sale UnitSale) (UnitSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale.ID = domain.SaleID(len(s.sales[sale.BatchID]) + 1)
	s.sales[sale.BatchID] = append(s.sales[sale.BatchID], sale)
	return sale, nil
}

func (s *InMemoryStore) Get(_ context.Context, batchID domain.BatchID, saleID domain.SaleID) (UnitSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sales := s.sales[batchID]
	// Ids are dense from 1, so the slice doubles as the index.
	if saleID.IsZero() || int(saleID) > len(sales) {
		return UnitSale{}, fmt.Errorf("sale %s in batch %s: %w", saleID, batchID, sentinel.ErrNotFound)
	}
	return sales[saleID-1], nil
}

func (s *InMemoryStore) ListForBatch(_ context.Context, batchID domain.BatchID) ([]UnitSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]UnitSale{}, s.sales[batchID]...), nil
}
