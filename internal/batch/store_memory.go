package batch

import (
	"context"
	"fmt"
	"sync"

	"custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps batches in maps guarded by a RWMutex. The id sequence
// belongs to the store instance.
type InMemoryStore struct {
	mu        sync.RWMutex
	batches   map[domain.BatchID]Batch
	byProduct map[domain.ProductID][]domain.BatchID
	seq       domain.BatchID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		batches:   make(map[domain.BatchID]Batch),
		byProduct: make(map[domain.ProductID][]domain.BatchID),
	}
}

func (s *InMemoryStore) AllocateID(_ context.Context) (domain.BatchID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, nil
}

func (s *InMemoryStore) Save(_ context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.batches[b.ID]; exists {
		return fmt.Errorf("batch %s: %w", b.ID, sentinel.ErrConflict)
	}
	s.batches[b.ID] = b
	s.byProduct[b.ProductID] = append(s.byProduct[b.ProductID], b.ID)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.BatchID) (Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return Batch{}, fmt.Errorf("batch %s: %w", id, sentinel.ErrNotFound)
	}
	return b, nil
}

func (s *InMemoryStore) ListForProduct(_ context.Context, productID domain.ProductID) ([]domain.BatchID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.BatchID{}, s.byProduct[productID]...), nil
}
