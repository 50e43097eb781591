package custody

import (
	"context"
	"fmt"
	"sync"
	"time"

	"custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps each batch's tree in its own arena guarded by a
// per-batch mutex, so operations on different batches never contend while
// spends from one balance fully serialize. The distribution id sequence
// belongs to the store instance; independent stores never interfere.
type InMemoryStore struct {
	mu      sync.RWMutex
	batches map[domain.BatchID]*arena
	seq     domain.DistributionID
}

type arena struct {
	mu       sync.Mutex
	nodes    map[domain.DistributionID]Distribution
	children map[domain.DistributionID][]domain.DistributionID
	consumed map[domain.DistributionID]uint64
	active   map[domain.Identity]domain.DistributionID
	root     domain.DistributionID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{batches: make(map[domain.BatchID]*arena)}
}

func (s *InMemoryStore) InitBatch(_ context.Context, batchID domain.BatchID, manufacturer domain.Identity, quantity uint64, now time.Time) (Distribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.batches[batchID]; exists {
		return Distribution{}, fmt.Errorf("batch %s already initialized: %w", batchID, sentinel.ErrConflict)
	}
	s.seq++
	root := Distribution{
		ID:        s.seq,
		BatchID:   batchID,
		From:      domain.Sentinel,
		To:        manufacturer,
		Quantity:  quantity,
		CreatedAt: now,
	}
	s.batches[batchID] = &arena{
		nodes:    map[domain.DistributionID]Distribution{root.ID: root},
		children: make(map[domain.DistributionID][]domain.DistributionID),
		consumed: make(map[domain.DistributionID]uint64),
		active:   make(map[domain.Identity]domain.DistributionID),
		root:     root.ID,
	}
	return root, nil
}

func (s *InMemoryStore) arena(batchID domain.BatchID) (*arena, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", batchID, sentinel.ErrNotFound)
	}
	return a, nil
}

func (s *InMemoryStore) nextID() domain.DistributionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

func (s *InMemoryStore) Get(_ context.Context, batchID domain.BatchID, id domain.DistributionID) (Distribution, error) {
	a, err := s.arena(batchID)
	if err != nil {
		return Distribution{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	node, ok := a.nodes[id]
	if !ok {
		return Distribution{}, fmt.Errorf("distribution %s: %w", id, sentinel.ErrNotFound)
	}
	return node, nil
}

func (s *InMemoryStore) Active(_ context.Context, batchID domain.BatchID, holder domain.Identity) (Distribution, error) {
	a, err := s.arena(batchID)
	if err != nil {
		return Distribution{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.active[holder]
	if !ok {
		return Distribution{}, fmt.Errorf("no active holding for %s: %w", holder, sentinel.ErrNotFound)
	}
	return a.nodes[id], nil
}

func (s *InMemoryStore) AppendChild(_ context.Context, batchID domain.BatchID, parent domain.DistributionID, from, to domain.Identity, quantity, unitPrice uint64, now time.Time) (Distribution, error) {
	a, err := s.arena(batchID)
	if err != nil {
		return Distribution{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	parentNode, ok := a.nodes[parent]
	if !ok {
		return Distribution{}, fmt.Errorf("distribution %s: %w", parent, sentinel.ErrNotFound)
	}
	remaining := a.remainingLocked(parentNode)
	if quantity > remaining {
		return Distribution{}, fmt.Errorf("want %d, have %d: %w", quantity, remaining, sentinel.ErrInsufficient)
	}

	child := Distribution{
		ID:        s.nextID(),
		BatchID:   batchID,
		Parent:    parent,
		From:      from,
		To:        to,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		CreatedAt: now,
	}
	a.nodes[child.ID] = child
	a.children[parent] = append(a.children[parent], child.ID)
	// Newest holding wins; any earlier node of the recipient becomes
	// unreachable through the index but stays intact in the tree.
	a.active[to] = child.ID
	return child, nil
}

func (s *InMemoryStore) Consume(_ context.Context, batchID domain.BatchID, node domain.DistributionID, quantity uint64) error {
	a, err := s.arena(batchID)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	n, ok := a.nodes[node]
	if !ok {
		return fmt.Errorf("distribution %s: %w", node, sentinel.ErrNotFound)
	}
	remaining := a.remainingLocked(n)
	if quantity > remaining {
		return fmt.Errorf("want %d, have %d: %w", quantity, remaining, sentinel.ErrInsufficient)
	}
	a.consumed[node] += quantity
	return nil
}

func (s *InMemoryStore) Remaining(_ context.Context, batchID domain.BatchID, node domain.DistributionID) (uint64, error) {
	a, err := s.arena(batchID)
	if err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	n, ok := a.nodes[node]
	if !ok {
		return 0, fmt.Errorf("distribution %s: %w", node, sentinel.ErrNotFound)
	}
	return a.remainingLocked(n), nil
}

func (s *InMemoryStore) Chain(_ context.Context, batchID domain.BatchID, node domain.DistributionID) ([]Distribution, error) {
	a, err := s.arena(batchID)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var chain []Distribution
	id := node
	for !id.IsZero() {
		n, ok := a.nodes[id]
		if !ok {
			return nil, fmt.Errorf("distribution %s: %w", id, sentinel.ErrNotFound)
		}
		chain = append(chain, n)
		id = n.Parent
	}
	// Collected leaf-first; callers want root-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// remainingLocked computes outstanding quantity under the arena lock.
func (a *arena) remainingLocked(n Distribution) uint64 {
	var spent uint64
	for _, childID := range a.children[n.ID] {
		spent += a.nodes[childID].Quantity
	}
	spent += a.consumed[n.ID]
	if spent >= n.Quantity {
		return 0
	}
	return n.Quantity - spent
}
