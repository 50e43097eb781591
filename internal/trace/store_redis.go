package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"custodia/pkg/domain"
)

const (
	// Redis key prefixes for the flat log and the pharmacy index
	logKeyPrefix      = "trace:batch:"
	pharmacyKeyPrefix = "trace:pharmacy:"
)

// RedisStore shares the traceability log across instances. Logs are lists in
// append order; the pharmacy index is a set per (pharmacy, product).
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed trace store. The client lifecycle
// is managed externally.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func logKey(batchID domain.BatchID) string {
	return logKeyPrefix + batchID.String()
}

func pharmacyIndexKey(pharmacy domain.Identity, productID domain.ProductID) string {
	return pharmacyKeyPrefix + pharmacy.String() + ":product:" + productID.String()
}

func (s *RedisStore) Append(ctx context.Context, tx Transaction) error {
	raw, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	return s.client.RPush(ctx, logKey(tx.BatchID), raw).Err()
}

func (s *RedisStore) ListForBatch(ctx context.Context, batchID domain.BatchID) ([]Transaction, error) {
	raws, err := s.client.LRange(ctx, logKey(batchID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read trace log: %w", err)
	}
	txs := make([]Transaction, 0, len(raws))
	for _, raw := range raws {
		var tx Transaction
		if err := json.Unmarshal([]byte(raw), &tx); err != nil {
			return nil, fmt.Errorf("decode trace entry: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (s *RedisStore) IndexPharmacyBatch(ctx context.Context, pharmacy domain.Identity, productID domain.ProductID, batchID domain.BatchID) error {
	return s.client.SAdd(ctx, pharmacyIndexKey(pharmacy, productID), batchID.String()).Err()
}

func (s *RedisStore) BatchesForPharmacy(ctx context.Context, pharmacy domain.Identity, productID domain.ProductID) ([]domain.BatchID, error) {
	members, err := s.client.SMembers(ctx, pharmacyIndexKey(pharmacy, productID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read pharmacy index: %w", err)
	}
	ids := make([]domain.BatchID, 0, len(members))
	for _, m := range members {
		n, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode pharmacy index member %q: %w", m, err)
		}
		ids = append(ids, domain.BatchID(n))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
