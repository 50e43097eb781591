//go:build integration

package trace

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"custodia/pkg/domain"
	"custodia/pkg/testutil/containers"
)

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	opts, err := goredis.ParseURL(containers.StartRedis(ctx, t))
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Append(ctx, Transaction{
		Kind: KindCreated, BatchID: 1, ProductID: productID, To: manufacturer, Quantity: 1000, Timestamp: now,
	}))
	require.NoError(t, store.Append(ctx, Transaction{
		Kind: KindSold, BatchID: 1, ProductID: productID, SaleRef: 1,
		From: pharmacy, To: consumer, Quantity: 50, Timestamp: now,
	}))

	txs, err := store.ListForBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, KindCreated, txs[0].Kind)
	require.Equal(t, KindSold, txs[1].Kind)
	require.Equal(t, domain.SaleID(1), txs[1].SaleRef)

	require.NoError(t, store.IndexPharmacyBatch(ctx, pharmacy, productID, 7))
	require.NoError(t, store.IndexPharmacyBatch(ctx, pharmacy, productID, 3))
	require.NoError(t, store.IndexPharmacyBatch(ctx, pharmacy, productID, 7))

	ids, err := store.BatchesForPharmacy(ctx, pharmacy, productID)
	require.NoError(t, err)
	require.Equal(t, []domain.BatchID{3, 7}, ids)

	ids, err = store.BatchesForPharmacy(ctx, distributor, productID)
	require.NoError(t, err)
	require.Empty(t, ids)
}
