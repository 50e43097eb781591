package trace

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"custodia/internal/events"
	"custodia/pkg/domain"
)

const (
	manufacturer = domain.Identity("acme-labs")
	distributor  = domain.Identity("medsupply-east")
	pharmacy     = domain.Identity("corner-pharmacy")
	consumer     = domain.Identity("alice")
	productID    = domain.ProductID("prod-aspirin-200")
)

func runWorker(t *testing.T, store Store, feed ...events.Event) {
	t.Helper()
	inbox := make(chan events.Event, len(feed))
	for _, e := range feed {
		inbox <- e
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	worker := NewWorker(store, inbox, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	// The inbox is buffered and pre-filled; poll until drained.
	deadline := time.After(2 * time.Second)
	for len(inbox) > 0 {
		select {
		case <-deadline:
			t.Fatal("worker did not drain the inbox")
		case <-time.After(5 * time.Millisecond):
		}
	}
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done
}

func TestWorkerBuildsFlatLog(t *testing.T) {
	store := NewInMemoryStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	runWorker(t, store,
		events.BatchCreated{BatchID: 1, ProductID: productID, Manufacturer: manufacturer, Quantity: 1000},
		events.BatchTransferred{BatchID: 1, DistributionID: 2, From: manufacturer, To: distributor, Quantity: 1000, Timestamp: now},
		events.UnitsSold{BatchID: 1, SaleID: 1, Pharmacy: pharmacy, Consumer: consumer, Quantity: 50, Timestamp: now},
	)

	txs, err := store.ListForBatch(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	require.Equal(t, KindCreated, txs[0].Kind)
	require.Equal(t, manufacturer, txs[0].To)
	require.Equal(t, productID, txs[0].ProductID)

	require.Equal(t, KindTransferred, txs[1].Kind)
	require.Equal(t, domain.DistributionID(2), txs[1].Reference)
	require.Equal(t, productID, txs[1].ProductID, "product learned from BatchCreated")

	require.Equal(t, KindSold, txs[2].Kind)
	require.Equal(t, domain.SaleID(1), txs[2].SaleRef)
	require.Equal(t, pharmacy, txs[2].From)
	require.Equal(t, consumer, txs[2].To)
}

func TestWorkerIndexesPharmacyPurchases(t *testing.T) {
	store := NewInMemoryStore()
	now := time.Now()

	runWorker(t, store,
		events.BatchCreated{BatchID: 3, ProductID: productID, Manufacturer: manufacturer, Quantity: 100},
		events.BatchCreated{BatchID: 7, ProductID: productID, Manufacturer: manufacturer, Quantity: 100},
		events.UnitsSold{BatchID: 7, SaleID: 1, Pharmacy: pharmacy, Consumer: consumer, Quantity: 5, Timestamp: now},
		events.UnitsSold{BatchID: 3, SaleID: 1, Pharmacy: pharmacy, Consumer: consumer, Quantity: 5, Timestamp: now},
		events.UnitsSold{BatchID: 3, SaleID: 2, Pharmacy: pharmacy, Consumer: consumer, Quantity: 5, Timestamp: now},
	)

	ids, err := store.BatchesForPharmacy(context.Background(), pharmacy, productID)
	require.NoError(t, err)
	require.Equal(t, []domain.BatchID{3, 7}, ids, "sorted, deduplicated")

	ids, err = store.BatchesForPharmacy(context.Background(), distributor, productID)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestInMemoryStoreIsolatesBatchLogs(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, Transaction{Kind: KindCreated, BatchID: 1, To: manufacturer, Quantity: 10}))
	require.NoError(t, store.Append(ctx, Transaction{Kind: KindCreated, BatchID: 2, To: manufacturer, Quantity: 20}))

	txs, err := store.ListForBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, uint64(10), txs[0].Quantity)
}
