package trace

import (
	"context"
	"log/slog"
	"sync"

	"custodia/internal/events"
	"custodia/pkg/domain"
)

// Worker replays ledger events into the flat log. Events are its only input;
// the batch → product mapping it needs for the pharmacy index is learned
// from BatchCreated rather than read from the registry.
type Worker struct {
	store  Store
	inbox  <-chan events.Event
	logger *slog.Logger

	mu       sync.RWMutex
	products map[domain.BatchID]domain.ProductID
}

func NewWorker(store Store, inbox <-chan events.Event, logger *slog.Logger) *Worker {
	return &Worker{
		store:    store,
		inbox:    inbox,
		logger:   logger,
		products: make(map[domain.BatchID]domain.ProductID),
	}
}

// Run consumes until the context is cancelled. Append failures are logged
// and skipped; the log is derived data and must not wedge the process.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			w.handle(ctx, event)
		}
	}
}

func (w *Worker) handle(ctx context.Context, event events.Event) {
	switch e := event.(type) {
	case events.BatchCreated:
		w.mu.Lock()
		w.products[e.BatchID] = e.ProductID
		w.mu.Unlock()
		w.append(ctx, Transaction{
			Kind:      KindCreated,
			BatchID:   e.BatchID,
			ProductID: e.ProductID,
			To:        e.Manufacturer,
			Quantity:  e.Quantity,
		})
	case events.BatchTransferred:
		w.append(ctx, Transaction{
			Kind:      KindTransferred,
			BatchID:   e.BatchID,
			ProductID: w.productOf(e.BatchID),
			Reference: e.DistributionID,
			From:      e.From,
			To:        e.To,
			Quantity:  e.Quantity,
			Timestamp: e.Timestamp,
		})
	case events.UnitsSold:
		w.append(ctx, Transaction{
			Kind:      KindSold,
			BatchID:   e.BatchID,
			ProductID: w.productOf(e.BatchID),
			SaleRef:   e.SaleID,
			From:      e.Pharmacy,
			To:        e.Consumer,
			Quantity:  e.Quantity,
			Timestamp: e.Timestamp,
		})
		if product := w.productOf(e.BatchID); product != "" {
			if err := w.store.IndexPharmacyBatch(ctx, e.Pharmacy, product, e.BatchID); err != nil {
				w.logger.WarnContext(ctx, "pharmacy index update failed",
					"batch_id", e.BatchID.String(),
					"error", err.Error(),
				)
			}
		}
	default:
		w.logger.WarnContext(ctx, "unknown event kind", "event", event.Name())
	}
}

func (w *Worker) productOf(batchID domain.BatchID) domain.ProductID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.products[batchID]
}

func (w *Worker) append(ctx context.Context, tx Transaction) {
	if err := w.store.Append(ctx, tx); err != nil {
		w.logger.WarnContext(ctx, "trace append failed",
			"batch_id", tx.BatchID.String(),
			"kind", string(tx.Kind),
			"error", err.Error(),
		)
	}
}
