package pos

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"custodia/internal/custody"
	"custodia/internal/events"
	"custodia/internal/roles"
	"custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
)

// Depleter is the slice of the custody ledger sales need: atomically check
// and consume remaining quantity at the pharmacy's active node.
type Depleter interface {
	ConsumeForSale(ctx context.Context, batchID domain.BatchID, pharmacy domain.Identity, quantity uint64) (custody.Distribution, error)
}

// Service records retail dispensations. Either side of the counter may log
// the sale: the pharmacy that made it or the consumer that received it.
type Service struct {
	store    Store
	ledger   Depleter
	registry roles.Registry
	events   events.Publisher
	logger   *slog.Logger
	clock    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewService(store Store, ledger Depleter, registry roles.Registry, publisher events.Publisher, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		ledger:   ledger,
		registry: registry,
		events:   publisher,
		logger:   logger,
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Sell validates both parties, depletes the pharmacy's holding, and appends
// the immutable sale record.
func (s *Service) Sell(ctx context.Context, caller domain.Identity, batchID domain.BatchID, pharmacy, consumer domain.Identity, quantity uint64) (UnitSale, error) {
	if quantity == 0 {
		return UnitSale{}, dErrors.New(dErrors.CodeBadRequest, "quantity must be positive")
	}
	if pharmacy.IsSentinel() || consumer.IsSentinel() {
		return UnitSale{}, dErrors.New(dErrors.CodeBadRequest, "pharmacy and consumer are required")
	}
	if caller != pharmacy && caller != consumer {
		return UnitSale{}, dErrors.New(dErrors.CodeUnauthorized, "caller is neither party to the sale")
	}

	isPharmacy, err := s.registry.HasRole(ctx, pharmacy, domain.RolePharmacy)
	if err != nil {
		return UnitSale{}, dErrors.New(dErrors.CodeInternal, "role lookup: "+err.Error())
	}
	if !isPharmacy {
		return UnitSale{}, dErrors.New(dErrors.CodeInvalidRecipient, "seller is not a pharmacy")
	}
	isConsumer, err := s.registry.HasRole(ctx, consumer, domain.RoleConsumer)
	if err != nil {
		return UnitSale{}, dErrors.New(dErrors.CodeInternal, "role lookup: "+err.Error())
	}
	if !isConsumer {
		return UnitSale{}, dErrors.New(dErrors.CodeInvalidRecipient, "buyer is not a consumer")
	}

	node, err := s.ledger.ConsumeForSale(ctx, batchID, pharmacy, quantity)
	if err != nil {
		return UnitSale{}, err
	}

	sale, err := s.store.Append(ctx, UnitSale{
		BatchID:   batchID,
		Pharmacy:  pharmacy,
		Consumer:  consumer,
		Quantity:  quantity,
		Node:      node.ID,
		CreatedAt: s.clock(),
	})
	if err != nil {
		// The depletion already happened; failing here undersells rather
		// than oversells. Surface it loudly.
		s.logger.ErrorContext(ctx, "sale record append failed after depletion",
			"batch_id", batchID.String(),
			"pharmacy", pharmacy.String(),
			"error", err.Error(),
		)
		return UnitSale{}, dErrors.New(dErrors.CodeInternal, "append sale: "+err.Error())
	}

	s.emit(ctx, events.UnitsSold{
		BatchID:   sale.BatchID,
		SaleID:    sale.ID,
		Pharmacy:  sale.Pharmacy,
		Consumer:  sale.Consumer,
		Quantity:  sale.Quantity,
		Timestamp: sale.CreatedAt,
	})
	return sale, nil
}

// Get returns one sale record, unchanged since it was appended.
func (s *Service) Get(ctx context.Context, batchID domain.BatchID, saleID domain.SaleID) (UnitSale, error) {
	sale, err := s.store.Get(ctx, batchID, saleID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return UnitSale{}, dErrors.New(dErrors.CodeNotFound, "unknown sale")
		}
		return UnitSale{}, dErrors.New(dErrors.CodeInternal, "load sale: "+err.Error())
	}
	return sale, nil
}

// ListForBatch returns the batch's sales in append order.
func (s *Service) ListForBatch(ctx context.Context, batchID domain.BatchID) ([]UnitSale, error) {
	sales, err := s.store.ListForBatch(ctx, batchID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInternal, "list sales: "+err.Error())
	}
	return sales, nil
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			"event", event.Name(),
			"key", event.Key(),
			"error", err.Error(),
		)
	}
}
