package batch

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

// RootCreator is the slice of the custody ledger the registry needs: carve
// out the tree root when a batch is born.
type RootCreator interface {
	InitBatch(ctx context.Context, batchID domain.BatchID, manufacturer domain.Identity, quantity uint64) (custody.Distribution, error)
}

// CreateParams are the caller-supplied batch attributes.
type CreateParams struct {
	ProductID       domain.ProductID
	Quantity        uint64
	ManufactureDate time.Time
	ExpiryDate      time.Time
	Metadata        map[string]string
}

// Service owns batch registration. Only the approved manufacturer of record
// for a product may create batches of it.
type Service struct {
	store    Store
	registry roles.Registry
	ledger   RootCreator
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

func NewService(store Store, registry roles.Registry, ledger RootCreator, publisher events.Publisher, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		registry: registry,
		ledger:   ledger,
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

// Create registers a batch and its custody-tree root atomically with respect
// to any other ledger operation, then emits BatchCreated.
func (s *Service) Create(ctx context.Context, caller domain.Identity, params CreateParams) (Batch, error) {
	if params.Quantity == 0 {
		return Batch{}, dErrors.New(dErrors.CodeBadRequest, "quantity must be positive")
	}
	if !params.ExpiryDate.IsZero() && !params.ExpiryDate.After(params.ManufactureDate) {
		return Batch{}, dErrors.New(dErrors.CodeBadRequest, "expiry date must follow manufacture date")
	}

	isManufacturer, err := s.registry.HasRole(ctx, caller, domain.RoleManufacturer)
	if err != nil {
		return Batch{}, dErrors.New(dErrors.CodeInternal, "role lookup: "+err.Error())
	}
	if !isManufacturer {
		return Batch{}, dErrors.New(dErrors.CodeUnauthorized, "caller is not a manufacturer")
	}

	owner, err := s.registry.ApprovedProductOwner(ctx, params.ProductID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Batch{}, dErrors.New(dErrors.CodeUnauthorized, "product is not approved")
		}
		return Batch{}, dErrors.New(dErrors.CodeInternal, "product lookup: "+err.Error())
	}
	if owner != caller {
		return Batch{}, dErrors.New(dErrors.CodeUnauthorized, "caller is not the manufacturer of record")
	}

	id, err := s.store.AllocateID(ctx)
	if err != nil {
		return Batch{}, dErrors.New(dErrors.CodeInternal, "allocate batch id: "+err.Error())
	}

	root, err := s.ledger.InitBatch(ctx, id, caller, params.Quantity)
	if err != nil {
		return Batch{}, err
	}

	b := Batch{
		ID:               id,
		ProductID:        params.ProductID,
		Quantity:         params.Quantity,
		ManufactureDate:  params.ManufactureDate,
		ExpiryDate:       params.ExpiryDate,
		Manufacturer:     caller,
		RootDistribution: root.ID,
		CreatedAt:        s.clock(),
		Metadata:         params.Metadata,
	}
	if err := s.store.Save(ctx, b); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return Batch{}, dErrors.New(dErrors.CodeConflict, "batch id collision")
		}
		return Batch{}, dErrors.New(dErrors.CodeInternal, "save batch: "+err.Error())
	}

	s.emit(ctx, events.BatchCreated{
		BatchID:      b.ID,
		ProductID:    b.ProductID,
		Manufacturer: b.Manufacturer,
		Quantity:     b.Quantity,
	})
	return b, nil
}

// Get returns a batch by id.
func (s *Service) Get(ctx context.Context, id domain.BatchID) (Batch, error) {
	if id.IsZero() {
		return Batch{}, dErrors.New(dErrors.CodeNotFound, "unknown batch")
	}
	b, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Batch{}, dErrors.New(dErrors.CodeNotFound, "unknown batch")
		}
		return Batch{}, dErrors.New(dErrors.CodeInternal, "load batch: "+err.Error())
	}
	return b, nil
}

// ListForProduct returns batch ids for a product, oldest first.
func (s *Service) ListForProduct(ctx context.Context, productID domain.ProductID) ([]domain.BatchID, error) {
	ids, err := s.store.ListForProduct(ctx, productID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInternal, "list batches: "+err.Error())
	}
	return ids, nil
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

// CustodySource adapts the batch store to the custody ledger's BatchSource
// port, keeping the import direction batch → custody only.
type CustodySource struct {
	store Store
}

func NewCustodySource(store Store) *CustodySource {
	return &CustodySource{store: store}
}

func (c *CustodySource) BatchInfo(ctx context.Context, batchID domain.BatchID) (custody.BatchInfo, error) {
	b, err := c.store.Get(ctx, batchID)
	if err != nil {
		return custody.BatchInfo{}, err
	}
	return custody.BatchInfo{
		ProductID:    b.ProductID,
		Manufacturer: b.Manufacturer,
		Root:         b.RootDistribution,
		Quantity:     b.Quantity,
	}, nil
}
