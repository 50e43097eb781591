package custody

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"custodia/internal/custody/metrics"
	"custodia/internal/events"
	"custodia/internal/roles"
	"custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
)

// BatchSource is the custody ledger's view of the batch registry.
// Implementations return sentinel.ErrNotFound (wrapped) for unknown batches.
type BatchSource interface {
	BatchInfo(ctx context.Context, batchID domain.BatchID) (BatchInfo, error)
}

// Service enforces the transfer protocol over the store: who may move
// custody, to whom, and how much. The store enforces conservation; this
// layer enforces roles and resolution.
type Service struct {
	store    Store
	batches  BatchSource
	registry roles.Registry
	events   events.Publisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
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

// WithMetrics attaches custody metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, batches BatchSource, registry roles.Registry, publisher events.Publisher, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		batches:  batches,
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

// InitBatch creates the root node for a freshly registered batch. Called by
// the batch registry inside batch creation; not part of the public API.
func (s *Service) InitBatch(ctx context.Context, batchID domain.BatchID, manufacturer domain.Identity, quantity uint64) (Distribution, error) {
	root, err := s.store.InitBatch(ctx, batchID, manufacturer, quantity, s.clock())
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Monotonic batch ids make this unreachable; observing it means
			// the allocator invariant broke.
			return Distribution{}, dErrors.New(dErrors.CodeConflict, "batch already has a custody tree")
		}
		return Distribution{}, dErrors.New(dErrors.CodeInternal, "init custody tree: "+err.Error())
	}
	return root, nil
}

// Transfer moves quantity from the caller's active holding to a downstream
// stakeholder, appending one node to the batch's tree. All-or-nothing: any
// failed precondition leaves the ledger untouched.
func (s *Service) Transfer(ctx context.Context, caller domain.Identity, batchID domain.BatchID, to domain.Identity, quantity, unitPrice uint64) (Distribution, error) {
	start := s.clock()
	dist, err := s.transfer(ctx, caller, batchID, to, quantity, unitPrice)
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
	}
	s.metrics.ObserveTransfer(outcome, s.clock().Sub(start))
	return dist, err
}

func (s *Service) transfer(ctx context.Context, caller domain.Identity, batchID domain.BatchID, to domain.Identity, quantity, unitPrice uint64) (Distribution, error) {
	if quantity == 0 {
		return Distribution{}, dErrors.New(dErrors.CodeBadRequest, "quantity must be positive")
	}
	if to.IsSentinel() || to == caller {
		return Distribution{}, dErrors.New(dErrors.CodeInvalidRecipient, "invalid transfer destination")
	}

	info, err := s.batches.BatchInfo(ctx, batchID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Distribution{}, dErrors.New(dErrors.CodeNotFound, "unknown batch")
		}
		return Distribution{}, dErrors.New(dErrors.CodeInternal, "resolve batch: "+err.Error())
	}

	active, err := s.resolveHolding(ctx, info, batchID, caller)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Distribution{}, dErrors.New(dErrors.CodeUnauthorized, "caller has never held this batch")
		}
		return Distribution{}, dErrors.New(dErrors.CodeInternal, "resolve holding: "+err.Error())
	}

	if err := s.checkRecipient(ctx, caller, to); err != nil {
		return Distribution{}, err
	}

	dist, err := s.store.AppendChild(ctx, batchID, active.ID, caller, to, quantity, unitPrice, s.clock())
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrInsufficient):
			return Distribution{}, dErrors.New(dErrors.CodeInsufficientQuantity, err.Error())
		case errors.Is(err, sentinel.ErrNotFound):
			return Distribution{}, dErrors.New(dErrors.CodeNotFound, err.Error())
		default:
			return Distribution{}, dErrors.New(dErrors.CodeInternal, "append transfer: "+err.Error())
		}
	}

	s.emit(ctx, events.BatchTransferred{
		BatchID:        batchID,
		DistributionID: dist.ID,
		From:           caller,
		To:             to,
		Quantity:       quantity,
		Timestamp:      dist.CreatedAt,
	})
	return dist, nil
}

// History returns the stakeholder's custody chain, root-first. The walk uses
// the explicit parent pointers, so it stays correct when a holder split
// inventory across several recipients or reacquired the batch later.
func (s *Service) History(ctx context.Context, batchID domain.BatchID, stakeholder domain.Identity) ([]Distribution, error) {
	info, err := s.batches.BatchInfo(ctx, batchID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown batch")
		}
		return nil, dErrors.New(dErrors.CodeInternal, "resolve batch: "+err.Error())
	}
	active, err := s.resolveHolding(ctx, info, batchID, stakeholder)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no holding for stakeholder")
		}
		return nil, dErrors.New(dErrors.CodeInternal, "resolve holding: "+err.Error())
	}
	chain, err := s.store.Chain(ctx, batchID, active.ID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInternal, "walk ancestry: "+err.Error())
	}
	if len(chain) == 0 || !chain[0].From.IsSentinel() || chain[0].ID != info.Root {
		// The tree is corrupt if a chain does not end at the registered root.
		return nil, dErrors.New(dErrors.CodeInternal, "ancestry does not terminate at batch root")
	}
	s.metrics.ObserveHistory(len(chain))
	return chain, nil
}

// Remaining returns the stakeholder's outstanding quantity, recomputed from
// children and recorded sales on every read.
func (s *Service) Remaining(ctx context.Context, batchID domain.BatchID, stakeholder domain.Identity) (uint64, error) {
	info, err := s.batches.BatchInfo(ctx, batchID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, dErrors.New(dErrors.CodeNotFound, "unknown batch")
		}
		return 0, dErrors.New(dErrors.CodeInternal, "resolve batch: "+err.Error())
	}
	active, err := s.resolveHolding(ctx, info, batchID, stakeholder)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, dErrors.New(dErrors.CodeNotFound, "no holding for stakeholder")
		}
		return 0, dErrors.New(dErrors.CodeInternal, "resolve holding: "+err.Error())
	}
	remaining, err := s.store.Remaining(ctx, batchID, active.ID)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInternal, "compute remaining: "+err.Error())
	}
	return remaining, nil
}

// ConsumeForSale depletes the pharmacy's active node for a point-of-sale
// dispensation and returns the node debited. No root fallback: only a real
// recipient node can sell.
func (s *Service) ConsumeForSale(ctx context.Context, batchID domain.BatchID, pharmacy domain.Identity, quantity uint64) (Distribution, error) {
	active, err := s.store.Active(ctx, batchID, pharmacy)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Distribution{}, dErrors.New(dErrors.CodeNotFound, "pharmacy holds no stock of this batch")
		}
		return Distribution{}, dErrors.New(dErrors.CodeInternal, "resolve holding: "+err.Error())
	}
	if err := s.store.Consume(ctx, batchID, active.ID, quantity); err != nil {
		if errors.Is(err, sentinel.ErrInsufficient) {
			return Distribution{}, dErrors.New(dErrors.CodeInsufficientQuantity, err.Error())
		}
		return Distribution{}, dErrors.New(dErrors.CodeInternal, "record sale depletion: "+err.Error())
	}
	return active, nil
}

// IsManufacturer reports whether the identity manufactured the batch.
func (s *Service) IsManufacturer(ctx context.Context, batchID domain.BatchID, identity domain.Identity) (bool, error) {
	info, err := s.batches.BatchInfo(ctx, batchID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, dErrors.New(dErrors.CodeNotFound, "unknown batch")
		}
		return false, dErrors.New(dErrors.CodeInternal, "resolve batch: "+err.Error())
	}
	return info.Manufacturer == identity, nil
}

// IsStakeholder reports whether the identity currently appears in the
// batch's custody chain: its manufacturer, or any active holder.
func (s *Service) IsStakeholder(ctx context.Context, batchID domain.BatchID, identity domain.Identity) (bool, error) {
	if ok, err := s.IsManufacturer(ctx, batchID, identity); err != nil || ok {
		return ok, err
	}
	_, err := s.store.Active(ctx, batchID, identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.New(dErrors.CodeInternal, "resolve holding: "+err.Error())
	}
	return true, nil
}

// IsPharmacy reports whether the identity holds batch stock as a pharmacy.
func (s *Service) IsPharmacy(ctx context.Context, batchID domain.BatchID, identity domain.Identity) (bool, error) {
	_, err := s.store.Active(ctx, batchID, identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.New(dErrors.CodeInternal, "resolve holding: "+err.Error())
	}
	return s.registry.HasRole(ctx, identity, domain.RolePharmacy)
}

// resolveHolding finds the node representing the stakeholder's current
// custody: the active index entry, or the root for a manufacturer that has
// not appeared as a recipient.
func (s *Service) resolveHolding(ctx context.Context, info BatchInfo, batchID domain.BatchID, stakeholder domain.Identity) (Distribution, error) {
	active, err := s.store.Active(ctx, batchID, stakeholder)
	if err == nil {
		return active, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) && stakeholder == info.Manufacturer {
		return s.store.Get(ctx, batchID, info.Root)
	}
	return Distribution{}, err
}

// checkRecipient enforces, in order, that the destination can receive
// custody at all, then that the strict ladder is respected. Strictness is
// deliberate: manufacturer → distributor → wholesaler → pharmacy, no skips.
func (s *Service) checkRecipient(ctx context.Context, caller, to domain.Identity) error {
	receivable := false
	for _, role := range domain.DownstreamRoles() {
		ok, err := s.registry.HasRole(ctx, to, role)
		if err != nil {
			return dErrors.New(dErrors.CodeInternal, "role lookup: "+err.Error())
		}
		if ok {
			receivable = true
			break
		}
	}
	if !receivable {
		return dErrors.New(dErrors.CodeInvalidRecipient, "recipient holds no downstream role")
	}

	for _, role := range []domain.Role{domain.RoleManufacturer, domain.RoleDistributor, domain.RoleWholesaler} {
		held, err := s.registry.HasRole(ctx, caller, role)
		if err != nil {
			return dErrors.New(dErrors.CodeInternal, "role lookup: "+err.Error())
		}
		if !held {
			continue
		}
		next, _ := role.NextInLadder()
		ok, err := s.registry.HasRole(ctx, to, next)
		if err != nil {
			return dErrors.New(dErrors.CodeInternal, "role lookup: "+err.Error())
		}
		if !ok {
			return dErrors.New(dErrors.CodeRoleLadderViolation,
				"a "+role.String()+" may only transfer to a "+next.String())
		}
		return nil
	}
	// Pharmacies move inventory through sales, consumers not at all.
	return dErrors.New(dErrors.CodeRoleLadderViolation, "caller's role may not transfer custody")
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
