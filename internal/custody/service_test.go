package custody

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"custodia/internal/events"
	"custodia/internal/roles"
	"custodia/internal/roles/mocks"
	"custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
)

const (
	manufacturer = domain.Identity("acme-labs")
	distributor  = domain.Identity("medsupply-east")
	distributor2 = domain.Identity("medsupply-west")
	wholesaler   = domain.Identity("regional-wholesale")
	pharmacy     = domain.Identity("corner-pharmacy")
	consumer     = domain.Identity("alice")
)

type fakeBatches map[domain.BatchID]BatchInfo

func (f fakeBatches) BatchInfo(_ context.Context, id domain.BatchID) (BatchInfo, error) {
	info, ok := f[id]
	if !ok {
		return BatchInfo{}, fmt.Errorf("batch %s: %w", id, sentinel.ErrNotFound)
	}
	return info, nil
}

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	store    *InMemoryStore
	batches  fakeBatches
	registry *roles.InMemoryRegistry
	bus      *events.Bus
	svc      *Service
	now      time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
	s.batches = make(fakeBatches)
	s.registry = roles.NewInMemoryRegistry()
	s.bus = events.NewBus(16)
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s.registry.Grant(manufacturer, domain.RoleManufacturer)
	s.registry.Grant(distributor, domain.RoleDistributor)
	s.registry.Grant(distributor2, domain.RoleDistributor)
	s.registry.Grant(wholesaler, domain.RoleWholesaler)
	s.registry.Grant(pharmacy, domain.RolePharmacy)
	s.registry.Grant(consumer, domain.RoleConsumer)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.svc = NewService(s.store, s.batches, s.registry, s.bus, logger,
		WithClock(func() time.Time { return s.now }))
}

// createBatch initializes a custody tree and registers the batch with the
// fake registry, mirroring what batch.Service.Create does.
func (s *ServiceSuite) createBatch(id domain.BatchID, quantity uint64) {
	root, err := s.svc.InitBatch(s.ctx, id, manufacturer, quantity)
	s.Require().NoError(err)
	s.batches[id] = BatchInfo{
		ProductID:    "prod-aspirin-200",
		Manufacturer: manufacturer,
		Root:         root.ID,
		Quantity:     quantity,
	}
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.Require().True(dErrors.HasCode(err, code), "want code %s, got %v", code, err)
}

func (s *ServiceSuite) drainEvents() []events.Event {
	var drained []events.Event
	for {
		select {
		case e := <-s.bus.C():
			drained = append(drained, e)
		default:
			return drained
		}
	}
}

// ---------------------------------------------------------------------------
// Linear chain: manufacturer → distributor → wholesaler → pharmacy
// ---------------------------------------------------------------------------

func (s *ServiceSuite) TestLinearChain() {
	s.createBatch(1, 1000)

	_, err := s.svc.Transfer(s.ctx, manufacturer, 1, distributor, 1000, 0)
	s.Require().NoError(err)
	_, err = s.svc.Transfer(s.ctx, distributor, 1, wholesaler, 600, 0)
	s.Require().NoError(err)
	_, err = s.svc.Transfer(s.ctx, wholesaler, 1, pharmacy, 600, 0)
	s.Require().NoError(err)

	s.Run("remaining reflects onward transfers", func() {
		remaining, err := s.svc.Remaining(s.ctx, 1, distributor)
		s.Require().NoError(err)
		s.Equal(uint64(400), remaining)

		remaining, err = s.svc.Remaining(s.ctx, 1, wholesaler)
		s.Require().NoError(err)
		s.Equal(uint64(0), remaining)

		remaining, err = s.svc.Remaining(s.ctx, 1, pharmacy)
		s.Require().NoError(err)
		s.Equal(uint64(600), remaining)
	})

	s.Run("manufacturer remaining drains through the root", func() {
		remaining, err := s.svc.Remaining(s.ctx, 1, manufacturer)
		s.Require().NoError(err)
		s.Equal(uint64(0), remaining)
	})

	s.Run("pharmacy history walks back to the root", func() {
		chain, err := s.svc.History(s.ctx, 1, pharmacy)
		s.Require().NoError(err)
		s.Require().Len(chain, 4)

		s.True(chain[0].IsRoot())
		s.Equal(domain.Sentinel, chain[0].From)
		s.Equal(manufacturer, chain[0].To)

		quantities := make([]uint64, 0, len(chain))
		for _, node := range chain {
			quantities = append(quantities, node.Quantity)
		}
		s.Equal([]uint64{1000, 1000, 600, 600}, quantities)

		holders := []domain.Identity{chain[1].From, chain[2].From, chain[3].From}
		s.Equal([]domain.Identity{manufacturer, distributor, wholesaler}, holders)
	})

	s.Run("each transfer published an event", func() {
		drained := s.drainEvents()
		s.Require().Len(drained, 3)
		first, ok := drained[0].(events.BatchTransferred)
		s.Require().True(ok)
		s.Equal(manufacturer, first.From)
		s.Equal(distributor, first.To)
		s.Equal(uint64(1000), first.Quantity)
	})
}

// ---------------------------------------------------------------------------
// Branching and reacquisition
// ---------------------------------------------------------------------------

func (s *ServiceSuite) TestBranchingSplitsInventory() {
	s.createBatch(1, 1000)

	_, err := s.svc.Transfer(s.ctx, manufacturer, 1, distributor, 400, 0)
	s.Require().NoError(err)
	_, err = s.svc.Transfer(s.ctx, manufacturer, 1, distributor2, 300, 0)
	s.Require().NoError(err)

	remaining, err := s.svc.Remaining(s.ctx, 1, manufacturer)
	s.Require().NoError(err)
	s.Equal(uint64(300), remaining)

	// Each branch sees only its own quantity.
	remaining, err = s.svc.Remaining(s.ctx, 1, distributor)
	s.Require().NoError(err)
	s.Equal(uint64(400), remaining)

	remaining, err = s.svc.Remaining(s.ctx, 1, distributor2)
	s.Require().NoError(err)
	s.Equal(uint64(300), remaining)
}

func (s *ServiceSuite) TestReacquisitionNewestHoldingWins() {
	s.createBatch(1, 1000)

	first, err := s.svc.Transfer(s.ctx, manufacturer, 1, distributor, 300, 0)
	s.Require().NoError(err)
	second, err := s.svc.Transfer(s.ctx, manufacturer, 1, distributor, 200, 0)
	s.Require().NoError(err)
	s.NotEqual(first.ID, second.ID)

	// The index now points at the newest node; remaining and history follow it.
	remaining, err := s.svc.Remaining(s.ctx, 1, distributor)
	s.Require().NoError(err)
	s.Equal(uint64(200), remaining)

	chain, err := s.svc.History(s.ctx, 1, distributor)
	s.Require().NoError(err)
	s.Require().Len(chain, 2)
	s.Equal(second.ID, chain[1].ID)

	// The first node stays intact in the tree.
	node, err := s.store.Get(s.ctx, 1, first.ID)
	s.Require().NoError(err)
	s.Equal(uint64(300), node.Quantity)
}

// ---------------------------------------------------------------------------
// Transfer preconditions
// ---------------------------------------------------------------------------

func (s *ServiceSuite) TestTransferRejectsZeroQuantity() {
	s.createBatch(1, 1000)
	_, err := s.svc.Transfer(s.ctx, manufacturer, 1, distributor, 0, 0)
	s.requireCode(err, dErrors.CodeBadRequest)
}

func (s *ServiceSuite) TestTransferRejectsSelfAndSentinel() {
	s.createBatch(1, 1000)

	_, err := s.svc.Transfer(s.ctx, manufacturer, 1, manufacturer, 10, 0)
	s.requireCode(err, dErrors.CodeInvalidRecipient)

	_, err = s.svc.Transfer(s.ctx, manufacturer, 1, domain.Sentinel, 10, 0)
	s.requireCode(err, dErrors.CodeInvalidRecipient)
}

func (s *ServiceSuite) TestTransferUnknownBatch() {
	_, err := s.svc.Transfer(s.ctx, manufacturer, 99, distributor, 10, 0)
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestTransferByNonHolder() {
	s.createBatch(1, 1000)
	_, err := s.svc.Transfer(s.ctx, distributor, 1, wholesaler, 10, 0)
	s.requireCode(err, dErrors.CodeUnauthorized)
}

func (s *ServiceSuite) TestTransferToConsumerIsInvalidRecipient() {
	s.createBatch(1, 1000)
	_, err := s.svc.Transfer(s.ctx, manufacturer, 1, consumer, 10, 0)
	s.requireCode(err, dErrors.CodeInvalidRecipient)
}

func (s *ServiceSuite) TestLadderForbidsSkippingTiers() {
	s.createBatch(1, 1000)

	// manufacturer → wholesaler skips the distributor tier
	_, err := s.svc.Transfer(s.ctx, manufacturer, 1, wholesaler, 10, 0)
	s.requireCode(err, dErrors.CodeRoleLadderViolation)

	// manufacturer → pharmacy skips two tiers
	_, err = s.svc.Transfer(s.ctx, manufacturer, 1, pharmacy, 10, 0)
	s.requireCode(err, dErrors.CodeRoleLadderViolation)
}

func (s *ServiceSuite) TestPharmacyMayNotTransferCustody() {
	s.createBatch(1, 1000)
	_, err := s.svc.Transfer(s.ctx, manufacturer, 1, distributor, 1000, 0)
	s.Require().NoError(err)
	_, err = s.svc.Transfer(s.ctx, distributor, 1, wholesaler, 600, 0)
	s.Require().NoError(err)
	_, err = s.svc.Transfer(s.ctx, wholesaler, 1, pharmacy, 600, 0)
	s.Require().NoError(err)

	_, err = s.svc.Transfer(s.ctx, pharmacy, 1, distributor, 100, 0)
	s.requireCode(err, dErrors.CodeRoleLadderViolation)
}

func (s *ServiceSuite) TestOverdraftLeavesLedgerUntouched() {
	s.createBatch(1, 1000)
	_, err := s.svc.Transfer(s.ctx, manufacturer, 1, distributor, 600, 0)
	s.Require().NoError(err)

	_, err = s.svc.Transfer(s.ctx, manufacturer, 1, distributor2, 500, 0)
	s.requireCode(err, dErrors.CodeInsufficientQuantity)

	// Nothing moved: the failed transfer did not dent the balance or the tree.
	remaining, err := s.svc.Remaining(s.ctx, 1, manufacturer)
	s.Require().NoError(err)
	s.Equal(uint64(400), remaining)

	_, err = s.svc.Remaining(s.ctx, 1, distributor2)
	s.requireCode(err, dErrors.CodeNotFound)
}

// ---------------------------------------------------------------------------
// Point-of-sale depletion
// ---------------------------------------------------------------------------

func (s *ServiceSuite) TestConsumeForSaleDepletesPharmacyHolding() {
	s.createBatch(1, 1000)
	_, err := s.svc.Transfer(s.ctx, manufacturer, 1, distributor, 1000, 0)
	s.Require().NoError(err)
	_, err = s.svc.Transfer(s.ctx, distributor, 1, wholesaler, 600, 0)
	s.Require().NoError(err)
	_, err = s.svc.Transfer(s.ctx, wholesaler, 1, pharmacy, 600, 0)
	s.Require().NoError(err)

	node, err := s.svc.ConsumeForSale(s.ctx, 1, pharmacy, 50)
	s.Require().NoError(err)
	s.Equal(pharmacy, node.To)

	remaining, err := s.svc.Remaining(s.ctx, 1, pharmacy)
	s.Require().NoError(err)
	s.Equal(uint64(550), remaining)

	// Sales deplete in place; the chain grows by zero nodes.
	chain, err := s.svc.History(s.ctx, 1, pharmacy)
	s.Require().NoError(err)
	s.Len(chain, 4)
}

func (s *ServiceSuite) TestConsumeForSaleWithoutHolding() {
	s.createBatch(1, 1000)
	_, err := s.svc.ConsumeForSale(s.ctx, 1, pharmacy, 10)
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestConsumeForSaleOverdraft() {
	s.createBatch(1, 1000)
	_, err := s.svc.Transfer(s.ctx, manufacturer, 1, distributor, 1000, 0)
	s.Require().NoError(err)
	_, err = s.svc.Transfer(s.ctx, distributor, 1, wholesaler, 100, 0)
	s.Require().NoError(err)
	_, err = s.svc.Transfer(s.ctx, wholesaler, 1, pharmacy, 100, 0)
	s.Require().NoError(err)

	_, err = s.svc.ConsumeForSale(s.ctx, 1, pharmacy, 101)
	s.requireCode(err, dErrors.CodeInsufficientQuantity)

	remaining, err := s.svc.Remaining(s.ctx, 1, pharmacy)
	s.Require().NoError(err)
	s.Equal(uint64(100), remaining)
}

// ---------------------------------------------------------------------------
// History and stakeholder predicates
// ---------------------------------------------------------------------------

func (s *ServiceSuite) TestHistoryForManufacturerIsJustTheRoot() {
	s.createBatch(1, 1000)
	chain, err := s.svc.History(s.ctx, 1, manufacturer)
	s.Require().NoError(err)
	s.Require().Len(chain, 1)
	s.True(chain[0].IsRoot())
}

func (s *ServiceSuite) TestHistoryForStrangerIsNotFound() {
	s.createBatch(1, 1000)
	_, err := s.svc.History(s.ctx, 1, wholesaler)
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestStakeholderPredicates() {
	s.createBatch(1, 1000)
	_, err := s.svc.Transfer(s.ctx, manufacturer, 1, distributor, 400, 0)
	s.Require().NoError(err)

	ok, err := s.svc.IsManufacturer(s.ctx, 1, manufacturer)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.svc.IsStakeholder(s.ctx, 1, manufacturer)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.svc.IsStakeholder(s.ctx, 1, distributor)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.svc.IsStakeholder(s.ctx, 1, wholesaler)
	s.Require().NoError(err)
	s.False(ok)

	// Holding alone is not enough for IsPharmacy; the role must match too.
	ok, err = s.svc.IsPharmacy(s.ctx, 1, distributor)
	s.Require().NoError(err)
	s.False(ok)
}

// ---------------------------------------------------------------------------
// Init and registry failure paths
// ---------------------------------------------------------------------------

func (s *ServiceSuite) TestInitBatchTwiceConflicts() {
	s.createBatch(1, 1000)
	_, err := s.svc.InitBatch(s.ctx, 1, manufacturer, 1000)
	s.requireCode(err, dErrors.CodeConflict)
}

func TestTransferRegistryLookupFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockRegistry(ctrl)
	registry.EXPECT().
		HasRole(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(false, errors.New("registry unavailable")).
		AnyTimes()

	store := NewInMemoryStore()
	ctx := context.Background()
	root, err := store.InitBatch(ctx, 1, manufacturer, 1000, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	batches := fakeBatches{1: {Manufacturer: manufacturer, Root: root.ID, Quantity: 1000}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(store, batches, registry, events.Nop{}, logger)

	_, err = svc.Transfer(ctx, manufacturer, 1, distributor, 10, 0)
	if !dErrors.HasCode(err, dErrors.CodeInternal) {
		t.Fatalf("want internal error, got %v", err)
	}
}
