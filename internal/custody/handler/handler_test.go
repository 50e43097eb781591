package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"custodia/internal/batch"
	"custodia/internal/custody"
	"custodia/internal/events"
	"custodia/internal/platform/middleware"
	"custodia/internal/roles"
	"custodia/pkg/domain"
)

const (
	manufacturer = domain.Identity("acme-labs")
	distributor  = domain.Identity("medsupply-east")
	wholesaler   = domain.Identity("regional-wholesale")
	pharmacy     = domain.Identity("corner-pharmacy")
	productID    = domain.ProductID("prod-aspirin-200")
)

type HandlerSuite struct {
	suite.Suite
	router   chi.Router
	batchSvc *batch.Service
	batchID  domain.BatchID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	registry := roles.NewInMemoryRegistry()
	registry.Grant(manufacturer, domain.RoleManufacturer)
	registry.Grant(distributor, domain.RoleDistributor)
	registry.Grant(wholesaler, domain.RoleWholesaler)
	registry.Grant(pharmacy, domain.RolePharmacy)
	registry.ApproveProduct(productID, manufacturer)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	batchStore := batch.NewInMemoryStore()
	custodySvc := custody.NewService(custody.NewInMemoryStore(),
		batch.NewCustodySource(batchStore), registry, events.Nop{}, logger)
	s.batchSvc = batch.NewService(batchStore, registry, custodySvc, events.Nop{}, logger)

	s.router = chi.NewRouter()
	New(custodySvc, logger).Routes(s.router)

	b, err := s.batchSvc.Create(s.T().Context(), manufacturer, batch.CreateParams{
		ProductID:       productID,
		Quantity:        1000,
		ManufactureDate: time.Now().AddDate(0, -1, 0),
		ExpiryDate:      time.Now().AddDate(2, 0, 0),
	})
	s.Require().NoError(err)
	s.batchID = b.ID
}

func (s *HandlerSuite) do(caller domain.Identity, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(middleware.WithIdentity(req.Context(), caller))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) transfer(caller domain.Identity, to domain.Identity, quantity uint64) *httptest.ResponseRecorder {
	return s.do(caller, http.MethodPost, "/v1/batches/"+s.batchID.String()+"/transfers",
		map[string]any{"to": to.String(), "quantity": quantity})
}

func (s *HandlerSuite) errorCode(rec *httptest.ResponseRecorder) string {
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func (s *HandlerSuite) TestTransfer() {
	rec := s.transfer(manufacturer, distributor, 600)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		DistributionID domain.DistributionID `json:"distributionId"`
		From           string                `json:"from"`
		To             string                `json:"to"`
		Quantity       uint64                `json:"quantity"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.False(resp.DistributionID.IsZero())
	s.Equal(manufacturer.String(), resp.From)
	s.Equal(distributor.String(), resp.To)
	s.Equal(uint64(600), resp.Quantity)
}

func (s *HandlerSuite) TestTransferErrorsMapToStatuses() {
	s.Run("ladder violation is 422", func() {
		rec := s.transfer(manufacturer, wholesaler, 10)
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
		s.Equal("role_ladder_violation", s.errorCode(rec))
	})

	s.Run("overdraft is 409", func() {
		rec := s.transfer(manufacturer, distributor, 1001)
		s.Equal(http.StatusConflict, rec.Code)
		s.Equal("insufficient_quantity", s.errorCode(rec))
	})

	s.Run("non-holder is 403", func() {
		rec := s.transfer(distributor, wholesaler, 10)
		s.Equal(http.StatusForbidden, rec.Code)
		s.Equal("unauthorized", s.errorCode(rec))
	})

	s.Run("unknown batch is 404", func() {
		rec := s.do(manufacturer, http.MethodPost, "/v1/batches/999/transfers",
			map[string]any{"to": distributor.String(), "quantity": 10})
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("malformed batch id is 400", func() {
		rec := s.do(manufacturer, http.MethodPost, "/v1/batches/abc/transfers",
			map[string]any{"to": distributor.String(), "quantity": 10})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("malformed body is 400", func() {
		req := httptest.NewRequest(http.MethodPost,
			"/v1/batches/"+s.batchID.String()+"/transfers",
			bytes.NewBufferString("{not json"))
		req = req.WithContext(middleware.WithIdentity(req.Context(), manufacturer))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestHistoryAndRemaining() {
	s.Require().Equal(http.StatusCreated, s.transfer(manufacturer, distributor, 600).Code)

	rec := s.do(distributor, http.MethodGet,
		"/v1/batches/"+s.batchID.String()+"/holdings/"+distributor.String()+"/history", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var history struct {
		History []struct {
			To       string `json:"to"`
			Quantity uint64 `json:"quantity"`
		} `json:"history"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &history))
	s.Require().Len(history.History, 2)
	s.Equal(manufacturer.String(), history.History[0].To)
	s.Equal(uint64(1000), history.History[0].Quantity)
	s.Equal(distributor.String(), history.History[1].To)

	rec = s.do(manufacturer, http.MethodGet,
		"/v1/batches/"+s.batchID.String()+"/holdings/"+manufacturer.String()+"/remaining", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var remaining struct {
		Remaining uint64 `json:"remaining"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &remaining))
	s.Equal(uint64(400), remaining.Remaining)
}

func (s *HandlerSuite) TestStakeholderPredicates() {
	s.Require().Equal(http.StatusCreated, s.transfer(manufacturer, distributor, 600).Code)

	rec := s.do(distributor, http.MethodGet,
		"/v1/batches/"+s.batchID.String()+"/stakeholders/"+distributor.String(), nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp map[string]bool
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.False(resp["isManufacturer"])
	s.True(resp["isStakeholder"])
	s.False(resp["isPharmacy"])
}
