// Package handler exposes the point-of-sale ledger over HTTP.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/platform/httpjson"
	"custodia/internal/platform/middleware"
	"custodia/internal/pos"
	"custodia/pkg/domain"
)

type Handler struct {
	svc    *pos.Service
	logger *slog.Logger
}

func New(svc *pos.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the sale endpoints on an authenticated router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/v1/batches/{batchID}/sales", h.sell)
	r.Get("/v1/batches/{batchID}/sales", h.list)
	r.Get("/v1/batches/{batchID}/sales/{saleID}", h.get)
}

type sellRequest struct {
	Pharmacy string `json:"pharmacy"`
	Consumer string `json:"consumer"`
	Quantity uint64 `json:"quantity"`
}

type saleResponse struct {
	ID        domain.SaleID         `json:"saleId"`
	BatchID   domain.BatchID        `json:"batchId"`
	Pharmacy  string                `json:"pharmacy"`
	Consumer  string                `json:"consumer"`
	Quantity  uint64                `json:"quantity"`
	Node      domain.DistributionID `json:"distributionId"`
	CreatedAt time.Time             `json:"createdAt"`
}

func toResponse(sale pos.UnitSale) saleResponse {
	return saleResponse{
		ID:        sale.ID,
		BatchID:   sale.BatchID,
		Pharmacy:  sale.Pharmacy.String(),
		Consumer:  sale.Consumer.String(),
		Quantity:  sale.Quantity,
		Node:      sale.Node,
		CreatedAt: sale.CreatedAt,
	}
}

func (h *Handler) sell(w http.ResponseWriter, r *http.Request) {
	batchID, err := domain.ParseBatchID(chi.URLParam(r, "batchID"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	var req sellRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	pharmacy, err := domain.ParseIdentity(req.Pharmacy)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	consumer, err := domain.ParseIdentity(req.Consumer)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	caller := middleware.GetIdentity(r.Context())
	sale, err := h.svc.Sell(r.Context(), caller, batchID, pharmacy, consumer, req.Quantity)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, toResponse(sale))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	batchID, err := domain.ParseBatchID(chi.URLParam(r, "batchID"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	saleID, err := domain.ParseSaleID(chi.URLParam(r, "saleID"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	sale, err := h.svc.Get(r.Context(), batchID, saleID)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toResponse(sale))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	batchID, err := domain.ParseBatchID(chi.URLParam(r, "batchID"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	sales, err := h.svc.ListForBatch(r.Context(), batchID)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	out := make([]saleResponse, 0, len(sales))
	for _, sale := range sales {
		out = append(out, toResponse(sale))
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"sales": out})
}
