// Package handler exposes the batch registry over HTTP.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/batch"
	"custodia/internal/platform/httpjson"
	"custodia/internal/platform/middleware"
	"custodia/pkg/domain"
)

type Handler struct {
	svc    *batch.Service
	logger *slog.Logger
}

func New(svc *batch.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the batch endpoints on an authenticated router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/v1/batches", h.create)
	r.Get("/v1/batches/{batchID}", h.get)
	r.Get("/v1/products/{productID}/batches", h.listForProduct)
}

type createRequest struct {
	ProductID       string            `json:"productId"`
	Quantity        uint64            `json:"quantity"`
	ManufactureDate time.Time         `json:"manufactureDate"`
	ExpiryDate      time.Time         `json:"expiryDate"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type batchResponse struct {
	ID               domain.BatchID        `json:"batchId"`
	ProductID        string                `json:"productId"`
	Quantity         uint64                `json:"quantity"`
	ManufactureDate  time.Time             `json:"manufactureDate"`
	ExpiryDate       time.Time             `json:"expiryDate"`
	Manufacturer     string                `json:"manufacturer"`
	RootDistribution domain.DistributionID `json:"rootDistributionId"`
	CreatedAt        time.Time             `json:"createdAt"`
	Metadata         map[string]string     `json:"metadata,omitempty"`
}

func toResponse(b batch.Batch) batchResponse {
	return batchResponse{
		ID:               b.ID,
		ProductID:        b.ProductID.String(),
		Quantity:         b.Quantity,
		ManufactureDate:  b.ManufactureDate,
		ExpiryDate:       b.ExpiryDate,
		Manufacturer:     b.Manufacturer.String(),
		RootDistribution: b.RootDistribution,
		CreatedAt:        b.CreatedAt,
		Metadata:         b.Metadata,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	productID, err := domain.ParseProductID(req.ProductID)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	caller := middleware.GetIdentity(r.Context())
	b, err := h.svc.Create(r.Context(), caller, batch.CreateParams{
		ProductID:       productID,
		Quantity:        req.Quantity,
		ManufactureDate: req.ManufactureDate,
		ExpiryDate:      req.ExpiryDate,
		Metadata:        req.Metadata,
	})
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, toResponse(b))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseBatchID(chi.URLParam(r, "batchID"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	b, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toResponse(b))
}

func (h *Handler) listForProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := domain.ParseProductID(chi.URLParam(r, "productID"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	ids, err := h.svc.ListForProduct(r.Context(), productID)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	if ids == nil {
		ids = []domain.BatchID{}
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"batchIds": ids})
}
