// Package handler exposes custody transfers and holdings over HTTP.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/custody"
	"custodia/internal/platform/httpjson"
	"custodia/internal/platform/middleware"
	"custodia/pkg/domain"
)

type Handler struct {
	svc    *custody.Service
	logger *slog.Logger
}

func New(svc *custody.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the custody endpoints on an authenticated router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/v1/batches/{batchID}/transfers", h.transfer)
	r.Get("/v1/batches/{batchID}/holdings/{stakeholder}/history", h.history)
	r.Get("/v1/batches/{batchID}/holdings/{stakeholder}/remaining", h.remaining)
	r.Get("/v1/batches/{batchID}/stakeholders/{identity}", h.stakeholder)
}

type transferRequest struct {
	To        string `json:"to"`
	Quantity  uint64 `json:"quantity"`
	UnitPrice uint64 `json:"unitPrice,omitempty"`
}

type distributionResponse struct {
	ID        domain.DistributionID `json:"distributionId"`
	BatchID   domain.BatchID        `json:"batchId"`
	Parent    domain.DistributionID `json:"parentId,omitempty"`
	From      string                `json:"from,omitempty"`
	To        string                `json:"to"`
	Quantity  uint64                `json:"quantity"`
	UnitPrice uint64                `json:"unitPrice,omitempty"`
	CreatedAt time.Time             `json:"createdAt"`
}

func toResponse(d custody.Distribution) distributionResponse {
	return distributionResponse{
		ID:        d.ID,
		BatchID:   d.BatchID,
		Parent:    d.Parent,
		From:      d.From.String(),
		To:        d.To.String(),
		Quantity:  d.Quantity,
		UnitPrice: d.UnitPrice,
		CreatedAt: d.CreatedAt,
	}
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	batchID, err := domain.ParseBatchID(chi.URLParam(r, "batchID"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	var req transferRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	to, err := domain.ParseIdentity(req.To)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	caller := middleware.GetIdentity(r.Context())
	dist, err := h.svc.Transfer(r.Context(), caller, batchID, to, req.Quantity, req.UnitPrice)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, toResponse(dist))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	batchID, err := domain.ParseBatchID(chi.URLParam(r, "batchID"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	stakeholder, err := domain.ParseIdentity(chi.URLParam(r, "stakeholder"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	chain, err := h.svc.History(r.Context(), batchID, stakeholder)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	out := make([]distributionResponse, 0, len(chain))
	for _, d := range chain {
		out = append(out, toResponse(d))
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"history": out})
}

func (h *Handler) remaining(w http.ResponseWriter, r *http.Request) {
	batchID, err := domain.ParseBatchID(chi.URLParam(r, "batchID"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	stakeholder, err := domain.ParseIdentity(chi.URLParam(r, "stakeholder"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	remaining, err := h.svc.Remaining(r.Context(), batchID, stakeholder)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"remaining": remaining})
}

// stakeholder answers the membership predicates in one roundtrip.
func (h *Handler) stakeholder(w http.ResponseWriter, r *http.Request) {
	batchID, err := domain.ParseBatchID(chi.URLParam(r, "batchID"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	identity, err := domain.ParseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	isManufacturer, err := h.svc.IsManufacturer(r.Context(), batchID, identity)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	isStakeholder, err := h.svc.IsStakeholder(r.Context(), batchID, identity)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	isPharmacy, err := h.svc.IsPharmacy(r.Context(), batchID, identity)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]bool{
		"isManufacturer": isManufacturer,
		"isStakeholder":  isStakeholder,
		"isPharmacy":     isPharmacy,
	})
}
