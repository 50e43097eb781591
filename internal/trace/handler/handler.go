// Package handler exposes the derived traceability log over HTTP.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custodia/internal/platform/httpjson"
	"custodia/internal/trace"
	"custodia/pkg/domain"
)

type Handler struct {
	store  trace.Store
	logger *slog.Logger
}

func New(store trace.Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Routes mounts the traceability endpoints on an authenticated router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/v1/batches/{batchID}/transactions", h.transactions)
	r.Get("/v1/pharmacies/{identity}/products/{productID}/batches", h.pharmacyBatches)
}

func (h *Handler) transactions(w http.ResponseWriter, r *http.Request) {
	batchID, err := domain.ParseBatchID(chi.URLParam(r, "batchID"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	txs, err := h.store.ListForBatch(r.Context(), batchID)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	if txs == nil {
		txs = []trace.Transaction{}
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (h *Handler) pharmacyBatches(w http.ResponseWriter, r *http.Request) {
	pharmacy, err := domain.ParseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	productID, err := domain.ParseProductID(chi.URLParam(r, "productID"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	ids, err := h.store.BatchesForPharmacy(r.Context(), pharmacy, productID)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	if ids == nil {
		ids = []domain.BatchID{}
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"batchIds": ids})
}
