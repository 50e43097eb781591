package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/platform/metrics"
)

// Latency records per-route request metrics. Route patterns come from chi so
// cardinality stays bounded regardless of path parameters.
func Latency(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequest(route, r.Method, rec.status, time.Since(start))
		})
	}
}
