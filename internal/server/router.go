// Package server assembles the HTTP surface: middleware chain, operational
// endpoints, and the authenticated API routes contributed by each domain
// handler.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custodia/internal/jwttoken"
	"custodia/internal/platform/httpjson"
	"custodia/internal/platform/metrics"
	"custodia/internal/platform/middleware"
	"custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

// RouteMounter is implemented by each domain handler.
type RouteMounter interface {
	Routes(chi.Router)
}

// Config wires the router.
type Config struct {
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Validator middleware.JWTValidator
	// Tokens enables the development token endpoint when non-nil.
	Tokens   *jwttoken.Service
	Timeout  time.Duration
	Handlers []RouteMounter
	// Health checks run on /healthz, keyed by dependency name.
	Health map[string]func(context.Context) error
}

// NewRouter builds the full HTTP handler.
func NewRouter(cfg Config) http.Handler {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.Latency(cfg.Metrics))

	r.Get("/healthz", healthHandler(cfg.Health))
	r.Handle("/metrics", promhttp.Handler())

	if cfg.Tokens != nil {
		r.Post("/v1/dev/tokens", devTokenHandler(cfg.Tokens))
	}

	r.Group(func(api chi.Router) {
		api.Use(middleware.RequireAuth(cfg.Validator, cfg.Logger))
		for _, h := range cfg.Handlers {
			h.Routes(api)
		}
	})
	return r
}

func healthHandler(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				deps[name] = err.Error()
				continue
			}
			deps[name] = "ok"
		}
		httpjson.Write(w, status, map[string]any{
			"status":       statusWord(status),
			"dependencies": deps,
		})
	}
}

func statusWord(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "degraded"
}

type devTokenRequest struct {
	Identity  string `json:"identity"`
	ExpiresIn int64  `json:"expiresInSeconds,omitempty"`
}

// devTokenHandler mints tokens for local stacks. Deployments with a real
// issuer leave Tokens nil and this route never exists.
func devTokenHandler(tokens *jwttoken.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req devTokenRequest
		if err := httpjson.Decode(r, &req); err != nil {
			httpjson.WriteError(w, err)
			return
		}
		identity, err := domain.ParseIdentity(req.Identity)
		if err != nil {
			httpjson.WriteError(w, err)
			return
		}
		expiresIn := time.Duration(req.ExpiresIn) * time.Second
		if expiresIn <= 0 {
			expiresIn = time.Hour
		}
		token, err := tokens.GenerateAccessToken(identity, expiresIn)
		if err != nil {
			httpjson.WriteError(w, dErrors.New(dErrors.CodeInternal, "mint token"))
			return
		}
		httpjson.Write(w, http.StatusOK, map[string]string{"accessToken": token})
	}
}
