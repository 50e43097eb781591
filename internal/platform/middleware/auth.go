package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"custodia/pkg/domain"
)

// JWTValidator defines the interface for validating bearer tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims carries the claims the ledger cares about. The token only conveys
// who is calling; what the caller may do always comes from the role registry.
type JWTClaims struct {
	Identity domain.Identity
}

type contextKeyIdentity struct{}

// ContextKeyIdentity is exported for use in handler tests.
var ContextKeyIdentity = contextKeyIdentity{}

// GetIdentity retrieves the authenticated caller identity from the context.
// Returns the sentinel when the request was not authenticated.
func GetIdentity(ctx context.Context) domain.Identity {
	identity, ok := ctx.Value(ContextKeyIdentity).(domain.Identity)
	if !ok {
		return domain.Sentinel
	}
	return identity
}

// WithIdentity returns a context carrying the caller identity. Test helper.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, identity)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller identity in the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || token == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil || claims.Identity.IsSentinel() {
				logger.WarnContext(r.Context(), "rejected bearer token",
					"request_id", GetRequestID(r.Context()),
					"error", errString(err),
				)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			ctx := WithIdentity(r.Context(), claims.Identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func errString(err error) string {
	if err == nil {
		return "sentinel identity"
	}
	return err.Error()
}
