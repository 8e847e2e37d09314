package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pagesmith/pagesmith/pkg/apikeys"
	"github.com/pagesmith/pagesmith/pkg/async"
	"github.com/pagesmith/pagesmith/pkg/contextkeys"
	"github.com/pagesmith/pagesmith/pkg/httputil"
)

// APIKeyAuth authenticates requests by their bearer API key secret and puts
// the owning team and key ID into the request context.
type APIKeyAuth struct {
	keys apikeys.Service
}

// NewAPIKeyAuth creates a new API key authentication middleware
func NewAPIKeyAuth(keys apikeys.Service) *APIKeyAuth {
	return &APIKeyAuth{keys: keys}
}

// Handler wraps an HTTP handler with API key authentication
func (m *APIKeyAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		key, err := m.keys.GetBySecret(r.Context(), parts[1])
		if err != nil {
			if err == apikeys.ErrKeyNotFound {
				httputil.WriteUnauthorized(w, "invalid API key")
				return
			}
			httputil.WriteInternalError(w, err)
			return
		}

		// Usage tracking is best effort and off the request path. Detached
		// from the request context so the handler returning does not cancel
		// the stamp mid-write.
		keyID := key.ID
		async.SafeGo(context.WithoutCancel(r.Context()), 5*time.Second, "touch api key last_used_at", func(ctx context.Context) error {
			return m.keys.TouchLastUsed(ctx, keyID)
		})

		ctx := contextkeys.WithTeamID(r.Context(), key.TeamID)
		ctx = contextkeys.WithAPIKeyID(ctx, keyID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
