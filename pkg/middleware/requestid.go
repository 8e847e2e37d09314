package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pagesmith/pagesmith/pkg/contextkeys"
)

// RequestIDHeader carries the request ID on both requests and responses
const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request an ID, honoring one already set by the
// front proxy, and echoes it on the response so callers can quote it when
// reporting problems. Handlers pick it up through the context for logging.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := contextkeys.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
