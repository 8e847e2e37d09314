// Package middleware provides HTTP middleware for request identity and
// abuse protection in front of the billing and public tool endpoints.
package middleware

import (
	"net/http"
	"strings"

	"github.com/pagesmith/pagesmith/pkg/contextkeys"
)

// Header names forwarded by the authenticating front proxy. Session
// mechanics live upstream; this service only trusts the forwarded identity.
const (
	UserIDHeader = "X-Pagesmith-User"
	TeamIDHeader = "X-Pagesmith-Team"
)

// Identity copies the front proxy's forwarded user and team identifiers into
// the request context. Requests without a user header pass through
// unauthenticated; protected handlers reject them.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if userID := strings.TrimSpace(r.Header.Get(UserIDHeader)); userID != "" {
			ctx = contextkeys.WithUserID(ctx, userID)
		}
		if teamID := strings.TrimSpace(r.Header.Get(TeamIDHeader)); teamID != "" {
			ctx = contextkeys.WithTeamID(ctx, teamID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
