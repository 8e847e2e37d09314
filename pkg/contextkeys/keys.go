// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here to prevent
// typos and make key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// UserIDKey contains the authenticated user ID string
	// Set by: middleware.Identity (pkg/middleware/identity.go)
	// Used by: key management handlers, logger
	UserIDKey Key = "user_id"

	// TeamIDKey contains the acting team ID string
	// Set by: middleware.Identity when the front proxy forwards a team
	// Used by: key management and credit handlers
	TeamIDKey Key = "team_id"

	// APIKeyIDKey contains the ID of the API key that authenticated the request
	// Set by: middleware.APIKeyAuth (pkg/middleware/apikey.go)
	// Used by: billable endpoints for usage tracking
	APIKeyIDKey Key = "api_key_id"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: middleware.RequestID (pkg/middleware/requestid.go)
	// Used by: observability.FromContext
	RequestIDKey Key = "request_id"
)

// WithUserID adds a user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID retrieves the user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// WithTeamID adds a team ID to the context
func WithTeamID(ctx context.Context, teamID string) context.Context {
	return context.WithValue(ctx, TeamIDKey, teamID)
}

// GetTeamID retrieves the team ID from context
func GetTeamID(ctx context.Context) string {
	if teamID, ok := ctx.Value(TeamIDKey).(string); ok {
		return teamID
	}
	return ""
}

// WithAPIKeyID adds an API key ID to the context
func WithAPIKeyID(ctx context.Context, keyID string) context.Context {
	return context.WithValue(ctx, APIKeyIDKey, keyID)
}

// GetAPIKeyID retrieves the API key ID from context
func GetAPIKeyID(ctx context.Context) string {
	if keyID, ok := ctx.Value(APIKeyIDKey).(string); ok {
		return keyID
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
