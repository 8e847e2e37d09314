package apikeys

import (
	"errors"
	"time"
)

// MaxNameLength is the longest allowed display name for a key
const MaxNameLength = 50

// ApiKey represents a team API credential. Keys are soft-deleted: RevokedAt
// and RevokedBy stay nil while the key is active.
type ApiKey struct {
	ID         string     `json:"id"`
	TeamID     string     `json:"team_id"`
	Name       string     `json:"name"`
	Secret     string     `json:"api_key"`
	CreatedBy  string     `json:"created_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	RevokedBy  *string    `json:"revoked_by,omitempty"`
}

// Active reports whether the key has not been revoked
func (k *ApiKey) Active() bool {
	return k.RevokedAt == nil
}

// NameConflictError indicates another active key of the same team already
// uses the requested name.
type NameConflictError struct {
	TeamID string
	Name   string
}

func (e *NameConflictError) Error() string {
	return "an active key with this name already exists"
}

// IsNameConflict checks if an error is a NameConflictError
func IsNameConflict(err error) bool {
	var nc *NameConflictError
	return errors.As(err, &nc)
}

// LastActiveKeyError indicates a revoke was rejected because it targeted the
// team's only active key.
type LastActiveKeyError struct {
	TeamID string
	KeyID  string
}

func (e *LastActiveKeyError) Error() string {
	return "cannot revoke the last active API key; create a new key first"
}

// IsLastActiveKey checks if an error is a LastActiveKeyError
func IsLastActiveKey(err error) bool {
	var lk *LastActiveKeyError
	return errors.As(err, &lk)
}

// ErrKeyNotFound indicates the key does not exist, belongs to another team,
// or is already revoked.
var ErrKeyNotFound = errors.New("API key not found or already revoked")

// ErrInvalidName indicates an empty or over-length display name
var ErrInvalidName = errors.New("name must be between 1 and 50 characters")
