package quota

import (
	"fmt"
	"time"
)

const (
	// DefaultLimit is the number of anonymous generations allowed per
	// identity per window.
	DefaultLimit = 5
	// DefaultWindow is the sliding window the limit applies over.
	DefaultWindow = 24 * time.Hour
)

// Identity keys a quota partition. A verified email and an IP address are
// mutually exclusive partitions: when an email is present it is the sole
// key, and IP-keyed records are never counted against it.
type Identity struct {
	IP    string
	Email string
}

// ByEmail reports whether this identity is keyed by email
func (i Identity) ByEmail() bool {
	return i.Email != ""
}

// Record is one anonymous tool usage. Append-only; rows are only ever read
// back through a count-in-window query.
type Record struct {
	ID          string    `json:"id"`
	Tool        string    `json:"tool"`
	IP          string    `json:"ip,omitempty"`
	Email       string    `json:"email,omitempty"`
	TemplateRef string    `json:"template_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed bool
	// Remaining counts generations left in the window, including the one
	// being attempted when Allowed is true.
	Remaining int
	// RequiresEmail signals that an IP-keyed caller could get a fresh
	// allowance by supplying a verified email.
	RequiresEmail bool
}

// RateLimitedError indicates an identity has exhausted its window allowance.
type RateLimitedError struct {
	Tool          string
	RequiresEmail bool
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("download limit reached for %s", e.Tool)
}

// IsRateLimited checks if an error is a RateLimitedError
func IsRateLimited(err error) bool {
	_, ok := err.(*RateLimitedError)
	return ok
}

// VerificationFailedError indicates the bot-verification token did not pass.
type VerificationFailedError struct{}

func (e *VerificationFailedError) Error() string {
	return "bot verification failed"
}

// IsVerificationFailed checks if an error is a VerificationFailedError
func IsVerificationFailed(err error) bool {
	_, ok := err.(*VerificationFailedError)
	return ok
}
