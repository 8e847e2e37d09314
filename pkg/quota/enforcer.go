package quota

import (
	"context"
	"fmt"
	"time"
)

// Enforcer applies the per-identity sliding-window limit. The
// check-then-record sequence is not atomic: concurrent requests from the
// same identity near the boundary can overshoot by at most the concurrency
// degree minus one, which is acceptable for free-tool abuse control.
type Enforcer struct {
	store  Store
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewEnforcer creates an enforcer. Zero limit or window fall back to the
// defaults.
func NewEnforcer(store Store, limit int, window time.Duration) *Enforcer {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Enforcer{
		store:  store,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Check counts the identity's usage in the trailing window and decides
// whether one more generation is allowed
func (e *Enforcer) Check(ctx context.Context, tool string, identity Identity) (Decision, error) {
	since := e.now().Add(-e.window)
	count, err := e.store.CountInWindow(ctx, tool, identity, since)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to check quota for %s: %w", tool, err)
	}

	remaining := e.limit - count
	if remaining <= 0 {
		return Decision{
			Allowed:       false,
			Remaining:     0,
			RequiresEmail: !identity.ByEmail(),
		}, nil
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

// RecordUsage appends one record after a successful generation
func (e *Enforcer) RecordUsage(ctx context.Context, tool string, identity Identity, templateRef string) error {
	return e.store.Insert(ctx, &Record{
		Tool:        tool,
		IP:          identity.IP,
		Email:       identity.Email,
		TemplateRef: templateRef,
		CreatedAt:   e.now().UTC(),
	})
}

// Limit returns the configured per-window limit
func (e *Enforcer) Limit() int {
	return e.limit
}
