package billing

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pagesmith/pagesmith/pkg/teams"
)

// customerCacheSize bounds the customer-ref to team-ID cache. Entries are
// tiny; the bound only protects against unbounded growth from garbage refs.
const customerCacheSize = 4096

// UnresolvedIdentityError indicates an event whose identity hints matched no
// team after every fallback was tried. The caller logs it for manual
// reconciliation; retrying the same event cannot resolve it.
type UnresolvedIdentityError struct {
	EventID     string
	CustomerRef string
	UserRef     string
	Email       string
}

func (e *UnresolvedIdentityError) Error() string {
	return fmt.Sprintf("unable to resolve event %q to a team (customer=%q user=%q email=%q)",
		e.EventID, e.CustomerRef, e.UserRef, e.Email)
}

// IsUnresolvedIdentity checks if an error is an UnresolvedIdentityError
func IsUnresolvedIdentity(err error) bool {
	_, ok := err.(*UnresolvedIdentityError)
	return ok
}

// Resolver maps an event's identity hints to exactly one internal team.
type Resolver struct {
	teams         teams.Service
	customerCache *lru.Cache[string, string]
}

// NewResolver creates a resolver backed by the given team directory
func NewResolver(teamService teams.Service) (*Resolver, error) {
	cache, err := lru.New[string, string](customerCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create customer cache: %w", err)
	}
	return &Resolver{
		teams:         teamService,
		customerCache: cache,
	}, nil
}

// Resolve tries each identity hint in priority order and returns the team ID
// of the first match:
//
//  1. An explicit team hint from checkout metadata is trusted directly.
//  2. A user hint resolves through the user's current team.
//  3. A customer hint resolves through the stored billing customer ref.
//  4. For a first payment with only a billing email, the profile is created
//     or found by email and step 2 runs again with that profile.
//
// A later hint is never consulted when an earlier one succeeds.
func (r *Resolver) Resolve(ctx context.Context, event *Event) (string, error) {
	if event.TeamRef != "" {
		return event.TeamRef, nil
	}

	if event.UserRef != "" {
		teamID, err := r.teams.CurrentTeamID(ctx, event.UserRef)
		if err == nil {
			return teamID, nil
		}
		if !teams.IsNotFound(err) {
			return "", fmt.Errorf("failed to resolve user %s: %w", event.UserRef, err)
		}
	}

	if event.CustomerRef != "" {
		if teamID, ok := r.customerCache.Get(event.CustomerRef); ok {
			return teamID, nil
		}
		team, err := r.teams.GetTeamByCustomerRef(ctx, event.CustomerRef)
		if err == nil {
			r.customerCache.Add(event.CustomerRef, team.ID)
			return team.ID, nil
		}
		if !teams.IsNotFound(err) {
			return "", fmt.Errorf("failed to resolve customer %s: %w", event.CustomerRef, err)
		}
	}

	// First payment from an identity we have never seen. Create or reuse a
	// profile for the billing email, then resolve it like a user hint.
	if event.Email != "" && event.Kind == KindCheckoutCompleted {
		profile, err := r.teams.FindOrCreateProfileByEmail(ctx, event.Email)
		if err != nil {
			return "", fmt.Errorf("failed to find or create profile for %s: %w", event.Email, err)
		}
		teamID, err := r.teams.CurrentTeamID(ctx, profile.ID)
		if err == nil {
			return teamID, nil
		}
		if !teams.IsNotFound(err) {
			return "", fmt.Errorf("failed to resolve profile %s: %w", profile.ID, err)
		}
	}

	return "", &UnresolvedIdentityError{
		EventID:     event.ID,
		CustomerRef: event.CustomerRef,
		UserRef:     event.UserRef,
		Email:       event.Email,
	}
}

// Invalidate drops a cached customer mapping, used when a team's customer
// ref changes.
func (r *Resolver) Invalidate(customerRef string) {
	r.customerCache.Remove(customerRef)
}
