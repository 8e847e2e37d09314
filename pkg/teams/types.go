package teams

import (
	"errors"
	"time"
)

// Role represents a member's role within a team
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Elevated reports whether the role may manage billing and API keys.
func (r Role) Elevated() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Team represents the billing- and credit-owning tenant entity
type Team struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	OwnerID string `json:"owner_id"`
	// CreditBalance is the team's remaining usage credits. Never negative;
	// mutated only through the credits ledger.
	CreditBalance int64 `json:"credit_balance"`
	// PlanPriceRef is the external price identifier of the team's current
	// plan, nil until a checkout completes.
	PlanPriceRef *string `json:"plan_price_ref,omitempty"`
	// BillingCustomerRef is the external payment-provider customer
	// identifier, nil until a checkout completes.
	BillingCustomerRef *string   `json:"billing_customer_ref,omitempty"`
	HasPaid            bool      `json:"has_paid"`
	CreatedAt          time.Time `json:"created_at"`
}

// Profile represents a user account as seen by this subsystem
type Profile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	// LastTeamID is the user's "current team" pointer, nil when the user has
	// never switched into a team.
	LastTeamID *string   `json:"last_team_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Member represents a user's membership in a team
type Member struct {
	TeamID   string    `json:"team_id"`
	UserID   string    `json:"user_id"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// BillingUpdate carries the billing fields written by webhook handling.
// Nil pointers leave the corresponding column untouched.
type BillingUpdate struct {
	CustomerRef *string
	PriceRef    *string
	HasPaid     *bool
}

// NotFoundError indicates a missing team, profile, or membership
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found: " + e.ID
}

// IsNotFound checks if an error is a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ForbiddenError indicates the acting member's role is insufficient
type ForbiddenError struct {
	TeamID string
	UserID string
	Role   Role
}

func (e *ForbiddenError) Error() string {
	return "admin or owner access required"
}

// IsForbidden checks if an error is a ForbiddenError
func IsForbidden(err error) bool {
	var f *ForbiddenError
	return errors.As(err, &f)
}
