// Package credits implements the team credit ledger.
//
// The datastore is the sole enforcement point for the non-negative balance
// invariant: Decrement is a single conditional UPDATE, never a read followed
// by a write, so concurrent consumers cannot drive a balance below zero.
// Reset assigns an absolute value so repeated period-start events do not
// accumulate credits from prior periods.
package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Ledger defines atomic credit operations on a team's balance.
type Ledger interface {
	Balance(ctx context.Context, teamID string) (int64, error)
	HasEnough(ctx context.Context, teamID string, amount int64) (bool, error)
	Decrement(ctx context.Context, teamID string, amount int64) (int64, error)
	Increment(ctx context.Context, teamID string, amount int64) (int64, error)
	Reset(ctx context.Context, teamID string, amount int64) (int64, error)
}

// InsufficientCreditsError is returned by Decrement when the balance is
// smaller than the requested amount. The balance is left unchanged.
type InsufficientCreditsError struct {
	TeamID    string
	Requested int64
	Remaining int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits for team %s: requested %d, remaining %d",
		e.TeamID, e.Requested, e.Remaining)
}

// IsInsufficientCredits checks if an error is an InsufficientCreditsError
func IsInsufficientCredits(err error) bool {
	var ice *InsufficientCreditsError
	return errors.As(err, &ice)
}

// ErrTeamNotFound indicates the team row does not exist
var ErrTeamNotFound = errors.New("team not found")

// PostgresLedger implements the Ledger interface using PostgreSQL
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger creates a new PostgresLedger
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Balance returns the team's current credit balance
func (l *PostgresLedger) Balance(ctx context.Context, teamID string) (int64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx, `SELECT credits FROM teams WHERE id = $1`, teamID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrTeamNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// HasEnough reports whether the team's balance covers the given amount.
// Advisory only: consumption must still go through Decrement, which
// re-checks atomically.
func (l *PostgresLedger) HasEnough(ctx context.Context, teamID string, amount int64) (bool, error) {
	balance, err := l.Balance(ctx, teamID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// Decrement atomically subtracts amount from the team's balance and returns
// the new balance. The subtraction and the sufficiency check are one
// conditional UPDATE: it either fully applies or has no effect.
func (l *PostgresLedger) Decrement(ctx context.Context, teamID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("decrement amount must be non-negative, got %d", amount)
	}

	query := `
		UPDATE teams
		SET credits = credits - $2
		WHERE id = $1 AND credits >= $2
		RETURNING credits
	`
	var remaining int64
	err := l.db.QueryRowContext(ctx, query, teamID, amount).Scan(&remaining)
	if err == sql.ErrNoRows {
		// Either the team is missing or the balance was too low; read the
		// balance to tell the two apart and to report what is left.
		balance, berr := l.Balance(ctx, teamID)
		if berr != nil {
			return 0, berr
		}
		return balance, &InsufficientCreditsError{TeamID: teamID, Requested: amount, Remaining: balance}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to decrement credits: %w", err)
	}
	return remaining, nil
}

// Increment atomically adds amount to the team's balance and returns the new
// balance. Used for admin grants and for refunds when billable work fails
// after a decrement.
func (l *PostgresLedger) Increment(ctx context.Context, teamID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("increment amount must be non-negative, got %d", amount)
	}

	query := `
		UPDATE teams
		SET credits = credits + $2
		WHERE id = $1
		RETURNING credits
	`
	var balance int64
	err := l.db.QueryRowContext(ctx, query, teamID, amount).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrTeamNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment credits: %w", err)
	}
	return balance, nil
}

// Reset assigns an absolute balance, regardless of the prior value. Period
// renewals call this with the plan's allowance; re-delivered events are
// idempotent because the assignment is absolute, not cumulative.
func (l *PostgresLedger) Reset(ctx context.Context, teamID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("reset amount must be non-negative, got %d", amount)
	}

	query := `
		UPDATE teams
		SET credits = $2
		WHERE id = $1
		RETURNING credits
	`
	var balance int64
	err := l.db.QueryRowContext(ctx, query, teamID, amount).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrTeamNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to reset credits: %w", err)
	}
	return balance, nil
}
