package teams

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Service defines the team directory operations used by the rest of the
// subsystem.
type Service interface {
	CreateTeam(ctx context.Context, team *Team) error
	GetTeam(ctx context.Context, id string) (*Team, error)
	GetTeamByCustomerRef(ctx context.Context, customerRef string) (*Team, error)
	GetTeamOwnedBy(ctx context.Context, userID string) (*Team, error)
	CurrentTeamID(ctx context.Context, userID string) (string, error)
	UpdateBilling(ctx context.Context, teamID string, update BillingUpdate) error

	GetProfile(ctx context.Context, userID string) (*Profile, error)
	FindOrCreateProfileByEmail(ctx context.Context, email string) (*Profile, error)

	GetMemberRole(ctx context.Context, teamID, userID string) (Role, error)
	RequireElevated(ctx context.Context, teamID, userID string) error
}

// PostgresService implements the Service interface using PostgreSQL. Reads
// that tolerate replication lag go through reader; writes and reads that
// must observe a just-committed write stay on db.
type PostgresService struct {
	db     *sql.DB
	reader *sql.DB
}

// NewPostgresService creates a new PostgresService that serves every query
// from the one pool
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db, reader: db}
}

// NewReplicatedPostgresService creates a PostgresService that serves
// lag-tolerant lookups from the reader pool
func NewReplicatedPostgresService(primary, reader *sql.DB) *PostgresService {
	return &PostgresService{db: primary, reader: reader}
}

const teamColumns = `id, name, slug, owner_id, credits, price_id, customer_id, has_paid, created_at`

func scanTeam(row *sql.Row) (*Team, error) {
	team := &Team{}
	var priceRef, customerRef sql.NullString
	err := row.Scan(
		&team.ID, &team.Name, &team.Slug, &team.OwnerID, &team.CreditBalance,
		&priceRef, &customerRef, &team.HasPaid, &team.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if priceRef.Valid {
		team.PlanPriceRef = &priceRef.String
	}
	if customerRef.Valid {
		team.BillingCustomerRef = &customerRef.String
	}
	return team, nil
}

// CreateTeam creates a new team. The owner is added as a member with the
// owner role.
func (s *PostgresService) CreateTeam(ctx context.Context, team *Team) error {
	if team.ID == "" {
		team.ID = uuid.NewString()
	}
	if team.Slug == "" {
		team.Slug = generateSlug(team.Name)
	}

	query := `
		INSERT INTO teams (id, name, slug, owner_id, credits, has_paid)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := s.db.QueryRowContext(ctx, query, team.ID, team.Name, team.Slug,
		team.OwnerID, team.CreditBalance, team.HasPaid).Scan(&team.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}

	memberQuery := `
		INSERT INTO team_members (team_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (team_id, user_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, memberQuery, team.ID, team.OwnerID, RoleOwner); err != nil {
		return fmt.Errorf("failed to add owner membership: %w", err)
	}

	return nil
}

// GetTeam retrieves a team by ID
func (s *PostgresService) GetTeam(ctx context.Context, id string) (*Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`
	team, err := scanTeam(s.reader.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "team", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return team, nil
}

// GetTeamByCustomerRef retrieves the team whose stored billing customer
// reference matches the given external identifier. Stays on the primary
// because webhook handlers look a ref up right after storing it.
func (s *PostgresService) GetTeamByCustomerRef(ctx context.Context, customerRef string) (*Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE customer_id = $1`
	team, err := scanTeam(s.db.QueryRowContext(ctx, query, customerRef))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "team", ID: customerRef}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team by customer ref: %w", err)
	}
	return team, nil
}

// GetTeamOwnedBy retrieves a team owned by the given user
func (s *PostgresService) GetTeamOwnedBy(ctx context.Context, userID string) (*Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE owner_id = $1 ORDER BY created_at ASC LIMIT 1`
	team, err := scanTeam(s.reader.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "team", ID: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get owned team: %w", err)
	}
	return team, nil
}

// CurrentTeamID resolves a user's current team: the profile's last-team
// pointer first, then a team the user owns.
func (s *PostgresService) CurrentTeamID(ctx context.Context, userID string) (string, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil && !IsNotFound(err) {
		return "", err
	}
	if profile != nil && profile.LastTeamID != nil && *profile.LastTeamID != "" {
		return *profile.LastTeamID, nil
	}

	team, err := s.GetTeamOwnedBy(ctx, userID)
	if err != nil {
		if IsNotFound(err) {
			return "", &NotFoundError{Resource: "current team", ID: userID}
		}
		return "", err
	}
	return team.ID, nil
}

// UpdateBilling updates a team's billing columns. Nil fields are left
// untouched.
func (s *PostgresService) UpdateBilling(ctx context.Context, teamID string, update BillingUpdate) error {
	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if update.CustomerRef != nil {
		setClauses = append(setClauses, fmt.Sprintf("customer_id = $%d", argPos))
		args = append(args, *update.CustomerRef)
		argPos++
	}
	if update.PriceRef != nil {
		setClauses = append(setClauses, fmt.Sprintf("price_id = $%d", argPos))
		args = append(args, *update.PriceRef)
		argPos++
	}
	if update.HasPaid != nil {
		setClauses = append(setClauses, fmt.Sprintf("has_paid = $%d", argPos))
		args = append(args, *update.HasPaid)
		argPos++
	}

	if len(setClauses) == 0 {
		return nil // Nothing to update
	}

	args = append(args, teamID)
	query := fmt.Sprintf("UPDATE teams SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argPos)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update team billing: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &NotFoundError{Resource: "team", ID: teamID}
	}

	return nil
}

// GetProfile retrieves a user profile by ID
func (s *PostgresService) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	query := `SELECT id, email, last_team_id, created_at FROM profiles WHERE id = $1`
	profile := &Profile{}
	var lastTeamID sql.NullString
	err := s.reader.QueryRowContext(ctx, query, userID).Scan(
		&profile.ID, &profile.Email, &lastTeamID, &profile.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "profile", ID: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if lastTeamID.Valid {
		profile.LastTeamID = &lastTeamID.String
	}
	return profile, nil
}

// FindOrCreateProfileByEmail returns the profile for the given email,
// creating it when none exists. The upsert relies on the unique constraint
// on email, so concurrent first payments from the same address converge on
// one profile.
func (s *PostgresService) FindOrCreateProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	query := `
		INSERT INTO profiles (id, email)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id, email, last_team_id, created_at
	`
	profile := &Profile{}
	var lastTeamID sql.NullString
	err := s.db.QueryRowContext(ctx, query, uuid.NewString(), email).Scan(
		&profile.ID, &profile.Email, &lastTeamID, &profile.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find or create profile: %w", err)
	}
	if lastTeamID.Valid {
		profile.LastTeamID = &lastTeamID.String
	}
	return profile, nil
}

// generateSlug derives a URL-safe slug from a team name
func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return slug
}
