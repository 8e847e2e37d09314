package apikeys

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Service defines API key lifecycle operations
type Service interface {
	Create(ctx context.Context, teamID, name, createdBy string) (*ApiKey, error)
	Rename(ctx context.Context, teamID, keyID, newName string) (*ApiKey, error)
	Revoke(ctx context.Context, teamID, keyID, actor string) (*ApiKey, error)
	List(ctx context.Context, teamID string) ([]*ApiKey, error)
	GetBySecret(ctx context.Context, secret string) (*ApiKey, error)
	TouchLastUsed(ctx context.Context, keyID string) error
}

// PostgresService implements the Service interface using PostgreSQL. The
// dashboard listing reads the reader pool; everything else, including the
// request-time secret lookup where a revoke must be visible immediately,
// stays on db.
type PostgresService struct {
	db     *sql.DB
	reader *sql.DB
}

// NewPostgresService creates a new PostgresService that serves every query
// from the one pool
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db, reader: db}
}

// NewReplicatedPostgresService creates a PostgresService that serves the
// listing from the reader pool
func NewReplicatedPostgresService(primary, reader *sql.DB) *PostgresService {
	return &PostgresService{db: primary, reader: reader}
}

const keyColumns = `id, team_id, name, api_key, created_by, created_at, last_used_at, revoked_at, revoked_by`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanKey(row rowScanner) (*ApiKey, error) {
	key := &ApiKey{}
	var lastUsedAt, revokedAt sql.NullTime
	var revokedBy sql.NullString
	err := row.Scan(
		&key.ID, &key.TeamID, &key.Name, &key.Secret, &key.CreatedBy,
		&key.CreatedAt, &lastUsedAt, &revokedAt, &revokedBy,
	)
	if err != nil {
		return nil, err
	}
	if lastUsedAt.Valid {
		key.LastUsedAt = &lastUsedAt.Time
	}
	if revokedAt.Valid {
		key.RevokedAt = &revokedAt.Time
	}
	if revokedBy.Valid {
		key.RevokedBy = &revokedBy.String
	}
	return key, nil
}

// isUniqueViolation reports whether err is a unique or exclusion constraint
// violation. The active-name uniqueness is enforced by a partial index over
// rows with revoked_at IS NULL.
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505" || pqErr.Code == "23P01"
	}
	return false
}

// Create generates a new API key for the team. The secret is generated
// server-side and returned exactly once in the created record.
func (s *PostgresService) Create(ctx context.Context, teamID, name, createdBy string) (*ApiKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "default"
	}
	if len(name) > MaxNameLength {
		return nil, ErrInvalidName
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	query := `
		INSERT INTO team_api_keys (id, team_id, name, api_key, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	key := &ApiKey{
		ID:        uuid.NewString(),
		TeamID:    teamID,
		Name:      name,
		Secret:    secret,
		CreatedBy: createdBy,
	}
	err = s.db.QueryRowContext(ctx, query, key.ID, key.TeamID, key.Name, key.Secret, key.CreatedBy).
		Scan(&key.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &NameConflictError{TeamID: teamID, Name: name}
		}
		return nil, fmt.Errorf("failed to create API key: %w", err)
	}

	return key, nil
}

// Rename changes a key's display name. A name already used by another active
// key of the same team surfaces as a NameConflictError; names used only by
// revoked keys are free to reuse.
func (s *PostgresService) Rename(ctx context.Context, teamID, keyID, newName string) (*ApiKey, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" || len(newName) > MaxNameLength {
		return nil, ErrInvalidName
	}

	query := `
		UPDATE team_api_keys
		SET name = $3
		WHERE id = $1 AND team_id = $2
		RETURNING ` + keyColumns

	key, err := scanKey(s.db.QueryRowContext(ctx, query, keyID, teamID, newName))
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &NameConflictError{TeamID: teamID, Name: newName}
		}
		return nil, fmt.Errorf("failed to rename API key: %w", err)
	}

	return key, nil
}

// Revoke soft-deletes a key. The team's last active key cannot be revoked:
// the count check below runs before the mutation, so a rejected revoke has
// no effect. The check-then-act window under truly concurrent revokes of
// the last two keys is a known, recoverable limitation.
func (s *PostgresService) Revoke(ctx context.Context, teamID, keyID, actor string) (*ApiKey, error) {
	var activeCount int
	var soleActiveID sql.NullString
	countQuery := `
		SELECT COUNT(*), MIN(id::text)
		FROM team_api_keys
		WHERE team_id = $1 AND revoked_at IS NULL
	`
	if err := s.db.QueryRowContext(ctx, countQuery, teamID).Scan(&activeCount, &soleActiveID); err != nil {
		return nil, fmt.Errorf("failed to count active keys: %w", err)
	}

	if activeCount == 1 && soleActiveID.Valid && soleActiveID.String == keyID {
		return nil, &LastActiveKeyError{TeamID: teamID, KeyID: keyID}
	}

	query := `
		UPDATE team_api_keys
		SET revoked_at = NOW(), revoked_by = $3
		WHERE id = $1 AND team_id = $2 AND revoked_at IS NULL
		RETURNING ` + keyColumns

	key, err := scanKey(s.db.QueryRowContext(ctx, query, keyID, teamID, actor))
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to revoke API key: %w", err)
	}

	return key, nil
}

// List returns all keys of a team, active first, newest first within each
// group. Revoked keys are included so the dashboard can show history.
func (s *PostgresService) List(ctx context.Context, teamID string) ([]*ApiKey, error) {
	query := `
		SELECT ` + keyColumns + `
		FROM team_api_keys
		WHERE team_id = $1
		ORDER BY revoked_at IS NOT NULL, created_at DESC
	`
	rows, err := s.reader.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	defer rows.Close()

	var keys []*ApiKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// GetBySecret looks up an active key by its secret value, for request-time
// authentication.
func (s *PostgresService) GetBySecret(ctx context.Context, secret string) (*ApiKey, error) {
	if err := ValidateSecretFormat(secret); err != nil {
		return nil, ErrKeyNotFound
	}

	query := `
		SELECT ` + keyColumns + `
		FROM team_api_keys
		WHERE api_key = $1 AND revoked_at IS NULL
	`
	key, err := scanKey(s.db.QueryRowContext(ctx, query, secret))
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up API key: %w", err)
	}

	return key, nil
}

// TouchLastUsed records that the key authenticated a request
func (s *PostgresService) TouchLastUsed(ctx context.Context, keyID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE team_api_keys SET last_used_at = $2 WHERE id = $1`, keyID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update last_used_at: %w", err)
	}
	return nil
}
