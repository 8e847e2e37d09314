package quota

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists quota records.
type Store interface {
	Insert(ctx context.Context, record *Record) error
	CountInWindow(ctx context.Context, tool string, identity Identity, since time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert appends one usage record
func (s *PostgresStore) Insert(ctx context.Context, record *Record) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO quota_records (id, tool, ip, email, template_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.Tool, record.IP, record.Email, record.TemplateRef, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert quota record: %w", err)
	}
	return nil
}

// CountInWindow counts records for the identity's partition created at or
// after since. Email-keyed and IP-keyed records never count against each
// other.
func (s *PostgresStore) CountInWindow(ctx context.Context, tool string, identity Identity, since time.Time) (int, error) {
	var query string
	var key string
	if identity.ByEmail() {
		query = `SELECT COUNT(*) FROM quota_records WHERE tool = $1 AND email = $2 AND created_at >= $3`
		key = identity.Email
	} else {
		query = `SELECT COUNT(*) FROM quota_records WHERE tool = $1 AND ip = $2 AND email = '' AND created_at >= $3`
		key = identity.IP
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, tool, key, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count quota records: %w", err)
	}
	return count, nil
}

// DeleteOlderThan prunes records that can no longer affect any window
func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM quota_records WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune quota records: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}
