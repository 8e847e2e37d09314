package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pagesmith/pagesmith/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create profiles and teams tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS profiles (
					id UUID PRIMARY KEY,
					email VARCHAR(255) NOT NULL,
					last_team_id UUID,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(email)
				);

				CREATE TABLE IF NOT EXISTS teams (
					id UUID PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL,
					owner_id UUID NOT NULL,
					credits BIGINT NOT NULL DEFAULT 0 CHECK (credits >= 0),
					price_id VARCHAR(255),
					customer_id VARCHAR(255),
					has_paid BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(slug)
				);

				CREATE INDEX idx_teams_owner_id ON teams(owner_id);
				CREATE INDEX idx_teams_customer_id ON teams(customer_id);
			`,
		},
		{
			Version:     2,
			Description: "Create team members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS team_members (
					team_id UUID NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					user_id UUID NOT NULL,
					role VARCHAR(20) NOT NULL DEFAULT 'member',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (team_id, user_id)
				);

				CREATE INDEX idx_team_members_user_id ON team_members(user_id);
			`,
		},
		{
			Version:     3,
			Description: "Create API keys table",
			SQL: `
				CREATE TABLE IF NOT EXISTS team_api_keys (
					id UUID PRIMARY KEY,
					team_id UUID NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					name VARCHAR(50) NOT NULL,
					api_key VARCHAR(255) NOT NULL,
					created_by UUID NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					last_used_at TIMESTAMPTZ,
					revoked_at TIMESTAMPTZ,
					revoked_by UUID,
					UNIQUE(api_key)
				);

				CREATE INDEX idx_team_api_keys_team_id ON team_api_keys(team_id);

				-- Name uniqueness applies only to active keys. Revoked keys
				-- free their name for reuse.
				CREATE UNIQUE INDEX idx_team_api_keys_active_name
					ON team_api_keys(team_id, name)
					WHERE revoked_at IS NULL;
			`,
		},
		{
			Version:     4,
			Description: "Create quota records table",
			SQL: `
				CREATE TABLE IF NOT EXISTS quota_records (
					id UUID PRIMARY KEY,
					tool VARCHAR(100) NOT NULL,
					ip VARCHAR(45) NOT NULL DEFAULT '',
					email VARCHAR(255) NOT NULL DEFAULT '',
					template_ref VARCHAR(255) NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_quota_records_ip_window
					ON quota_records(tool, ip, created_at) WHERE email = '';
				CREATE INDEX idx_quota_records_email_window
					ON quota_records(tool, email, created_at) WHERE email <> '';
			`,
		},
	}
}

// RunMigrations applies all pending migrations in order
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	// Create migration tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("running migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
