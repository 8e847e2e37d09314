package teams

import (
	"context"
	"database/sql"
	"fmt"
)

// GetMemberRole retrieves a user's role within a team
func (s *PostgresService) GetMemberRole(ctx context.Context, teamID, userID string) (Role, error) {
	query := `SELECT role FROM team_members WHERE team_id = $1 AND user_id = $2`
	var role Role
	err := s.db.QueryRowContext(ctx, query, teamID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", &NotFoundError{Resource: "membership", ID: userID}
	}
	if err != nil {
		return "", fmt.Errorf("failed to get member role: %w", err)
	}
	return role, nil
}

// RequireElevated returns a ForbiddenError unless the user holds an admin or
// owner role on the team.
func (s *PostgresService) RequireElevated(ctx context.Context, teamID, userID string) error {
	role, err := s.GetMemberRole(ctx, teamID, userID)
	if err != nil {
		if IsNotFound(err) {
			return &ForbiddenError{TeamID: teamID, UserID: userID}
		}
		return err
	}
	if !role.Elevated() {
		return &ForbiddenError{TeamID: teamID, UserID: userID, Role: role}
	}
	return nil
}
