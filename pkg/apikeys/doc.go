// Package apikeys manages the lifecycle of team API credentials.
//
// # Lifecycle
//
// Keys are created with a server-generated secret (pgsk_ prefix, 256 random
// bits), renamed subject to active-name uniqueness within the team, and
// revoked by soft delete (revoked_at/revoked_by). A team that has ever had a
// key always keeps at least one active key: revoking the sole active key is
// rejected with a LastActiveKeyError.
//
// The last-key guard is a read-then-act check. Two truly concurrent revokes
// of a team's last two keys can slip past it; the failure mode is a team
// with zero active keys, which is recoverable by creating a new key, so no
// heavier isolation is used.
//
// # Related Packages
//
//   - pkg/teams: role checks for key mutations
//   - pkg/middleware: request authentication via GetBySecret
package apikeys
