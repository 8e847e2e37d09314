// Package teams provides the team directory: tenant records, user profiles,
// membership roles, and the billing columns written by webhook handling.
//
// Team resolution for billing events lives in pkg/billing; this package only
// exposes the lookups it needs (current-team pointer, owned team, customer
// reference) plus the idempotent profile upsert used for first payments from
// unrecognized payers.
package teams
