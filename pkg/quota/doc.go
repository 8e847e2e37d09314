// Package quota rate-limits anonymous usage of the public document tools.
//
// Each generation appends one record keyed by the caller's identity, a
// verified email when supplied or the client IP otherwise, and a check
// counts records for that identity over a trailing 24 hour window. The two
// identity kinds are separate partitions, so an IP-limited caller can earn
// a fresh allowance by verifying an email. The check, generate, record
// sequence is deliberately not atomic; slight overshoot under concurrency
// is cheaper than locking for a free-tier control.
package quota
