// Package async provides safe execution of fire-and-forget background tasks.
//
// SafeGo runs a function in a goroutine with panic recovery, a per-task
// timeout, and error logging:
//
//	async.SafeGo(r.Context(), 5*time.Second, "touch api key last_used_at", func(ctx context.Context) error {
//		return keys.TouchLastUsed(ctx, keyID)
//	})
//
// It is used for best-effort work that must never fail the request that
// spawned it, like API key usage stamping.
package async
