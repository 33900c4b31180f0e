// Package resilience provides the restart backoff used for essential
// workers.
//
// Backoff tracks consecutive failures of one logical worker:
//   - Delay doubles from Initial up to Max
//   - A failure after ResetAfter of continuous uptime starts a new streak
//   - MaxAttempts consecutive failures exhausts the policy
//
// Example Usage:
//
//	b := resilience.NewBackoff(resilience.DefaultPolicy())
//	delay, ok := b.Failure(now, readySince)
//	if !ok {
//	    // give up: worker is unrecoverable
//	}
package resilience
