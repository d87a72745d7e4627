// File: internal/recovery/backoff.go
package recovery

import "time"

// Backoff computes the delay before retry number attempt (1-based) as
// min(base*2^(attempt-1), max). Shift overflow and non-positive inputs
// clamp to max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 32 {
		return max
	}
	delay := base << uint(attempt-1)
	if delay <= 0 || delay > max {
		return max
	}
	return delay
}
