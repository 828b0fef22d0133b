package credits

import "time"

// ShouldReset reports whether a credit period ending at resetAt has rolled
// over. The comparison is strict: now == resetAt does not reset.
func ShouldReset(now, resetAt time.Time) bool {
	return now.After(resetAt)
}

// NextReset returns the start of the next calendar month in UTC. Every
// provisioning, reset and sweep site uses this one policy.
func NextReset(now time.Time) time.Time {
	utc := now.UTC()
	return time.Date(utc.Year(), utc.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// Remaining is max(0, total-used).
func Remaining(total, used int) int {
	if used >= total {
		return 0
	}
	return total - used
}
