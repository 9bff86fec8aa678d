package engine

import (
	"time"
)

// ErrMaximumExecutionTimeExceeded is the fixed terminal error for an operation that ran
// out of its wall-clock budget, regardless of which attempt was in flight when the
// budget expired.
var ErrMaximumExecutionTimeExceeded = &StorageError{
	message: "the client could not complete the operation within the specified maximum execution time",
	timeout: true,
}

// computeExpiry converts the relative execution budget into an absolute expiry.
// A zero budget means the operation may run forever; ok is false in that case and the
// other helpers treat the expiry as infinitely far away.
func computeExpiry(maxExecutionTime time.Duration) (expiry time.Time, ok bool) {
	if maxExecutionTime <= 0 {
		return time.Time{}, false
	}
	return time.Now().Add(maxExecutionTime), true
}

// hasExpired reports whether the expiry has passed, optionally looking additionalInterval
// into the future (used before sleeping so we don't bother backing off past the budget).
func hasExpired(expiry time.Time, haveExpiry bool, additionalInterval time.Duration) bool {
	if !haveExpiry {
		return false
	}
	return time.Now().Add(additionalInterval).After(expiry)
}

// remaining returns how much of the budget is left to bound the next attempt's own
// timeout, or ErrMaximumExecutionTimeExceeded if nothing is left. An attempt must never
// be issued with a zero or negative timeout.
func remaining(expiry time.Time, haveExpiry bool) (time.Duration, error) {
	if !haveExpiry {
		return 0, nil // no bound; caller uses its per-try timeout unchanged
	}
	left := time.Until(expiry)
	if left <= 0 {
		return 0, ErrMaximumExecutionTimeExceeded
	}
	return left, nil
}
