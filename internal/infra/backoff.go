package infra

import (
	"time"
)

// CalculateBackoff returns the reconnect delay for a given retry count:
// floor * 2^retry, capped at max. A negative retry yields the floor, so
// the first reconnect after a healthy session never happens immediately.
func CalculateBackoff(floor, max time.Duration, retry int) time.Duration {
	if retry <= 0 {
		return floor
	}

	// 2^31 seconds already exceeds any sane cap.
	if retry > 30 {
		return max
	}

	backoff := floor * time.Duration(1<<retry)
	if backoff > max || backoff < floor {
		return max
	}
	return backoff
}
