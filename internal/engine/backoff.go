package engine

import "time"

// Backoff returns the delay before retry attempt retryCount (0-based):
// min(initial * 2^retryCount, max). The doubling loop clamps on the way
// up, so large retry counts cannot overflow the duration.
func Backoff(initial, max time.Duration, retryCount int) time.Duration {
	if initial <= 0 {
		return 0
	}
	delay := initial
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
