package tasky

import (
	"math"
	"time"
)

// Exponential returns a retry delay of base * 2^(attempts-1), capped at max
// when max is positive.
func Exponential(base time.Duration, max time.Duration) func(attempts int) time.Duration {
	return func(attempts int) time.Duration {
		if attempts <= 0 || base <= 0 {
			return 0
		}
		delay := float64(base) * math.Pow(2, float64(attempts-1))
		switch {
		case max > 0 && delay > float64(max):
			return max
		case delay >= float64(math.MaxInt64):
			return time.Duration(math.MaxInt64)
		}
		return time.Duration(delay)
	}
}
