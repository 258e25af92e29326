package bot

import (
	"math"
	"time"
)

// BaseDelay is the unit the backoff policy doubles.
const BaseDelay = time.Second

// MaxDelay is where Delay saturates once doubling would overflow.
const MaxDelay = time.Duration(math.MaxInt64)

// Delay returns how long to wait after the given failed attempt (1-indexed)
// before trying again: 2^attempt * BaseDelay, so 2s, 4s, 8s, ...
// There is no cap below MaxDelay; the number of attempts bounds the total wait.
func Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return BaseDelay
	}
	if attempt >= 63 || BaseDelay > MaxDelay>>uint(attempt) {
		return MaxDelay
	}
	return BaseDelay << uint(attempt)
}
