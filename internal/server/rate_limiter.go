// Package server builds the per-connection token bucket that protects the
// hub from clients flooding events.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter allows a burst of capacity events that refills completely
// over interval.
func newRateLimiter(capacity int, interval time.Duration) *rate.Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	perEvent := interval / time.Duration(capacity)
	if perEvent <= 0 {
		return rate.NewLimiter(rate.Inf, capacity)
	}
	return rate.NewLimiter(rate.Every(perEvent), capacity)
}
