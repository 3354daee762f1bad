package sgvmem

import (
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter throttles watermark-exceeded diagnostics (spec.md §7,
// SPEC_FULL.md §2.4) the same way Easonliuliang-purify's
// api/middleware/ratelimit.go throttles inbound requests: a token
// bucket with burst 1, refilled once per interval.
type rateLimiter struct {
	l *rate.Limiter
}

func newRateLimiter(interval time.Duration, burst int) *rateLimiter {
	return &rateLimiter{l: rate.NewLimiter(rate.Every(interval), burst)}
}

// Allow reports whether a diagnostic log line may be emitted now.
func (r *rateLimiter) Allow() bool { return r.l.Allow() }
