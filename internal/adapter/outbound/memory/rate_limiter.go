// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"

	"github.com/sentinelpolicy/policygate/internal/domain/ratelimit"
)

// RateLimiter implements ratelimit.Limiter with an in-memory fixed
// one-minute window counter, keyed by (apiKeyID, windowStart). Thread-safe
// for concurrent access; development/test implementation of the rate half
// of C5. Unlike the teacher's GCRA-based limiter, a window is a discrete
// minute bucket, not a continuously-draining token bucket.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*ratelimit.Window // (apiKeyID, windowStart) -> window
}

// NewRateLimiter creates an empty in-memory rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: make(map[string]*ratelimit.Window)}
}

func windowKey(apiKeyID string, windowStart int64) string {
	return apiKeyID + "|" + itoa(windowStart)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Increment implements ratelimit.Limiter: the upsert-and-increment is a
// single atomic operation under s.mu, and the post-increment count is what
// is compared against limitPerMinute (spec §4.5).
func (r *RateLimiter) Increment(ctx context.Context, apiKeyID string, nowMs int64, limitPerMinute int64) (ratelimit.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := ratelimit.WindowStart(nowMs)
	key := windowKey(apiKeyID, start)

	w, ok := r.windows[key]
	if !ok {
		w = &ratelimit.Window{APIKeyID: apiKeyID, WindowStart: start}
		r.windows[key] = w
	}
	w.RequestCount++

	result := ratelimit.Result{
		RequestCount: w.RequestCount,
		WindowStart:  start,
		Allowed:      w.RequestCount <= limitPerMinute,
	}
	if !result.Allowed {
		result.RetryAfterSeconds = 60
	}
	return result, nil
}

// Compile-time interface verification.
var _ ratelimit.Limiter = (*RateLimiter)(nil)
