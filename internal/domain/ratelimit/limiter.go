package ratelimit

import "context"

// Limiter atomically upserts-and-increments the (apiKeyId, windowStart)
// row and reports whether the post-increment count is within limit. The
// upsert-and-increment must be a single atomic operation so concurrent
// requests cannot both pass on the same last token (spec §4.5, §5).
//
// Unlike the teacher's GCRA-based RateLimiter, this is a fixed one-minute
// window counter: spec §4.5 specifies windowStart = floor(nowMs/60000) and
// an enforcement check against the post-increment count, not a token
// bucket spread over time.
type Limiter interface {
	Increment(ctx context.Context, apiKeyID string, nowMs int64, limitPerMinute int64) (Result, error)
}
