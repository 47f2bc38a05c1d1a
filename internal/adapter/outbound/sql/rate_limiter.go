package sql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sentinelpolicy/policygate/internal/domain/ratelimit"
)

// RateLimiter implements ratelimit.Limiter against the sqlite schema (C5,
// rate half). The upsert-and-increment is one statement using
// INSERT ... ON CONFLICT ... RETURNING, so two concurrent requests in the
// same window can never both observe the pre-increment count.
type RateLimiter struct {
	db *sql.DB
}

// NewRateLimiter wraps db as a ratelimit.Limiter.
func NewRateLimiter(db *DB) *RateLimiter {
	return &RateLimiter{db: db.conn}
}

// Increment implements ratelimit.Limiter.
func (r *RateLimiter) Increment(ctx context.Context, apiKeyID string, nowMs int64, limitPerMinute int64) (ratelimit.Result, error) {
	start := ratelimit.WindowStart(nowMs)

	var count int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO rate_limit_windows (api_key_id, window_start, request_count)
		VALUES (?, ?, 1)
		ON CONFLICT (api_key_id, window_start)
		DO UPDATE SET request_count = request_count + 1
		RETURNING request_count`, apiKeyID, start,
	).Scan(&count)
	if err != nil {
		return ratelimit.Result{}, fmt.Errorf("sql: increment rate window: %w", err)
	}

	result := ratelimit.Result{
		RequestCount: count,
		WindowStart:  start,
		Allowed:      count <= limitPerMinute,
	}
	if !result.Allowed {
		result.RetryAfterSeconds = 60
	}
	return result, nil
}

// Compile-time interface verification.
var _ ratelimit.Limiter = (*RateLimiter)(nil)
