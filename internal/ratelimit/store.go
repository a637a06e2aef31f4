package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimited marks a request denied because its key exhausted the
// current window.
var ErrRateLimited = errors.New("ratelimit: too many requests")

// Result reports the outcome of counting one request against a key's window.
// Limit, Remaining and ResetAt are populated on both allow and deny so the
// transport can expose them on every response.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Store counts requests per key within a fixed window. Implementations must
// make the read-modify-write effectively atomic per request: under concurrent
// requests against one key the counted total equals the number of requests
// observed. A denied request still counts against the window.
type Store interface {
	CheckAndIncrement(ctx context.Context, key string, now time.Time) (Result, error)
}
