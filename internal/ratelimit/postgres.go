package ratelimit

import (
	"context"
	"database/sql"
	"time"
)

// Postgres is the shared-store Store variant for multi-process deployments.
// A single upsert statement makes the increment-with-rollover atomic, so
// concurrent processes never under- or over-count a key.
type Postgres struct {
	db     *sql.DB
	limit  int
	window time.Duration
}

var _ Store = (*Postgres)(nil)

// NewPostgres creates a fixed-window counter backed by the shared database.
func NewPostgres(db *sql.DB, limit int, window time.Duration) *Postgres {
	return &Postgres{db: db, limit: limit, window: window}
}

func (p *Postgres) CheckAndIncrement(ctx context.Context, key string, now time.Time) (Result, error) {
	var (
		count   int
		resetAt time.Time
	)
	err := p.db.QueryRowContext(ctx, `
		insert into rate_limit_entries(key, count, window_reset_at)
		values ($1, 1, $2)
		on conflict (key) do update set
			count = case when rate_limit_entries.window_reset_at < $3
				then 1 else rate_limit_entries.count + 1 end,
			window_reset_at = case when rate_limit_entries.window_reset_at < $3
				then $2 else rate_limit_entries.window_reset_at end
		returning count, window_reset_at
	`, key, now.Add(p.window), now).Scan(&count, &resetAt)
	if err != nil {
		return Result{}, err
	}

	remaining := p.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= p.limit,
		Limit:     p.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Sweep removes expired windows; intended for a periodic janitor.
func (p *Postgres) Sweep(ctx context.Context, now time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`delete from rate_limit_entries where window_reset_at < $1`, now)
	return err
}

// StartSweeper deletes expired windows on a ticker until ctx is done.
func (p *Postgres) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				_ = p.Sweep(ctx, now.UTC())
			}
		}
	}()
}
