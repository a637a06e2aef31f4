package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count   int
	resetAt time.Time
}

// Memory is the single-process Store: a mutex-guarded map with periodic
// sweeping of expired windows to bound memory.
type Memory struct {
	limit  int
	window time.Duration

	mu        sync.Mutex
	entries   map[string]*entry
	lastSweep time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an in-process fixed-window counter.
func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{
		limit:   limit,
		window:  window,
		entries: make(map[string]*entry),
	}
}

func (m *Memory) CheckAndIncrement(_ context.Context, key string, now time.Time) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastSweep) > m.window {
		m.sweepLocked(now)
	}

	e, ok := m.entries[key]
	switch {
	case !ok:
		e = &entry{count: 1, resetAt: now.Add(m.window)}
		m.entries[key] = e
	case now.After(e.resetAt):
		e.count = 1
		e.resetAt = now.Add(m.window)
	default:
		e.count++
	}

	return m.result(e), nil
}

// Sweep drops entries whose window has elapsed.
func (m *Memory) Sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked(now)
}

// StartSweeper runs Sweep on a ticker until ctx is cancelled.
func (m *Memory) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.Sweep(now)
			}
		}
	}()
}

func (m *Memory) sweepLocked(now time.Time) {
	for k, e := range m.entries {
		if now.After(e.resetAt) {
			delete(m.entries, k)
		}
	}
	m.lastSweep = now
}

func (m *Memory) result(e *entry) Result {
	remaining := m.limit - e.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   e.count <= m.limit,
		Limit:     m.limit,
		Remaining: remaining,
		ResetAt:   e.resetAt,
	}
}
