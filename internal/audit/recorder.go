package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"equiptrack.io/internal/obs"
)

// Sink persists audit entries.
type Sink interface {
	Append(ctx context.Context, e *Entry) error
}

const (
	defaultBuffer  = 256
	appendTimeout  = 5 * time.Second
	drainOnCloseIn = 10 * time.Second
)

// Recorder writes audit entries asynchronously. Record never blocks the
// response path and never surfaces persistence errors to the caller: failures
// are logged, counted and tolerated, not corrected.
type Recorder struct {
	sink Sink

	ch        chan *Entry
	closeOnce sync.Once
	done      chan struct{}
}

// NewRecorder starts a recorder draining into sink.
func NewRecorder(sink Sink) *Recorder {
	r := &Recorder{
		sink: sink,
		ch:   make(chan *Entry, defaultBuffer),
		done: make(chan struct{}),
	}
	go r.drain()
	return r
}

// Record derives and enqueues an entry for a finalized request. Requests that
// are not auditable (no identity, read-only method) are ignored. A full
// buffer drops the entry instead of blocking.
func (r *Recorder) Record(info RequestInfo) {
	if !Relevant(info) {
		return
	}
	entry := build(info)
	select {
	case r.ch <- entry:
		obs.AuditEntries.Inc()
	default:
		obs.AuditFailures.Inc()
		obs.LogRequest(map[string]any{
			"level": "error",
			"msg":   "audit buffer full, entry dropped",
			"path":  info.Path,
		})
	}
}

// Close stops the drain loop after flushing queued entries.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.ch)
		select {
		case <-r.done:
		case <-time.After(drainOnCloseIn):
		}
	})
}

func (r *Recorder) drain() {
	defer close(r.done)
	for entry := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		err := r.sink.Append(ctx, entry)
		cancel()
		if err != nil {
			obs.AuditFailures.Inc()
			obs.LogRequest(map[string]any{
				"level":  "error",
				"msg":    "audit append failed",
				"action": entry.Action,
				"entity": entry.EntityType,
				"error":  err.Error(),
			})
		}
	}
}

// LogSink writes entries as JSON lines through the shared logger. It backs
// the recorder in deployments without a database and in tests.
type LogSink struct{}

func (LogSink) Append(_ context.Context, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
