package correlator

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Sink consumes correlator events. Emit must not block for long: it runs on
// the timer service's goroutine.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event)

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

// LogSink writes every event to a logger.
type LogSink struct {
	Log zerolog.Logger
}

// Emit logs ev at info level.
func (s LogSink) Emit(_ context.Context, ev Event) {
	e := s.Log.Info().
		Str("kind", string(ev.Kind)).
		Str("alarm_id", ev.AlarmID).
		Str("record_id", ev.RecordID).
		Int64("fire_at", ev.FireAt)
	if ev.Record != nil {
		e = e.Str("photo_ref", ev.Record.PhotoRef).Strs("tags", ev.Record.Tags)
	}
	if ev.Message != "" {
		e = e.Str("detail", ev.Message)
	}
	e.Msg("reminder delivered")
}

// Multi fans an event out to several sinks in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, ev Event) {
		for _, s := range sinks {
			if s != nil {
				s.Emit(ctx, ev)
			}
		}
	})
}

// Feed keeps the most recent events in a fixed-size ring.
type Feed struct {
	mu   sync.Mutex
	buf  []Event
	next int
	full bool
}

// NewFeed returns a Feed holding up to size events. size < 1 is treated as 1.
func NewFeed(size int) *Feed {
	if size < 1 {
		size = 1
	}
	return &Feed{buf: make([]Event, size)}
}

// Emit stores ev, evicting the oldest event when full.
func (f *Feed) Emit(_ context.Context, ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf[f.next] = ev
	f.next = (f.next + 1) % len(f.buf)
	if f.next == 0 {
		f.full = true
	}
}

// Recent returns the stored events, newest first.
func (f *Feed) Recent() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.next
	if f.full {
		n = len(f.buf)
	}
	out := make([]Event, 0, n)
	for i := 1; i <= n; i++ {
		idx := (f.next - i + len(f.buf)) % len(f.buf)
		out = append(out, f.buf[idx])
	}
	return out
}
