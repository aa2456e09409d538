// Package timer defines the platform timed-callback service that alarms are
// delivered through, and an in-process implementation of it.
package timer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrClosed is returned by RequestCallback after Close.
var ErrClosed = errors.New("timer service closed")

// Payload travels with a timer request so a notification can be rendered
// without the record store being reachable.
type Payload struct {
	RecordID string   `json:"record_id"`
	PhotoRef string   `json:"photo_ref"`
	Tags     []string `json:"tags"`
	Comment  string   `json:"comment"`
}

// FireFunc receives fire events. It is called from the service's own
// goroutines, concurrently with any other call.
type FireFunc func(ctx context.Context, id string)

// Service is the platform capability to run a callback at a wall-clock time
// and to cancel it by identifier.
type Service interface {
	// RequestCallback arms a timer for id. Requesting an id that is already
	// armed replaces the earlier request. A fireAt in the past fires as soon
	// as possible.
	RequestCallback(ctx context.Context, id string, fireAt time.Time, p Payload) error

	// CancelCallback disarms id. Cancelling an unknown or already fired id
	// is not an error.
	CancelCallback(ctx context.Context, id string) error

	// SetHandler installs the receiver of fire events.
	SetHandler(fn FireFunc)
}

// Local runs callbacks in-process on time.AfterFunc. Armed timers do not
// survive the process; callers re-request them on startup.
type Local struct {
	mu      sync.Mutex
	timers  map[string]*entry
	handler FireFunc
	closed  bool
	now     func() time.Time
	log     zerolog.Logger
}

type entry struct {
	t       *time.Timer
	fireAt  time.Time
	payload Payload
}

// Option configures a Local.
type Option func(*Local)

// WithClock overrides the time source used to compute delays.
func WithClock(now func() time.Time) Option {
	return func(l *Local) { l.now = now }
}

// NewLocal returns a running Local service.
func NewLocal(logger zerolog.Logger, opts ...Option) *Local {
	l := &Local{
		timers: make(map[string]*entry),
		now:    time.Now,
		log:    logger.With().Str("component", "timer").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetHandler installs fn as the fire receiver.
func (l *Local) SetHandler(fn FireFunc) {
	l.mu.Lock()
	l.handler = fn
	l.mu.Unlock()
}

// RequestCallback arms (or re-arms) the timer for id.
func (l *Local) RequestCallback(ctx context.Context, id string, fireAt time.Time, p Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if old, ok := l.timers[id]; ok {
		old.t.Stop()
	}

	delay := fireAt.Sub(l.now())
	if delay < 0 {
		delay = 0
	}

	e := &entry{fireAt: fireAt, payload: p}
	e.t = time.AfterFunc(delay, func() { l.fire(id, e) })
	l.timers[id] = e

	l.log.Debug().Str("id", id).Time("fire_at", fireAt).Dur("delay", delay).Msg("timer armed")
	return nil
}

// CancelCallback stops the timer for id if it is still armed.
func (l *Local) CancelCallback(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.timers[id]; ok {
		e.t.Stop()
		delete(l.timers, id)
		l.log.Debug().Str("id", id).Msg("timer cancelled")
	}
	return nil
}

func (l *Local) fire(id string, e *entry) {
	l.mu.Lock()
	// A replaced or cancelled timer whose func was already running loses here
	if cur, ok := l.timers[id]; !ok || cur != e {
		l.mu.Unlock()
		return
	}
	delete(l.timers, id)
	handler := l.handler
	l.mu.Unlock()

	l.log.Debug().Str("id", id).Str("record_id", e.payload.RecordID).
		Strs("tags", e.payload.Tags).Msg("timer fired")

	if handler == nil {
		l.log.Warn().Str("id", id).Msg("timer fired with no handler installed")
		return
	}
	handler(context.Background(), id)
}

// Armed returns the ids of timers that have not fired yet, sorted.
func (l *Local) Armed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]string, 0, len(l.timers))
	for id := range l.timers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FireAt reports when id is due, if it is armed.
func (l *Local) FireAt(id string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.timers[id]
	if !ok {
		return time.Time{}, false
	}
	return e.fireAt, true
}

// Close stops every armed timer. Later requests fail with ErrClosed.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, e := range l.timers {
		e.t.Stop()
		delete(l.timers, id)
	}
	l.closed = true
	return nil
}

// Deferred accepts timer requests and never fires them. One-shot commands
// run on it: their alarms stay pending in the store until the long-running
// process re-arms them at startup, so nothing fires in a process that is
// about to exit.
type Deferred struct {
	mu     sync.Mutex
	armed  map[string]time.Time
	closed bool
	log    zerolog.Logger
}

// NewDeferred returns an empty Deferred service.
func NewDeferred(logger zerolog.Logger) *Deferred {
	return &Deferred{
		armed: make(map[string]time.Time),
		log:   logger.With().Str("component", "timer").Logger(),
	}
}

// SetHandler is a no-op; Deferred never delivers.
func (d *Deferred) SetHandler(FireFunc) {}

// RequestCallback notes the request.
func (d *Deferred) RequestCallback(_ context.Context, id string, fireAt time.Time, _ Payload) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	d.armed[id] = fireAt
	d.log.Debug().Str("id", id).Time("fire_at", fireAt).Msg("timer deferred to serving process")
	return nil
}

// CancelCallback forgets id.
func (d *Deferred) CancelCallback(_ context.Context, id string) error {
	d.mu.Lock()
	delete(d.armed, id)
	d.mu.Unlock()
	return nil
}

// Armed returns the ids requested and not cancelled, sorted.
func (d *Deferred) Armed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.armed))
	for id := range d.armed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close drops every request. Later requests fail with ErrClosed.
func (d *Deferred) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	clear(d.armed)
	d.closed = true
	return nil
}

var (
	_ Service = (*Local)(nil)
	_ Service = (*Deferred)(nil)
)
