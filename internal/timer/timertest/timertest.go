// Package timertest provides a recording timer.Service for tests.
package timertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hpungsan/phototag/internal/timer"
)

// Request is one recorded RequestCallback call.
type Request struct {
	ID      string
	FireAt  time.Time
	Payload timer.Payload
}

// Recorder implements timer.Service without any real timers. Fires happen
// only when a test calls Fire.
type Recorder struct {
	mu       sync.Mutex
	requests []Request
	cancels  []string
	armed    map[string]Request
	handler  timer.FireFunc
	reject   error
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{armed: make(map[string]Request)}
}

// Reject makes every later RequestCallback fail with err. nil restores
// normal behavior.
func (r *Recorder) Reject(err error) {
	r.mu.Lock()
	r.reject = err
	r.mu.Unlock()
}

// RequestCallback records the request and arms id.
func (r *Recorder) RequestCallback(ctx context.Context, id string, fireAt time.Time, p timer.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reject != nil {
		return r.reject
	}
	req := Request{ID: id, FireAt: fireAt, Payload: p}
	r.requests = append(r.requests, req)
	r.armed[id] = req
	return nil
}

// CancelCallback records the cancellation and disarms id.
func (r *Recorder) CancelCallback(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancels = append(r.cancels, id)
	delete(r.armed, id)
	return nil
}

// SetHandler installs the fire receiver.
func (r *Recorder) SetHandler(fn timer.FireFunc) {
	r.mu.Lock()
	r.handler = fn
	r.mu.Unlock()
}

// Fire delivers a fire event for id synchronously, whether or not id is
// armed, the way a late platform delivery would.
func (r *Recorder) Fire(ctx context.Context, id string) {
	r.mu.Lock()
	delete(r.armed, id)
	handler := r.handler
	r.mu.Unlock()

	if handler != nil {
		handler(ctx, id)
	}
}

// Requests returns every recorded request in call order.
func (r *Recorder) Requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Request(nil), r.requests...)
}

// Cancels returns every cancelled id in call order.
func (r *Recorder) Cancels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.cancels...)
}

// Armed returns the requests that are neither cancelled nor fired, sorted by id.
func (r *Recorder) Armed() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Request, 0, len(r.armed))
	for _, req := range r.armed {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsArmed reports whether id is currently armed.
func (r *Recorder) IsArmed(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.armed[id]
	return ok
}

var _ timer.Service = (*Recorder)(nil)
