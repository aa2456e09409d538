// Package correlator resolves delivered or tapped notification identifiers
// back to the tagged record they were scheduled for.
package correlator

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/phototag/internal/db"
	"github.com/hpungsan/phototag/internal/errors"
	"github.com/hpungsan/phototag/internal/record"
)

// Kind classifies an Event.
type Kind string

const (
	// KindShowRecord asks the consumer to display Event.Record.
	KindShowRecord Kind = "show_record"
	// KindUnavailable reports a reminder whose record no longer exists.
	KindUnavailable Kind = "unavailable"
)

// UnavailableMessage is shown in place of a record that was deleted
// between scheduling and delivery.
const UnavailableMessage = "reminder no longer available"

// Event is emitted for every delivered alarm.
type Event struct {
	Kind     Kind                 `json:"kind"`
	AlarmID  string               `json:"alarm_id"`
	RecordID string               `json:"record_id"`
	Record   *record.TaggedRecord `json:"record,omitempty"`
	FireAt   int64                `json:"fire_at"`
	At       int64                `json:"at"`
	Message  string               `json:"message,omitempty"`
}

// Correlator maps notification ids (alarm ids) to records.
type Correlator struct {
	db   *sql.DB
	sink Sink
	log  zerolog.Logger
}

// New returns a Correlator emitting to sink. A nil sink discards events.
func New(database *sql.DB, sink Sink, logger zerolog.Logger) *Correlator {
	if sink == nil {
		sink = SinkFunc(func(context.Context, Event) {})
	}
	return &Correlator{
		db:   database,
		sink: sink,
		log:  logger.With().Str("component", "correlator").Logger(),
	}
}

// Resolve looks up the alarm with id == notificationID and returns its record.
// NOT_FOUND is a normal outcome: either side may have been deleted since the
// notification was scheduled.
func (c *Correlator) Resolve(ctx context.Context, notificationID string) (*record.TaggedRecord, error) {
	a, err := db.GetAlarm(ctx, c.db, notificationID)
	if err != nil {
		return nil, err
	}
	return db.GetRecord(ctx, c.db, a.RecordID)
}

// Forward emits the event for a fired alarm. It never fails: a missing
// record degrades to a KindUnavailable event.
func (c *Correlator) Forward(ctx context.Context, a *record.Alarm) Event {
	ev := Event{
		AlarmID:  a.ID,
		RecordID: a.RecordID,
		FireAt:   a.FireAt,
		At:       time.Now().Unix(),
	}

	r, err := db.GetRecord(ctx, c.db, a.RecordID)
	switch {
	case err == nil:
		ev.Kind = KindShowRecord
		ev.Record = r
	case errors.Is(err, errors.ErrNotFound):
		ev.Kind = KindUnavailable
		ev.Message = UnavailableMessage
	default:
		c.log.Error().Err(err).Str("alarm_id", a.ID).Msg("record lookup failed on fire")
		ev.Kind = KindUnavailable
		ev.Message = UnavailableMessage
	}

	c.sink.Emit(ctx, ev)
	return ev
}
