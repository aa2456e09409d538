// Package scheduler owns the alarm lifecycle: it persists alarms, requests
// and cancels platform timers keyed by alarm id, and applies status
// transitions when timers fire.
//
// All mutations for one record are serialized by a per-record lock. Status
// changes are conditional updates, so when cancel and fire race the first
// writer wins and the second observes a terminal state.
package scheduler

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/phototag/internal/correlator"
	"github.com/hpungsan/phototag/internal/db"
	"github.com/hpungsan/phototag/internal/errors"
	"github.com/hpungsan/phototag/internal/record"
	"github.com/hpungsan/phototag/internal/timer"
)

// Forwarder receives alarms that have just transitioned to fired.
type Forwarder interface {
	Forward(ctx context.Context, a *record.Alarm) correlator.Event
}

// Scheduler manages alarms for tagged records.
type Scheduler struct {
	db     *sql.DB
	timers timer.Service
	fwd    Forwarder
	locks  *keyedMutex
	now    func() time.Time
	log    zerolog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source used for status timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New returns a Scheduler and installs it as the fire handler of timers.
func New(database *sql.DB, timers timer.Service, fwd Forwarder, logger zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		db:     database,
		timers: timers,
		fwd:    fwd,
		locks:  newKeyedMutex(),
		now:    time.Now,
		log:    logger.With().Str("component", "scheduler").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	timers.SetHandler(s.handleFire)
	return s
}

// Lock acquires the per-record lock and returns its release func. Callers
// that mutate a record outside the scheduler (delete, edit) hold it so they
// serialize with schedule, cancel and fire. The lock is not reentrant.
func (s *Scheduler) Lock(recordID string) func() {
	return s.locks.lock(recordID)
}

// Schedule creates a pending alarm for recordID firing at fireAt. An
// existing pending alarm for the record is cancelled in the same
// transaction, and its platform timer is cancelled before the new one is
// requested.
//
// fireAt may be in the past; the timer service fires it as soon as it can.
// If the timer request is rejected the alarm stays pending with
// ScheduleError set, and is returned together with a
// PLATFORM_SCHEDULING_ERROR.
func (s *Scheduler) Schedule(ctx context.Context, recordID string, fireAt time.Time) (*record.Alarm, error) {
	unlock := s.Lock(recordID)
	defer unlock()

	now := s.now().Unix()
	alarm := &record.Alarm{
		ID:        record.NewID(),
		RecordID:  recordID,
		FireAt:    fireAt.Unix(),
		Status:    record.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var (
		rec        *record.TaggedRecord
		superseded string
	)
	err := db.WithTx(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		r, err := db.GetRecord(ctx, tx, recordID)
		if err != nil {
			return err
		}
		rec = r

		old, err := db.PendingAlarmForRecord(ctx, tx, recordID)
		if err != nil {
			return err
		}
		if old != nil {
			ok, err := db.TransitionAlarm(ctx, tx, old.ID, record.StatusPending, record.StatusCancelled, now)
			if err != nil {
				return err
			}
			if ok {
				superseded = old.ID
			}
		}

		return db.InsertAlarm(ctx, tx, alarm)
	})
	if err != nil {
		return nil, err
	}

	// The alarm is committed; a caller going away must not leave it unarmed.
	ctx = context.WithoutCancel(ctx)
	if superseded != "" {
		s.cancelTimer(ctx, superseded)
		s.log.Info().Str("record_id", recordID).Str("alarm_id", superseded).
			Str("superseded_by", alarm.ID).Msg("alarm superseded")
	}

	if err := s.arm(ctx, alarm, rec); err != nil {
		return alarm, err
	}

	s.log.Info().Str("record_id", recordID).Str("alarm_id", alarm.ID).
		Time("fire_at", fireAt).Msg("alarm scheduled")
	return alarm, nil
}

// Cancel moves a pending alarm to cancelled and cancels its platform timer.
// A terminal alarm yields INVALID_STATE with its status unchanged.
func (s *Scheduler) Cancel(ctx context.Context, alarmID string) (*record.Alarm, error) {
	a, err := db.GetAlarm(ctx, s.db, alarmID)
	if err != nil {
		return nil, err
	}
	if !a.Status.CanTransition(record.StatusCancelled) {
		return a, errors.NewInvalidState(alarmID, string(a.Status))
	}

	unlock := s.Lock(a.RecordID)
	defer unlock()

	now := s.now().Unix()
	ok, err := db.TransitionAlarm(ctx, s.db, alarmID, record.StatusPending, record.StatusCancelled, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		cur, err := db.GetAlarm(ctx, s.db, alarmID)
		if err != nil {
			return nil, err
		}
		return cur, errors.NewInvalidState(alarmID, string(cur.Status))
	}

	s.cancelTimer(context.WithoutCancel(ctx), alarmID)

	a.Status = record.StatusCancelled
	a.UpdatedAt = now
	s.log.Info().Str("record_id", a.RecordID).Str("alarm_id", alarmID).Msg("alarm cancelled")
	return a, nil
}

// OnFire handles a platform fire for alarmID. Unknown and terminal alarms
// are discarded as duplicate or late deliveries. It reports whether this
// call moved the alarm to fired.
func (s *Scheduler) OnFire(ctx context.Context, alarmID string) (bool, error) {
	a, err := db.GetAlarm(ctx, s.db, alarmID)
	if errors.Is(err, errors.ErrNotFound) {
		s.log.Debug().Str("alarm_id", alarmID).Msg("fire for unknown alarm discarded")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !a.Status.CanTransition(record.StatusFired) {
		s.log.Debug().Str("alarm_id", alarmID).Str("status", string(a.Status)).
			Msg("fire for terminal alarm discarded")
		return false, nil
	}

	unlock := s.Lock(a.RecordID)
	now := s.now().Unix()
	ok, err := db.TransitionAlarm(ctx, s.db, alarmID, record.StatusPending, record.StatusFired, now)
	unlock()
	if err != nil {
		return false, err
	}
	if !ok {
		s.log.Debug().Str("alarm_id", alarmID).Msg("fire lost race, discarded")
		return false, nil
	}

	a.Status = record.StatusFired
	a.UpdatedAt = now
	s.log.Info().Str("record_id", a.RecordID).Str("alarm_id", alarmID).Msg("alarm fired")

	if s.fwd != nil {
		s.fwd.Forward(ctx, a)
	}
	return true, nil
}

// CancelTimers cancels platform timers for alarms whose rows are already
// gone or terminal, such as those removed by a record delete.
func (s *Scheduler) CancelTimers(ctx context.Context, alarmIDs []string) {
	for _, id := range alarmIDs {
		s.cancelTimer(ctx, id)
	}
}

// Rearm re-requests the platform timer for a pending alarm, refreshing its
// payload from the current record. Terminal alarms are left alone.
func (s *Scheduler) Rearm(ctx context.Context, alarmID string) error {
	a, err := db.GetAlarm(ctx, s.db, alarmID)
	if err != nil {
		return err
	}

	unlock := s.Lock(a.RecordID)
	defer unlock()

	return s.rearmLocked(ctx, alarmID)
}

// ReconcileResult summarizes a Reconcile pass.
type ReconcileResult struct {
	Armed  int `json:"armed"`
	Failed int `json:"failed"`
}

// Reconcile re-requests platform timers for every pending alarm. Alarms due
// in the past fire immediately. The store is the source of truth; whatever
// the timer service remembers is overwritten.
func (s *Scheduler) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	pending, err := db.ListPendingAlarms(ctx, s.db)
	if err != nil {
		return nil, err
	}

	res := &ReconcileResult{}
	for _, a := range pending {
		if err := ctx.Err(); err != nil {
			return res, errors.NewCancelled("reconcile")
		}

		unlock := s.Lock(a.RecordID)
		err := s.rearmLocked(ctx, a.ID)
		unlock()

		if err != nil {
			res.Failed++
			s.log.Warn().Err(err).Str("alarm_id", a.ID).Msg("alarm not re-armed")
			continue
		}
		res.Armed++
	}

	s.log.Info().Int("armed", res.Armed).Int("failed", res.Failed).Msg("pending alarms reconciled")
	return res, nil
}

// rearmLocked reloads the alarm under its record lock and arms it if it is
// still pending. A pending alarm whose record is missing is cancelled.
func (s *Scheduler) rearmLocked(ctx context.Context, alarmID string) error {
	a, err := db.GetAlarm(ctx, s.db, alarmID)
	if err != nil {
		return err
	}
	if a.Status != record.StatusPending {
		return nil
	}

	rec, err := db.GetRecord(ctx, s.db, a.RecordID)
	if errors.Is(err, errors.ErrNotFound) {
		if _, err := db.TransitionAlarm(ctx, s.db, a.ID, record.StatusPending, record.StatusCancelled, s.now().Unix()); err != nil {
			return err
		}
		s.log.Warn().Str("alarm_id", a.ID).Str("record_id", a.RecordID).Msg("orphaned pending alarm cancelled")
		return nil
	}
	if err != nil {
		return err
	}

	return s.arm(ctx, a, rec)
}

// arm requests the platform timer for a and records the outcome on the row.
func (s *Scheduler) arm(ctx context.Context, a *record.Alarm, rec *record.TaggedRecord) error {
	payload := timer.Payload{
		RecordID: rec.ID,
		PhotoRef: rec.PhotoRef,
		Tags:     rec.Tags,
		Comment:  rec.Comment,
	}

	reqErr := s.timers.RequestCallback(ctx, a.ID, time.Unix(a.FireAt, 0), payload)
	if reqErr == nil {
		if a.ScheduleError != nil {
			if err := db.SetScheduleError(ctx, s.db, a.ID, nil, s.now().Unix()); err != nil {
				return err
			}
			a.ScheduleError = nil
		}
		return nil
	}

	msg := reqErr.Error()
	if err := db.SetScheduleError(ctx, s.db, a.ID, &msg, s.now().Unix()); err != nil {
		return err
	}
	a.ScheduleError = &msg
	s.log.Warn().Err(reqErr).Str("alarm_id", a.ID).Str("record_id", a.RecordID).
		Msg("platform rejected timer request, alarm left pending")
	return errors.NewPlatformScheduling(a.ID, reqErr)
}

func (s *Scheduler) cancelTimer(ctx context.Context, alarmID string) {
	if err := s.timers.CancelCallback(ctx, alarmID); err != nil {
		s.log.Warn().Err(err).Str("alarm_id", alarmID).Msg("platform timer cancel failed")
	}
}

func (s *Scheduler) handleFire(ctx context.Context, alarmID string) {
	if _, err := s.OnFire(ctx, alarmID); err != nil {
		s.log.Error().Err(err).Str("alarm_id", alarmID).Msg("fire handling failed")
	}
}
