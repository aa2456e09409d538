package scheduler

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/phototag/internal/correlator"
	"github.com/hpungsan/phototag/internal/db"
	"github.com/hpungsan/phototag/internal/errors"
	"github.com/hpungsan/phototag/internal/record"
	"github.com/hpungsan/phototag/internal/timer"
	"github.com/hpungsan/phototag/internal/timer/timertest"
)

// forwardLog records forwarded alarms.
type forwardLog struct {
	mu     sync.Mutex
	alarms []record.Alarm
}

func (f *forwardLog) Forward(_ context.Context, a *record.Alarm) correlator.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alarms = append(f.alarms, *a)
	return correlator.Event{Kind: correlator.KindShowRecord, AlarmID: a.ID, RecordID: a.RecordID}
}

func (f *forwardLog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alarms)
}

type fixture struct {
	db    *sql.DB
	rec   *timertest.Recorder
	fwd   *forwardLog
	sched *Scheduler
}

func setup(t *testing.T) *fixture {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	rec := timertest.New()
	fwd := &forwardLog{}
	return &fixture{
		db:    database,
		rec:   rec,
		fwd:   fwd,
		sched: New(database, rec, fwd, zerolog.Nop()),
	}
}

func (f *fixture) addRecord(t *testing.T, id string, ts ...string) {
	t.Helper()
	r := &record.TaggedRecord{ID: id, PhotoRef: "photos://" + id, Tags: ts, Comment: "c", CreatedAt: 1, UpdatedAt: 1}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	if err := db.InsertRecord(context.Background(), f.db, r); err != nil {
		t.Fatalf("InsertRecord failed: %v", err)
	}
}

func (f *fixture) status(t *testing.T, alarmID string) record.AlarmStatus {
	t.Helper()
	a, err := db.GetAlarm(context.Background(), f.db, alarmID)
	if err != nil {
		t.Fatalf("GetAlarm(%s) failed: %v", alarmID, err)
	}
	return a.Status
}

func (f *fixture) pendingFor(t *testing.T, recordID string) []record.Alarm {
	t.Helper()
	alarms, err := db.ListAlarms(context.Background(), f.db, db.AlarmFilter{RecordID: recordID, Status: record.StatusPending})
	if err != nil {
		t.Fatalf("ListAlarms failed: %v", err)
	}
	return alarms
}

func TestSchedule(t *testing.T) {
	f := setup(t)
	f.addRecord(t, "r1", "cat", "dog")
	ctx := context.Background()

	fireAt := time.Now().Add(time.Hour).Truncate(time.Second)
	a, err := f.sched.Schedule(ctx, "r1", fireAt)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if a.Status != record.StatusPending || a.RecordID != "r1" || a.FireAt != fireAt.Unix() {
		t.Errorf("alarm = %+v", a)
	}

	reqs := f.rec.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	// Platform id and alarm id are the same value
	if reqs[0].ID != a.ID || !reqs[0].FireAt.Equal(fireAt) {
		t.Errorf("request = %+v, want id %s at %v", reqs[0], a.ID, fireAt)
	}
	if reqs[0].Payload.RecordID != "r1" || len(reqs[0].Payload.Tags) != 2 || reqs[0].Payload.PhotoRef != "photos://r1" {
		t.Errorf("payload = %+v", reqs[0].Payload)
	}
}

func TestSchedule_UnknownRecord(t *testing.T) {
	f := setup(t)

	_, err := f.sched.Schedule(context.Background(), "missing", time.Now())
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("Schedule error = %v, want NOT_FOUND", err)
	}
	if len(f.rec.Requests()) != 0 {
		t.Error("timer requested for unknown record")
	}
}

func TestSchedule_PastFireAtAccepted(t *testing.T) {
	f := setup(t)
	f.addRecord(t, "r1")

	a, err := f.sched.Schedule(context.Background(), "r1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Schedule in the past failed: %v", err)
	}
	if !f.rec.IsArmed(a.ID) {
		t.Error("past alarm not handed to the timer service")
	}
}

func TestSchedule_Supersedes(t *testing.T) {
	f := setup(t)
	f.addRecord(t, "r1")
	ctx := context.Background()

	first, err := f.sched.Schedule(ctx, "r1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("first Schedule failed: %v", err)
	}
	second, err := f.sched.Schedule(ctx, "r1", time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("second Schedule failed: %v", err)
	}

	pending := f.pendingFor(t, "r1")
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Fatalf("pending = %+v, want only %s", pending, second.ID)
	}
	if got := f.status(t, first.ID); got != record.StatusCancelled {
		t.Errorf("first alarm status = %q, want cancelled", got)
	}

	cancels := f.rec.Cancels()
	if len(cancels) != 1 || cancels[0] != first.ID {
		t.Errorf("cancels = %v, want [%s]", cancels, first.ID)
	}
	armed := f.rec.Armed()
	if len(armed) != 1 || armed[0].ID != second.ID {
		t.Errorf("armed = %+v, want only %s", armed, second.ID)
	}
}

func TestSchedule_ConcurrentSameRecord(t *testing.T) {
	f := setup(t)
	f.addRecord(t, "r1")
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.sched.Schedule(ctx, "r1", time.Now().Add(time.Duration(i+1)*time.Minute)); err != nil {
				t.Errorf("Schedule failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	pending := f.pendingFor(t, "r1")
	if len(pending) != 1 {
		t.Fatalf("pending alarms = %d, want 1", len(pending))
	}
	armed := f.rec.Armed()
	if len(armed) != 1 || armed[0].ID != pending[0].ID {
		t.Errorf("armed = %+v, want only the pending alarm %s", armed, pending[0].ID)
	}
	if f.sched.locks.size() != 0 {
		t.Errorf("lock entries leaked: %d", f.sched.locks.size())
	}
}

func TestSchedule_PlatformRejection(t *testing.T) {
	f := setup(t)
	f.addRecord(t, "r1")
	ctx := context.Background()
	f.rec.Reject(stderrors.New("notifications disabled"))

	a, err := f.sched.Schedule(ctx, "r1", time.Now().Add(time.Hour))
	if !errors.Is(err, errors.ErrPlatformScheduling) {
		t.Fatalf("Schedule error = %v, want PLATFORM_SCHEDULING_ERROR", err)
	}
	if a == nil {
		t.Fatal("alarm not returned alongside the scheduling error")
	}

	stored, err := db.GetAlarm(ctx, f.db, a.ID)
	if err != nil {
		t.Fatalf("GetAlarm failed: %v", err)
	}
	if stored.Status != record.StatusPending {
		t.Errorf("status = %q, want pending", stored.Status)
	}
	if stored.ScheduleError == nil || *stored.ScheduleError != "notifications disabled" {
		t.Errorf("ScheduleError = %v", stored.ScheduleError)
	}

	// Reconcile retries and clears the flag once the platform accepts
	f.rec.Reject(nil)
	res, err := f.sched.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if res.Armed != 1 || res.Failed != 0 {
		t.Errorf("Reconcile = %+v, want 1 armed", res)
	}
	stored, _ = db.GetAlarm(ctx, f.db, a.ID)
	if stored.ScheduleError != nil {
		t.Errorf("ScheduleError = %q, want cleared", *stored.ScheduleError)
	}
}

func TestCancel(t *testing.T) {
	f := setup(t)
	f.addRecord(t, "r1")
	ctx := context.Background()

	a, _ := f.sched.Schedule(ctx, "r1", time.Now().Add(time.Hour))
	got, err := f.sched.Cancel(ctx, a.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if got.Status != record.StatusCancelled {
		t.Errorf("returned status = %q", got.Status)
	}
	if f.rec.IsArmed(a.ID) {
		t.Error("platform timer still armed after cancel")
	}
}

func TestCancel_TerminalIsInvalidState(t *testing.T) {
	f := setup(t)
	f.addRecord(t, "r1")
	ctx := context.Background()

	fired, _ := f.sched.Schedule(ctx, "r1", time.Now())
	f.rec.Fire(ctx, fired.ID)

	got, err := f.sched.Cancel(ctx, fired.ID)
	if !errors.Is(err, errors.ErrInvalidState) {
		t.Fatalf("Cancel(fired) error = %v, want INVALID_STATE", err)
	}
	if got == nil || got.Status != record.StatusFired {
		t.Errorf("Cancel(fired) returned %+v, want status fired", got)
	}
	if s := f.status(t, fired.ID); s != record.StatusFired {
		t.Errorf("status changed to %q", s)
	}

	cancelled, _ := f.sched.Schedule(ctx, "r1", time.Now().Add(time.Hour))
	if _, err := f.sched.Cancel(ctx, cancelled.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if _, err := f.sched.Cancel(ctx, cancelled.ID); !errors.Is(err, errors.ErrInvalidState) {
		t.Fatalf("second Cancel error = %v, want INVALID_STATE", err)
	}
	if s := f.status(t, cancelled.ID); s != record.StatusCancelled {
		t.Errorf("status changed to %q", s)
	}
}

func TestCancel_Unknown(t *testing.T) {
	f := setup(t)
	_, err := f.sched.Cancel(context.Background(), "missing")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("Cancel error = %v, want NOT_FOUND", err)
	}
}

func TestOnFire_Twice(t *testing.T) {
	f := setup(t)
	f.addRecord(t, "r1")
	ctx := context.Background()

	a, _ := f.sched.Schedule(ctx, "r1", time.Now())

	fired, err := f.sched.OnFire(ctx, a.ID)
	if err != nil || !fired {
		t.Fatalf("first OnFire = %v, %v; want true, nil", fired, err)
	}
	fired, err = f.sched.OnFire(ctx, a.ID)
	if err != nil || fired {
		t.Fatalf("second OnFire = %v, %v; want false, nil", fired, err)
	}

	if s := f.status(t, a.ID); s != record.StatusFired {
		t.Errorf("status = %q, want fired", s)
	}
	if f.fwd.count() != 1 {
		t.Errorf("forwarded %d times, want 1", f.fwd.count())
	}
}

func TestOnFire_AfterCancelDiscarded(t *testing.T) {
	f := setup(t)
	f.addRecord(t, "r1")
	ctx := context.Background()

	a, _ := f.sched.Schedule(ctx, "r1", time.Now())
	if _, err := f.sched.Cancel(ctx, a.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	// Late platform delivery of an already-cancelled timer
	f.rec.Fire(ctx, a.ID)

	if s := f.status(t, a.ID); s != record.StatusCancelled {
		t.Errorf("status = %q, want cancelled", s)
	}
	if f.fwd.count() != 0 {
		t.Errorf("cancelled alarm was forwarded")
	}
}

func TestOnFire_Unknown(t *testing.T) {
	f := setup(t)
	fired, err := f.sched.OnFire(context.Background(), "missing")
	if err != nil || fired {
		t.Fatalf("OnFire(unknown) = %v, %v; want false, nil", fired, err)
	}
}

func TestCancelAndFireRace(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		id := record.NewID()
		f.addRecord(t, id)
		a, err := f.sched.Schedule(ctx, id, time.Now())
		if err != nil {
			t.Fatalf("Schedule failed: %v", err)
		}

		var (
			wg        sync.WaitGroup
			cancelErr error
			fired     bool
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = f.sched.Cancel(ctx, a.ID)
		}()
		go func() {
			defer wg.Done()
			fired, _ = f.sched.OnFire(ctx, a.ID)
		}()
		wg.Wait()

		s := f.status(t, a.ID)
		switch {
		case fired:
			if s != record.StatusFired || !errors.Is(cancelErr, errors.ErrInvalidState) {
				t.Fatalf("fire won but status=%q cancelErr=%v", s, cancelErr)
			}
		default:
			if s != record.StatusCancelled || cancelErr != nil {
				t.Fatalf("cancel won but status=%q cancelErr=%v", s, cancelErr)
			}
		}
	}
}

func TestReconcile(t *testing.T) {
	f := setup(t)
	f.addRecord(t, "r1")
	f.addRecord(t, "r2")
	ctx := context.Background()

	future := time.Now().Add(time.Hour).Truncate(time.Second)
	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	a1, _ := f.sched.Schedule(ctx, "r1", future)
	a2, _ := f.sched.Schedule(ctx, "r2", past)
	done, _ := f.sched.Schedule(ctx, "r2", future)
	_, _ = f.sched.Cancel(ctx, done.ID)

	// Simulated restart: fresh timer service, same store
	restarted := timertest.New()
	sched := New(f.db, restarted, f.fwd, zerolog.Nop())

	res, err := sched.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if res.Armed != 1 || res.Failed != 0 {
		t.Errorf("Reconcile = %+v, want armed=1", res)
	}

	armed := restarted.Armed()
	if len(armed) != 1 || armed[0].ID != a1.ID || !armed[0].FireAt.Equal(future) {
		t.Errorf("armed = %+v, want %s at %v", armed, a1.ID, future)
	}
	// a2 was superseded by done, then done was cancelled
	if s := f.status(t, a2.ID); s != record.StatusCancelled {
		t.Errorf("a2 status = %q, want cancelled", s)
	}
}

func TestReconcile_PastAlarmFiresImmediately(t *testing.T) {
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	defer database.Close()
	ctx := context.Background()

	r := &record.TaggedRecord{ID: "r1", PhotoRef: "p", Tags: []string{}, CreatedAt: 1, UpdatedAt: 1}
	if err := db.InsertRecord(ctx, database, r); err != nil {
		t.Fatalf("InsertRecord failed: %v", err)
	}
	a := &record.Alarm{ID: "a1", RecordID: "r1", FireAt: time.Now().Add(-time.Minute).Unix(), Status: record.StatusPending}
	if err := db.InsertAlarm(ctx, database, a); err != nil {
		t.Fatalf("InsertAlarm failed: %v", err)
	}

	local := timer.NewLocal(zerolog.Nop())
	defer local.Close()
	done := make(chan struct{})
	fwd := forwarderFunc(func(a *record.Alarm) { close(done) })
	sched := New(database, local, fwd, zerolog.Nop())

	if _, err := sched.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("past alarm did not fire after reconcile")
	}
	got, _ := db.GetAlarm(ctx, database, "a1")
	if got.Status != record.StatusFired {
		t.Errorf("status = %q, want fired", got.Status)
	}
}

func TestReconcile_OrphanCancelled(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a := &record.Alarm{ID: "a1", RecordID: "gone", FireAt: 1, Status: record.StatusPending}
	if err := db.InsertAlarm(ctx, f.db, a); err != nil {
		t.Fatalf("InsertAlarm failed: %v", err)
	}

	if _, err := f.sched.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if s := f.status(t, "a1"); s != record.StatusCancelled {
		t.Errorf("orphan status = %q, want cancelled", s)
	}
	if f.rec.IsArmed("a1") {
		t.Error("orphan armed")
	}
}

func TestLock_Serializes(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.lock("r1")

	acquired := make(chan struct{})
	go func() {
		release := k.lock("r1")
		close(acquired)
		release()
	}()

	// Other keys are independent
	other := k.lock("r2")
	other()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	unlock() // release is idempotent

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
	// Give the goroutine's release a moment to run
	deadline := time.Now().Add(time.Second)
	for k.size() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if k.size() != 0 {
		t.Errorf("size = %d, want 0", k.size())
	}
}

type forwarderFunc func(a *record.Alarm)

func (f forwarderFunc) Forward(_ context.Context, a *record.Alarm) correlator.Event {
	f(a)
	return correlator.Event{}
}

// cancelOnCancel cancels the caller's context when a timer is cancelled,
// the way a client hanging up right after commit would.
type cancelOnCancel struct {
	*timer.Local
	cancel context.CancelFunc
}

func (c cancelOnCancel) CancelCallback(ctx context.Context, id string) error {
	c.cancel()
	return c.Local.CancelCallback(ctx, id)
}

func TestSchedule_CallerCancelledAfterCommit(t *testing.T) {
	f := setup(t)
	f.addRecord(t, "r1")

	local := timer.NewLocal(zerolog.Nop())
	defer local.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched := New(f.db, cancelOnCancel{Local: local, cancel: cancel}, f.fwd, zerolog.Nop())

	first, err := sched.Schedule(context.Background(), "r1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("first Schedule failed: %v", err)
	}

	// Superseding cancels the old timer, which hangs up the caller
	second, err := sched.Schedule(ctx, "r1", time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("second Schedule error = %v, want nil", err)
	}
	if ctx.Err() == nil {
		t.Fatal("caller context not cancelled by the fixture")
	}

	stored, err := db.GetAlarm(context.Background(), f.db, second.ID)
	if err != nil {
		t.Fatalf("GetAlarm failed: %v", err)
	}
	if stored.ScheduleError != nil {
		t.Errorf("ScheduleError = %q, want nil", *stored.ScheduleError)
	}
	armed := local.Armed()
	if len(armed) != 1 || armed[0] != second.ID {
		t.Errorf("armed = %v, want [%s] (first was %s)", armed, second.ID, first.ID)
	}
}
