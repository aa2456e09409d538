package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/phototag/internal/errors"
	"github.com/hpungsan/phototag/internal/record"
)

const alarmColumns = `id, record_id, fire_at, status, schedule_error, created_at, updated_at`

// AlarmFilter narrows ListAlarms. Zero values match everything.
type AlarmFilter struct {
	RecordID string
	Status   record.AlarmStatus
	Limit    int
	Offset   int
}

// InsertAlarm stores a new alarm.
// A second pending alarm for the same record violates idx_alarms_one_pending
// and is reported as CONFLICT.
func InsertAlarm(ctx context.Context, q DBTX, a *record.Alarm) error {
	query := `
		INSERT INTO alarms (id, record_id, fire_at, status, schedule_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		a.ID, a.RecordID, a.FireAt, string(a.Status), toNullString(a.ScheduleError),
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflict("record already has a pending alarm: " + a.RecordID)
		}
		return errors.NewStorage(err)
	}
	return nil
}

// GetAlarm retrieves an alarm by its ULID.
func GetAlarm(ctx context.Context, q DBTX, id string) (*record.Alarm, error) {
	row := q.QueryRowContext(ctx, `SELECT `+alarmColumns+` FROM alarms WHERE id = ?`, id)
	a, err := scanAlarm(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("alarm", id)
	}
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	return a, nil
}

// PendingAlarmForRecord returns the record's pending alarm, or nil if none.
func PendingAlarmForRecord(ctx context.Context, q DBTX, recordID string) (*record.Alarm, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+alarmColumns+` FROM alarms WHERE record_id = ? AND status = 'pending'`,
		recordID,
	)
	a, err := scanAlarm(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	return a, nil
}

// ListAlarms returns alarms matching filter, newest first.
func ListAlarms(ctx context.Context, q DBTX, filter AlarmFilter) ([]record.Alarm, error) {
	query := `SELECT ` + alarmColumns + ` FROM alarms WHERE 1=1`
	var args []any
	if filter.RecordID != "" {
		query += ` AND record_id = ?`
		args = append(args, filter.RecordID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}
	return queryAlarms(ctx, q, query, args...)
}

// ListPendingAlarms returns every pending alarm ordered by fire time.
func ListPendingAlarms(ctx context.Context, q DBTX) ([]record.Alarm, error) {
	return queryAlarms(ctx, q,
		`SELECT `+alarmColumns+` FROM alarms WHERE status = 'pending' ORDER BY fire_at ASC, id ASC`,
	)
}

// TransitionAlarm moves an alarm from one status to another only if it is
// still in from. It reports whether this call performed the transition; a
// false result with a nil error means another writer got there first or the
// alarm does not exist.
func TransitionAlarm(ctx context.Context, q DBTX, id string, from, to record.AlarmStatus, now int64) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE alarms SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), now, id, string(from),
	)
	if err != nil {
		return false, errors.NewStorage(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewStorage(err)
	}
	return rowsAffected == 1, nil
}

// SetScheduleError records (or clears, with nil) the last timer rejection.
func SetScheduleError(ctx context.Context, q DBTX, id string, msg *string, now int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE alarms SET schedule_error = ?, updated_at = ? WHERE id = ?`,
		toNullString(msg), now, id,
	)
	if err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

// pendingAlarmIDs lists the ids of a record's pending alarms.
func pendingAlarmIDs(ctx context.Context, q DBTX, recordID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id FROM alarms WHERE record_id = ? AND status = 'pending'`, recordID)
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewStorage(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage(err)
	}
	return ids, nil
}

func queryAlarms(ctx context.Context, q DBTX, query string, args ...any) ([]record.Alarm, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	defer rows.Close()

	alarms := []record.Alarm{}
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, errors.NewStorage(err)
		}
		alarms = append(alarms, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage(err)
	}
	return alarms, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAlarm(s scanner) (*record.Alarm, error) {
	var (
		a             record.Alarm
		status        string
		scheduleError sql.NullString
	)
	err := s.Scan(&a.ID, &a.RecordID, &a.FireAt, &status, &scheduleError, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = record.AlarmStatus(status)
	a.ScheduleError = fromNullString(scheduleError)
	return &a, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
