package ops

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/phototag/internal/errors"
	"github.com/hpungsan/phototag/internal/record"
)

// ScheduleInput contains parameters for the ScheduleAlarm operation.
// Exactly one of At or In must be set.
type ScheduleInput struct {
	RecordID string // required
	At       string // RFC 3339 timestamp or Unix seconds
	In       string // Go duration relative to now, e.g. "90m"
}

// ScheduleOutput contains the result of the ScheduleAlarm operation.
type ScheduleOutput struct {
	Alarm   *record.Alarm `json:"alarm"`
	Warning string        `json:"warning,omitempty"`
}

// ScheduleAlarm binds a one-shot reminder to a record, superseding any
// pending one. A time in the past is accepted and fires as soon as possible.
//
// When the platform rejects the timer the alarm is still stored as pending;
// the output is returned together with the PLATFORM_SCHEDULING_ERROR so the
// caller can tell the user the reminder may not fire.
func (s *Service) ScheduleAlarm(ctx context.Context, input ScheduleInput) (*ScheduleOutput, error) {
	recordID, err := requireID("record_id", input.RecordID)
	if err != nil {
		return nil, err
	}
	fireAt, err := ParseFireAt(input.At, input.In, time.Now())
	if err != nil {
		return nil, err
	}

	a, err := s.sched.Schedule(ctx, recordID, fireAt)
	if err != nil {
		if a != nil && errors.Is(err, errors.ErrPlatformScheduling) {
			return &ScheduleOutput{Alarm: a, Warning: "reminder saved but may not fire: " + *a.ScheduleError}, err
		}
		return nil, err
	}
	return &ScheduleOutput{Alarm: a}, nil
}

// ParseFireAt resolves an absolute or relative fire time. Exactly one of at
// and in must be non-empty.
func ParseFireAt(at, in string, now time.Time) (time.Time, error) {
	at = strings.TrimSpace(at)
	in = strings.TrimSpace(in)

	switch {
	case at != "" && in != "":
		return time.Time{}, errors.NewValidation("specify either at or in, not both")
	case at == "" && in == "":
		return time.Time{}, errors.NewValidation("fire time is required: set at or in")
	case in != "":
		d, err := time.ParseDuration(in)
		if err != nil {
			return time.Time{}, errors.NewValidation("in must be a duration like 90m or 2h: " + err.Error())
		}
		return now.Add(d), nil
	}

	if secs, err := strconv.ParseInt(at, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return time.Time{}, errors.NewValidation("at must be RFC 3339 or Unix seconds: " + at)
	}
	return t, nil
}
