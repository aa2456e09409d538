package ops

import (
	"context"

	"github.com/hpungsan/phototag/internal/errors"
	"github.com/hpungsan/phototag/internal/record"
)

// CancelInput contains parameters for the CancelAlarm operation.
type CancelInput struct {
	AlarmID string // required
}

// CancelOutput contains the result of the CancelAlarm operation.
// Cancelled is false when the alarm had already fired or been cancelled;
// that case is not an error.
type CancelOutput struct {
	Alarm     *record.Alarm `json:"alarm"`
	Cancelled bool          `json:"cancelled"`
}

// CancelAlarm cancels a pending alarm and its platform timer.
func (s *Service) CancelAlarm(ctx context.Context, input CancelInput) (*CancelOutput, error) {
	id, err := requireID("alarm_id", input.AlarmID)
	if err != nil {
		return nil, err
	}

	a, err := s.sched.Cancel(ctx, id)
	if errors.Is(err, errors.ErrInvalidState) {
		return &CancelOutput{Alarm: a, Cancelled: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &CancelOutput{Alarm: a, Cancelled: true}, nil
}
