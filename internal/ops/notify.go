package ops

import (
	"context"

	"github.com/hpungsan/phototag/internal/correlator"
	"github.com/hpungsan/phototag/internal/errors"
	"github.com/hpungsan/phototag/internal/record"
)

// TapInput contains parameters for the OnNotificationTapped operation.
type TapInput struct {
	NotificationID string // required; equal to the alarm id
}

// TapOutput says what to show for a tapped notification. When the alarm or
// its record is gone, Available is false and Message explains it.
type TapOutput struct {
	Available bool                 `json:"available"`
	Record    *record.TaggedRecord `json:"record,omitempty"`
	Message   string               `json:"message,omitempty"`
}

// OnNotificationTapped resolves a notification back to its record. A missing
// alarm or record degrades to an unavailable result, not an error.
func (s *Service) OnNotificationTapped(ctx context.Context, input TapInput) (*TapOutput, error) {
	id, err := requireID("notification_id", input.NotificationID)
	if err != nil {
		return nil, err
	}

	r, err := s.corr.Resolve(ctx, id)
	if errors.Is(err, errors.ErrNotFound) {
		return &TapOutput{Available: false, Message: correlator.UnavailableMessage}, nil
	}
	if err != nil {
		return nil, err
	}
	return &TapOutput{Available: true, Record: r}, nil
}

// FireInput contains parameters for the Fire operation.
type FireInput struct {
	AlarmID string // required
}

// FireOutput contains the result of the Fire operation.
type FireOutput struct {
	AlarmID string `json:"alarm_id"`
	Fired   bool   `json:"fired"`
}

// Fire delivers a fire event for an alarm now, as if its platform timer had
// expired, and disarms that timer. Unknown and terminal alarms are no-ops.
func (s *Service) Fire(ctx context.Context, input FireInput) (*FireOutput, error) {
	id, err := requireID("alarm_id", input.AlarmID)
	if err != nil {
		return nil, err
	}

	fired, err := s.sched.OnFire(ctx, id)
	if err != nil {
		return nil, err
	}
	if fired {
		s.sched.CancelTimers(ctx, []string{id})
	}
	return &FireOutput{AlarmID: id, Fired: fired}, nil
}
