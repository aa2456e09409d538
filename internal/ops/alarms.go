package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/phototag/internal/db"
	"github.com/hpungsan/phototag/internal/errors"
	"github.com/hpungsan/phototag/internal/record"
)

// ListAlarmsInput contains parameters for the ListAlarms operation.
type ListAlarmsInput struct {
	RecordID string // optional filter
	Status   string // optional filter: pending, fired or cancelled
	Limit    int    // default: 20, max: 100
	Offset   int
}

// ListAlarmsOutput contains the result of the ListAlarms operation.
type ListAlarmsOutput struct {
	Items []record.Alarm `json:"items"`
}

// ListAlarms returns alarms newest first.
func (s *Service) ListAlarms(ctx context.Context, input ListAlarmsInput) (*ListAlarmsOutput, error) {
	status := record.AlarmStatus(strings.TrimSpace(input.Status))
	if status != "" && !status.Valid() {
		return nil, errors.NewValidation("status must be one of: pending, fired, cancelled")
	}

	items, err := db.ListAlarms(ctx, s.db, db.AlarmFilter{
		RecordID: strings.TrimSpace(input.RecordID),
		Status:   status,
		Limit:    clampLimit(input.Limit, DefaultListLimit, MaxListLimit),
		Offset:   max(input.Offset, 0),
	})
	if err != nil {
		return nil, err
	}
	return &ListAlarmsOutput{Items: items}, nil
}
