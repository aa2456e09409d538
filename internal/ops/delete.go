package ops

import (
	"context"

	"github.com/hpungsan/phototag/internal/db"
)

// DeleteInput contains parameters for the DeleteRecord operation.
type DeleteInput struct {
	ID string // required
}

// DeleteOutput contains the result of the DeleteRecord operation.
type DeleteOutput struct {
	ID              string   `json:"id"`
	Deleted         bool     `json:"deleted"`
	CancelledAlarms []string `json:"cancelled_alarms"`
}

// DeleteRecord removes a record with its tags and alarms in one transaction,
// then cancels the platform timers of alarms that were pending and drops the
// record from the index. A failed transaction leaves everything in place.
func (s *Service) DeleteRecord(ctx context.Context, input DeleteInput) (*DeleteOutput, error) {
	id, err := requireID("id", input.ID)
	if err != nil {
		return nil, err
	}

	var pending []string
	unlock := s.sched.Lock(id)
	err = db.WithTx(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		var err error
		pending, err = db.DeleteRecord(ctx, tx, id)
		return err
	})
	if err == nil {
		s.index.Remove(id)
	}
	unlock()
	if err != nil {
		return nil, err
	}

	s.sched.CancelTimers(context.WithoutCancel(ctx), pending)

	if pending == nil {
		pending = []string{}
	}
	s.log.Info().Str("record_id", id).Int("cancelled_alarms", len(pending)).Msg("record deleted")
	return &DeleteOutput{ID: id, Deleted: true, CancelledAlarms: pending}, nil
}
