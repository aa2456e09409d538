package ops

import (
	"context"
	"time"

	"github.com/hpungsan/phototag/internal/db"
	"github.com/hpungsan/phototag/internal/errors"
	"github.com/hpungsan/phototag/internal/record"
	"github.com/hpungsan/phototag/internal/tags"
)

// UpdateInput contains parameters for the Update operation.
// Nil fields are left unchanged; at least one must be set.
type UpdateInput struct {
	ID      string    // required
	RawTags *string   // replaces all tags, comma-separated
	Tags    *[]string // replaces all tags, pre-split
	Comment *string
}

// Update edits the tags and/or comment of a record, re-indexes it and
// refreshes the payload of its pending alarm.
func (s *Service) Update(ctx context.Context, input UpdateInput) (*record.TaggedRecord, error) {
	id, err := requireID("id", input.ID)
	if err != nil {
		return nil, err
	}
	if input.RawTags == nil && input.Tags == nil && input.Comment == nil {
		return nil, errors.NewValidation("nothing to update: set tags and/or comment")
	}

	var newTags []string
	if input.RawTags != nil || input.Tags != nil {
		var raw string
		if input.RawTags != nil {
			raw = *input.RawTags
		}
		var list []string
		if input.Tags != nil {
			list = *input.Tags
		}
		newTags = tags.Clean(append(tags.Parse(raw), list...))
		if err := s.validateTags(newTags); err != nil {
			return nil, err
		}
	}
	if input.Comment != nil {
		if err := s.validateComment(*input.Comment); err != nil {
			return nil, err
		}
	}

	var (
		updated *record.TaggedRecord
		pending *record.Alarm
	)
	unlock := s.sched.Lock(id)
	err = db.WithTx(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		r, err := db.GetRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		if newTags != nil {
			r.Tags = newTags
		}
		if input.Comment != nil {
			r.Comment = *input.Comment
		}
		r.UpdatedAt = time.Now().Unix()
		if err := db.UpdateRecord(ctx, tx, r); err != nil {
			return err
		}
		updated = r

		pending, err = db.PendingAlarmForRecord(ctx, tx, id)
		return err
	})
	if err == nil {
		// Under the lock so a concurrent delete cannot be undone
		s.index.Add(updated)
	}
	unlock()
	if err != nil {
		return nil, err
	}

	if pending != nil {
		// Payload carries tags and comment for offline rendering
		if err := s.sched.Rearm(context.WithoutCancel(ctx), pending.ID); err != nil && !errors.IsBenign(err) {
			s.log.Warn().Err(err).Str("alarm_id", pending.ID).Msg("pending alarm payload not refreshed")
		}
	}

	return updated, nil
}
