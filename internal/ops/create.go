package ops

import (
	"context"
	"strings"
	"time"

	"github.com/hpungsan/phototag/internal/db"
	"github.com/hpungsan/phototag/internal/errors"
	"github.com/hpungsan/phototag/internal/record"
	"github.com/hpungsan/phototag/internal/tags"
)

// CreateInput contains parameters for the CreateTaggedRecord operation.
type CreateInput struct {
	PhotoRef string   // required
	RawTags  string   // comma-separated, as typed by the user
	Tags     []string // pre-split tags, appended after RawTags
	Comment  string
}

// CreateTaggedRecord parses the tags, persists a new record and indexes it.
// Validation happens before anything is written.
func (s *Service) CreateTaggedRecord(ctx context.Context, input CreateInput) (*record.TaggedRecord, error) {
	photoRef := strings.TrimSpace(input.PhotoRef)
	if photoRef == "" {
		return nil, errors.NewValidation("photo_ref is required")
	}

	ts := tags.Clean(append(tags.Parse(input.RawTags), input.Tags...))
	if err := s.validateTags(ts); err != nil {
		return nil, err
	}
	if err := s.validateComment(input.Comment); err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	r := &record.TaggedRecord{
		ID:        record.NewID(),
		PhotoRef:  photoRef,
		Tags:      ts,
		Comment:   input.Comment,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := db.WithTx(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		return db.InsertRecord(ctx, tx, r)
	})
	if err != nil {
		return nil, err
	}

	s.index.Add(r)
	s.log.Debug().Str("record_id", r.ID).Strs("tags", r.Tags).Msg("record created")
	return r, nil
}
