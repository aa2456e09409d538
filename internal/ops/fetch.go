package ops

import (
	"context"

	"github.com/hpungsan/phototag/internal/db"
	"github.com/hpungsan/phototag/internal/record"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	ID string // required
}

// FetchOutput is a record with its alarm history, newest alarm first.
type FetchOutput struct {
	Record *record.TaggedRecord `json:"record"`
	Alarms []record.Alarm       `json:"alarms"`
}

// Fetch returns a record and its alarms.
func (s *Service) Fetch(ctx context.Context, input FetchInput) (*FetchOutput, error) {
	id, err := requireID("id", input.ID)
	if err != nil {
		return nil, err
	}

	r, err := db.GetRecord(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	alarms, err := db.ListAlarms(ctx, s.db, db.AlarmFilter{RecordID: id})
	if err != nil {
		return nil, err
	}

	return &FetchOutput{Record: r, Alarms: alarms}, nil
}
