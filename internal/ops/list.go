package ops

import (
	"context"

	"github.com/hpungsan/phototag/internal/db"
	"github.com/hpungsan/phototag/internal/record"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Limit  int // default: 20, max: 100
	Offset int // default: 0
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []record.TaggedRecord `json:"items"`
	Pagination Pagination            `json:"pagination"`
}

// List returns records newest first.
func (s *Service) List(ctx context.Context, input ListInput) (*ListOutput, error) {
	limit := clampLimit(input.Limit, DefaultListLimit, MaxListLimit)
	offset := max(input.Offset, 0)

	items, total, err := db.ListRecords(ctx, s.db, limit, offset)
	if err != nil {
		return nil, err
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
	}, nil
}
