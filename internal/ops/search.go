package ops

import (
	"context"
	"slices"

	"github.com/hpungsan/phototag/internal/db"
	"github.com/hpungsan/phototag/internal/errors"
	"github.com/hpungsan/phototag/internal/index"
	"github.com/hpungsan/phototag/internal/record"
	"github.com/hpungsan/phototag/internal/tags"
)

// SearchInput contains parameters for the SearchByTag operation.
type SearchInput struct {
	Tag    string // required
	Prefix bool   // match tags starting with Tag instead of equal to it
	Limit  int    // default: 20, max: 100
	Offset int
}

// SearchOutput contains the result of the SearchByTag operation.
type SearchOutput struct {
	Tag        string                `json:"tag"`
	Prefix     bool                  `json:"prefix"`
	Items      []record.TaggedRecord `json:"items"`
	Pagination Pagination            `json:"pagination"`
}

// SearchByTag returns records carrying Tag, newest first. Lookup goes through
// the index; records are then loaded from the store, so ids the index still
// holds for deleted records are dropped.
func (s *Service) SearchByTag(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	tag := tags.Token(input.Tag)
	if tag == "" {
		return nil, errors.NewValidation("tag is required")
	}
	limit := clampLimit(input.Limit, DefaultListLimit, MaxListLimit)
	offset := max(input.Offset, 0)

	var ids []string
	if input.Prefix {
		ids = s.index.QueryPrefix(tag)
	} else {
		ids = s.index.Query(tag)
	}

	records, err := db.GetRecords(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	if !input.Prefix {
		// The store wins over an index entry that a concurrent edit made stale
		records = slices.DeleteFunc(records, func(r record.TaggedRecord) bool { return !r.HasTag(tag) })
	}

	total := len(records)
	end := min(offset+limit, total)
	page := []record.TaggedRecord{}
	if offset < total {
		page = records[offset:end]
	}

	return &SearchOutput{
		Tag:    tag,
		Prefix: input.Prefix,
		Items:  page,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: end < total,
			Total:   total,
		},
	}, nil
}

// SuggestInput contains parameters for the Suggest operation.
type SuggestInput struct {
	Term  string // required
	Limit int    // default: 10, max: 50
}

// SuggestOutput contains the result of the Suggest operation.
type SuggestOutput struct {
	Term        string             `json:"term"`
	Suggestions []index.Suggestion `json:"suggestions"`
}

// Suggest fuzzy-matches Term against every known tag.
func (s *Service) Suggest(ctx context.Context, input SuggestInput) (*SuggestOutput, error) {
	term := tags.Token(input.Term)
	if term == "" {
		return nil, errors.NewValidation("term is required")
	}
	limit := clampLimit(input.Limit, DefaultSuggestLimit, MaxSuggestLimit)

	return &SuggestOutput{Term: term, Suggestions: s.index.Suggest(term, limit)}, nil
}

// TagsOutput lists every known tag with its record count.
type TagsOutput struct {
	Tags []index.Suggestion `json:"tags"`
}

// Tags returns every indexed tag.
func (s *Service) Tags(ctx context.Context) *TagsOutput {
	return &TagsOutput{Tags: s.index.Tags()}
}
