package ops

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/hpungsan/phototag/internal/db"
	"github.com/hpungsan/phototag/internal/errors"
	"github.com/hpungsan/phototag/internal/record"
)

func TestCreateTaggedRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	r, err := env.svc.CreateTaggedRecord(ctx, CreateInput{
		PhotoRef: "  photos://IMG_0001  ",
		RawTags:  "a, b ,a,, c",
		Comment:  "at the beach",
	})
	if err != nil {
		t.Fatalf("CreateTaggedRecord failed: %v", err)
	}
	if r.ID == "" || r.CreatedAt == 0 {
		t.Fatalf("record not stamped: %+v", r)
	}
	if !reflect.DeepEqual(r.Tags, []string{"a", "b", "c"}) {
		t.Errorf("Tags = %v, want [a b c]", r.Tags)
	}
	if r.PhotoRef != "photos://IMG_0001" {
		t.Errorf("PhotoRef = %q, want trimmed", r.PhotoRef)
	}

	// get(create(...).id) returns an equal record
	got, err := db.GetRecord(ctx, env.db, r.ID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if !reflect.DeepEqual(got, r) {
		t.Errorf("stored = %+v, want %+v", got, r)
	}

	if ids := env.svc.Index().Query("b"); !reflect.DeepEqual(ids, []string{r.ID}) {
		t.Errorf("Query(b) = %v, want [%s]", ids, r.ID)
	}
}

func TestCreateTaggedRecord_MergesTagList(t *testing.T) {
	env := newTestEnv(t)

	r, err := env.svc.CreateTaggedRecord(context.Background(), CreateInput{
		PhotoRef: "p",
		RawTags:  "cat",
		Tags:     []string{" dog ", "cat", ""},
	})
	if err != nil {
		t.Fatalf("CreateTaggedRecord failed: %v", err)
	}
	if !reflect.DeepEqual(r.Tags, []string{"cat", "dog"}) {
		t.Errorf("Tags = %v, want [cat dog]", r.Tags)
	}
}

func TestCreateTaggedRecord_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.svc.cfg.MaxTags = 2
	env.svc.cfg.CommentMaxChars = 5
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreateInput
	}{
		{"missing photo ref", CreateInput{RawTags: "cat"}},
		{"blank photo ref", CreateInput{PhotoRef: "   "}},
		{"too many tags", CreateInput{PhotoRef: "p", RawTags: "a,b,c"}},
		{"comment too long", CreateInput{PhotoRef: "p", Comment: "abcdef"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.CreateTaggedRecord(ctx, tc.input)
			if !errors.Is(err, errors.ErrValidation) {
				t.Errorf("error = %v, want VALIDATION_ERROR", err)
			}
		})
	}

	// Nothing was written
	out, err := env.svc.List(ctx, ListInput{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if out.Pagination.Total != 0 {
		t.Errorf("Total = %d, want 0 after rejected creates", out.Pagination.Total)
	}
}

func TestCreateTaggedRecord_CommentCountsRunes(t *testing.T) {
	env := newTestEnv(t)
	env.svc.cfg.CommentMaxChars = 3

	if _, err := env.svc.CreateTaggedRecord(context.Background(), CreateInput{PhotoRef: "p", Comment: "猫猫猫"}); err != nil {
		t.Errorf("3-rune comment rejected: %v", err)
	}
}

func TestFetch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	r, _ := env.svc.CreateTaggedRecord(ctx, CreateInput{PhotoRef: "p", RawTags: "cat"})
	if _, err := env.svc.ScheduleAlarm(ctx, ScheduleInput{RecordID: r.ID, In: "1h"}); err != nil {
		t.Fatalf("ScheduleAlarm failed: %v", err)
	}

	out, err := env.svc.Fetch(ctx, FetchInput{ID: r.ID})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if out.Record.ID != r.ID || len(out.Alarms) != 1 {
		t.Errorf("Fetch = %+v", out)
	}

	if _, err := env.svc.Fetch(ctx, FetchInput{ID: "missing"}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Fetch(missing) error = %v, want NOT_FOUND", err)
	}
	if _, err := env.svc.Fetch(ctx, FetchInput{}); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("Fetch(empty) error = %v, want VALIDATION_ERROR", err)
	}
}

func TestList_Pagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.svc.CreateTaggedRecord(ctx, CreateInput{PhotoRef: "p"}); err != nil {
			t.Fatalf("CreateTaggedRecord failed: %v", err)
		}
	}

	out, err := env.svc.List(ctx, ListInput{Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(out.Items) != 2 || !out.Pagination.HasMore || out.Pagination.Total != 3 {
		t.Errorf("List = %+v", out.Pagination)
	}

	out, _ = env.svc.List(ctx, ListInput{Limit: 2, Offset: 2})
	if len(out.Items) != 1 || out.Pagination.HasMore {
		t.Errorf("List page 2 = %+v", out.Pagination)
	}
}

func TestUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	r, _ := env.svc.CreateTaggedRecord(ctx, CreateInput{PhotoRef: "p", RawTags: "cat, dog", Comment: "old"})
	sched, err := env.svc.ScheduleAlarm(ctx, ScheduleInput{RecordID: r.ID, In: "1h"})
	if err != nil {
		t.Fatalf("ScheduleAlarm failed: %v", err)
	}

	updated, err := env.svc.Update(ctx, UpdateInput{ID: r.ID, RawTags: stringPtr("dog, park"), Comment: stringPtr("new")})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !reflect.DeepEqual(updated.Tags, []string{"dog", "park"}) || updated.Comment != "new" {
		t.Errorf("Update = %+v", updated)
	}
	if updated.CreatedAt != r.CreatedAt {
		t.Errorf("CreatedAt changed: %d -> %d", r.CreatedAt, updated.CreatedAt)
	}

	if ids := env.svc.Index().Query("cat"); len(ids) != 0 {
		t.Errorf("Query(cat) = %v, want empty after edit", ids)
	}
	if ids := env.svc.Index().Query("park"); len(ids) != 1 {
		t.Errorf("Query(park) = %v, want [%s]", ids, r.ID)
	}

	// Pending alarm payload follows the edit
	reqs := env.timers.Requests()
	last := reqs[len(reqs)-1]
	if last.ID != sched.Alarm.ID || last.Payload.Comment != "new" || !reflect.DeepEqual(last.Payload.Tags, []string{"dog", "park"}) {
		t.Errorf("last request = %+v, want refreshed payload for %s", last, sched.Alarm.ID)
	}
}

func TestUpdate_CommentOnlyKeepsTags(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	r, _ := env.svc.CreateTaggedRecord(ctx, CreateInput{PhotoRef: "p", RawTags: "cat"})
	updated, err := env.svc.Update(ctx, UpdateInput{ID: r.ID, Comment: stringPtr("hi")})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !reflect.DeepEqual(updated.Tags, []string{"cat"}) {
		t.Errorf("Tags = %v, want [cat]", updated.Tags)
	}

	// Clearing tags with an empty list is allowed
	updated, err = env.svc.Update(ctx, UpdateInput{ID: r.ID, Tags: &[]string{}})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(updated.Tags) != 0 {
		t.Errorf("Tags = %v, want empty", updated.Tags)
	}
}

func TestUpdate_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.Update(ctx, UpdateInput{ID: "x"}); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("Update(no fields) error = %v, want VALIDATION_ERROR", err)
	}
	if _, err := env.svc.Update(ctx, UpdateInput{ID: "missing", Comment: stringPtr("c")}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want NOT_FOUND", err)
	}
	env.svc.cfg.CommentMaxChars = 2
	if _, err := env.svc.Update(ctx, UpdateInput{ID: "x", Comment: stringPtr("long")}); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("Update(long comment) error = %v, want VALIDATION_ERROR", err)
	}
}

func TestDeleteRecord_Cascade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	r, _ := env.svc.CreateTaggedRecord(ctx, CreateInput{PhotoRef: "p", RawTags: "cat, dog"})
	sched, err := env.svc.ScheduleAlarm(ctx, ScheduleInput{RecordID: r.ID, In: "1h"})
	if err != nil {
		t.Fatalf("ScheduleAlarm failed: %v", err)
	}

	out, err := env.svc.DeleteRecord(ctx, DeleteInput{ID: r.ID})
	if err != nil {
		t.Fatalf("DeleteRecord failed: %v", err)
	}
	if !out.Deleted || !reflect.DeepEqual(out.CancelledAlarms, []string{sched.Alarm.ID}) {
		t.Errorf("DeleteRecord = %+v", out)
	}

	// No pending alarm references the record
	pending, err := db.ListAlarms(ctx, env.db, db.AlarmFilter{RecordID: r.ID, Status: record.StatusPending})
	if err != nil || len(pending) != 0 {
		t.Errorf("pending alarms after delete = %v, %v", pending, err)
	}
	// Platform timer was cancelled
	if env.timers.IsArmed(sched.Alarm.ID) {
		t.Error("platform timer still armed after delete")
	}
	// Absent from every tag it held
	for _, tag := range []string{"cat", "dog"} {
		if ids := env.svc.Index().Query(tag); len(ids) != 0 {
			t.Errorf("Query(%s) = %v, want empty", tag, ids)
		}
	}

	// A late fire for the deleted alarm is discarded
	env.timers.Fire(ctx, sched.Alarm.ID)
	if len(env.feed.Recent()) != 0 {
		t.Errorf("deleted alarm produced events: %+v", env.feed.Recent())
	}
}

func TestDeleteRecord_NotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.DeleteRecord(context.Background(), DeleteInput{ID: "missing"})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("DeleteRecord error = %v, want NOT_FOUND", err)
	}
}

func TestSearchByTag(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cat, _ := env.svc.CreateTaggedRecord(ctx, CreateInput{PhotoRef: "p1", RawTags: "cat"})
	both, _ := env.svc.CreateTaggedRecord(ctx, CreateInput{PhotoRef: "p2", RawTags: "cat, catnip"})
	_, _ = env.svc.CreateTaggedRecord(ctx, CreateInput{PhotoRef: "p3", RawTags: "dog"})

	out, err := env.svc.SearchByTag(ctx, SearchInput{Tag: " cat "})
	if err != nil {
		t.Fatalf("SearchByTag failed: %v", err)
	}
	if out.Tag != "cat" || len(out.Items) != 2 {
		t.Fatalf("SearchByTag(cat) = %+v", out)
	}
	// Newest first
	if out.Items[0].ID != both.ID || out.Items[1].ID != cat.ID {
		t.Errorf("order = [%s %s], want [%s %s]", out.Items[0].ID, out.Items[1].ID, both.ID, cat.ID)
	}

	prefix, _ := env.svc.SearchByTag(ctx, SearchInput{Tag: "catn", Prefix: true})
	if len(prefix.Items) != 1 || prefix.Items[0].ID != both.ID {
		t.Errorf("prefix search = %+v", prefix.Items)
	}

	paged, _ := env.svc.SearchByTag(ctx, SearchInput{Tag: "cat", Limit: 1, Offset: 1})
	if len(paged.Items) != 1 || paged.Items[0].ID != cat.ID || paged.Pagination.HasMore {
		t.Errorf("paged search = %+v", paged)
	}
	beyond, _ := env.svc.SearchByTag(ctx, SearchInput{Tag: "cat", Offset: 10})
	if beyond.Items == nil || len(beyond.Items) != 0 {
		t.Errorf("offset beyond total = %#v, want empty slice", beyond.Items)
	}

	if _, err := env.svc.SearchByTag(ctx, SearchInput{Tag: "  "}); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("SearchByTag(blank) error = %v, want VALIDATION_ERROR", err)
	}
}

func TestSuggest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _ = env.svc.CreateTaggedRecord(ctx, CreateInput{PhotoRef: "p", RawTags: "birthday, garden"})

	out, err := env.svc.Suggest(ctx, SuggestInput{Term: "bdy"})
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if len(out.Suggestions) == 0 || out.Suggestions[0].Tag != "birthday" {
		t.Errorf("Suggest = %+v", out)
	}
	if _, err := env.svc.Suggest(ctx, SuggestInput{}); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("Suggest(empty) error = %v, want VALIDATION_ERROR", err)
	}

	all := env.svc.Tags(ctx)
	var names []string
	for _, s := range all.Tags {
		names = append(names, s.Tag)
	}
	if strings.Join(names, ",") != "birthday,garden" {
		t.Errorf("Tags = %v", names)
	}
}

func TestUpdateDeleteRace_IndexConsistent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		r, err := env.svc.CreateTaggedRecord(ctx, CreateInput{PhotoRef: "photos://race", RawTags: "before"})
		if err != nil {
			t.Fatalf("CreateTaggedRecord failed: %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			// NOT_FOUND when the delete wins
			_, _ = env.svc.Update(ctx, UpdateInput{ID: r.ID, RawTags: stringPtr("after")})
		}()
		go func() {
			defer wg.Done()
			if _, err := env.svc.DeleteRecord(ctx, DeleteInput{ID: r.ID}); err != nil {
				t.Errorf("DeleteRecord failed: %v", err)
			}
		}()
		wg.Wait()
	}

	if n := env.svc.Index().Len(); n != 0 {
		t.Errorf("index holds %d records after every record was deleted", n)
	}
	if tags := env.svc.Index().Tags(); len(tags) != 0 {
		t.Errorf("Tags() = %+v, want empty", tags)
	}
}

func TestIndexIfPresent_SkipsDeletedRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	gone := &record.TaggedRecord{ID: "01GONE", PhotoRef: "p", Tags: []string{"ghost"}}
	if err := env.svc.indexIfPresent(ctx, gone); err != nil {
		t.Fatalf("indexIfPresent failed: %v", err)
	}
	if got := env.svc.Index().Query("ghost"); len(got) != 0 {
		t.Errorf("Query(ghost) = %v, want empty", got)
	}

	r, _ := env.svc.CreateTaggedRecord(ctx, CreateInput{PhotoRef: "p", RawTags: "kept"})
	env.svc.Index().Remove(r.ID)
	if err := env.svc.indexIfPresent(ctx, r); err != nil {
		t.Fatalf("indexIfPresent failed: %v", err)
	}
	if got := env.svc.Index().Query("kept"); len(got) != 1 {
		t.Errorf("Query(kept) = %v, want [%s]", got, r.ID)
	}
}

func TestSearchByTag_StaleIndexEntryFiltered(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	r, _ := env.svc.CreateTaggedRecord(ctx, CreateInput{PhotoRef: "p", RawTags: "cat"})
	// Index still believes the record carries an old tag
	env.svc.Index().Add(&record.TaggedRecord{ID: r.ID, Tags: []string{"cat", "kitten"}})

	out, err := env.svc.SearchByTag(ctx, SearchInput{Tag: "kitten"})
	if err != nil {
		t.Fatalf("SearchByTag failed: %v", err)
	}
	if len(out.Items) != 0 || out.Pagination.Total != 0 {
		t.Errorf("SearchByTag(kitten) = %+v, want no items", out)
	}
}
