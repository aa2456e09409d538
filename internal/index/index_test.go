package index

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/hpungsan/phototag/internal/record"
)

func rec(id string, ts ...string) *record.TaggedRecord {
	return &record.TaggedRecord{ID: id, PhotoRef: "photos://" + id, Tags: ts}
}

func TestQuery_Exact(t *testing.T) {
	ix := New()
	ix.Add(rec("b", "cat", "dog"))
	ix.Add(rec("a", "cat"))
	ix.Add(rec("c", "Cat"))

	if got := ix.Query("cat"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Query(cat) = %v, want [a b]", got)
	}
	if got := ix.Query(" cat "); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Query(' cat ') = %v, want [a b] (token is trimmed)", got)
	}
	if got := ix.Query("Cat"); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("Query(Cat) = %v, want [c]", got)
	}
	if got := ix.Query("ca"); len(got) != 0 {
		t.Errorf("Query(ca) = %v, want empty", got)
	}
	if got := ix.Query("bird"); got == nil {
		t.Error("Query(bird) returned nil, want empty slice")
	}
}

func TestAdd_ReplacesPreviousEntries(t *testing.T) {
	ix := New()
	ix.Add(rec("a", "cat", "dog"))
	ix.Add(rec("a", "dog", "park"))

	if got := ix.Query("cat"); len(got) != 0 {
		t.Errorf("Query(cat) = %v, want empty after re-add", got)
	}
	if got := ix.Query("park"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("Query(park) = %v, want [a]", got)
	}
	if ix.Len() != 1 {
		t.Errorf("Len = %d, want 1", ix.Len())
	}
}

func TestRemove(t *testing.T) {
	ix := New()
	ix.Add(rec("a", "cat", "dog"))
	ix.Add(rec("b", "dog"))

	ix.Remove("a")
	ix.Remove("missing")

	if got := ix.Query("cat"); len(got) != 0 {
		t.Errorf("Query(cat) = %v, want empty", got)
	}
	if got := ix.Query("dog"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("Query(dog) = %v, want [b]", got)
	}
	for _, s := range ix.Tags() {
		if s.Tag == "cat" {
			t.Errorf("tag %q still listed after its last record was removed", s.Tag)
		}
	}
}

func TestQueryPrefix(t *testing.T) {
	ix := New()
	ix.Add(rec("a", "vet visit"))
	ix.Add(rec("b", "vet", "dog"))
	ix.Add(rec("c", "veteran"))
	ix.Add(rec("d", "avet"))

	if got := ix.QueryPrefix("vet"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("QueryPrefix(vet) = %v, want [a b c]", got)
	}
	if got := ix.QueryPrefix(""); len(got) != 0 {
		t.Errorf("QueryPrefix('') = %v, want empty", got)
	}
}

func TestSuggest(t *testing.T) {
	ix := New()
	ix.Add(rec("a", "birthday", "beach"))
	ix.Add(rec("b", "birthday"))
	ix.Add(rec("c", "garden"))

	got := ix.Suggest("bday", 5)
	if len(got) == 0 || got[0].Tag != "birthday" {
		t.Fatalf("Suggest(bday) = %+v, want birthday first", got)
	}
	if got[0].Count != 2 {
		t.Errorf("Count = %d, want 2", got[0].Count)
	}
	for _, s := range got {
		if s.Tag == "garden" {
			t.Errorf("garden should not match bday: %+v", got)
		}
	}

	if got := ix.Suggest("b", 1); len(got) != 1 {
		t.Errorf("Suggest limit: len = %d, want 1", len(got))
	}
	if got := ix.Suggest("  ", 5); len(got) != 0 {
		t.Errorf("Suggest(blank) = %+v, want empty", got)
	}
}

func TestTags(t *testing.T) {
	ix := New()
	ix.Add(rec("a", "dog", "cat"))
	ix.Add(rec("b", "dog"))

	want := []Suggestion{{Tag: "cat", Count: 1}, {Tag: "dog", Count: 2}}
	if got := ix.Tags(); !reflect.DeepEqual(got, want) {
		t.Errorf("Tags = %+v, want %+v", got, want)
	}
}

// Rebuilding from the surviving records after an arbitrary sequence of
// creates, edits and deletes yields the same answers as incremental upkeep.
func TestRebuild_MatchesIncremental(t *testing.T) {
	vocab := []string{"cat", "dog", "beach", "vet", "park", "sunset"}
	rng := rand.New(rand.NewSource(42))

	incremental := New()
	live := map[string]*record.TaggedRecord{}
	var order []string

	for step := 0; step < 500; step++ {
		switch op := rng.Intn(3); {
		case op < 2 || len(order) == 0:
			// Create or edit
			var id string
			if op == 1 && len(order) > 0 {
				id = order[rng.Intn(len(order))]
			} else {
				id = fmt.Sprintf("r%03d", step)
				order = append(order, id)
			}
			var ts []string
			for _, v := range vocab {
				if rng.Intn(3) == 0 {
					ts = append(ts, v)
				}
			}
			r := rec(id, ts...)
			live[id] = r
			incremental.Add(r)
		default:
			i := rng.Intn(len(order))
			id := order[i]
			order = append(order[:i], order[i+1:]...)
			delete(live, id)
			incremental.Remove(id)
		}
	}

	var all []record.TaggedRecord
	for _, id := range order {
		all = append(all, *live[id])
	}
	rebuilt := New()
	rebuilt.Add(rec("stale", "cat"))
	rebuilt.Rebuild(all)

	for _, tag := range append(vocab, "stale", "missing") {
		if a, b := incremental.Query(tag), rebuilt.Query(tag); !reflect.DeepEqual(a, b) {
			t.Errorf("Query(%q): incremental %v, rebuilt %v", tag, a, b)
		}
	}
	if !reflect.DeepEqual(incremental.Tags(), rebuilt.Tags()) {
		t.Errorf("Tags differ: incremental %+v, rebuilt %+v", incremental.Tags(), rebuilt.Tags())
	}
	if incremental.Len() != rebuilt.Len() {
		t.Errorf("Len: incremental %d, rebuilt %d", incremental.Len(), rebuilt.Len())
	}
}
