// Package index maintains the in-memory inverted index from tag to record ids.
//
// The index is derived state: the Record Store is authoritative and the index
// can be rebuilt from it at any time (see Rebuild).
package index

import (
	"sort"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"

	"github.com/hpungsan/phototag/internal/record"
	"github.com/hpungsan/phototag/internal/tags"
)

// Index maps normalized tag tokens to the ids of records carrying them.
// It is safe for concurrent use.
type Index struct {
	mu    sync.RWMutex
	byTag map[string]map[string]struct{}
	byID  map[string][]string // record id -> tags it was indexed under
}

// New returns an empty index.
func New() *Index {
	return &Index{
		byTag: make(map[string]map[string]struct{}),
		byID:  make(map[string][]string),
	}
}

// Add indexes r under each of its tags. Re-adding a record replaces its
// previous entries, so edits only need a single Add.
func (ix *Index) Add(r *record.TaggedRecord) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.removeLocked(r.ID)

	indexed := make([]string, 0, len(r.Tags))
	for _, t := range r.Tags {
		tok := tags.Token(t)
		if tok == "" {
			continue
		}
		ids, ok := ix.byTag[tok]
		if !ok {
			ids = make(map[string]struct{})
			ix.byTag[tok] = ids
		}
		ids[r.ID] = struct{}{}
		indexed = append(indexed, tok)
	}
	ix.byID[r.ID] = indexed
}

// Remove drops every entry for recordID. Unknown ids are ignored.
func (ix *Index) Remove(recordID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(recordID)
}

func (ix *Index) removeLocked(recordID string) {
	for _, tok := range ix.byID[recordID] {
		ids := ix.byTag[tok]
		delete(ids, recordID)
		if len(ids) == 0 {
			delete(ix.byTag, tok)
		}
	}
	delete(ix.byID, recordID)
}

// Query returns the ids of records tagged exactly tag, sorted.
func (ix *Index) Query(tag string) []string {
	tok := tags.Token(tag)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return sortedKeys(ix.byTag[tok])
}

// QueryPrefix returns the ids of records with at least one tag starting
// with prefix, sorted. An empty prefix matches nothing.
func (ix *Index) QueryPrefix(prefix string) []string {
	prefix = tags.Token(prefix)
	if prefix == "" {
		return []string{}
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	union := make(map[string]struct{})
	for tok, ids := range ix.byTag {
		if !strings.HasPrefix(tok, prefix) {
			continue
		}
		for id := range ids {
			union[id] = struct{}{}
		}
	}
	return sortedKeys(union)
}

// Suggestion is a known tag matched by Suggest.
type Suggestion struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
	Score int    `json:"score"`
}

// Suggest fuzzy-matches term against every indexed tag and returns the best
// matches, highest score first. limit <= 0 means no limit.
func (ix *Index) Suggest(term string, limit int) []Suggestion {
	term = tags.Token(term)
	if term == "" {
		return []Suggestion{}
	}

	ix.mu.RLock()
	known := make([]string, 0, len(ix.byTag))
	counts := make(map[string]int, len(ix.byTag))
	for tok, ids := range ix.byTag {
		known = append(known, tok)
		counts[tok] = len(ids)
	}
	ix.mu.RUnlock()

	// Stable input order keeps equal-score ties deterministic
	sort.Strings(known)

	matches := fuzzy.Find(term, known)
	out := make([]Suggestion, 0, len(matches))
	for _, m := range matches {
		out = append(out, Suggestion{Tag: m.Str, Count: counts[m.Str], Score: m.Score})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Tags returns every indexed tag with its record count, sorted by tag.
func (ix *Index) Tags() []Suggestion {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]Suggestion, 0, len(ix.byTag))
	for tok, ids := range ix.byTag {
		out = append(out, Suggestion{Tag: tok, Count: len(ids)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// Len returns the number of indexed records.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byID)
}

// Rebuild discards the current contents and indexes records from scratch.
func (ix *Index) Rebuild(records []record.TaggedRecord) {
	fresh := New()
	for i := range records {
		fresh.Add(&records[i])
	}

	ix.mu.Lock()
	ix.byTag = fresh.byTag
	ix.byID = fresh.byID
	ix.mu.Unlock()
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
