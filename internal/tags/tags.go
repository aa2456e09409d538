// Package tags turns free-text tag input into the canonical ordered tag set
// stored on a record.
package tags

import "strings"

// Separator splits raw tag input.
const Separator = ","

// Parse splits raw comma-separated input into an ordered set of tags:
// 1. Split on ","
// 2. Trim leading/trailing whitespace from each piece
// 3. Drop empty pieces
// 4. Drop case-sensitive duplicates, keeping the first occurrence
//
// Parse never fails; degenerate input yields an empty (non-nil) slice.
func Parse(raw string) []string {
	return Clean(strings.Split(raw, Separator))
}

// Clean applies Parse's trimming and de-duplication rules to an already
// split list, such as a JSON array of tags.
func Clean(pieces []string) []string {
	seen := make(map[string]bool, len(pieces))
	result := make([]string, 0, len(pieces))
	for _, p := range pieces {
		t := Token(p)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		result = append(result, t)
	}
	return result
}

// Token normalizes a single tag for storage or lookup.
func Token(s string) string {
	return strings.TrimSpace(s)
}

// Join renders tags back into the raw input form.
func Join(ts []string) string {
	return strings.Join(ts, Separator+" ")
}
