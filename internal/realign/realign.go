// Package realign maps proposed edits back onto offsets in the source text.
//
// Offsets count UTF-16 code units, the unit JavaScript string indexes and the
// grammar checker use, so a character outside the BMP spans two. When several suggestions share the
// same original string, the n-th one is placed on the n-th occurrence so two
// edits are never mapped onto the same span.
package realign

import (
	"strings"
	"unicode/utf16"

	"github.com/ppiankov/textio/internal/model"
)

// Batch locates suggestions and drops the ones that cannot be placed
func Batch(text string, suggestions []model.Suggestion) []model.Suggestion {
	located := locate(text, suggestions)
	out := make([]model.Suggestion, 0, len(located))
	for _, s := range located {
		if s.Located() {
			out = append(out, s)
		}
	}
	return out
}

// Inline locates suggestions and keeps unplaceable ones with null offsets
func Inline(text string, suggestions []model.Suggestion) []model.Suggestion {
	return locate(text, suggestions)
}

func locate(text string, suggestions []model.Suggestion) []model.Suggestion {
	seen := make(map[string]int, len(suggestions))
	out := make([]model.Suggestion, 0, len(suggestions))

	for _, s := range suggestions {
		n := seen[s.Original]
		seen[s.Original] = n + 1

		idx := nthIndex(text, s.Original, n)
		if idx < 0 {
			out = append(out, s.Unlocated())
			continue
		}
		start := unitLen(text[:idx])
		out = append(out, s.At(start, start+unitLen(s.Original)))
	}
	return out
}

// nthIndex returns the byte index of the n-th (zero-based) occurrence of sub.
// Each search resumes one byte past the previous match start, so occurrences
// may overlap. Empty sub never matches.
func nthIndex(text, sub string, n int) int {
	if sub == "" {
		return -1
	}
	pos := -1
	from := 0
	for i := 0; i <= n; i++ {
		if from > len(text) {
			return -1
		}
		idx := strings.Index(text[from:], sub)
		if idx < 0 {
			return -1
		}
		pos = from + idx
		from = pos + 1
	}
	return pos
}

// unitLen returns the length of s in UTF-16 code units
func unitLen(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// unitOffsets maps each rune boundary of src to its UTF-16 offset
func unitOffsets(src []rune) []int {
	out := make([]int, len(src)+1)
	for i, r := range src {
		out[i+1] = out[i] + utf16.RuneLen(r)
	}
	return out
}
