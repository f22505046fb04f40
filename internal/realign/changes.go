package realign

import (
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/ppiankov/textio/internal/model"
)

// Changes derives located edit suggestions that turn original into rewrite.
// Pure insertions are attached to the neighbouring word so every change has a
// non-empty original span.
func Changes(original, rewrite string) []model.Suggestion {
	if original == rewrite {
		return nil
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(original, rewrite, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	src := []rune(original)
	var changes []model.Suggestion
	pos := 0 // rune offset in original

	for i := 0; i < len(diffs); i++ {
		d := diffs[i]
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			pos += utf8.RuneCountInString(d.Text)

		case diffmatchpatch.DiffDelete:
			n := utf8.RuneCountInString(d.Text)
			replacement := ""
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffInsert {
				replacement = diffs[i+1].Text
				i++
			}
			changes = append(changes, model.Suggestion{Original: d.Text, Replacement: replacement}.At(pos, pos+n))
			pos += n

		case diffmatchpatch.DiffInsert:
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffDelete {
				del := diffs[i+1].Text
				n := utf8.RuneCountInString(del)
				changes = append(changes, model.Suggestion{Original: del, Replacement: d.Text}.At(pos, pos+n))
				pos += n
				i++
				continue
			}
			if s, ok := anchorInsertion(src, pos, d.Text); ok {
				changes = append(changes, s)
			}
		}
	}
	units := unitOffsets(src)
	for i, c := range changes {
		changes[i] = c.At(units[*c.Start], units[*c.End])
	}
	return changes
}

// anchorInsertion turns an insertion at pos into a replacement of the word
// before it, or of the word after it when pos is at the start
func anchorInsertion(src []rune, pos int, inserted string) (model.Suggestion, bool) {
	if len(src) == 0 {
		return model.Suggestion{}, false
	}

	if pos > 0 {
		start := pos
		for start > 0 && unicode.IsSpace(src[start-1]) {
			start--
		}
		for start > 0 && !unicode.IsSpace(src[start-1]) {
			start--
		}
		word := string(src[start:pos])
		return model.Suggestion{Original: word, Replacement: word + inserted}.At(start, pos), true
	}

	end := 0
	for end < len(src) && !unicode.IsSpace(src[end]) {
		end++
	}
	for end < len(src) && unicode.IsSpace(src[end]) {
		end++
	}
	if end == 0 {
		return model.Suggestion{}, false
	}
	word := string(src[:end])
	return model.Suggestion{Original: word, Replacement: inserted + word}.At(0, end), true
}

// Apply rewrites text with located, non-overlapping suggestions.
// Offsets are UTF-16 code units.
func Apply(text string, suggestions []model.Suggestion) string {
	src := utf16.Encode([]rune(text))
	var b strings.Builder
	cursor := 0
	for _, s := range suggestions {
		if !s.Located() || *s.Start < cursor || *s.End > len(src) {
			continue
		}
		b.WriteString(string(utf16.Decode(src[cursor:*s.Start])))
		b.WriteString(s.Replacement)
		cursor = *s.End
	}
	b.WriteString(string(utf16.Decode(src[cursor:])))
	return b.String()
}
