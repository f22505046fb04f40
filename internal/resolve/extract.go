package resolve

import (
	"strings"
	"unicode"
)

const fence = "```"

// fencedBlocks returns the body of every ``` block in s, in order.
// An opening line such as ```json has its language tag removed.
// An unterminated final block is ignored.
func fencedBlocks(s string) []string {
	var blocks []string
	for {
		open := strings.Index(s, fence)
		if open < 0 {
			return blocks
		}
		rest := s[open+len(fence):]

		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && isLanguageTag(rest[:nl]) {
			rest = rest[nl+1:]
		}

		end := strings.Index(rest, fence)
		if end < 0 {
			return blocks
		}
		blocks = append(blocks, strings.TrimSpace(rest[:end]))
		s = rest[end+len(fence):]
	}
}

// isLanguageTag reports whether the text after an opening fence is a bare tag like "json"
func isLanguageTag(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	for _, r := range s {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '+') {
			return false
		}
	}
	return true
}

// recoverField extracts the string value of "key" from otherwise broken JSON.
// It scans to the first unescaped quote, or to the end of input when the
// value is truncated, and unescapes \n, \" and \\ only.
func recoverField(s, key string) (string, bool) {
	needle := `"` + key + `"`
	for offset := 0; offset < len(s); {
		idx := strings.Index(s[offset:], needle)
		if idx < 0 {
			return "", false
		}
		pos := offset + idx + len(needle)
		offset = pos

		pos = skipSpace(s, pos)
		if pos >= len(s) || s[pos] != ':' {
			continue
		}
		pos = skipSpace(s, pos+1)
		if pos >= len(s) || s[pos] != '"' {
			continue
		}

		value := scanString(s[pos+1:])
		if strings.TrimSpace(value) == "" {
			continue
		}
		return value, true
	}
	return "", false
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

func scanString(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			return b.String()
		case c == '\\' && i+1 < len(s):
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				b.WriteByte(c)
				b.WriteByte(s[i+1])
			}
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
