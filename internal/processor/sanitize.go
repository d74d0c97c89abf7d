package processor

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Clean strips null bytes and non-printable control characters while keeping
// newlines and tabs, so splitting sees the document as the author wrote it.
// Invalid UTF-8 sequences are replaced with a space to keep words separated.
func Clean(s string) string {
	if s == "" {
		return s
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, " ")
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == 0:
			continue
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case unicode.IsControl(r):
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// summarize produces the storage-efficient text summary kept alongside
// chunk metadata: the first sentence, capped.
func summarize(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexAny(text, ".!?"); idx > 0 && idx+1 < len(text) {
		text = text[:idx+1]
	}
	if len(text) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return strings.TrimSpace(text)
}
