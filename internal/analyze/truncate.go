package analyze

import (
	"unicode/utf8"

	"github.com/sells-group/paper-cli/internal/model"
)

// DefaultMaxChars is the text budget when none is configured.
const DefaultMaxChars = 30000

// TruncationMarker separates the kept head and tail of a truncated body.
const TruncationMarker = "\n\n[...text truncated...]\n\n"

const sectionSep = "\n\n"

// Truncate renders t for the prompt within maxChars runes. The title,
// authors and abstract come first and are capped at half the budget; the
// rest is split 80/20 between the start and the end of the body so both the
// introduction and the conclusions survive.
func Truncate(t *model.ExtractedText, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	header := (&model.ExtractedText{Title: t.Title, Author: t.Author, Abstract: t.Abstract}).FullText()
	body := t.Body

	full := joinNonEmpty(header, body)
	if utf8.RuneCountInString(full) <= maxChars {
		return full
	}

	header = firstRunes(header, maxChars/2)
	remaining := maxChars - utf8.RuneCountInString(header)
	if header != "" {
		remaining -= utf8.RuneCountInString(sectionSep)
	}
	if remaining <= 0 || body == "" {
		return firstRunes(header, maxChars)
	}
	return joinNonEmpty(header, TruncateString(body, remaining))
}

// TruncateString cuts s to maxChars runes, keeping the first 80% and the
// last 20% of the budget around TruncationMarker. Applying it twice yields
// the same result as applying it once.
func TruncateString(s string, maxChars int) string {
	n := utf8.RuneCountInString(s)
	if n <= maxChars {
		return s
	}
	budget := maxChars - utf8.RuneCountInString(TruncationMarker)
	if budget <= 0 {
		return firstRunes(s, maxChars)
	}
	head := budget * 8 / 10
	tail := budget - head
	return firstRunes(s, head) + TruncationMarker + lastRunes(s, tail)
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + sectionSep + b
	}
}

func firstRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func lastRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	total := utf8.RuneCountInString(s)
	if n >= total {
		return s
	}
	skip := total - n
	i := 0
	for pos := range s {
		if i == skip {
			return s[pos:]
		}
		i++
	}
	return ""
}
