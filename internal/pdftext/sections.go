package pdftext

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	abstractHeading = regexp.MustCompile(`(?im)^[ \t]*abstract\b[ \t]*[:.\-–—]?[ \t]*`)
	nextHeading     = regexp.MustCompile(`(?im)^[ \t]*(?:(?:keywords?|key[ \t]+words|index[ \t]+terms|(?:1|I)\.?[ \t]+introduction|introduction)\b|(?-i:1\.?[ \t]+\p{Lu}))`)
	keywordsLine    = regexp.MustCompile(`(?im)^[ \t]*(?:keywords?|key[ \t]+words|index[ \t]+terms)\b.*$`)
	junkTitle       = regexp.MustCompile(`(?i)^(?:untitled|microsoft word\b|.*\.(?:pdf|docx?|tex|dvi)$)`)
)

type sections struct {
	title    string
	abstract string
	body     string
	other    string
}

// splitSections finds the title, abstract, keyword line and body of a
// cleaned document. infoTitle is preferred as the title when meaningful;
// otherwise the title is the first line longer than five runes, not simply
// the first line, so stray page numbers and running heads are skipped. The
// ingest skip policy matches duplicates on this title before the model runs.
func splitSections(text, infoTitle string) sections {
	var s sections

	s.title = strings.TrimSpace(infoTitle)
	if !meaningfulTitle(s.title) {
		s.title = firstLine(text)
	}

	if m := keywordsLine.FindString(text); m != "" {
		s.other = strings.TrimSpace(m)
	}

	body := text
	if loc := abstractHeading.FindStringIndex(text); loc != nil {
		rest := text[loc[1]:]
		end := len(rest)
		if next := nextHeading.FindStringIndex(rest); next != nil {
			end = next[0]
		} else if para := strings.Index(rest, "\n\n"); para >= 0 {
			end = para
		}
		s.abstract = strings.TrimSpace(rest[:end])
		body = rest[end:]
	}
	if s.other != "" {
		body = strings.Replace(body, s.other, "", 1)
	}
	s.body = strings.TrimSpace(blankRuns.ReplaceAllString(body, "\n\n"))
	return s
}

func meaningfulTitle(t string) bool {
	return utf8.RuneCountInString(t) > 3 && !junkTitle.MatchString(t)
}

// firstLine returns the first line longer than five characters.
func firstLine(text string) string {
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if utf8.RuneCountInString(l) > 5 {
			return l
		}
	}
	return ""
}
