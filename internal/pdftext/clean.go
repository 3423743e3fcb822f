package pdftext

import (
	"regexp"
	"strings"
)

// edgeLines is how many non-empty lines at the top and bottom of each page
// are candidates for running headers and footers.
const edgeLines = 3

var ligatures = strings.NewReplacer(
	"ﬀ", "ff",
	"ﬁ", "fi",
	"ﬂ", "fl",
	"ﬃ", "ffi",
	"ﬄ", "ffl",
	"\u00ad", "",
)

var (
	pageNumberLine = regexp.MustCompile(`(?i)^\s*(?:[-–—]\s*)?(?:page\s+)?\d{1,4}(?:\s*(?:of|/)\s*\d{1,4})?(?:\s*[-–—])?\s*$`)
	digits         = regexp.MustCompile(`\d+`)
	spaces         = regexp.MustCompile(`[ \t]+`)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
)

// cleanPages normalizes raw page text and joins it into one document.
// Running headers and footers are those edge lines that repeat, after digit
// normalization, on at least repeatMin pages.
func cleanPages(pages []string, repeatMin int) string {
	split := make([][]string, len(pages))
	for i, p := range pages {
		p = ligatures.Replace(p)
		lines := strings.Split(strings.ReplaceAll(p, "\r\n", "\n"), "\n")
		for j, l := range lines {
			lines[j] = strings.TrimRight(l, " \t\r")
		}
		split[i] = lines
	}

	repeated := repeatedEdgeLines(split, repeatMin)

	var out []string
	for _, lines := range split {
		edges := edgeIndexes(lines)
		var kept []string
		for j, l := range lines {
			if pageNumberLine.MatchString(l) {
				continue
			}
			if _, isEdge := edges[j]; isEdge {
				if _, ok := repeated[edgeKey(l)]; ok {
					continue
				}
			}
			kept = append(kept, l)
		}
		out = append(out, strings.Join(kept, "\n"))
	}

	text := strings.Join(out, "\n\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// edgeIndexes returns the indexes of the first and last edgeLines non-empty
// lines of a page.
func edgeIndexes(lines []string) map[int]struct{} {
	idx := make(map[int]struct{})
	n := 0
	for i := 0; i < len(lines) && n < edgeLines; i++ {
		if strings.TrimSpace(lines[i]) != "" {
			idx[i] = struct{}{}
			n++
		}
	}
	n = 0
	for i := len(lines) - 1; i >= 0 && n < edgeLines; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			idx[i] = struct{}{}
			n++
		}
	}
	return idx
}

func edgeKey(line string) string {
	s := strings.TrimSpace(line)
	s = digits.ReplaceAllString(s, "#")
	s = spaces.ReplaceAllString(s, " ")
	return strings.ToLower(s)
}

func repeatedEdgeLines(pages [][]string, repeatMin int) map[string]struct{} {
	out := make(map[string]struct{})
	if repeatMin <= 0 || len(pages) < repeatMin {
		return out
	}

	counts := make(map[string]int)
	for _, lines := range pages {
		seen := make(map[string]struct{})
		for i := range edgeIndexes(lines) {
			k := edgeKey(lines[i])
			if k == "" {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			counts[k]++
		}
	}
	for k, c := range counts {
		if c >= repeatMin {
			out[k] = struct{}{}
		}
	}
	return out
}
