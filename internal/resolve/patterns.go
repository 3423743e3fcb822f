package resolve

import (
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Pattern rewrites a DOI matching Match into a publisher PDF URL. URL may
// use $1-style submatch references and {doi} for the whole DOI.
type Pattern struct {
	Name  string
	Match *regexp.Regexp
	URL   string
}

// Apply returns the candidate URL for doi, or false when the pattern does
// not match.
func (p Pattern) Apply(doi string) (string, bool) {
	idx := p.Match.FindStringSubmatchIndex(doi)
	if idx == nil {
		return "", false
	}
	tpl := strings.ReplaceAll(p.URL, "{doi}", doi)
	return string(p.Match.ExpandString(nil, tpl, doi, idx)), true
}

// DefaultPatterns returns the built-in publisher rewrites.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:  "arxiv",
			Match: regexp.MustCompile(`(?i)^10\.48550/arxiv\.(\d{4}\.\d{4,5}(?:v\d+)?)$`),
			URL:   "https://arxiv.org/pdf/${1}.pdf",
		},
		{
			Name:  "biorxiv",
			Match: regexp.MustCompile(`^10\.1101/(\d{4}\.\d{2}\.\d{2}\.\d+)$`),
			URL:   "https://www.biorxiv.org/content/{doi}v1.full.pdf",
		},
		{
			Name:  "plos",
			Match: regexp.MustCompile(`(?i)^10\.1371/journal\.p[a-z]+\.\d+$`),
			URL:   "https://journals.plos.org/plosone/article/file?id={doi}&type=printable",
		},
		{
			Name:  "peerj",
			Match: regexp.MustCompile(`^10\.7717/peerj\.(\d+)$`),
			URL:   "https://peerj.com/articles/${1}.pdf",
		},
	}
}

type patternFile struct {
	// Replace drops the built-in table instead of extending it.
	Replace  bool `yaml:"replace"`
	Patterns []struct {
		Name  string `yaml:"name"`
		Match string `yaml:"match"`
		URL   string `yaml:"url"`
	} `yaml:"patterns"`
}

// LoadPatterns reads a YAML pattern table. Entries are tried before the
// built-in table, which they replace entirely when replace is true. An entry
// named like a built-in pattern overrides it.
func LoadPatterns(path string) ([]Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "resolve: read patterns file %s", path)
	}

	var pf patternFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, eris.Wrapf(err, "resolve: parse patterns file %s", path)
	}

	var out []Pattern
	names := make(map[string]struct{})
	for i, p := range pf.Patterns {
		if p.Match == "" || p.URL == "" {
			return nil, eris.Errorf("resolve: pattern %d in %s needs match and url", i, path)
		}
		re, err := regexp.Compile(p.Match)
		if err != nil {
			return nil, eris.Wrapf(err, "resolve: compile pattern %q", p.Name)
		}
		out = append(out, Pattern{Name: p.Name, Match: re, URL: p.URL})
		names[p.Name] = struct{}{}
	}

	if !pf.Replace {
		for _, p := range DefaultPatterns() {
			if _, ok := names[p.Name]; !ok {
				out = append(out, p)
			}
		}
	}
	return out, nil
}
