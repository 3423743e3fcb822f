// Package model holds the types shared by every stage of the ingestion pipeline.
package model

import (
	"net/url"
	"regexp"
	"strings"
)

// ReferenceKind identifies how a user-supplied reference should be resolved.
type ReferenceKind string

const (
	ReferenceLocalPath    ReferenceKind = "path"
	ReferenceWebURL       ReferenceKind = "url"
	ReferencePersistentID ReferenceKind = "doi"
)

// Reference is a user-supplied pointer to a paper plus the provenance label
// the user declared for it.
type Reference struct {
	Kind   ReferenceKind `json:"kind"`
	Raw    string        `json:"raw"`
	Source string        `json:"source"`
}

// NewReference builds a reference of an explicit kind.
func NewReference(kind ReferenceKind, raw, source string) Reference {
	return Reference{Kind: kind, Raw: strings.TrimSpace(raw), Source: strings.TrimSpace(source)}
}

var (
	doiPattern   = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)
	arxivPattern = regexp.MustCompile(`^(?i:arxiv:)?(\d{4}\.\d{4,5}(?:v\d+)?)$`)
)

// ParseReference classifies an arbitrary string. DOIs (bare, doi: prefixed or
// doi.org links) and arXiv ids become persistent ids, http(s) URLs become web
// references and everything else is treated as a local path.
func ParseReference(raw, source string) Reference {
	s := strings.TrimSpace(raw)
	if _, ok := NormalizeDOI(s); ok {
		return NewReference(ReferencePersistentID, s, source)
	}
	if arxivPattern.MatchString(s) {
		return NewReference(ReferencePersistentID, s, source)
	}
	if u, err := url.Parse(s); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return NewReference(ReferenceWebURL, s, source)
	}
	return NewReference(ReferenceLocalPath, s, source)
}

// NormalizeDOI strips the common DOI prefixes and reports whether the result
// looks like a DOI.
func NormalizeDOI(s string) (string, bool) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		if strings.HasPrefix(lower, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}
	return s, doiPattern.MatchString(s)
}

// ArxivID returns the bare arXiv identifier for "2301.12345" or
// "arXiv:2301.12345v2" style inputs.
func ArxivID(s string) (string, bool) {
	m := arxivPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Provenance carries what the store needs to know about where a record came from.
type Provenance struct {
	Source string `json:"source"`
	Origin string `json:"origin"`
}

// ResolvedDocument is the byte stream obtained for a reference. It is consumed
// by the text extractor and never persisted.
type ResolvedDocument struct {
	Data        []byte `json:"-"`
	Origin      string `json:"origin"`
	Strategy    string `json:"strategy"`
	ContentType string `json:"content_type,omitempty"`
	FinalURL    string `json:"final_url,omitempty"`
}

// Resolution strategies.
const (
	StrategyLocal            = "local"
	StrategyDownload         = "download"
	StrategyOpenAccess       = "open-access"
	StrategyPublisherPattern = "publisher-pattern"
	StrategyRedirect         = "redirect"
)
