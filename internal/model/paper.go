package model

import (
	"strings"
)

// ExtractedText is the cleaned, sectioned text of a document.
type ExtractedText struct {
	Title    string `json:"title"`
	Author   string `json:"author,omitempty"`
	Abstract string `json:"abstract"`
	Body     string `json:"body"`
	Other    string `json:"other,omitempty"`
	Pages    int    `json:"pages"`
	Chars    int    `json:"chars"`

	IsProbablyScanned bool `json:"is_probably_scanned"`
	IsEncrypted       bool `json:"is_encrypted"`
}

// FullText joins the sections in the order the extraction prompt expects.
func (t *ExtractedText) FullText() string {
	var parts []string
	if t.Title != "" {
		parts = append(parts, "Title: "+t.Title)
	}
	if t.Author != "" {
		parts = append(parts, "Authors: "+t.Author)
	}
	if t.Abstract != "" {
		parts = append(parts, "Abstract:\n"+t.Abstract)
	}
	if t.Body != "" {
		parts = append(parts, t.Body)
	}
	return strings.Join(parts, "\n\n")
}

// RelevanceScore is how directly a paper bears on the research portfolio.
type RelevanceScore string

const (
	RelevanceHigh   RelevanceScore = "High"
	RelevanceMedium RelevanceScore = "Medium"
	RelevanceLow    RelevanceScore = "Low"
)

// ParseRelevance matches s case-insensitively against the allowed values.
func ParseRelevance(s string) (RelevanceScore, bool) {
	for _, v := range []RelevanceScore{RelevanceHigh, RelevanceMedium, RelevanceLow} {
		if strings.EqualFold(strings.TrimSpace(s), string(v)) {
			return v, true
		}
	}
	return "", false
}

// ResearchArea is how a paper fits into the research portfolio.
type ResearchArea string

const (
	AreaPrimaryResearch ResearchArea = "Primary Research"
	AreaRelatedField    ResearchArea = "Related Field"
	AreaMethodology     ResearchArea = "Methodology"
	AreaBackground      ResearchArea = "Background"
)

// ResearchAreas lists the allowed research areas in display order.
var ResearchAreas = []ResearchArea{AreaPrimaryResearch, AreaRelatedField, AreaMethodology, AreaBackground}

// ParseResearchArea matches s case-insensitively against the allowed values.
func ParseResearchArea(s string) (ResearchArea, bool) {
	for _, v := range ResearchAreas {
		if strings.EqualFold(strings.TrimSpace(s), string(v)) {
			return v, true
		}
	}
	return "", false
}

// MetadataRecord is the structured understanding of one paper.
type MetadataRecord struct {
	Title        string         `json:"title"`
	Authors      []string       `json:"authors"`
	Year         *int           `json:"year,omitempty"`
	Keywords     []string       `json:"keywords"`
	MainTopics   []string       `json:"main_topics"`
	KeyFindings  string         `json:"key_findings"`
	Methodology  string         `json:"methodology"`
	Relevance    RelevanceScore `json:"relevance_score"`
	ResearchArea ResearchArea   `json:"research_area"`
	Language     string         `json:"language,omitempty"`

	// Partial is set when any required field could not be parsed from the
	// service response. MissingFields names them.
	Partial       bool     `json:"partial"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

// MarkMissing records field as missing and flags the record partial.
func (r *MetadataRecord) MarkMissing(field string) {
	r.Partial = true
	for _, f := range r.MissingFields {
		if f == field {
			return
		}
	}
	r.MissingFields = append(r.MissingFields, field)
}

// AuthorSeparator joins authors in stored text. Names may contain commas
// ("Smith, J."), so the separator is a semicolon.
const AuthorSeparator = "; "

// AuthorsString joins authors the way the store displays them.
func (r *MetadataRecord) AuthorsString() string {
	return strings.Join(r.Authors, AuthorSeparator)
}

// SplitAuthors reverses AuthorsString.
func SplitAuthors(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ";") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// UniqueFold de-duplicates values case-insensitively, trimming blanks and
// keeping first-seen order.
func UniqueFold(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
