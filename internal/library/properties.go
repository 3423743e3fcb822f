package library

import (
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/sells-group/paper-cli/internal/model"
)

const (
	// richTextChunk is Notion's per-object rich text limit.
	richTextChunk = 2000

	// optionMaxRunes is Notion's select option name limit.
	optionMaxRunes = 100
)

// StoredPaper is a record read back from the database.
type StoredPaper struct {
	PageID     string
	URL        string
	Record     model.MetadataRecord
	Provenance model.Provenance
	Status     string
	DateAdded  *time.Time
}

// buildProperties maps a record onto the database fields. Status and Date
// Added are left to the caller.
func buildProperties(rec *model.MetadataRecord, prov model.Provenance) notionapi.Properties {
	props := notionapi.Properties{
		FieldTitle: notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(rec.Title),
		},
		FieldAuthors: richTextProp(rec.AuthorsString()),
		FieldKeywords: notionapi.MultiSelectProperty{
			Type:        notionapi.PropertyTypeMultiSelect,
			MultiSelect: options(rec.Keywords),
		},
		FieldMainTopics: notionapi.MultiSelectProperty{
			Type:        notionapi.PropertyTypeMultiSelect,
			MultiSelect: options(rec.MainTopics),
		},
		FieldKeyFindings: richTextProp(rec.KeyFindings),
		FieldMethodology: richTextProp(rec.Methodology),
		FieldSource:      richTextProp(prov.Source),
	}
	if rec.Year != nil {
		props[FieldYear] = notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: float64(*rec.Year)}
	}
	if rec.Relevance != "" {
		props[FieldRelevance] = notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: string(rec.Relevance)},
		}
	}
	if rec.ResearchArea != "" {
		props[FieldResearchArea] = notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: string(rec.ResearchArea)},
		}
	}
	if prov.Origin != "" {
		props[FieldPDFLink] = notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: prov.Origin}
	}
	return props
}

func richTextProp(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: richText(s)}
}

// richText splits s into objects of at most richTextChunk runes.
func richText(s string) []notionapi.RichText {
	if s == "" {
		return []notionapi.RichText{}
	}
	var out []notionapi.RichText
	for _, c := range chunkRunes(s, richTextChunk) {
		out = append(out, notionapi.RichText{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: c},
		})
	}
	return out
}

func chunkRunes(s string, n int) []string {
	r := []rune(s)
	var out []string
	for len(r) > n {
		out = append(out, string(r[:n]))
		r = r[n:]
	}
	return append(out, string(r))
}

func options(values []string) []notionapi.Option {
	out := make([]notionapi.Option, 0, len(values))
	for _, v := range model.UniqueFold(values) {
		if v = optionName(v); v != "" {
			out = append(out, notionapi.Option{Name: v})
		}
	}
	return out
}

// optionName makes v acceptable as a select option: no commas, bounded length.
func optionName(v string) string {
	v = strings.TrimSpace(strings.ReplaceAll(v, ",", ";"))
	if r := []rune(v); len(r) > optionMaxRunes {
		v = strings.TrimSpace(string(r[:optionMaxRunes]))
	}
	return v
}

// PageToRecord rebuilds the record, provenance and bookkeeping fields of a
// stored page.
func PageToRecord(page notionapi.Page) StoredPaper {
	props := page.Properties
	out := StoredPaper{
		PageID: string(page.ID),
		URL:    page.URL,
		Status: selectOf(props[FieldStatus]),
	}

	rec := &out.Record
	rec.Title = plainText(titleOf(props[FieldTitle]))
	rec.Authors = model.SplitAuthors(plainText(richTextOf(props[FieldAuthors])))
	if y, ok := numberOf(props[FieldYear]); ok {
		year := int(y)
		rec.Year = &year
	}
	rec.Keywords = multiSelectOf(props[FieldKeywords])
	rec.MainTopics = multiSelectOf(props[FieldMainTopics])
	rec.KeyFindings = plainText(richTextOf(props[FieldKeyFindings]))
	rec.Methodology = plainText(richTextOf(props[FieldMethodology]))
	if r, ok := model.ParseRelevance(selectOf(props[FieldRelevance])); ok {
		rec.Relevance = r
	}
	if a, ok := model.ParseResearchArea(selectOf(props[FieldResearchArea])); ok {
		rec.ResearchArea = a
	}

	out.Provenance = model.Provenance{
		Source: plainText(richTextOf(props[FieldSource])),
		Origin: urlOf(props[FieldPDFLink]),
	}
	out.DateAdded = dateOf(props[FieldDateAdded])
	return out
}

// plainText concatenates rich text, preferring the server-rendered plain text.
func plainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, t := range rt {
		switch {
		case t.PlainText != "":
			b.WriteString(t.PlainText)
		case t.Text != nil:
			b.WriteString(t.Text.Content)
		}
	}
	return b.String()
}

// Decoded pages hold pointer properties; pages built locally hold values.

func titleOf(p notionapi.Property) []notionapi.RichText {
	switch v := p.(type) {
	case *notionapi.TitleProperty:
		return v.Title
	case notionapi.TitleProperty:
		return v.Title
	}
	return nil
}

func richTextOf(p notionapi.Property) []notionapi.RichText {
	switch v := p.(type) {
	case *notionapi.RichTextProperty:
		return v.RichText
	case notionapi.RichTextProperty:
		return v.RichText
	}
	return nil
}

func numberOf(p notionapi.Property) (float64, bool) {
	switch v := p.(type) {
	case *notionapi.NumberProperty:
		return v.Number, v.Number != 0
	case notionapi.NumberProperty:
		return v.Number, v.Number != 0
	}
	return 0, false
}

func selectOf(p notionapi.Property) string {
	switch v := p.(type) {
	case *notionapi.SelectProperty:
		return v.Select.Name
	case notionapi.SelectProperty:
		return v.Select.Name
	}
	return ""
}

func multiSelectOf(p notionapi.Property) []string {
	var opts []notionapi.Option
	switch v := p.(type) {
	case *notionapi.MultiSelectProperty:
		opts = v.MultiSelect
	case notionapi.MultiSelectProperty:
		opts = v.MultiSelect
	}
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		out = append(out, o.Name)
	}
	return out
}

func urlOf(p notionapi.Property) string {
	switch v := p.(type) {
	case *notionapi.URLProperty:
		return v.URL
	case notionapi.URLProperty:
		return v.URL
	}
	return ""
}

func dateOf(p notionapi.Property) *time.Time {
	var d *notionapi.DateObject
	switch v := p.(type) {
	case *notionapi.DateProperty:
		d = v.Date
	case notionapi.DateProperty:
		d = v.Date
	}
	if d == nil || d.Start == nil {
		return nil
	}
	t := time.Time(*d.Start)
	return &t
}
