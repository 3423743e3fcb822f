package library

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/sells-group/paper-cli/internal/model"
	"github.com/sells-group/paper-cli/pkg/notion"
)

// Store field names.
const (
	FieldTitle        = "Title"
	FieldAuthors      = "Authors"
	FieldYear         = "Year"
	FieldKeywords     = "Keywords"
	FieldMainTopics   = "Main Topics"
	FieldKeyFindings  = "Key Findings"
	FieldMethodology  = "Methodology"
	FieldRelevance    = "Relevance Score"
	FieldResearchArea = "Research Area"
	FieldStatus       = "Status"
	FieldSource       = "Source"
	FieldDateAdded    = "Date Added"
	FieldPDFLink      = "PDF Link"
)

// InitialStatus is the Status given to every new record.
const InitialStatus = "Inbox"

// fieldSpec is one expected database property.
type fieldSpec struct {
	Name string
	Type notionapi.PropertyConfigType
}

// schemaFields lists the database properties the gateway writes, in the
// order mismatches are reported.
var schemaFields = []fieldSpec{
	{FieldTitle, "title"},
	{FieldAuthors, "rich_text"},
	{FieldYear, "number"},
	{FieldKeywords, "multi_select"},
	{FieldMainTopics, "multi_select"},
	{FieldKeyFindings, "rich_text"},
	{FieldMethodology, "rich_text"},
	{FieldRelevance, "select"},
	{FieldResearchArea, "select"},
	{FieldStatus, "select"},
	{FieldSource, "rich_text"},
	{FieldDateAdded, "date"},
	{FieldPDFLink, "url"},
}

// CheckSchema verifies that every mapped property exists with the expected
// type. The database is cached after the first successful check.
func (g *Gateway) CheckSchema(ctx context.Context) error {
	g.mu.Lock()
	ok := g.schemaOK
	g.mu.Unlock()
	if ok {
		return nil
	}

	db, err := g.database(ctx, true)
	if err != nil {
		return err
	}
	if err := verifySchema(db); err != nil {
		return err
	}

	g.mu.Lock()
	g.schemaOK = true
	g.mu.Unlock()
	return nil
}

func verifySchema(db *notionapi.Database) error {
	types := notion.PropertyTypes(db)
	for _, f := range schemaFields {
		got, ok := types[f.Name]
		if !ok {
			return &model.Error{Kind: model.ErrSchemaMismatch, Field: f.Name, Msg: "property missing from database"}
		}
		if got != f.Type {
			return &model.Error{
				Kind:  model.ErrSchemaMismatch,
				Field: f.Name,
				Msg:   fmt.Sprintf("property is %s, want %s", got, f.Type),
			}
		}
	}
	return nil
}

// database returns the cached database, fetching it when refresh is set or
// nothing is cached.
func (g *Gateway) database(ctx context.Context, refresh bool) (*notionapi.Database, error) {
	g.mu.Lock()
	db := g.db
	g.mu.Unlock()
	if db != nil && !refresh {
		return db, nil
	}

	var fetched *notionapi.Database
	err := g.call(ctx, "get database", func(ctx context.Context) error {
		var err error
		fetched, err = g.client.GetDatabase(ctx, g.dbID)
		return err
	})
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.db = fetched
	g.mu.Unlock()
	return fetched, nil
}

// Schema returns property configs for a database the gateway can write to.
func Schema() notionapi.PropertyConfigs {
	props := make(notionapi.PropertyConfigs, len(schemaFields))
	for _, f := range schemaFields {
		switch f.Type {
		case "title":
			props[f.Name] = notionapi.TitlePropertyConfig{Type: f.Type}
		case "rich_text":
			props[f.Name] = notionapi.RichTextPropertyConfig{Type: f.Type}
		case "number":
			props[f.Name] = notionapi.NumberPropertyConfig{Type: f.Type}
		case "multi_select":
			props[f.Name] = notionapi.MultiSelectPropertyConfig{Type: f.Type}
		case "select":
			props[f.Name] = notionapi.SelectPropertyConfig{Type: f.Type}
		case "date":
			props[f.Name] = notionapi.DatePropertyConfig{Type: f.Type}
		case "url":
			props[f.Name] = notionapi.URLPropertyConfig{Type: f.Type}
		}
	}
	return props
}

// SchemaDescription lists the expected properties as "Name (type)".
func SchemaDescription() []string {
	out := make([]string, len(schemaFields))
	for i, f := range schemaFields {
		out[i] = fmt.Sprintf("%s (%s)", f.Name, f.Type)
	}
	return out
}
