// Package notiontest provides an in-memory notion.Client for tests.
package notiontest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/sells-group/paper-cli/pkg/notion"
)

// Fake is an in-memory database that evaluates the property filters paper-cli
// sends: rich text contains and equals (against title, rich_text or url
// values), combined with or.
type Fake struct {
	mu      sync.Mutex
	db      *notionapi.Database
	pages   []*notionapi.Page
	next    int
	queries []notionapi.Filter

	errs  map[string][]error
	calls map[string]int
}

var _ notion.Client = (*Fake)(nil)

// New returns a Fake database with the given property configs.
func New(schema notionapi.PropertyConfigs) *Fake {
	props := notionapi.PropertyConfigs{}
	for k, v := range schema {
		props[k] = v
	}
	return &Fake{
		db:    &notionapi.Database{Properties: props},
		errs:  map[string][]error{},
		calls: map[string]int{},
	}
}

// APIError builds the error the real client returns for an HTTP status.
func APIError(status int, msg string) error {
	return &notion.APIError{Status: status, Message: msg, Err: eris.New(msg)}
}

// FailNext queues errors for method, consumed one per call.
func (f *Fake) FailNext(method string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = append(f.errs[method], errs...)
}

// Calls returns how many times method was called.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// SetSchema replaces or, with a nil cfg, removes a database property.
func (f *Fake) SetSchema(name string, cfg notionapi.PropertyConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cfg == nil {
		delete(f.db.Properties, name)
		return
	}
	f.db.Properties[name] = cfg
}

// Queries returns the filters of every QueryDatabase call, oldest first.
func (f *Fake) Queries() []notionapi.Filter {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notionapi.Filter, len(f.queries))
	copy(out, f.queries)
	return out
}

// Page returns a copy of the stored page with id.
func (f *Fake) Page(id string) notionapi.Page {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pages {
		if string(p.ID) == id {
			return *p
		}
	}
	return notionapi.Page{}
}

// Pages returns copies of all stored pages in creation order.
func (f *Fake) Pages() []notionapi.Page {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notionapi.Page, len(f.pages))
	for i, p := range f.pages {
		out[i] = *p
	}
	return out
}

// SetProperty overwrites one property of a stored page.
func (f *Fake) SetProperty(id, name string, v notionapi.Property) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pages {
		if string(p.ID) == id {
			p.Properties[name] = v
		}
	}
}

func (f *Fake) enter(method string) error {
	f.calls[method]++
	if q := f.errs[method]; len(q) > 0 {
		f.errs[method] = q[1:]
		return q[0]
	}
	return nil
}

func (f *Fake) GetDatabase(_ context.Context, _ string) (*notionapi.Database, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetDatabase"); err != nil {
		return nil, err
	}
	return f.snapshot(), nil
}

func (f *Fake) UpdateDatabase(_ context.Context, _ string, req *notionapi.DatabaseUpdateRequest) (*notionapi.Database, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateDatabase"); err != nil {
		return nil, err
	}
	for k, v := range req.Properties {
		f.db.Properties[k] = v
	}
	return f.snapshot(), nil
}

func (f *Fake) snapshot() *notionapi.Database {
	props := notionapi.PropertyConfigs{}
	for k, v := range f.db.Properties {
		props[k] = v
	}
	return &notionapi.Database{Properties: props}
}

func (f *Fake) QueryDatabase(_ context.Context, _ string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("QueryDatabase"); err != nil {
		return nil, err
	}
	f.queries = append(f.queries, req.Filter)
	resp := &notionapi.DatabaseQueryResponse{}
	for _, p := range f.pages {
		if matches(req.Filter, p) {
			resp.Results = append(resp.Results, *p)
		}
	}
	return resp, nil
}

func (f *Fake) CreatePage(_ context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreatePage"); err != nil {
		return nil, err
	}
	f.next++
	id := fmt.Sprintf("page-%d", f.next)
	props := notionapi.Properties{}
	for k, v := range req.Properties {
		props[k] = v
	}
	p := &notionapi.Page{ID: notionapi.ObjectID(id), URL: "https://www.notion.so/" + id, Properties: props}
	f.pages = append(f.pages, p)
	cp := *p
	return &cp, nil
}

func (f *Fake) UpdatePage(_ context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdatePage"); err != nil {
		return nil, err
	}
	for _, p := range f.pages {
		if string(p.ID) == pageID {
			for k, v := range req.Properties {
				p.Properties[k] = v
			}
			cp := *p
			return &cp, nil
		}
	}
	return nil, APIError(404, "page not found")
}

func matches(filter notionapi.Filter, p *notionapi.Page) bool {
	switch flt := filter.(type) {
	case nil:
		return true
	case notionapi.OrCompoundFilter:
		for _, sub := range flt {
			if matches(sub, p) {
				return true
			}
		}
		return false
	case notionapi.PropertyFilter:
		prop := p.Properties[flt.Property]
		if flt.RichText == nil {
			return false
		}
		value := text(prop)
		if u := url(prop); u != "" {
			value = u
		}
		switch {
		case flt.RichText.Contains != "":
			return strings.Contains(strings.ToLower(value), strings.ToLower(flt.RichText.Contains))
		case flt.RichText.Equals != "":
			return value == flt.RichText.Equals
		}
	}
	return false
}

func text(p notionapi.Property) string {
	var rt []notionapi.RichText
	switch v := p.(type) {
	case notionapi.TitleProperty:
		rt = v.Title
	case *notionapi.TitleProperty:
		rt = v.Title
	case notionapi.RichTextProperty:
		rt = v.RichText
	case *notionapi.RichTextProperty:
		rt = v.RichText
	}
	var b strings.Builder
	for _, t := range rt {
		if t.Text != nil {
			b.WriteString(t.Text.Content)
		} else {
			b.WriteString(t.PlainText)
		}
	}
	return b.String()
}

func url(p notionapi.Property) string {
	switch v := p.(type) {
	case notionapi.URLProperty:
		return v.URL
	case *notionapi.URLProperty:
		return v.URL
	}
	return ""
}
