package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches all pages matching filter, following pagination cursors.
// The next page is prefetched while the current one is appended. maxPages
// bounds the number of result pages fetched; zero means no bound.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest, maxPages int) ([]notionapi.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "notion: query all")
	}

	newReq := func(cursor notionapi.Cursor) *notionapi.DatabaseQueryRequest {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if filter != nil {
			req.Filter = filter.Filter
			req.Sorts = filter.Sorts
			req.PageSize = filter.PageSize
		}
		return req
	}

	type prefetchResult struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}
	var prefetchCh <-chan prefetchResult

	var all []notionapi.Page
	for fetched := 1; ; fetched++ {
		var resp *notionapi.DatabaseQueryResponse
		var err error
		if prefetchCh != nil {
			result := <-prefetchCh
			resp, err = result.resp, result.err
		} else {
			resp, err = c.QueryDatabase(ctx, dbID, newReq(""))
		}
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}

		all = append(all, resp.Results...)

		if !resp.HasMore || (maxPages > 0 && fetched >= maxPages) {
			break
		}

		ch := make(chan prefetchResult, 1)
		prefetchCh = ch
		next := newReq(resp.NextCursor)
		go func() {
			r, e := c.QueryDatabase(ctx, dbID, next)
			ch <- prefetchResult{resp: r, err: e}
		}()
	}

	return all, nil
}

// PropertyTypes maps each property name of db to its Notion type.
func PropertyTypes(db *notionapi.Database) map[string]notionapi.PropertyConfigType {
	out := make(map[string]notionapi.PropertyConfigType, len(db.Properties))
	for name, cfg := range db.Properties {
		out[name] = cfg.GetType()
	}
	return out
}

// SelectOptions returns the option names of a select or multi-select
// property, or nil when the property is missing or of another type.
func SelectOptions(db *notionapi.Database, property string) []string {
	var opts []notionapi.Option
	switch cfg := db.Properties[property].(type) {
	case *notionapi.MultiSelectPropertyConfig:
		opts = cfg.MultiSelect.Options
	case notionapi.MultiSelectPropertyConfig:
		opts = cfg.MultiSelect.Options
	case *notionapi.SelectPropertyConfig:
		opts = cfg.Select.Options
	case notionapi.SelectPropertyConfig:
		opts = cfg.Select.Options
	default:
		return nil
	}
	names := make([]string, len(opts))
	for i, o := range opts {
		names[i] = o.Name
	}
	return names
}
