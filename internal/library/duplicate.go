package library

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/paper-cli/pkg/notion"
)

// MatchBy names what a duplicate matched on.
type MatchBy string

const (
	MatchByLink  MatchBy = "link"
	MatchByTitle MatchBy = "title"
)

// Match is an existing record judged to be the same paper.
type Match struct {
	PageID string
	URL    string
	By     MatchBy
	Title  string
}

const (
	// titlePrefixRunes bounds the title sent in the contains filter.
	titlePrefixRunes = 100

	// duplicateQueryPages bounds the candidate pages fetched per lookup.
	duplicateQueryPages = 3
)

var folder = cases.Fold()

// NormalizeTitle is the comparison key for titles: NFKC, case folded and
// with whitespace collapsed.
func NormalizeTitle(s string) string {
	s = norm.NFKC.String(s)
	s = folder.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// queryPrefix is the start of the title used for the server-side filter.
// Notion's contains is case-insensitive, so only whitespace is collapsed.
func queryPrefix(title string) string {
	s := strings.Join(strings.Fields(norm.NFKC.String(title)), " ")
	r := []rune(s)
	if len(r) > titlePrefixRunes {
		r = r[:titlePrefixRunes]
	}
	return string(r)
}

// FindDuplicate looks up an existing record with the same normalized title
// or the same PDF link. A link match wins over a title match. Returns nil
// when there is none.
func (g *Gateway) FindDuplicate(ctx context.Context, title, origin string) (*Match, error) {
	prefix := queryPrefix(title)
	var filters notionapi.OrCompoundFilter
	if prefix != "" {
		filters = append(filters, notionapi.PropertyFilter{
			Property: FieldTitle,
			RichText: &notionapi.TextFilterCondition{Contains: prefix},
		})
	}
	if origin != "" {
		// Notion applies the rich_text condition to url properties.
		filters = append(filters, notionapi.PropertyFilter{
			Property: FieldPDFLink,
			RichText: &notionapi.TextFilterCondition{Equals: origin},
		})
	}
	if len(filters) == 0 {
		return nil, nil
	}

	var pages []notionapi.Page
	err := g.call(ctx, "query duplicates", func(ctx context.Context) error {
		var err error
		pages, err = notion.QueryAll(ctx, g.client, g.dbID, &notionapi.DatabaseQueryRequest{Filter: filters}, duplicateQueryPages)
		return err
	})
	if err != nil {
		return nil, err
	}

	m := pickDuplicate(pages, title, origin)
	if m != nil {
		g.log.Debug("duplicate found",
			zap.String("page_id", m.PageID),
			zap.String("matched_by", string(m.By)),
		)
	}
	return m, nil
}

func pickDuplicate(pages []notionapi.Page, title, origin string) *Match {
	want := NormalizeTitle(title)
	var byTitle *Match
	for _, p := range pages {
		pageTitle := plainText(titleOf(p.Properties[FieldTitle]))
		if origin != "" && urlOf(p.Properties[FieldPDFLink]) == origin {
			return &Match{PageID: string(p.ID), URL: p.URL, By: MatchByLink, Title: pageTitle}
		}
		if byTitle == nil && want != "" && NormalizeTitle(pageTitle) == want {
			byTitle = &Match{PageID: string(p.ID), URL: p.URL, By: MatchByTitle, Title: pageTitle}
		}
	}
	return byTitle
}
