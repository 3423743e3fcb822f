package resolve

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/paper-cli/internal/model"
)

// strategy is one way of turning a DOI into PDF bytes.
type strategy struct {
	name string
	run  func(ctx context.Context, doi string) (*model.ResolvedDocument, error)
}

// strategies returns the DOI strategies in priority order: open-access
// lookup, publisher URL patterns, then redirect following.
func (r *Resolver) strategies() []strategy {
	return []strategy{
		{model.StrategyOpenAccess, r.viaOpenAccess},
		{model.StrategyPublisherPattern, r.viaPattern},
		{model.StrategyRedirect, r.viaRedirect},
	}
}

func (r *Resolver) resolveID(ctx context.Context, raw string) (*model.ResolvedDocument, error) {
	doi, ok := model.NormalizeDOI(raw)
	if !ok {
		id, isArxiv := model.ArxivID(raw)
		if !isArxiv {
			return nil, model.NewError(model.ErrUnresolvableReference, raw+" is not a DOI or arXiv id", nil)
		}
		doi = "10.48550/arXiv." + id
	}

	var failures []string
	for _, s := range r.strategies() {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "resolve: cancelled")
		}
		doc, err := s.run(ctx, doi)
		if err == nil {
			r.log.Info("resolved identifier",
				zap.String("doi", doi),
				zap.String("strategy", s.name),
				zap.String("origin", doc.Origin),
			)
			return doc, nil
		}
		r.log.Debug("strategy failed", zap.String("doi", doi), zap.String("strategy", s.name), zap.Error(err))
		failures = append(failures, s.name+": "+err.Error())
	}

	return nil, &model.Error{
		Kind:      model.ErrUnresolvableReference,
		Msg:       fmt.Sprintf("no PDF found for %s (%s)", doi, strings.Join(failures, "; ")),
		ManualURL: CanonicalDOIBase + doi,
	}
}

func (r *Resolver) viaOpenAccess(ctx context.Context, doi string) (*model.ResolvedDocument, error) {
	if r.oa == nil {
		return nil, eris.New("no open-access service configured")
	}
	work, err := r.oa.Lookup(ctx, doi)
	if err != nil {
		return nil, err
	}
	candidates := work.PDFURLs()
	if len(candidates) == 0 {
		return nil, eris.New("no open-access PDF location")
	}
	return r.firstPDF(ctx, candidates, model.StrategyOpenAccess)
}

func (r *Resolver) viaPattern(ctx context.Context, doi string) (*model.ResolvedDocument, error) {
	var candidates []string
	for _, p := range r.patterns {
		if u, ok := p.Apply(doi); ok {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return nil, eris.New("no publisher pattern matches")
	}
	return r.firstPDF(ctx, candidates, model.StrategyPublisherPattern)
}

// firstPDF downloads candidates in order and returns the first that is a PDF.
func (r *Resolver) firstPDF(ctx context.Context, candidates []string, strategyName string) (*model.ResolvedDocument, error) {
	var lastErr error
	for _, u := range candidates {
		res, err := r.fetch(ctx, u)
		if err != nil {
			lastErr = err
			continue
		}
		if !isPDF(res.contentType, res.data) {
			lastErr = eris.Errorf("%s is not a PDF (%s)", u, res.contentType)
			continue
		}
		return &model.ResolvedDocument{
			Data:        res.data,
			Origin:      u,
			Strategy:    strategyName,
			ContentType: res.contentType,
			FinalURL:    res.finalURL,
		}, nil
	}
	return nil, lastErr
}

func (r *Resolver) viaRedirect(ctx context.Context, doi string) (*model.ResolvedDocument, error) {
	landing, err := r.fetch(ctx, r.cfg.DOIBaseURL+doi)
	if err != nil {
		return nil, err
	}
	if isPDF(landing.contentType, landing.data) {
		return &model.ResolvedDocument{
			Data:        landing.data,
			Origin:      landing.finalURL,
			Strategy:    model.StrategyRedirect,
			ContentType: landing.contentType,
			FinalURL:    landing.finalURL,
		}, nil
	}

	link, err := pdfLinkFromHTML(landing.data, landing.finalURL)
	if err != nil {
		return nil, err
	}
	return r.firstPDF(ctx, []string{link}, model.StrategyRedirect)
}

// pdfLinkFromHTML finds a PDF link on a publisher landing page: the
// citation_pdf_url meta tag if present, else the first anchor whose path
// ends in .pdf. Relative links are resolved against base.
func pdfLinkFromHTML(page []byte, base string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", eris.Wrap(err, "parse landing page")
	}

	var href string
	if v, ok := doc.Find(`meta[name="citation_pdf_url"]`).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
		href = strings.TrimSpace(v)
	}
	if href == "" {
		doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			v, _ := s.Attr("href")
			u, err := url.Parse(strings.TrimSpace(v))
			if err != nil {
				return true
			}
			if strings.EqualFold(path.Ext(u.Path), ".pdf") {
				href = strings.TrimSpace(v)
				return false
			}
			return true
		})
	}
	if href == "" {
		return "", eris.New("landing page has no PDF link")
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return href, nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", eris.Wrapf(err, "parse PDF link %q", href)
	}
	return baseURL.ResolveReference(ref).String(), nil
}
