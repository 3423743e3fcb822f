// Package resolve turns a user-supplied reference into document bytes.
package resolve

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/paper-cli/internal/model"
	"github.com/sells-group/paper-cli/internal/resilience"
	"github.com/sells-group/paper-cli/pkg/unpaywall"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultMaxBytes  = 50 << 20
	defaultUserAgent = "paper-cli/1.0"

	// CanonicalDOIBase is where a human can look a DOI up by hand.
	CanonicalDOIBase = "https://doi.org/"
)

// Config tunes downloads and persistent-id resolution.
type Config struct {
	Timeout     time.Duration
	MaxBytes    int64
	MaxAttempts int
	UserAgent   string

	// DOIBaseURL is the resolver followed by the redirect strategy.
	// Defaults to CanonicalDOIBase.
	DOIBaseURL string

	// Patterns replaces DefaultPatterns when non-nil.
	Patterns []Pattern
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient sets the client used for every download.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Resolver) { r.http = hc }
}

// WithRetry overrides the download retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(r *Resolver) { r.retry = cfg }
}

// Resolver resolves references. It is safe for concurrent use.
type Resolver struct {
	cfg      Config
	http     *http.Client
	oa       unpaywall.Client
	patterns []Pattern
	retry    resilience.RetryConfig
	log      *zap.Logger
}

// New builds a Resolver. oa may be nil, in which case the open-access
// strategy never yields a candidate.
func New(cfg Config, oa unpaywall.Client, opts ...Option) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.DOIBaseURL == "" {
		cfg.DOIBaseURL = CanonicalDOIBase
	}
	r := &Resolver{
		cfg:      cfg,
		http:     &http.Client{},
		oa:       oa,
		patterns: cfg.Patterns,
		retry:    resilience.DefaultRetryConfig(),
		log:      zap.L().With(zap.String("component", "resolve")),
	}
	if r.patterns == nil {
		r.patterns = DefaultPatterns()
	}
	if cfg.MaxAttempts > 0 {
		r.retry.MaxAttempts = cfg.MaxAttempts
	}
	for _, o := range opts {
		o(r)
	}
	r.retry.OnRetry = resilience.RetryLogger("download", "get")
	return r
}

// Resolve obtains the bytes behind ref. Failures are *model.Error values of
// kind FileNotFound, NotAFile, DownloadFailed, ResourceTooLarge or
// UnresolvableReference.
func (r *Resolver) Resolve(ctx context.Context, ref model.Reference) (*model.ResolvedDocument, error) {
	switch ref.Kind {
	case model.ReferenceLocalPath:
		return r.resolveLocal(ref.Raw)
	case model.ReferenceWebURL:
		return r.resolveURL(ctx, ref.Raw)
	case model.ReferencePersistentID:
		return r.resolveID(ctx, ref.Raw)
	default:
		return nil, model.NewError(model.ErrUnresolvableReference, "unknown reference kind "+string(ref.Kind), nil)
	}
}

func (r *Resolver) resolveLocal(path string) (*model.ResolvedDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, model.NewError(model.ErrFileNotFound, path, nil)
		}
		return nil, model.NewError(model.ErrFileNotFound, path, eris.Wrap(err, "stat"))
	}
	if !info.Mode().IsRegular() {
		return nil, model.NewError(model.ErrNotAFile, path, nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.NewError(model.ErrFileNotFound, path, eris.Wrap(err, "read file"))
	}
	origin, err := filepath.Abs(path)
	if err != nil {
		origin = path
	}
	return &model.ResolvedDocument{
		Data:     data,
		Origin:   origin,
		Strategy: model.StrategyLocal,
	}, nil
}

func (r *Resolver) resolveURL(ctx context.Context, raw string) (*model.ResolvedDocument, error) {
	target := r.rewriteURL(raw)
	res, err := r.fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	return &model.ResolvedDocument{
		Data:        res.data,
		Origin:      target,
		Strategy:    model.StrategyDownload,
		ContentType: res.contentType,
		FinalURL:    res.finalURL,
	}, nil
}

// rewriteURL maps known abstract-page links to their PDF counterparts.
func (r *Resolver) rewriteURL(raw string) string {
	switch {
	case strings.Contains(raw, "arxiv.org/abs/"):
		out := strings.Replace(raw, "/abs/", "/pdf/", 1)
		if !strings.HasSuffix(out, ".pdf") {
			out += ".pdf"
		}
		r.log.Info("rewrote arXiv abstract link", zap.String("from", raw), zap.String("to", out))
		return out
	case strings.Contains(raw, "sciencedirect.com") && strings.Contains(raw, "/abs/"):
		out := strings.TrimRight(strings.Replace(raw, "/abs/", "/", 1), "/")
		if !strings.HasSuffix(out, "/pdfft") {
			out += "/pdfft"
		}
		r.log.Warn("rewrote ScienceDirect link; downloads usually need a subscription",
			zap.String("from", raw), zap.String("to", out))
		return out
	default:
		return raw
	}
}
