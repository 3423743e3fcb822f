package resolve

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/paper-cli/internal/model"
	"github.com/sells-group/paper-cli/internal/resilience"
)

type fetched struct {
	data        []byte
	contentType string
	finalURL    string
}

// fetch GETs url with the configured timeout, byte ceiling and retry policy.
func (r *Resolver) fetch(ctx context.Context, url string) (*fetched, error) {
	return resilience.DoVal(ctx, r.retry, func(ctx context.Context) (*fetched, error) {
		return r.fetchOnce(ctx, url)
	})
}

func (r *Resolver) fetchOnce(ctx context.Context, url string) (*fetched, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, model.NewError(model.ErrDownloadFailed, url, eris.Wrap(err, "create request"))
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)
	req.Header.Set("Accept", "application/pdf,text/html;q=0.9,*/*;q=0.8")

	r.log.Debug("downloading", zap.String("url", url))
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, model.NewError(model.ErrDownloadFailed, url, eris.Wrap(err, "get"))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &model.Error{
			Kind:   model.ErrDownloadFailed,
			Status: resp.StatusCode,
			Msg:    fmt.Sprintf("%s returned HTTP %d", url, resp.StatusCode),
		}
	}

	if resp.ContentLength > r.cfg.MaxBytes {
		return nil, model.NewError(model.ErrResourceTooLarge,
			fmt.Sprintf("%s is %d bytes, limit is %d", url, resp.ContentLength, r.cfg.MaxBytes), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxBytes+1))
	if err != nil {
		return nil, model.NewError(model.ErrDownloadFailed, url, eris.Wrap(err, "read body"))
	}
	if int64(len(data)) > r.cfg.MaxBytes {
		return nil, model.NewError(model.ErrResourceTooLarge,
			fmt.Sprintf("%s exceeds the %d byte limit", url, r.cfg.MaxBytes), nil)
	}

	final := url
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return &fetched{
		data:        data,
		contentType: resp.Header.Get("Content-Type"),
		finalURL:    final,
	}, nil
}

var pdfMagic = []byte("%PDF-")

// isPDF reports whether a response is a PDF, by media type or magic bytes.
func isPDF(contentType string, data []byte) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if mt == "application/pdf" || mt == "application/x-pdf" {
			return true
		}
	} else if strings.Contains(strings.ToLower(contentType), "pdf") {
		return true
	}
	return bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic)
}
