// Package unpaywall looks up open-access copies of a DOI.
package unpaywall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Unpaywall operations.
type Client interface {
	// Lookup returns the work record for doi. A DOI Unpaywall does not know
	// yields ErrNotFound.
	Lookup(ctx context.Context, doi string) (*Work, error)
}

// ErrNotFound is returned for DOIs Unpaywall has no record of.
var ErrNotFound = eris.New("unpaywall: doi not found")

// Work is the subset of an Unpaywall record paper-cli uses.
type Work struct {
	DOI            string       `json:"doi"`
	Title          string       `json:"title"`
	IsOA           bool         `json:"is_oa"`
	BestOALocation *OALocation  `json:"best_oa_location"`
	OALocations    []OALocation `json:"oa_locations"`
}

// OALocation is one place an open-access copy lives.
type OALocation struct {
	URL       string `json:"url"`
	URLForPDF string `json:"url_for_pdf"`
	HostType  string `json:"host_type"`
	Version   string `json:"version"`
	IsBest    bool   `json:"is_best"`
}

// PDFURLs lists candidate PDF URLs, best location first, without duplicates.
func (w *Work) PDFURLs() []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	if w.BestOALocation != nil {
		add(w.BestOALocation.URLForPDF)
	}
	for _, loc := range w.OALocations {
		add(loc.URLForPDF)
	}
	return out
}

// Option configures the Unpaywall client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	email   string
	baseURL string
	http    *http.Client
}

// NewClient creates an Unpaywall client. Unpaywall asks callers to identify
// themselves with a contact email.
func NewClient(email string, opts ...Option) Client {
	c := &httpClient{
		email:   email,
		baseURL: "https://api.unpaywall.org/v2",
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Lookup(ctx context.Context, doi string) (*Work, error) {
	endpoint := fmt.Sprintf("%s/%s?email=%s", c.baseURL, url.PathEscape(doi), url.QueryEscape(c.email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "unpaywall: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "unpaywall: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, eris.Errorf("unpaywall: status %d: %s", resp.StatusCode, string(body))
	}

	var w Work
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return nil, eris.Wrap(err, "unpaywall: decode response")
	}
	return &w, nil
}
