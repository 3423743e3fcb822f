// Package notion wraps the Notion API calls paper-cli makes against the
// paper library database.
package notion

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Notion API operations used by this application.
type Client interface {
	GetDatabase(ctx context.Context, dbID string) (*notionapi.Database, error)
	UpdateDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseUpdateRequest) (*notionapi.Database, error)
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// ClientOption configures the Notion client.
type ClientOption func(*notionClient)

// WithRateLimit overrides the default Notion rate limit (3 req/s). A
// non-positive rps disables client-side throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *notionClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithHTTPClient sets the transport used for API calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *notionClient) {
		c.httpClient = hc
	}
}

// notionClient implements Client by wrapping a *notionapi.Client.
type notionClient struct {
	inner      *notionapi.Client
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewClient creates a new Notion client with the given integration token.
// By default, API calls are throttled to 3 req/s (Notion's rate limit).
func NewClient(token string, opts ...ClientOption) Client {
	c := &notionClient{
		limiter: rate.NewLimiter(3, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	var innerOpts []notionapi.ClientOption
	if c.httpClient != nil {
		innerOpts = append(innerOpts, notionapi.WithHTTPClient(c.httpClient))
	}
	c.inner = notionapi.NewClient(notionapi.Token(token), innerOpts...)
	return c
}

// wait blocks until the rate limiter allows one event, or ctx is cancelled.
func (c *notionClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *notionClient) GetDatabase(ctx context.Context, dbID string) (*notionapi.Database, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: rate limit")
	}
	db, err := c.inner.Database.Get(ctx, notionapi.DatabaseID(dbID))
	if err != nil {
		return nil, wrapAPIError(err, fmt.Sprintf("notion: get database %s", dbID))
	}
	return db, nil
}

func (c *notionClient) UpdateDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseUpdateRequest) (*notionapi.Database, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: rate limit")
	}
	db, err := c.inner.Database.Update(ctx, notionapi.DatabaseID(dbID), req)
	if err != nil {
		return nil, wrapAPIError(err, fmt.Sprintf("notion: update database %s", dbID))
	}
	return db, nil
}

func (c *notionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: rate limit")
	}
	resp, err := c.inner.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	if err != nil {
		return nil, wrapAPIError(err, fmt.Sprintf("notion: query database %s", dbID))
	}
	return resp, nil
}

func (c *notionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: rate limit")
	}
	page, err := c.inner.Page.Create(ctx, req)
	if err != nil {
		return nil, wrapAPIError(err, "notion: create page")
	}
	return page, nil
}

func (c *notionClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: rate limit")
	}
	page, err := c.inner.Page.Update(ctx, notionapi.PageID(pageID), req)
	if err != nil {
		return nil, wrapAPIError(err, fmt.Sprintf("notion: update page %s", pageID))
	}
	return page, nil
}

// APIError is a failed Notion call. Status is zero for transport failures.
type APIError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *APIError) Error() string { return e.Err.Error() }

func (e *APIError) Unwrap() error { return e.Err }

func wrapAPIError(err error, msg string) error {
	out := &APIError{Err: eris.Wrap(err, msg)}
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		out.Status = apiErr.Status
		out.Code = string(apiErr.Code)
		out.Message = apiErr.Message
	}
	return out
}

// APIStatus returns the HTTP status and message of a failed call in err's
// chain. Zero means no API response was received.
func APIStatus(err error) (int, string) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status, apiErr.Message
	}
	return 0, ""
}
