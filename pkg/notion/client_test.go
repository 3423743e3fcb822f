package notion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) GetDatabase(ctx context.Context, dbID string) (*notionapi.Database, error) {
	args := m.Called(ctx, dbID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Database), args.Error(1)
}

func (m *MockClient) UpdateDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseUpdateRequest) (*notionapi.Database, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Database), args.Error(1)
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *MockClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func TestMockClientSatisfiesInterface(t *testing.T) {
	var _ Client = (*MockClient)(nil)
}

// rewriteTransport sends every request to the test server, keeping the path.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func newServerClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	return NewClient("secret_test",
		WithRateLimit(0),
		WithHTTPClient(&http.Client{Transport: rewriteTransport{target: u}}),
	)
}

func TestGetDatabase(t *testing.T) {
	c := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Contains(t, r.URL.Path, "/databases/db-1")
		assert.Equal(t, "Bearer secret_test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"object": "database",
			"id": "db-1",
			"properties": {
				"Title": {"id": "title", "type": "title", "title": {}},
				"Keywords": {"id": "kw", "type": "multi_select", "multi_select": {"options": [{"name": "nlp"}]}}
			}
		}`)) //nolint:errcheck
	})

	db, err := c.GetDatabase(context.Background(), "db-1")
	require.NoError(t, err)

	types := PropertyTypes(db)
	assert.Equal(t, notionapi.PropertyConfigTypeTitle, types["Title"])
	assert.Equal(t, notionapi.PropertyConfigTypeMultiSelect, types["Keywords"])
	assert.Equal(t, []string{"nlp"}, SelectOptions(db, "Keywords"))
	assert.Nil(t, SelectOptions(db, "Title"))
}

func TestGetDatabase_Unauthorized(t *testing.T) {
	c := newServerClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"object":"error","status":401,"code":"unauthorized","message":"API token is invalid."}`)) //nolint:errcheck
	})

	_, err := c.GetDatabase(context.Background(), "db-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: get database db-1")

	status, msg := APIStatus(err)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "API token is invalid.", msg)
}

func TestCreatePage_Mock(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{Type: notionapi.ParentTypeDatabaseID, DatabaseID: "db-1"},
	}
	mc.On("CreatePage", ctx, req).Return(&notionapi.Page{ID: "page-1", URL: "https://notion.so/page-1"}, nil)

	page, err := mc.CreatePage(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, notionapi.ObjectID("page-1"), page.ID)
	mc.AssertExpectations(t)
}

func TestAPIStatus_NoAPIError(t *testing.T) {
	status, msg := APIStatus(assert.AnError)
	assert.Zero(t, status)
	assert.Empty(t, msg)
}

func TestNewClientReturnsClient(t *testing.T) {
	assert.NotNil(t, NewClient("secret_test", WithRateLimit(5)))
}
