package resolve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/paper-cli/internal/model"
	"github.com/sells-group/paper-cli/internal/resilience"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

func fastRetry() Option {
	return WithRetry(resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})
}

// countingTransport fails the test if any request is made.
type countingTransport struct{ calls atomic.Int32 }

func (c *countingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return nil, http.ErrUseLastResponse
}

func TestResolve_LocalPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paper.pdf")
	require.NoError(t, os.WriteFile(path, samplePDF, 0o600))

	ct := &countingTransport{}
	r := New(Config{}, nil, WithHTTPClient(&http.Client{Transport: ct}))

	doc, err := r.Resolve(context.Background(), model.NewReference(model.ReferenceLocalPath, path, "test"))
	require.NoError(t, err)
	assert.Equal(t, samplePDF, doc.Data)
	assert.Equal(t, model.StrategyLocal, doc.Strategy)
	assert.True(t, filepath.IsAbs(doc.Origin))
	assert.Zero(t, ct.calls.Load())
}

func TestResolve_LocalPathNotFound(t *testing.T) {
	ct := &countingTransport{}
	r := New(Config{}, nil, WithHTTPClient(&http.Client{Transport: ct}))

	_, err := r.Resolve(context.Background(),
		model.NewReference(model.ReferenceLocalPath, filepath.Join(t.TempDir(), "missing.pdf"), "test"))
	require.Error(t, err)
	assert.Equal(t, model.ErrFileNotFound, model.KindOf(err))
	assert.Zero(t, ct.calls.Load())
}

func TestResolve_LocalPathDirectory(t *testing.T) {
	r := New(Config{}, nil)

	_, err := r.Resolve(context.Background(), model.NewReference(model.ReferenceLocalPath, t.TempDir(), "test"))
	require.Error(t, err)
	assert.Equal(t, model.ErrNotAFile, model.KindOf(err))
}

func TestResolve_WebURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "paper-cli/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(samplePDF)
	}))
	defer srv.Close()

	r := New(Config{}, nil, fastRetry())
	doc, err := r.Resolve(context.Background(), model.NewReference(model.ReferenceWebURL, srv.URL+"/paper.pdf", "web"))
	require.NoError(t, err)
	assert.Equal(t, samplePDF, doc.Data)
	assert.Equal(t, srv.URL+"/paper.pdf", doc.Origin)
	assert.Equal(t, srv.URL+"/paper.pdf", doc.FinalURL)
	assert.Equal(t, model.StrategyDownload, doc.Strategy)
}

func TestResolve_WebURLNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	r := New(Config{}, nil, fastRetry())
	_, err := r.Resolve(context.Background(), model.NewReference(model.ReferenceWebURL, srv.URL+"/gone.pdf", "web"))
	require.Error(t, err)

	pe, ok := model.AsError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrDownloadFailed, pe.Kind)
	assert.Equal(t, http.StatusNotFound, pe.Status)
	assert.Equal(t, int32(1), calls.Load(), "404 is not retried")
}

func TestResolve_WebURLRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(samplePDF)
	}))
	defer srv.Close()

	r := New(Config{}, nil, fastRetry())
	doc, err := r.Resolve(context.Background(), model.NewReference(model.ReferenceWebURL, srv.URL, "web"))
	require.NoError(t, err)
	assert.Equal(t, samplePDF, doc.Data)
	assert.Equal(t, int32(3), calls.Load())
}

func TestResolve_WebURLTooLarge(t *testing.T) {
	body := make([]byte, 2048)

	t.Run("content length", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(body)
		}))
		defer srv.Close()

		r := New(Config{MaxBytes: 1024}, nil, fastRetry())
		_, err := r.Resolve(context.Background(), model.NewReference(model.ReferenceWebURL, srv.URL, "web"))
		require.Error(t, err)
		assert.Equal(t, model.ErrResourceTooLarge, model.KindOf(err))
	})

	t.Run("streamed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			// Flushing before the body forces chunked encoding with no length.
			w.(http.Flusher).Flush()
			_, _ = w.Write(body)
		}))
		defer srv.Close()

		r := New(Config{MaxBytes: 1024}, nil, fastRetry())
		_, err := r.Resolve(context.Background(), model.NewReference(model.ReferenceWebURL, srv.URL, "web"))
		require.Error(t, err)
		assert.Equal(t, model.ErrResourceTooLarge, model.KindOf(err))
	})
}

func TestRewriteURL(t *testing.T) {
	r := New(Config{}, nil)

	tests := []struct {
		in, want string
	}{
		{"https://arxiv.org/abs/2301.12345", "https://arxiv.org/pdf/2301.12345.pdf"},
		{"https://arxiv.org/abs/2301.12345v2", "https://arxiv.org/pdf/2301.12345v2.pdf"},
		{"https://www.sciencedirect.com/science/article/abs/pii/S0001", "https://www.sciencedirect.com/science/article/pii/S0001/pdfft"},
		{"https://example.org/paper.pdf", "https://example.org/paper.pdf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.rewriteURL(tt.in), tt.in)
	}
}

func TestIsPDF(t *testing.T) {
	assert.True(t, isPDF("application/pdf", nil))
	assert.True(t, isPDF("application/pdf; charset=binary", nil))
	assert.True(t, isPDF("application/octet-stream", samplePDF))
	assert.False(t, isPDF("text/html; charset=utf-8", []byte("<html></html>")))
}
