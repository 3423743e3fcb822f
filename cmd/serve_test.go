package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/paper-cli/internal/ingest"
	"github.com/sells-group/paper-cli/internal/model"
	"github.com/sells-group/paper-cli/internal/store"
)

// recordingRunner succeeds for every reference and remembers what it saw.
type recordingRunner struct {
	mu   sync.Mutex
	refs []model.Reference
	ran  chan struct{}
}

func (r *recordingRunner) Run(_ context.Context, ref model.Reference, _ *ingest.Pacer) model.BatchItemOutcome {
	r.mu.Lock()
	r.refs = append(r.refs, ref)
	r.mu.Unlock()
	if r.ran != nil {
		r.ran <- struct{}{}
	}
	return model.BatchItemOutcome{Reference: ref, Status: model.StatusSuccess, Title: "Graph Attention Networks"}
}

func newTestIntake(t *testing.T, queueSize int) (*intakeServer, store.Store, *recordingRunner) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	run, err := st.CreateRun(context.Background(), store.RunMeta{Mode: model.ModeServe, Target: ":8080"})
	require.NoError(t, err)

	runner := &recordingRunner{ran: make(chan struct{}, 8)}
	return newIntakeServer(runner, st, run.ID, 0, queueSize), st, runner
}

func postIngest(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	s, _, _ := newTestIntake(t, 4)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestIngestEndpoint_QueuesAndRuns(t *testing.T) {
	s, _, runner := newTestIntake(t, 4)
	h := s.routes()

	rr := postIngest(t, h, map[string]string{"reference": "10.48550/arXiv.1710.10903", "source": "Lab reading list"})
	require.Equal(t, http.StatusAccepted, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "queued", body["status"])
	assert.Equal(t, s.runID, body["run_id"])
	assert.Equal(t, "doi", body["kind"])

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.work(ctx)
		close(done)
	}()

	select {
	case <-runner.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("queued reference never ran")
	}
	cancel()
	<-done

	require.Len(t, runner.refs, 1)
	assert.Equal(t, "Lab reading list", runner.refs[0].Source)
	assert.Equal(t, 1, s.outcomes.Len())
}

func TestIngestEndpoint_ExplicitKind(t *testing.T) {
	s, _, _ := newTestIntake(t, 4)

	rr := postIngest(t, s.routes(), map[string]string{"reference": "/papers/gat.pdf", "kind": "path", "source": "Lab"})
	require.Equal(t, http.StatusAccepted, rr.Code)

	ref := <-s.queue
	assert.Equal(t, model.ReferenceLocalPath, ref.Kind)
	assert.Equal(t, "/papers/gat.pdf", ref.Raw)
}

func TestIngestEndpoint_BadRequests(t *testing.T) {
	s, _, _ := newTestIntake(t, 4)
	h := s.routes()

	tests := []struct {
		name string
		body any
		want string
	}{
		{"missing reference", map[string]string{"source": "Lab"}, "reference is required"},
		{"missing source", map[string]string{"reference": "10.1/x"}, "source is required"},
		{"bad kind", map[string]string{"reference": "x", "kind": "isbn", "source": "Lab"}, "kind must be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postIngest(t, h, tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.want)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", bytes.NewBufferString("not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestIngestEndpoint_QueueFull(t *testing.T) {
	s, _, _ := newTestIntake(t, 1)
	h := s.routes()

	body := map[string]string{"reference": "https://arxiv.org/abs/1710.10903", "source": "Lab"}
	assert.Equal(t, http.StatusAccepted, postIngest(t, h, body).Code)

	rr := postIngest(t, h, body)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "queue full")
}

func TestGetRunEndpoint(t *testing.T) {
	s, st, _ := newTestIntake(t, 4)
	h := s.routes()

	require.NoError(t, st.RecordOutcome(context.Background(), s.runID, model.BatchItemOutcome{
		Reference: model.NewReference(model.ReferencePersistentID, "10.1/x", "Lab"),
		Status:    model.StatusFailed,
		ErrorKind: model.ErrUnresolvableReference,
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/"+s.runID, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var run model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	assert.Equal(t, s.runID, run.ID)
	assert.Equal(t, model.ModeServe, run.Mode)
	require.Len(t, run.Outcomes, 1)
	assert.Equal(t, model.ErrUnresolvableReference, run.Outcomes[0].ErrorKind)

	req = httptest.NewRequest(http.MethodGet, "/v1/runs/does-not-exist", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	s, _, _ := newTestIntake(t, 4)

	req := httptest.NewRequest(http.MethodOptions, "/v1/ingest", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	s.routes().ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
