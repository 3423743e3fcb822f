package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/paper-cli/internal/library"
	"github.com/sells-group/paper-cli/internal/model"
	"github.com/sells-group/paper-cli/internal/resilience"
	"github.com/sells-group/paper-cli/pkg/notion/notiontest"
)

type fixture struct {
	resolver  *mockResolver
	extractor *mockExtractor
	analyzer  *mockAnalyzer
	library   *mockLibrary
}

func newFixture(policy library.Policy) *fixture {
	f := &fixture{
		resolver:  &mockResolver{},
		extractor: &mockExtractor{},
		analyzer:  &mockAnalyzer{},
		library:   &mockLibrary{},
	}
	f.library.On("Policy").Return(policy).Maybe()
	return f
}

func (f *fixture) orchestrator(opts ...Option) *Orchestrator {
	return New(f.resolver, f.extractor, f.analyzer, f.library, opts...)
}

func (f *fixture) assertExpectations(t *testing.T) {
	f.resolver.AssertExpectations(t)
	f.extractor.AssertExpectations(t)
	f.analyzer.AssertExpectations(t)
	f.library.AssertExpectations(t)
}

var (
	testRef = model.NewReference(model.ReferenceLocalPath, "/papers/gat.pdf", "Lab reading list")
	testDoc = &model.ResolvedDocument{Data: []byte("%PDF-1.7"), Origin: "/papers/gat.pdf", Strategy: model.StrategyLocal}
)

func goodText() *model.ExtractedText {
	return &model.ExtractedText{Title: "Graph Attention Networks", Abstract: "We present GATs.", Body: "body", Pages: 12, Chars: 40000}
}

func goodRecord() *model.MetadataRecord {
	year := 2018
	return &model.MetadataRecord{
		Title:        "Graph Attention Networks",
		Authors:      []string{"Petar Veličković"},
		Year:         &year,
		Keywords:     []string{"graphs"},
		MainTopics:   []string{"Machine Learning"},
		KeyFindings:  "Attention works on graphs.",
		Methodology:  "Benchmarks.",
		Relevance:    model.RelevanceHigh,
		ResearchArea: model.AreaPrimaryResearch,
	}
}

func TestRun_Success(t *testing.T) {
	f := newFixture(library.PolicyUpdate)
	page := &model.StoredPageRef{PageID: "p1", URL: "https://www.notion.so/p1", Operation: model.OpCreated}

	f.resolver.On("Resolve", mock.Anything, testRef).Return(testDoc, nil)
	f.extractor.On("Extract", mock.Anything, testDoc.Data).Return(goodText(), nil)
	f.analyzer.On("Analyze", mock.Anything, mock.Anything, 20000).Return(goodRecord(), nil)
	f.library.On("Upsert", mock.Anything, mock.Anything, model.Provenance{Source: "Lab reading list", Origin: "/papers/gat.pdf"}).
		Return(page, nil)

	out := f.orchestrator(WithMaxChars(20000)).Run(context.Background(), testRef, NewPacer(0))

	assert.Equal(t, model.StatusSuccess, out.Status)
	assert.Equal(t, page, out.Page)
	assert.Equal(t, "Graph Attention Networks", out.Title)
	assert.Empty(t, out.ErrorKind)
	assert.False(t, out.Partial)
	assert.Equal(t, testRef, out.Reference)
	f.assertExpectations(t)
}

func TestRun_ScannedFailsBeforeAnalysis(t *testing.T) {
	f := newFixture(library.PolicySkip)
	scanned := &model.ExtractedText{Pages: 10, Chars: 120, IsProbablyScanned: true}

	f.resolver.On("Resolve", mock.Anything, testRef).Return(testDoc, nil)
	f.extractor.On("Extract", mock.Anything, testDoc.Data).Return(scanned, nil)

	out := f.orchestrator().Run(context.Background(), testRef, nil)

	assert.Equal(t, model.StatusFailed, out.Status)
	assert.Equal(t, model.ErrScannedDocument, out.ErrorKind)
	f.analyzer.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything, mock.Anything)
	f.library.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
	f.library.AssertNotCalled(t, "FindDuplicate", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_ResolveFailure(t *testing.T) {
	f := newFixture(library.PolicySkip)
	f.resolver.On("Resolve", mock.Anything, testRef).
		Return(nil, model.NewError(model.ErrFileNotFound, "/papers/gat.pdf", nil))

	out := f.orchestrator().Run(context.Background(), testRef, nil)

	assert.Equal(t, model.StatusFailed, out.Status)
	assert.Equal(t, model.ErrFileNotFound, out.ErrorKind)
	assert.Contains(t, out.Error, "/papers/gat.pdf")
	f.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}

func TestRun_PreAnalysisDuplicateSkips(t *testing.T) {
	f := newFixture(library.PolicySkip)
	match := &library.Match{PageID: "p9", URL: "https://www.notion.so/p9", By: library.MatchByTitle}

	f.resolver.On("Resolve", mock.Anything, testRef).Return(testDoc, nil)
	f.extractor.On("Extract", mock.Anything, testDoc.Data).Return(goodText(), nil)
	f.library.On("FindDuplicate", mock.Anything, "Graph Attention Networks", "/papers/gat.pdf").Return(match, nil)

	out := f.orchestrator().Run(context.Background(), testRef, nil)

	assert.Equal(t, model.StatusSkipped, out.Status)
	assert.Equal(t, model.ErrDuplicateSkipped, out.ErrorKind)
	require.NotNil(t, out.Page)
	assert.Equal(t, "p9", out.Page.PageID)
	assert.Equal(t, model.OpSkipped, out.Page.Operation)
	f.analyzer.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_UpsertSkipBecomesSkipped(t *testing.T) {
	f := newFixture(library.PolicySkip)
	f.resolver.On("Resolve", mock.Anything, testRef).Return(testDoc, nil)
	f.extractor.On("Extract", mock.Anything, testDoc.Data).Return(goodText(), nil)
	f.library.On("FindDuplicate", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	f.analyzer.On("Analyze", mock.Anything, mock.Anything, 0).Return(goodRecord(), nil)
	f.library.On("Upsert", mock.Anything, mock.Anything, mock.Anything).
		Return(&model.StoredPageRef{PageID: "p2", URL: "u", Operation: model.OpSkipped}, nil)

	out := f.orchestrator().Run(context.Background(), testRef, nil)

	assert.Equal(t, model.StatusSkipped, out.Status)
	assert.Equal(t, model.ErrDuplicateSkipped, out.ErrorKind)
	f.assertExpectations(t)
}

func TestRun_AnalyzeFailure(t *testing.T) {
	f := newFixture(library.PolicyUpdate)
	f.resolver.On("Resolve", mock.Anything, testRef).Return(testDoc, nil)
	f.extractor.On("Extract", mock.Anything, testDoc.Data).Return(goodText(), nil)
	f.analyzer.On("Analyze", mock.Anything, mock.Anything, 0).
		Return(nil, model.ServiceError(model.ServiceRateLimited, "quota", nil))

	out := f.orchestrator().Run(context.Background(), testRef, nil)

	assert.Equal(t, model.StatusFailed, out.Status)
	assert.Equal(t, model.ErrExtractionService, out.ErrorKind)
	assert.Contains(t, out.Error, "RateLimited")
	f.library.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_PartialRecordStored(t *testing.T) {
	f := newFixture(library.PolicyUpdate)
	rec := goodRecord()
	rec.MarkMissing("methodology")

	f.resolver.On("Resolve", mock.Anything, testRef).Return(testDoc, nil)
	f.extractor.On("Extract", mock.Anything, testDoc.Data).Return(goodText(), nil)
	f.analyzer.On("Analyze", mock.Anything, mock.Anything, 0).Return(rec, nil)
	f.library.On("Upsert", mock.Anything, rec, mock.Anything).
		Return(&model.StoredPageRef{PageID: "p3", Operation: model.OpCreated}, nil)

	out := f.orchestrator().Run(context.Background(), testRef, nil)

	assert.Equal(t, model.StatusSuccess, out.Status)
	assert.True(t, out.Partial)
}

func TestRun_PanicRecovered(t *testing.T) {
	f := newFixture(library.PolicySkip)
	f.resolver.On("Resolve", mock.Anything, testRef).Return(testDoc, nil)
	f.extractor.On("Extract", mock.Anything, testDoc.Data).Run(func(mock.Arguments) {
		panic("index out of range")
	})

	out := f.orchestrator().Run(context.Background(), testRef, nil)

	assert.Equal(t, model.StatusFailed, out.Status)
	assert.Equal(t, model.ErrInternal, out.ErrorKind)
	assert.Contains(t, out.Error, "panic in extract")
}

func TestRun_CancelledWhilePacing(t *testing.T) {
	f := newFixture(library.PolicySkip)
	pacer := NewPacer(time.Hour)
	require.NoError(t, pacer.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := f.orchestrator().Run(ctx, testRef, pacer)

	assert.Equal(t, model.StatusFailed, out.Status)
	f.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestRun_RecordsOutcome(t *testing.T) {
	f := newFixture(library.PolicySkip)
	rec := &mockRecorder{}
	f.resolver.On("Resolve", mock.Anything, testRef).Return(nil, model.NewError(model.ErrNotAFile, "dir", nil))
	rec.On("RecordOutcome", mock.Anything, "run-1", mock.MatchedBy(func(o model.BatchItemOutcome) bool {
		return o.Status == model.StatusFailed && o.ErrorKind == model.ErrNotAFile
	})).Return(nil)

	f.orchestrator(WithRecorder(rec, "run-1")).Run(context.Background(), testRef, nil)
	rec.AssertExpectations(t)
}

func TestRun_RecorderFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture(library.PolicySkip)
	rec := &mockRecorder{}
	f.resolver.On("Resolve", mock.Anything, testRef).Return(nil, model.NewError(model.ErrNotAFile, "dir", nil))
	rec.On("RecordOutcome", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))

	out := f.orchestrator(WithRecorder(rec, "run-1")).Run(context.Background(), testRef, nil)
	assert.Equal(t, model.ErrNotAFile, out.ErrorKind)
}

func TestPacer_SpacesStarts(t *testing.T) {
	p := NewPacer(40 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 75*time.Millisecond)
	assert.Equal(t, 40*time.Millisecond, p.Delay())
}

// The full path through a real gateway: the stored record carries Status
// Inbox, the run's Source, today's Date Added and the extracted relevance.
func TestRun_EndToEndStoredFields(t *testing.T) {
	fake := notiontest.New(library.Schema())
	today := time.Date(2026, 10, 16, 13, 45, 0, 0, time.UTC)
	gw := library.New(fake, "db",
		library.WithClock(func() time.Time { return today }),
		library.WithRetry(resilience.RetryConfig{MaxAttempts: 1}),
	)

	resolver := &mockResolver{}
	extractor := &mockExtractor{}
	analyzer := &mockAnalyzer{}
	resolver.On("Resolve", mock.Anything, testRef).Return(testDoc, nil)
	extractor.On("Extract", mock.Anything, testDoc.Data).Return(goodText(), nil)
	analyzer.On("Analyze", mock.Anything, mock.Anything, 0).Return(goodRecord(), nil)

	o := New(resolver, extractor, analyzer, gw)
	out := o.Run(context.Background(), testRef, NewPacer(0))
	require.Equal(t, model.StatusSuccess, out.Status, out.Error)
	require.NotNil(t, out.Page)
	assert.Equal(t, model.OpCreated, out.Page.Operation)

	stored := library.PageToRecord(fake.Page(out.Page.PageID))
	assert.Equal(t, library.InitialStatus, stored.Status)
	assert.Equal(t, "Lab reading list", stored.Provenance.Source)
	assert.Equal(t, "/papers/gat.pdf", stored.Provenance.Origin)
	assert.Equal(t, model.RelevanceHigh, stored.Record.Relevance)
	require.NotNil(t, stored.DateAdded)
	assert.Equal(t, "2026-10-16", stored.DateAdded.Format("2006-01-02"))

	// A second run of the same paper is skipped before analysis.
	again := o.Run(context.Background(), testRef, NewPacer(0))
	assert.Equal(t, model.StatusSkipped, again.Status)
	assert.Len(t, fake.Pages(), 1)
	analyzer.AssertNumberOfCalls(t, "Analyze", 1)
}
