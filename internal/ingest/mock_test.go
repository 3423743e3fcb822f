package ingest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/paper-cli/internal/library"
	"github.com/sells-group/paper-cli/internal/model"
)

type mockResolver struct{ mock.Mock }

func (m *mockResolver) Resolve(ctx context.Context, ref model.Reference) (*model.ResolvedDocument, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ResolvedDocument), args.Error(1)
}

type mockExtractor struct{ mock.Mock }

func (m *mockExtractor) Extract(ctx context.Context, data []byte) (*model.ExtractedText, error) {
	args := m.Called(ctx, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ExtractedText), args.Error(1)
}

type mockAnalyzer struct{ mock.Mock }

func (m *mockAnalyzer) Analyze(ctx context.Context, text *model.ExtractedText, maxChars int) (*model.MetadataRecord, error) {
	args := m.Called(ctx, text, maxChars)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MetadataRecord), args.Error(1)
}

type mockLibrary struct{ mock.Mock }

func (m *mockLibrary) Upsert(ctx context.Context, rec *model.MetadataRecord, prov model.Provenance) (*model.StoredPageRef, error) {
	args := m.Called(ctx, rec, prov)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StoredPageRef), args.Error(1)
}

func (m *mockLibrary) FindDuplicate(ctx context.Context, title, origin string) (*library.Match, error) {
	args := m.Called(ctx, title, origin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*library.Match), args.Error(1)
}

func (m *mockLibrary) Policy() library.Policy {
	return m.Called().Get(0).(library.Policy)
}

type mockRecorder struct{ mock.Mock }

func (m *mockRecorder) RecordOutcome(ctx context.Context, runID string, outcome model.BatchItemOutcome) error {
	return m.Called(ctx, runID, outcome).Error(0)
}
