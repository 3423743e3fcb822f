package analyze

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/paper-cli/pkg/anthropic"
	"github.com/sells-group/paper-cli/pkg/gemini"
)

// --- Anthropic Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// --- Gemini Mock ---

type mockGeminiClient struct {
	mock.Mock
}

func (m *mockGeminiClient) Generate(ctx context.Context, req gemini.GenerateRequest) (*gemini.GenerateResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gemini.GenerateResponse), args.Error(1)
}

func (m *mockGeminiClient) Close() error {
	return m.Called().Error(0)
}

// --- Scripted Provider ---

// scriptedProvider replays a fixed sequence of results and records prompts.
type scriptedProvider struct {
	mu      sync.Mutex
	results []providerResult
	prompts []Prompt
}

type providerResult struct {
	completion *Completion
	err        error
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-1" }
func (p *scriptedProvider) Close() error  { return nil }

func (p *scriptedProvider) Complete(_ context.Context, pr Prompt) (*Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := len(p.prompts)
	p.prompts = append(p.prompts, pr)
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	r := p.results[i]
	return r.completion, r.err
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}
