package analyze

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"google.golang.org/grpc/codes"

	"github.com/sells-group/paper-cli/internal/model"
	"github.com/sells-group/paper-cli/pkg/gemini"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiProvider sends prompts to Gemini on Vertex AI with a JSON response
// MIME type.
type GeminiProvider struct {
	client    gemini.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewGeminiProvider wraps client. An empty model selects gemini-2.5-flash.
func NewGeminiProvider(client gemini.Client, model string, maxTokens int, timeout time.Duration) *GeminiProvider {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{client: client, model: model, maxTokens: maxTokens, timeout: timeout}
}

func (p *GeminiProvider) Name() string  { return ProviderGemini }
func (p *GeminiProvider) Model() string { return p.model }
func (p *GeminiProvider) Close() error  { return p.client.Close() }

// Complete runs one generation.
func (p *GeminiProvider) Complete(ctx context.Context, pr Prompt) (*Completion, error) {
	callCtx, cancel := callContext(ctx, p.timeout)
	defer cancel()

	maxTokens := p.maxTokens
	if pr.MaxTokens > 0 {
		maxTokens = pr.MaxTokens
	}
	resp, err := p.client.Generate(callCtx, gemini.GenerateRequest{
		Model:           p.model,
		System:          pr.System,
		Prompt:          pr.User,
		MaxOutputTokens: int32(maxTokens), //nolint:gosec // small config value
	})
	if err != nil {
		return nil, classifyGemini(ctx, callCtx, err)
	}

	if resp.Text == "" {
		reason := resp.FinishReason
		if reason == "" {
			reason = "empty response"
		}
		return nil, model.ServiceError(model.ServiceInvalidResponse, "gemini returned no text: "+reason, nil)
	}
	if strings.Contains(strings.ToUpper(resp.FinishReason), "SAFETY") {
		return nil, model.ServiceError(model.ServiceInvalidResponse, "gemini blocked the response", nil)
	}
	return &Completion{
		Text:         resp.Text,
		Model:        p.model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}

func classifyGemini(parent, call context.Context, err error) error {
	if parent.Err() != nil {
		return eris.Wrap(parent.Err(), "analyze: cancelled")
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) {
		return model.ServiceError(model.ServiceTimeout, "gemini request timed out", err)
	}

	switch gemini.Code(err) {
	case codes.ResourceExhausted:
		return model.ServiceError(model.ServiceRateLimited, "gemini quota exhausted", err)
	case codes.DeadlineExceeded:
		return model.ServiceError(model.ServiceTimeout, "gemini timed out", err)
	default:
		return model.ServiceError(model.ServiceUnavailable, "gemini unavailable", err)
	}
}
