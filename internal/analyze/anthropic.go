package analyze

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/paper-cli/internal/model"
	"github.com/sells-group/paper-cli/pkg/anthropic"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-5-20250929"
	defaultAnthropicMaxTokens = 2048

	// statusOverloaded is Anthropic's non-standard "overloaded" status.
	statusOverloaded = 529
)

// AnthropicProvider sends prompts to the Anthropic Messages API.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewAnthropicProvider wraps client. Zero values select the defaults.
func NewAnthropicProvider(client anthropic.Client, model string, maxTokens int, timeout time.Duration) *AnthropicProvider {
	if model == "" {
		model = defaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicProvider{client: client, model: model, maxTokens: maxTokens, timeout: timeout}
}

func (p *AnthropicProvider) Name() string  { return ProviderAnthropic }
func (p *AnthropicProvider) Model() string { return p.model }
func (p *AnthropicProvider) Close() error  { return nil }

// Complete sends one message at temperature zero.
func (p *AnthropicProvider) Complete(ctx context.Context, pr Prompt) (*Completion, error) {
	callCtx, cancel := callContext(ctx, p.timeout)
	defer cancel()

	maxTokens := p.maxTokens
	if pr.MaxTokens > 0 {
		maxTokens = pr.MaxTokens
	}
	temp := 0.0
	resp, err := p.client.CreateMessage(callCtx, anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   int64(maxTokens),
		System:      pr.System,
		Messages:    []anthropic.Message{{Role: "user", Content: pr.User}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, classifyAnthropic(ctx, callCtx, err)
	}

	text := resp.Text()
	if text == "" {
		return nil, model.ServiceError(model.ServiceInvalidResponse, "anthropic returned no text", nil)
	}
	m := resp.Model
	if m == "" {
		m = p.model
	}
	return &Completion{
		Text:         text,
		Model:        m,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

func classifyAnthropic(parent, call context.Context, err error) error {
	if parent.Err() != nil {
		return eris.Wrap(parent.Err(), "analyze: cancelled")
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) {
		return model.ServiceError(model.ServiceTimeout, "anthropic request timed out", err)
	}

	switch status := anthropic.StatusCode(err); {
	case status == http.StatusTooManyRequests:
		return model.ServiceError(model.ServiceRateLimited, "anthropic rate limit", err)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return model.ServiceError(model.ServiceTimeout, "anthropic timed out", err)
	case status == statusOverloaded || status >= 500:
		return model.ServiceError(model.ServiceUnavailable, "anthropic unavailable", err)
	case status >= 400:
		return model.ServiceError(model.ServiceUnavailable, "anthropic rejected the request", err)
	default:
		return model.ServiceError(model.ServiceUnavailable, "anthropic unreachable", err)
	}
}
