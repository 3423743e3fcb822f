package analyze

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/paper-cli/internal/config"
	"github.com/sells-group/paper-cli/pkg/anthropic"
	"github.com/sells-group/paper-cli/pkg/gemini"
)

// Provider names accepted in extraction.provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Prompt is one extraction request.
type Prompt struct {
	System    string
	User      string
	MaxTokens int
}

// Completion is the service reply and what it cost.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Provider sends one prompt to an extraction service. Errors are
// *model.Error values of kind ExtractionServiceError.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, p Prompt) (*Completion, error)
	Close() error
}

// NewProvider builds the provider named by cfg.Extraction.Provider.
func NewProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	timeout := time.Duration(cfg.Extraction.TimeoutSecs) * time.Second

	switch cfg.Extraction.Provider {
	case ProviderAnthropic, "":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("analyze: anthropic provider requires anthropic.key")
		}
		client := anthropic.NewClient(cfg.Anthropic.Key)
		return NewAnthropicProvider(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, timeout), nil
	case ProviderGemini:
		client, err := gemini.NewClient(ctx, cfg.Gemini.Project, cfg.Gemini.Location, cfg.Gemini.CredentialsFile)
		if err != nil {
			return nil, eris.Wrap(err, "analyze: gemini provider")
		}
		return NewGeminiProvider(client, cfg.Gemini.Model, 0, timeout), nil
	default:
		return nil, eris.Errorf("analyze: unknown provider %q", cfg.Extraction.Provider)
	}
}

// callContext applies the per-call timeout, if any.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
