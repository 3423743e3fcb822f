// Package analyze extracts structured paper metadata with a language model.
package analyze

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/paper-cli/internal/cost"
	"github.com/sells-group/paper-cli/internal/model"
	"github.com/sells-group/paper-cli/internal/resilience"
)

// Option configures a Client.
type Option func(*Client)

// WithRetry sets the rate-limit retry policy. ShouldRetry is always
// replaced: only RateLimited errors are retried.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithCircuit sets the breaker thresholds for the extraction service.
// Timeouts and outages count toward opening it; rate limits and malformed
// replies do not.
func WithCircuit(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *Client) { c.circuit = cfg }
}

// WithCost attaches a calculator that prices every call.
func WithCost(calc *cost.Calculator) Option {
	return func(c *Client) { c.cost = calc }
}

// WithMaxChars sets the budget used when Analyze is called with maxChars <= 0.
func WithMaxChars(n int) Option {
	return func(c *Client) { c.maxChars = n }
}

// Client turns extracted text into a MetadataRecord.
type Client struct {
	provider Provider
	retry    resilience.RetryConfig
	circuit  resilience.CircuitBreakerConfig
	breaker  *resilience.CircuitBreaker
	cost     *cost.Calculator
	maxChars int
	log      *zap.Logger
}

// New creates a Client over provider. The default policy makes 3 attempts
// starting at a 2s backoff.
func New(provider Provider, opts ...Option) *Client {
	c := &Client{
		provider: provider,
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     60 * time.Second,
			Multiplier:     2,
		},
		circuit:  resilience.DefaultCircuitBreakerConfig(),
		maxChars: DefaultMaxChars,
		log:      zap.L().With(zap.String("component", "analyze")),
	}
	for _, o := range opts {
		o(c)
	}
	c.retry.ShouldRetry = func(err error) bool {
		return model.IsServiceKind(err, model.ServiceRateLimited)
	}
	c.retry.OnRetry = resilience.RetryLogger(provider.Name(), "analyze")
	c.circuit.ShouldTrip = func(err error) bool {
		return model.IsServiceKind(err, model.ServiceTimeout) || model.IsServiceKind(err, model.ServiceUnavailable)
	}
	c.circuit.OnStateChange = func(service string, from, to resilience.CircuitState) {
		c.log.Warn("circuit state changed", zap.String("service", service), zap.Stringer("from", from), zap.Stringer("to", to))
	}
	c.breaker = resilience.NewCircuitBreaker(provider.Name(), c.circuit)
	return c
}

// Analyze sends text, truncated to maxChars, to the provider and parses
// the reply. Missing fields make the record partial rather than failing.
// The extracted title and PDF author fill in for fields the reply lacks.
func (c *Client) Analyze(ctx context.Context, text *model.ExtractedText, maxChars int) (*model.MetadataRecord, error) {
	if maxChars <= 0 {
		maxChars = c.maxChars
	}
	body := Truncate(text, maxChars)
	prompt := buildPrompt(body)

	start := time.Now()
	var completion *Completion
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		completion, err = resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*Completion, error) {
			return c.provider.Complete(ctx, prompt)
		})
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, model.ServiceError(model.ServiceUnavailable, c.provider.Name()+" circuit open", err)
	}
	if err != nil {
		return nil, err
	}

	if c.cost != nil {
		c.cost.Log(c.provider.Name(), completion.Model, text.Title, completion.InputTokens, completion.OutputTokens)
	}

	rec, err := parseRecord(completion.Text)
	if err != nil {
		return nil, err
	}
	applyFallbacks(rec, text)

	c.log.Info("metadata extracted",
		zap.String("provider", c.provider.Name()),
		zap.String("model", completion.Model),
		zap.Int("chars_sent", len([]rune(body))),
		zap.Bool("partial", rec.Partial),
		zap.Strings("missing_fields", rec.MissingFields),
		zap.Duration("duration", time.Since(start)),
	)
	return rec, nil
}

// Ping makes one tiny request without retries.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.provider.Complete(ctx, pingPrompt())
	return err
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider { return c.provider }

// applyFallbacks fills title and authors from the PDF when the service
// omitted them. The record stays partial.
func applyFallbacks(rec *model.MetadataRecord, text *model.ExtractedText) {
	if rec.Title == "" && text.Title != "" {
		rec.Title = text.Title
	}
	if len(rec.Authors) == 0 && strings.TrimSpace(text.Author) != "" {
		rec.Authors = model.UniqueFold(authorSplit.Split(text.Author, -1))
	}
}
