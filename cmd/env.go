package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/paper-cli/internal/analyze"
	"github.com/sells-group/paper-cli/internal/config"
	"github.com/sells-group/paper-cli/internal/cost"
	"github.com/sells-group/paper-cli/internal/ingest"
	"github.com/sells-group/paper-cli/internal/library"
	"github.com/sells-group/paper-cli/internal/model"
	"github.com/sells-group/paper-cli/internal/pdftext"
	"github.com/sells-group/paper-cli/internal/resilience"
	"github.com/sells-group/paper-cli/internal/resolve"
	"github.com/sells-group/paper-cli/internal/store"
	"github.com/sells-group/paper-cli/pkg/notion"
	"github.com/sells-group/paper-cli/pkg/unpaywall"
)

// ingestEnv holds the initialized pipeline stages and the run ledger
// needed by the ingest/folder/watch/serve commands.
type ingestEnv struct {
	Store     store.Store
	Resolver  *resolve.Resolver
	Extractor *pdftext.Extractor
	Analyzer  *analyze.Client
	Library   *library.Gateway
}

// Close releases resources held by the environment.
func (e *ingestEnv) Close() {
	if e.Analyzer != nil {
		_ = e.Analyzer.Provider().Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates the config and builds every pipeline stage. policy
// overrides library.duplicate_policy when non-empty. Callers should defer
// env.Close().
func initEnv(ctx context.Context, mode, policy string) (*ingestEnv, error) {
	if policy != "" {
		cfg.Library.DuplicatePolicy = policy
	}
	if err := cfg.Validate(mode); err != nil {
		return nil, setupError(err)
	}
	dup, err := library.ParsePolicy(cfg.Library.DuplicatePolicy)
	if err != nil {
		return nil, setupError(err)
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, setupError(err)
	}
	env := &ingestEnv{Store: st}

	env.Resolver, err = newResolver()
	if err != nil {
		env.Close()
		return nil, setupError(err)
	}
	env.Extractor = newExtractor()

	env.Analyzer, err = newAnalyzer(ctx)
	if err != nil {
		env.Close()
		return nil, setupError(err)
	}

	libOpts := []library.Option{library.WithPolicy(dup)}
	if dup == library.PolicyAsk {
		if d := library.StdinDecider(); d != nil {
			libOpts = append(libOpts, library.WithDecider(d))
		} else {
			zap.L().Warn("duplicate policy ask needs an interactive terminal, duplicates will be skipped")
		}
	}
	env.Library = newGateway(libOpts...)

	if err := preflight(ctx, env.Library); err != nil {
		env.Close()
		return nil, err
	}

	zap.L().Info("pipeline ready",
		zap.String("provider", env.Analyzer.Provider().Name()),
		zap.String("model", env.Analyzer.Provider().Model()),
		zap.String("duplicate_policy", string(dup)),
		zap.String("store", cfg.Store.Driver),
	)
	return env, nil
}

type schemaChecker interface {
	CheckSchema(ctx context.Context) error
}

// preflight reaches the Notion database before any document runs, so bad
// credentials or an unshared database end the run as a setup failure. The
// ledger was already reached by Migrate in initStore.
func preflight(ctx context.Context, lib schemaChecker) error {
	if err := lib.CheckSchema(ctx); err != nil {
		return setupError(eris.Wrap(err, "notion database check"))
	}
	return nil
}

// startRun records a new run and returns an orchestrator that logs every
// outcome under it.
func (e *ingestEnv) startRun(ctx context.Context, meta store.RunMeta) (*model.Run, *ingest.Orchestrator, error) {
	meta.Policy = string(e.Library.Policy())
	run, err := e.Store.CreateRun(ctx, meta)
	if err != nil {
		return nil, nil, setupError(eris.Wrap(err, "create run"))
	}
	orch := ingest.New(e.Resolver, e.Extractor, e.Analyzer, e.Library,
		ingest.WithRecorder(e.Store, run.ID),
		ingest.WithMaxChars(cfg.Extraction.MaxChars),
	)
	return run, orch, nil
}

// finishRun stores the run summary. The context is detached so an
// interrupted run is still closed out.
func (e *ingestEnv) finishRun(ctx context.Context, runID string, outcomes []model.BatchItemOutcome) model.Summary {
	s := model.Tally(outcomes)
	if err := e.Store.FinishRun(context.WithoutCancel(ctx), runID, s); err != nil {
		zap.L().Warn("could not finish run", zap.String("run_id", runID), zap.Error(err))
	}
	return s
}

func newResolver() (*resolve.Resolver, error) {
	var patterns []resolve.Pattern
	if cfg.Resolve.PatternsFile != "" {
		p, err := resolve.LoadPatterns(cfg.Resolve.PatternsFile)
		if err != nil {
			return nil, err
		}
		patterns = p
	}

	return resolve.New(resolve.Config{
		Timeout:     time.Duration(cfg.Resolve.TimeoutSecs) * time.Second,
		MaxBytes:    cfg.Resolve.MaxBytes,
		MaxAttempts: cfg.Resolve.MaxAttempts,
		UserAgent:   cfg.Resolve.UserAgent,
		Patterns:    patterns,
	}, newUnpaywall()), nil
}

// newUnpaywall returns nil without a contact email; the open-access
// strategy is then skipped.
func newUnpaywall() unpaywall.Client {
	if cfg.Resolve.ContactEmail == "" {
		zap.L().Debug("PAPER_RESOLVE_CONTACT_EMAIL not set, open-access lookup disabled")
		return nil
	}
	return unpaywall.NewClient(cfg.Resolve.ContactEmail, unpaywall.WithBaseURL(cfg.Resolve.UnpaywallBaseURL))
}

func newExtractor() *pdftext.Extractor {
	return pdftext.New(pdftext.NewPdfToText(cfg.PDF.PdfToTextPath), cfg.PDF.RepeatMinPages)
}

func newAnalyzer(ctx context.Context) (*analyze.Client, error) {
	provider, err := analyze.NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return analyze.New(provider,
		analyze.WithRetry(resilience.FromRetryConfig(
			cfg.Extraction.MaxAttempts,
			cfg.Extraction.InitialBackoffMs,
			cfg.Extraction.MaxBackoffMs,
			0,
		)),
		analyze.WithCircuit(resilience.FromCircuitConfig(
			cfg.Circuit.FailureThreshold,
			cfg.Circuit.ResetTimeoutSecs,
		)),
		analyze.WithCost(cost.NewCalculator(ratesFromConfig(cfg.Pricing))),
		analyze.WithMaxChars(cfg.Extraction.MaxChars),
	), nil
}

func newGateway(opts ...library.Option) *library.Gateway {
	client := notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(cfg.Notion.RateLimit))
	opts = append(opts, library.WithCircuit(resilience.FromCircuitConfig(
		cfg.Circuit.FailureThreshold,
		cfg.Circuit.ResetTimeoutSecs,
	)))
	return library.New(client, cfg.Notion.DatabaseID, opts...)
}

func ratesFromConfig(p config.PricingConfig) cost.Rates {
	convert := func(in map[string]config.ModelPricing) map[string]cost.ModelRate {
		if len(in) == 0 {
			return nil
		}
		out := make(map[string]cost.ModelRate, len(in))
		for name, price := range in {
			out[name] = cost.ModelRate{Input: price.Input, Output: price.Output}
		}
		return out
	}
	return cost.Rates{Anthropic: convert(p.Anthropic), Gemini: convert(p.Gemini)}
}
