// Package batch feeds folders of PDFs through the ingestion pipeline, once
// or continuously.
package batch

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/paper-cli/internal/ingest"
	"github.com/sells-group/paper-cli/internal/model"
)

// Runner processes one reference. *ingest.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, ref model.Reference, pacer *ingest.Pacer) model.BatchItemOutcome
}

// Config tunes the driver. Zero values take the defaults.
type Config struct {
	Source string

	// Delay is the minimum spacing between document starts.
	Delay time.Duration

	// Workers bounds parallel documents. Default: 1.
	Workers int

	// MaxRequestsPerMinute caps Workers at MaxRequestsPerMinute × Delay.
	MaxRequestsPerMinute int

	// ProcessedDir is where successful files are moved, relative to the
	// watched folder. Default: processed.
	ProcessedDir string

	PollInterval time.Duration
	Debounce     time.Duration
	QueueSize    int
}

func (c Config) withDefaults() Config {
	if c.Delay < 0 {
		c.Delay = 0
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.ProcessedDir == "" {
		c.ProcessedDir = "processed"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.Debounce <= 0 {
		c.Debounce = 1500 * time.Millisecond
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	return c
}

// Option configures a Driver.
type Option func(*Driver)

// WithOutcomeHandler is called once per finished document, from the
// goroutine that ran it.
func WithOutcomeHandler(fn func(model.BatchItemOutcome)) Option {
	return func(d *Driver) { d.onOutcome = fn }
}

// WithSources replaces the change sources used by Watch.
func WithSources(sources ...Source) Option {
	return func(d *Driver) { d.sources = sources }
}

// Driver runs batches of local PDFs through a Runner.
type Driver struct {
	runner    Runner
	cfg       Config
	outcomes  *model.OutcomeLog
	onOutcome func(model.BatchItemOutcome)
	sources   []Source
	log       *zap.Logger
}

// New creates a Driver.
func New(runner Runner, cfg Config, opts ...Option) *Driver {
	d := &Driver{
		runner:   runner,
		cfg:      cfg.withDefaults(),
		outcomes: &model.OutcomeLog{},
		log:      zap.L().With(zap.String("component", "batch")),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Outcomes returns every outcome recorded by this driver so far.
func (d *Driver) Outcomes() []model.BatchItemOutcome {
	return d.outcomes.Outcomes()
}

// Workers returns the effective pool size after the rate cap.
func (d *Driver) Workers() int {
	w := d.cfg.Workers
	if d.cfg.MaxRequestsPerMinute > 0 && d.cfg.Delay > 0 {
		limit := int(float64(d.cfg.MaxRequestsPerMinute) * d.cfg.Delay.Minutes())
		if limit < 1 {
			limit = 1
		}
		if w > limit {
			w = limit
		}
	}
	return w
}

// RunBatch processes every PDF under folder once. Successful files are
// moved under the processed directory. It stops scheduling new files when
// ctx is cancelled; documents already started run to completion. It returns
// the outcomes of the files it ran.
func (d *Driver) RunBatch(ctx context.Context, folder string, recursive bool) ([]model.BatchItemOutcome, error) {
	return d.runBatch(ctx, folder, recursive, ingest.NewPacer(d.cfg.Delay), nil)
}

func (d *Driver) runBatch(ctx context.Context, folder string, recursive bool, pacer *ingest.Pacer, done func(string, model.BatchItemOutcome)) ([]model.BatchItemOutcome, error) {
	files, err := d.listPDFs(folder, recursive)
	if err != nil {
		return nil, err
	}

	workers := d.Workers()
	d.log.Info("batch started",
		zap.String("folder", folder),
		zap.Int("files", len(files)),
		zap.Int("workers", workers),
		zap.Duration("delay", d.cfg.Delay),
	)

	// Cancellation stops scheduling only. Started documents run to completion.
	runCtx := context.WithoutCancel(ctx)

	log := &model.OutcomeLog{}
	g := &errgroup.Group{}
	g.SetLimit(workers)

	for i, path := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			d.log.Info("processing",
				zap.Int("index", i+1),
				zap.Int("total", len(files)),
				zap.String("file", d.display(folder, path)),
			)
			out := d.process(runCtx, folder, path, pacer)
			log.Append(out)
			if done != nil {
				done(path, out)
			}
			return nil
		})
	}
	_ = g.Wait()

	outcomes := log.Outcomes()
	s := model.Tally(outcomes)
	d.log.Info("batch finished",
		zap.Int("success", s.Success),
		zap.Int("skipped", s.Skipped),
		zap.Int("failed", s.Failed),
	)
	if err := ctx.Err(); err != nil {
		return outcomes, eris.Wrap(err, "batch: interrupted")
	}
	return outcomes, nil
}

// process runs one file and moves it on success.
func (d *Driver) process(ctx context.Context, folder, path string, pacer *ingest.Pacer) model.BatchItemOutcome {
	ref := model.NewReference(model.ReferenceLocalPath, path, d.cfg.Source)
	out := d.runner.Run(ctx, ref, pacer)

	if out.Status == model.StatusSuccess {
		dest, err := moveProcessed(folder, path, d.cfg.ProcessedDir)
		if err != nil {
			d.log.Warn("could not move processed file", zap.String("file", path), zap.Error(err))
		} else {
			d.log.Debug("moved processed file", zap.String("from", path), zap.String("to", dest))
		}
	}

	d.outcomes.Append(out)
	if d.onOutcome != nil {
		d.onOutcome(out)
	}
	return out
}

func (d *Driver) display(folder, path string) string {
	if rel, err := filepath.Rel(folder, path); err == nil {
		return rel
	}
	return path
}

// listPDFs returns the sorted *.pdf files under folder, case-insensitive,
// skipping the processed directory.
func (d *Driver) listPDFs(folder string, recursive bool) ([]string, error) {
	processed := filepath.Join(folder, d.cfg.ProcessedDir)
	var files []string
	err := filepath.WalkDir(folder, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() {
			if path == folder {
				return nil
			}
			if !recursive || path == processed || strings.HasPrefix(e.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if isPDFName(path) && e.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "batch: list %s", folder)
	}
	sort.Strings(files)
	return files, nil
}

func isPDFName(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
