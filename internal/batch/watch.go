package batch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/paper-cli/internal/ingest"
	"github.com/sells-group/paper-cli/internal/model"
)

// settled remembers the version of each file that ended without success so
// it is not retried until it changes.
type settled struct {
	mu    sync.Mutex
	files map[string]fingerprint
}

func (s *settled) mark(path string) {
	fp, ok := fingerprintOf(path)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = fp
}

func (s *settled) unchanged(path string) bool {
	fp, ok := fingerprintOf(path)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, seen := s.files[path]
	return seen && prev == fp
}

// Watch processes the PDFs already in folder, then every PDF that appears
// or changes until ctx is cancelled. A document in flight at cancellation
// runs to completion and its outcome is recorded before Watch returns.
func (d *Driver) Watch(ctx context.Context, folder string, recursive bool) error {
	folder = filepath.Clean(folder)
	pacer := ingest.NewPacer(d.cfg.Delay)
	done := &settled{files: map[string]fingerprint{}}

	sources := d.sources
	if sources == nil {
		processed := filepath.Join(folder, d.cfg.ProcessedDir)
		sources = []Source{
			NewFSNotifySource(folder, recursive, func(dir string) bool {
				return dir == processed || strings.HasPrefix(filepath.Base(dir), ".")
			}),
			NewPollSource(d.cfg.PollInterval, func() ([]string, error) {
				return d.listPDFs(folder, recursive)
			}),
		}
	}

	raw := make(chan string, d.cfg.QueueSize)
	ready := make(chan string, d.cfg.QueueSize)

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(wctx)
	for _, s := range sources {
		g.Go(func() error { return s.Run(gctx, raw) })
	}
	g.Go(func() error {
		return newDebouncer(d.cfg.Debounce, func(p string) bool {
			return d.eligible(folder, p, recursive)
		}).run(gctx, raw, ready)
	})

	d.log.Info("watching folder",
		zap.String("folder", folder),
		zap.Bool("recursive", recursive),
		zap.Duration("debounce", d.cfg.Debounce),
		zap.Duration("poll_interval", d.cfg.PollInterval),
	)

	_, err := d.runBatch(ctx, folder, recursive, pacer, func(path string, out model.BatchItemOutcome) {
		if out.Status != model.StatusSuccess {
			done.mark(path)
		}
	})
	if err == nil {
		d.consume(gctx, folder, ready, pacer, done)
	}
	cancel()

	if werr := g.Wait(); werr != nil {
		return werr
	}
	if ctx.Err() != nil {
		d.log.Info("watch stopped", zap.Int("outcomes", d.outcomes.Len()))
		return nil
	}
	return err
}

func (d *Driver) consume(ctx context.Context, folder string, ready <-chan string, pacer *ingest.Pacer, done *settled) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-ready:
			if _, ok := fingerprintOf(path); !ok {
				continue
			}
			if done.unchanged(path) {
				d.log.Debug("unchanged since last attempt", zap.String("file", path))
				continue
			}
			d.log.Info("new file", zap.String("file", d.display(folder, path)))

			out := d.process(context.WithoutCancel(ctx), folder, path, pacer)
			if out.Status != model.StatusSuccess {
				done.mark(path)
				if out.Status == model.StatusFailed {
					d.log.Info("failed, will retry when the file changes", zap.String("file", d.display(folder, path)))
				}
			}
		}
	}
}

// eligible reports whether path is a PDF Watch should handle.
func (d *Driver) eligible(folder, path string, recursive bool) bool {
	if !isPDFName(path) {
		return false
	}
	rel, err := filepath.Rel(folder, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	dir := filepath.Dir(rel)
	if dir == "." {
		return true
	}
	if !recursive {
		return false
	}
	first := strings.Split(filepath.ToSlash(dir), "/")[0]
	return first != filepath.ToSlash(d.cfg.ProcessedDir) && !strings.HasPrefix(first, ".")
}
