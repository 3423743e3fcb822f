package batch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Source reports paths that may have been created or changed. Run sends on
// out until ctx is done.
type Source interface {
	Run(ctx context.Context, out chan<- string) error
}

// FSNotifySource reports filesystem events under a root directory.
type FSNotifySource struct {
	root      string
	recursive bool
	skipDir   func(path string) bool
	log       *zap.Logger
}

// NewFSNotifySource watches root, and its subdirectories when recursive.
// Directories for which skipDir returns true are not watched.
func NewFSNotifySource(root string, recursive bool, skipDir func(path string) bool) *FSNotifySource {
	return &FSNotifySource{
		root:      root,
		recursive: recursive,
		skipDir:   skipDir,
		log:       zap.L().With(zap.String("component", "batch.fsnotify")),
	}
}

func (s *FSNotifySource) Run(ctx context.Context, out chan<- string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "batch: create fsnotify watcher")
	}
	defer w.Close() //nolint:errcheck

	if err := s.addTree(w, s.root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if s.recursive && e.Has(fsnotify.Create) {
				if fi, err := os.Stat(e.Name); err == nil && fi.IsDir() {
					if err := s.addTree(w, e.Name); err != nil {
						s.log.Warn("could not watch new directory", zap.String("dir", e.Name), zap.Error(err))
					}
					continue
				}
			}
			if e.Has(fsnotify.Create) || e.Has(fsnotify.Write) {
				if !send(ctx, out, e.Name) {
					return nil
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			// Overflowed events are picked up by the poll source.
			s.log.Warn("fsnotify error", zap.Error(err))
		}
	}
}

func (s *FSNotifySource) addTree(w *fsnotify.Watcher, root string) error {
	if !s.recursive {
		return eris.Wrapf(w.Add(root), "batch: watch %s", root)
	}
	err := filepath.WalkDir(root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !e.IsDir() {
			return nil
		}
		if path != root && s.skipDir != nil && s.skipDir(path) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
	return eris.Wrapf(err, "batch: watch %s", root)
}

// PollSource lists a folder periodically and reports PDFs that are new or
// changed since the previous listing. Files present at start are not
// reported.
type PollSource struct {
	interval time.Duration
	list     func() ([]string, error)
	log      *zap.Logger
}

// NewPollSource polls list every interval.
func NewPollSource(interval time.Duration, list func() ([]string, error)) *PollSource {
	return &PollSource{
		interval: interval,
		list:     list,
		log:      zap.L().With(zap.String("component", "batch.poll")),
	}
}

func (s *PollSource) Run(ctx context.Context, out chan<- string) error {
	seen := s.snapshot()

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}

		current := s.snapshot()
		for path, fp := range current {
			if prev, ok := seen[path]; ok && prev == fp {
				continue
			}
			if !send(ctx, out, path) {
				return nil
			}
		}
		seen = current
	}
}

func (s *PollSource) snapshot() map[string]fingerprint {
	paths, err := s.list()
	if err != nil {
		s.log.Warn("poll listing failed", zap.Error(err))
		return map[string]fingerprint{}
	}
	out := make(map[string]fingerprint, len(paths))
	for _, p := range paths {
		if fp, ok := fingerprintOf(p); ok {
			out[p] = fp
		}
	}
	return out
}

// fingerprint identifies one version of a file.
type fingerprint struct {
	size    int64
	modTime time.Time
}

func fingerprintOf(path string) (fingerprint, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return fingerprint{}, false
	}
	return fingerprint{size: fi.Size(), modTime: fi.ModTime()}, true
}

func send(ctx context.Context, out chan<- string, path string) bool {
	select {
	case out <- path:
		return true
	case <-ctx.Done():
		return false
	}
}

// debouncer holds paths until they have been quiet for the debounce period
// and their size is unchanged across two stats.
type debouncer struct {
	quiet   time.Duration
	accept  func(path string) bool
	pending map[string]*pendingFile
}

type pendingFile struct {
	last time.Time
	size int64
}

func newDebouncer(quiet time.Duration, accept func(string) bool) *debouncer {
	return &debouncer{quiet: quiet, accept: accept, pending: map[string]*pendingFile{}}
}

func (d *debouncer) run(ctx context.Context, in <-chan string, out chan<- string) error {
	tick := max(d.quiet/4, 10*time.Millisecond)
	t := time.NewTicker(tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case path := <-in:
			if d.accept == nil || d.accept(path) {
				d.pending[path] = &pendingFile{last: time.Now(), size: -1}
			}
		case now := <-t.C:
			for path, p := range d.pending {
				if now.Sub(p.last) < d.quiet {
					continue
				}
				fi, err := os.Stat(path)
				if err != nil {
					delete(d.pending, path)
					continue
				}
				if fi.Size() != p.size {
					p.size = fi.Size()
					p.last = now
					continue
				}
				delete(d.pending, path)
				if !send(ctx, out, path) {
					return nil
				}
			}
		}
	}
}
