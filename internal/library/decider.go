package library

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/paper-cli/internal/model"
)

// Decider chooses between skip and update for one duplicate under the ask
// policy.
type Decider interface {
	Decide(ctx context.Context, rec *model.MetadataRecord, m *Match) (Policy, error)
}

// PromptDecider asks on a terminal. Prompts are serialized across workers.
type PromptDecider struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewPromptDecider returns a decider reading in and writing prompts to out.
func NewPromptDecider(in io.Reader, out io.Writer) *PromptDecider {
	return &PromptDecider{in: bufio.NewReader(in), out: out}
}

// StdinDecider returns a PromptDecider on stdin/stderr, or nil when stdin is
// not a terminal so that ask falls back to skip.
func StdinDecider() Decider {
	fi, err := os.Stdin.Stat()
	if err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		return nil
	}
	return NewPromptDecider(os.Stdin, os.Stderr)
}

// Decide prints the match and reads y/N. Anything but yes skips.
func (d *PromptDecider) Decide(ctx context.Context, rec *model.MetadataRecord, m *Match) (Policy, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "library: prompt")
	}

	fmt.Fprintf(d.out, "%q already exists (matched by %s: %s).\nUpdate it? [y/N] ", rec.Title, m.By, m.URL)
	line, err := d.in.ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			return PolicySkip, nil
		}
		return "", eris.Wrap(err, "library: read answer")
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return PolicyUpdate, nil
	default:
		return PolicySkip, nil
	}
}
