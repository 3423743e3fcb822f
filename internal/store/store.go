// Package store is the local ledger of ingestion runs and their per-document
// outcomes.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/paper-cli/internal/model"
)

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = eris.New("run not found")

// RunMeta describes a run as it starts.
type RunMeta struct {
	Mode   model.RunMode `json:"mode"`
	Target string        `json:"target"`
	Source string        `json:"source"`
	Policy string        `json:"duplicate_policy"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Mode   model.RunMode `json:"mode,omitempty"`
	Since  time.Time     `json:"since,omitempty"`
	Limit  int           `json:"limit,omitempty"`
	Offset int           `json:"offset,omitempty"`
}

// OutcomeFilter specifies criteria for listing outcomes.
type OutcomeFilter struct {
	RunID     string              `json:"run_id,omitempty"`
	Status    model.OutcomeStatus `json:"status,omitempty"`
	ErrorKind model.ErrorKind     `json:"error_kind,omitempty"`
	Limit     int                 `json:"limit,omitempty"`
}

// Store defines the persistence interface for the run ledger.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, meta RunMeta) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, summary model.Summary) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Outcomes
	RecordOutcome(ctx context.Context, runID string, outcome model.BatchItemOutcome) error
	ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]model.BatchItemOutcome, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
