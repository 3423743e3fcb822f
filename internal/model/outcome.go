package model

import (
	"sync"
	"time"
)

// PageOperation records what the store gateway did with a record.
type PageOperation string

const (
	OpCreated PageOperation = "created"
	OpUpdated PageOperation = "updated"
	OpSkipped PageOperation = "skipped"
)

// StoredPageRef identifies the store record affected by one pipeline run.
type StoredPageRef struct {
	PageID    string        `json:"page_id"`
	URL       string        `json:"url"`
	Operation PageOperation `json:"operation"`
}

// OutcomeStatus is the terminal status of one document.
type OutcomeStatus string

const (
	StatusSuccess OutcomeStatus = "success"
	StatusSkipped OutcomeStatus = "skipped"
	StatusFailed  OutcomeStatus = "failed"
)

// BatchItemOutcome is the result of driving one reference through the pipeline.
type BatchItemOutcome struct {
	Reference Reference      `json:"reference"`
	Status    OutcomeStatus  `json:"status"`
	Page      *StoredPageRef `json:"page,omitempty"`
	ErrorKind ErrorKind      `json:"error_kind,omitempty"`
	Error     string         `json:"error,omitempty"`
	Title     string         `json:"title,omitempty"`
	Partial   bool           `json:"partial,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

// Summary tallies a set of outcomes.
type Summary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Partial int `json:"partial"`
}

// Tally aggregates outcomes into a Summary.
func Tally(outcomes []BatchItemOutcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch o.Status {
		case StatusSuccess:
			s.Success++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
		if o.Partial {
			s.Partial++
		}
	}
	return s
}

// OutcomeLog is the run-level, append-only outcome list shared across workers.
type OutcomeLog struct {
	mu       sync.Mutex
	outcomes []BatchItemOutcome
}

// Append adds an outcome.
func (l *OutcomeLog) Append(o BatchItemOutcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, o)
}

// Outcomes returns a copy of the recorded outcomes.
func (l *OutcomeLog) Outcomes() []BatchItemOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]BatchItemOutcome, len(l.outcomes))
	copy(out, l.outcomes)
	return out
}

// Len returns the number of recorded outcomes.
func (l *OutcomeLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.outcomes)
}

// RunMode names the entry point that started a run.
type RunMode string

const (
	ModeSingle RunMode = "single"
	ModeFolder RunMode = "folder"
	ModeWatch  RunMode = "watch"
	ModeServe  RunMode = "serve"
)

// Run is one invocation of the CLI as recorded in the local ledger.
type Run struct {
	ID         string             `json:"id"`
	Mode       RunMode            `json:"mode"`
	Target     string             `json:"target"`
	Source     string             `json:"source"`
	Policy     string             `json:"duplicate_policy"`
	Summary    *Summary           `json:"summary,omitempty"`
	Outcomes   []BatchItemOutcome `json:"outcomes,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}
