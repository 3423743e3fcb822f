package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/paper-cli/internal/db"
	"github.com/sells-group/paper-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_run":     `INSERT INTO runs (id, mode, target, source, policy, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"finish_run":     `UPDATE runs SET summary = $1, finished_at = $2 WHERE id = $3`,
	"get_run":        `SELECT id, mode, target, source, policy, summary, started_at, finished_at FROM runs WHERE id = $1`,
	"insert_outcome": `INSERT INTO outcomes (id, run_id, status, error_kind, data, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	mode        TEXT NOT NULL,
	target      TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	policy      TEXT NOT NULL DEFAULT 'skip',
	summary     JSONB,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS outcomes (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	status     TEXT NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_outcomes_run_id ON outcomes(run_id);
CREATE INDEX IF NOT EXISTS idx_outcomes_status ON outcomes(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, meta RunMeta) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, mode, target, source, policy, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, string(meta.Mode), meta.Target, meta.Source, meta.Policy, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Mode:      meta.Mode,
		Target:    meta.Target,
		Source:    meta.Source,
		Policy:    meta.Policy,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, summary model.Summary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET summary = $1, finished_at = $2 WHERE id = $3`,
		summaryJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx,
		`SELECT id, mode, target, source, policy, summary, started_at, finished_at FROM runs WHERE id = $1`,
		runID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	r.Outcomes, err = s.ListOutcomes(ctx, OutcomeFilter{RunID: runID, Limit: -1})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, mode, target, source, policy, summary, started_at, finished_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Mode != "" {
		query += fmt.Sprintf(` AND mode = $%d`, argIdx)
		args = append(args, string(filter.Mode))
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND started_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) RecordOutcome(ctx context.Context, runID string, outcome model.BatchItemOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal outcome")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO outcomes (id, run_id, status, error_kind, data, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), runID, string(outcome.Status), string(outcome.ErrorKind), data, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: record outcome for run %s", runID)
}

// ListOutcomes returns outcomes oldest first. A negative limit means no limit.
func (s *PostgresStore) ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]model.BatchItemOutcome, error) {
	query := `SELECT data FROM outcomes WHERE true`
	args := []any{}
	argIdx := 1

	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, argIdx)
		args = append(args, filter.RunID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.ErrorKind != "" {
		query += fmt.Sprintf(` AND error_kind = $%d`, argIdx)
		args = append(args, string(filter.ErrorKind))
		argIdx++
	}
	query += ` ORDER BY created_at`
	if filter.Limit >= 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, listLimit(filter.Limit))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list outcomes")
	}
	defer rows.Close()

	var out []model.BatchItemOutcome
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		var o model.BatchItemOutcome
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal outcome")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list outcomes iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var mode string
	var summaryNull *[]byte

	if err := row.Scan(&r.ID, &mode, &r.Target, &r.Source, &r.Policy, &summaryNull, &r.StartedAt, &r.FinishedAt); err != nil {
		return nil, err
	}
	r.Mode = model.RunMode(mode)
	if summaryNull != nil {
		r.Summary = &model.Summary{}
		if err := json.Unmarshal(*summaryNull, r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &r, nil
}
