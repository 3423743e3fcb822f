package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/paper-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "folder", "/papers", "lab", "update", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), RunMeta{Mode: model.ModeFolder, Target: "/papers", Source: "lab", Policy: "update"})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.ModeFolder, run.Mode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, mode, target, source, policy, summary, started_at, finished_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_WithOutcomes(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)
	summary, _ := json.Marshal(model.Summary{Total: 1, Failed: 1})
	outcome, _ := json.Marshal(failedOutcome("x.pdf", model.ErrCorruptDocument))

	mock.ExpectQuery(`FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "mode", "target", "source", "policy", "summary", "started_at", "finished_at"}).
			AddRow("run-1", "folder", "/papers", "lab", "skip", &summary, started, &finished))
	mock.ExpectQuery(`SELECT data FROM outcomes WHERE true AND run_id = \$1 ORDER BY created_at$`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(outcome))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.ModeFolder, run.Mode)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 1, run.Summary.Failed)
	require.NotNil(t, run.FinishedAt)
	assert.True(t, finished.Equal(*run.FinishedAt))
	require.Len(t, run.Outcomes, 1)
	assert.Equal(t, model.ErrCorruptDocument, run.Outcomes[0].ErrorKind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET summary`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishRun(context.Background(), "missing", model.Summary{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordOutcome(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO outcomes`).
		WithArgs(pgxmock.AnyArg(), "run-1", "failed", "ScannedDocument", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordOutcome(context.Background(), "run-1", failedOutcome("scan.pdf", model.ErrScannedDocument))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE true AND mode = \$1 ORDER BY started_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("watch", 5, 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "mode", "target", "source", "policy", "summary", "started_at", "finished_at"}))

	runs, err := s.ListRuns(context.Background(), RunFilter{Mode: model.ModeWatch, Limit: 5, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListOutcomes_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM outcomes`).
		WithArgs("failed", 100).
		WillReturnError(errors.New("connection reset"))

	_, err := s.ListOutcomes(context.Background(), OutcomeFilter{Status: model.StatusFailed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list outcomes")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
