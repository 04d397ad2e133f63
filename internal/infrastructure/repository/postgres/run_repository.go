// Package postgres persists reformulation runs and their per-query results.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
)

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS reformulation_runs (
	id TEXT PRIMARY KEY,
	method TEXT NOT NULL,
	status TEXT NOT NULL,
	fallbacks INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS reformulation_results (
	run_id TEXT NOT NULL REFERENCES reformulation_runs(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	qid TEXT NOT NULL,
	original TEXT NOT NULL,
	reformulated TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_reformulation_runs_started_at ON reformulation_runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_reformulation_results_qid ON reformulation_results(qid);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// SaveRun upserts the run row and replaces its results, so a queued run can
// be saved again once it completes.
func (r *RunRepository) SaveRun(ctx context.Context, run *domain.ReformulationRun) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save run tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var finishedAt sql.NullTime
	if !run.FinishedAt.IsZero() {
		finishedAt = sql.NullTime{Time: run.FinishedAt, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO reformulation_runs (id, method, status, fallbacks, error_message, started_at, finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE
SET status = EXCLUDED.status, fallbacks = EXCLUDED.fallbacks, error_message = EXCLUDED.error_message,
	finished_at = EXCLUDED.finished_at
`, run.ID, run.Method, string(run.Status), run.Fallbacks, run.Error, run.StartedAt, finishedAt)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM reformulation_results WHERE run_id = $1`, run.ID); err != nil {
		return fmt.Errorf("clear run results: %w", err)
	}

	for i, res := range run.Results {
		meta := res.Metadata
		if meta == nil {
			meta = domain.NewMetadata()
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal metadata qid=%s: %w", res.QID, err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO reformulation_results (run_id, position, qid, original, reformulated, metadata)
VALUES ($1,$2,$3,$4,$5,$6)
`, run.ID, i, res.QID, res.Original, res.Reformulated, metaJSON)
		if err != nil {
			return fmt.Errorf("insert result qid=%s: %w", res.QID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save run tx: %w", err)
	}
	return nil
}

func (r *RunRepository) GetRun(ctx context.Context, id string) (*domain.ReformulationRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, method, status, fallbacks, error_message, started_at, finished_at
FROM reformulation_runs
WHERE id = $1
`, id)

	var run domain.ReformulationRun
	var status string
	var finishedAt sql.NullTime
	err := row.Scan(&run.ID, &run.Method, &status, &run.Fallbacks, &run.Error, &run.StartedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRunNotFound, "get run", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Status = domain.RunStatus(status)
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT qid, original, reformulated, metadata
FROM reformulation_results
WHERE run_id = $1
ORDER BY position ASC
`, id)
	if err != nil {
		return nil, fmt.Errorf("list run results: %w", err)
	}
	defer rows.Close()

	run.Results = make([]domain.ReformulationResult, 0)
	for rows.Next() {
		var res domain.ReformulationResult
		var metaRaw []byte
		if err := rows.Scan(&res.QID, &res.Original, &res.Reformulated, &metaRaw); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		res.Metadata = domain.NewMetadata()
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, res.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata qid=%s: %w", res.QID, err)
			}
		}
		run.Results = append(run.Results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return &run, nil
}
