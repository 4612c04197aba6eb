// Package history persists finished upload runs to Postgres so operators can
// review past ingestions. Only completed runs are recorded; the pipeline
// never resumes from stored state. The store is optional: when no database
// is configured the service runs without it.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/technoetl/bulkmedia/internal/ingest"
)

// Store writes run records to Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the history tables if they do not exist.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS media_runs (
			id          UUID PRIMARY KEY,
			session_id  TEXT NOT NULL,
			started_at  TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			cancelled   BOOLEAN NOT NULL DEFAULT FALSE,
			attempted   INTEGER NOT NULL,
			succeeded   INTEGER NOT NULL,
			failed      INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create media_runs: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS media_run_outcomes (
			id          BIGSERIAL PRIMARY KEY,
			run_id      UUID NOT NULL REFERENCES media_runs(id) ON DELETE CASCADE,
			product_id  TEXT NOT NULL,
			image_name  TEXT NOT NULL,
			file_name   TEXT NOT NULL,
			position    INTEGER NOT NULL,
			is_main     BOOLEAN NOT NULL,
			status      TEXT NOT NULL,
			message     TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL,
			server_id   TEXT NOT NULL DEFAULT ''
		)`)
	if err != nil {
		return fmt.Errorf("create media_run_outcomes: %w", err)
	}

	return nil
}

// RecordRun inserts one finished run and its outcomes in a single
// transaction. Implements ingest.RunRecorder.
func (s *Store) RecordRun(ctx context.Context, run ingest.RunRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	runID := uuid.New()

	_, err = tx.Exec(ctx, `
		INSERT INTO media_runs (id, session_id, started_at, finished_at, cancelled, attempted, succeeded, failed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		runID, run.SessionID, run.StartedAt, run.FinishedAt, run.Cancelled,
		len(run.Outcomes), run.Succeeded, run.Failed,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, o := range run.Outcomes {
		_, err = tx.Exec(ctx, `
			INSERT INTO media_run_outcomes (run_id, product_id, image_name, file_name, position, is_main, status, message, duration_ms, server_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			runID, o.ProductID, o.ImageName, o.FileName, o.Position, o.IsMain,
			string(o.Status), o.Message, o.Duration.Milliseconds(), o.ServerID,
		)
		if err != nil {
			return fmt.Errorf("insert outcome for %s/%s: %w", o.ProductID, o.FileName, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Cancelled  bool      `json:"cancelled"`
	Attempted  int       `json:"attempted"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
}

// RecentRuns returns up to limit run summaries, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, started_at, finished_at, cancelled, attempted, succeeded, failed
		FROM media_runs
		ORDER BY finished_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var id uuid.UUID
		if err := rows.Scan(&id, &r.SessionID, &r.StartedAt, &r.FinishedAt, &r.Cancelled, &r.Attempted, &r.Succeeded, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.ID = id.String()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
