package database

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var _ RunRepository = (*RunRepo)(nil)

// ErrRunInProgress is returned by StartRun while another run, possibly in
// another process, holds the store.
var ErrRunInProgress = errors.New("another sync run is in progress")

// RunRepo records the history of synchronization runs
type RunRepo struct {
	db *DB
}

// NewRunRepository creates a new sync run repository
func NewRunRepository(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// StartRun records a run as running. At most one run may be running per
// store; idx_sync_runs_single_running turns a second claim into a no-op
// that is reported as ErrRunInProgress.
func (r *RunRepo) StartRun(ctx context.Context, run SyncRun) error {
	run.Status = RunStatusRunning

	result, err := r.db.NamedExecContext(ctx, `
		INSERT INTO sync_runs (id, status, started_at)
		VALUES (:id, :status, :started_at)
		ON CONFLICT (status) WHERE status = 'running' DO NOTHING
	`, run)
	if err != nil {
		return fmt.Errorf("failed to start sync run: %w", err)
	}

	claimed, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to start sync run: %w", err)
	}
	if claimed == 0 {
		return ErrRunInProgress
	}

	return nil
}

// AbandonStaleRuns marks runs still running since before startedBefore as
// failed, releasing the store after a crashed process. It returns the
// number of runs released.
func (r *RunRepo) AbandonStaleRuns(ctx context.Context, startedBefore time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE sync_runs
		SET status = ?, finished_at = ?, error = ?
		WHERE status = ? AND started_at < ?
	`), RunStatusFailed, time.Now().UTC(), "abandoned: run did not finish", RunStatusRunning, startedBefore.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to abandon stale sync runs: %w", err)
	}

	released, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to abandon stale sync runs: %w", err)
	}

	return int(released), nil
}

// FinishRun stores the final status and counts of a run
func (r *RunRepo) FinishRun(ctx context.Context, run SyncRun) error {
	_, err := r.db.NamedExecContext(ctx, `
		UPDATE sync_runs
		SET status = :status,
		    finished_at = :finished_at,
		    records_fetched = :records_fetched,
		    records_dropped = :records_dropped,
		    records_skipped = :records_skipped,
		    locations_inserted = :locations_inserted,
		    locations_existing = :locations_existing,
		    locations_unresolved = :locations_unresolved,
		    programs_inserted = :programs_inserted,
		    programs_updated = :programs_updated,
		    programs_skipped = :programs_skipped,
		    batches = :batches,
		    error = :error
		WHERE id = :id
	`, run)

	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}

	return nil
}

// GetRecentRuns returns the latest runs, newest first
func (r *RunRepo) GetRecentRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	var runs []SyncRun
	err := r.db.SelectContext(ctx, &runs, r.db.Rebind(`
		SELECT id, status, started_at, finished_at, records_fetched, records_dropped, records_skipped,
		       locations_inserted, locations_existing, locations_unresolved,
		       programs_inserted, programs_updated, programs_skipped, batches, error
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?
	`), limit)

	if err != nil {
		return nil, fmt.Errorf("failed to get recent runs: %w", err)
	}

	return runs, nil
}
