package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/shelter-sync/app/database"
)

type SyncSheltersTask struct {
	Task
	runner SyncRunner
}

func NewSyncSheltersTask(trigger string, runner SyncRunner) *SyncSheltersTask {
	return &SyncSheltersTask{
		Task:   NewTask(TaskTypeSyncShelters, trigger),
		runner: runner,
	}
}

func (t *SyncSheltersTask) Execute(ctx context.Context) error {
	summary, err := t.runner.Run(ctx)
	if errors.Is(err, database.ErrRunInProgress) {
		slog.Info("Task skipped", "type", "SyncShelters", "trigger", t.Trigger, "reason", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to sync shelters: %w", err)
	}

	slog.Info("Task completed",
		"type", "SyncedShelters",
		"trigger", t.Trigger,
		"run_id", summary.RunID,
		"duration", t.GetDuration(),
		"records", summary.RecordsFetched,
		"new_locations", summary.LocationsInserted,
		"new_programs", summary.ProgramsInserted,
		"updated_programs", summary.ProgramsUpdated,
		"skipped", len(summary.Skips))

	return nil
}
