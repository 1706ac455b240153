package shelter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/lysyi3m/shelter-sync/app/database"
)

const runKey = "shelter-sync"

// DefaultStaleRunAfter is how long a run may stay running before another
// process may take over the store.
const DefaultStaleRunAfter = time.Hour

// Pipeline runs one synchronization end to end: fetch, normalize, merge,
// resolve, reconcile, upsert, report.
type Pipeline struct {
	source   Source
	resolver *Resolver
	upserter *BatchUpserter
	reporter *Reporter
	runRepo  database.RunRepository
	group    singleflight.Group
	now      func() time.Time
	newRunID func() string

	staleRunAfter time.Duration
}

func NewPipeline(
	source Source,
	resolver *Resolver,
	upserter *BatchUpserter,
	reporter *Reporter,
	runRepo database.RunRepository,
) *Pipeline {
	return &Pipeline{
		source:   source,
		resolver: resolver,
		upserter: upserter,
		reporter: reporter,
		runRepo:  runRepo,
		now:      time.Now,
		newRunID: uuid.NewString,

		staleRunAfter: DefaultStaleRunAfter,
	}
}

// Run executes a synchronization. Callers arriving while a run is in flight
// wait for it and share its summary and error; the in-flight run keeps the
// context of the caller that started it. Runs from other processes are
// excluded by the store: Run returns database.ErrRunInProgress without
// touching any data while one of them holds it.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	v, err, shared := p.group.Do(runKey, func() (any, error) {
		return p.run(ctx)
	})
	if shared {
		slog.Debug("Joined in-flight shelter sync")
	}

	summary, _ := v.(*Summary)
	return summary, err
}

func (p *Pipeline) run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		RunID:     p.newRunID(),
		StartedAt: p.now(),
	}

	released, err := p.runRepo.AbandonStaleRuns(ctx, summary.StartedAt.Add(-p.staleRunAfter))
	if err != nil {
		slog.Warn("Failed to release stale sync runs", "run_id", summary.RunID, "error", err)
	} else if released > 0 {
		slog.Warn("Released stale sync runs", "run_id", summary.RunID, "count", released)
	}

	if err := p.runRepo.StartRun(ctx, database.SyncRun{ID: summary.RunID, StartedAt: summary.StartedAt.UTC()}); err != nil {
		if errors.Is(err, database.ErrRunInProgress) {
			slog.Warn("Shelter sync skipped, another run holds the store", "run_id", summary.RunID)
			return summary, err
		}
		p.reporter.Fail(summary, err)
		return summary, err
	}

	slog.Info("Shelter sync started", "run_id", summary.RunID)

	err = p.execute(ctx, summary)
	if err != nil {
		p.reporter.Fail(summary, err)
	}

	if finishErr := p.runRepo.FinishRun(context.WithoutCancel(ctx), toSyncRun(summary, err)); finishErr != nil {
		slog.Error("Failed to record sync run", "run_id", summary.RunID, "error", finishErr)
	}

	return summary, err
}

func (p *Pipeline) execute(ctx context.Context, summary *Summary) error {
	raws, err := p.collect(ctx)
	summary.RecordsFetched = len(raws)
	if err != nil {
		return err
	}

	records, dropped := NormalizeAll(raws)
	summary.RecordsDropped = len(dropped)
	summary.Skips = append(summary.Skips, dropped...)

	merged := MergeLocations(records)
	summary.RecordsSkipped = merged.Skipped
	summary.Skips = append(summary.Skips, merged.Skips...)

	resolution, err := p.resolver.Resolve(ctx, merged.Locations)
	if resolution != nil {
		summary.LocationsInserted = resolution.Inserted
		summary.LocationsExisting = resolution.Existing
		summary.LocationsUnresolved = resolution.Unresolved
		summary.Skips = append(summary.Skips, resolution.Skips...)
	}
	if err != nil {
		return err
	}

	reconciled := ReconcilePrograms(merged.Locations, resolution.IDs)
	summary.ProgramsSkipped = reconciled.Skipped
	summary.Skips = append(summary.Skips, reconciled.Skips...)

	upserted, err := p.upserter.Upsert(ctx, summary.RunID, reconciled.Rows)
	summary.ProgramsInserted = upserted.Inserted
	summary.ProgramsUpdated = upserted.Updated
	summary.Batches = upserted.Batches
	if err != nil {
		return err
	}

	return p.reporter.Report(ctx, summary)
}

// collect drains the source. Any source error ends the run before persistence.
func (p *Pipeline) collect(ctx context.Context) ([]RawRecord, error) {
	var raws []RawRecord
	for raw, err := range p.source.Records(ctx) {
		if err != nil {
			return raws, fmt.Errorf("%w: %w", ErrUpstreamFailure, err)
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

func toSyncRun(summary *Summary, err error) database.SyncRun {
	finishedAt := summary.FinishedAt.UTC()
	run := database.SyncRun{
		ID:                  summary.RunID,
		Status:              database.RunStatusSucceeded,
		StartedAt:           summary.StartedAt.UTC(),
		FinishedAt:          &finishedAt,
		RecordsFetched:      summary.RecordsFetched,
		RecordsDropped:      summary.RecordsDropped,
		RecordsSkipped:      summary.RecordsSkipped,
		LocationsInserted:   summary.LocationsInserted,
		LocationsExisting:   summary.LocationsExisting,
		LocationsUnresolved: summary.LocationsUnresolved,
		ProgramsInserted:    summary.ProgramsInserted,
		ProgramsUpdated:     summary.ProgramsUpdated,
		ProgramsSkipped:     summary.ProgramsSkipped,
		Batches:             summary.Batches,
	}

	if err != nil {
		message := err.Error()
		run.Status = database.RunStatusFailed
		run.Error = &message
	}

	return run
}
