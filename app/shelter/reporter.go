package shelter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/shelter-sync/app/database"
)

// Reporter closes out a run: it stamps last_refreshed, logs the counts and
// forwards the summary to observers.
type Reporter struct {
	metadataRepo database.MetadataRepository
	observers    []Observer
	now          func() time.Time
}

func NewReporter(metadataRepo database.MetadataRepository, observers ...Observer) *Reporter {
	return &Reporter{
		metadataRepo: metadataRepo,
		observers:    observers,
		now:          time.Now,
	}
}

// Report is only called for runs whose upserts all committed.
func (r *Reporter) Report(ctx context.Context, summary *Summary) error {
	summary.FinishedAt = r.now()

	if err := r.metadataRepo.TouchLastRefreshed(ctx, summary.FinishedAt); err != nil {
		return fmt.Errorf("failed to report sync run: %w", err)
	}

	slog.Info("Shelter sync completed",
		"run_id", summary.RunID,
		"duration", summary.Duration(),
		"records_fetched", summary.RecordsFetched,
		"records_dropped", summary.RecordsDropped,
		"records_skipped", summary.RecordsSkipped,
		"locations_inserted", summary.LocationsInserted,
		"locations_existing", summary.LocationsExisting,
		"locations_unresolved", summary.LocationsUnresolved,
		"programs_inserted", summary.ProgramsInserted,
		"programs_updated", summary.ProgramsUpdated,
		"programs_skipped", summary.ProgramsSkipped,
		"batches", summary.Batches)

	for _, skip := range summary.Skips {
		slog.Debug("Skipped input", "reason", skip.Reason, "record_id", skip.RecordID, "detail", skip.Detail)
	}

	r.notify(summary, nil)
	return nil
}

// Fail logs a run that aborted and forwards it to observers.
func (r *Reporter) Fail(summary *Summary, err error) {
	if summary.FinishedAt.IsZero() {
		summary.FinishedAt = r.now()
	}

	slog.Error("Shelter sync failed",
		"run_id", summary.RunID,
		"duration", summary.Duration(),
		"error", err)

	r.notify(summary, err)
}

func (r *Reporter) notify(summary *Summary, err error) {
	for _, observer := range r.observers {
		observer.ObserveRun(summary, err)
	}
}
