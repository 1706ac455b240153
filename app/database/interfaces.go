package database

import (
	"context"
	"time"
)

type LocationRepository interface {
	GetLocations(ctx context.Context, city string) ([]Location, error)
	GetLocation(ctx context.Context, id int64) (*Location, error)
	GetLocationCount(ctx context.Context) (int, error)

	// InsertLocation reports inserted=false without error when a row with
	// the same identity key already exists.
	InsertLocation(ctx context.Context, location Location) (id int64, inserted bool, err error)
	FindLocationID(ctx context.Context, identityKey string) (id int64, found bool, err error)
	FillLocation(ctx context.Context, id int64, location Location) error
}

type ProgramRepository interface {
	GetPrograms(ctx context.Context, locationIDs []int64, sector string) ([]Program, error)
	GetProgramsByLocation(ctx context.Context, locationID int64) ([]Program, error)
	GetProgramCount(ctx context.Context) (int, error)

	// UpsertPrograms writes one batch atomically. Rows are classified as
	// inserted when their created_run_id equals runID after the write.
	UpsertPrograms(ctx context.Context, runID string, programs []Program) (inserted int, updated int, err error)
}

type MetadataRepository interface {
	GetLastRefreshed(ctx context.Context) (*time.Time, error)
	TouchLastRefreshed(ctx context.Context, at time.Time) error
}

type RunRepository interface {
	GetRecentRuns(ctx context.Context, limit int) ([]SyncRun, error)

	// StartRun returns ErrRunInProgress when another run already holds the store.
	StartRun(ctx context.Context, run SyncRun) error
	AbandonStaleRuns(ctx context.Context, startedBefore time.Time) (released int, err error)
	FinishRun(ctx context.Context, run SyncRun) error
}
