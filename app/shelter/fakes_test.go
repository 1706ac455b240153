package shelter

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/lysyi3m/shelter-sync/app/database"
)

type fakeLocationRepo struct {
	rows       map[string]database.Location
	nextID     int64
	insertErr  error
	findErr    error
	hideOnFind bool
	fills      int
}

var _ database.LocationRepository = (*fakeLocationRepo)(nil)

func newFakeLocationRepo() *fakeLocationRepo {
	return &fakeLocationRepo{rows: make(map[string]database.Location)}
}

func (f *fakeLocationRepo) InsertLocation(ctx context.Context, location database.Location) (int64, bool, error) {
	if f.insertErr != nil {
		return 0, false, f.insertErr
	}
	if _, exists := f.rows[location.IdentityKey]; exists {
		return 0, false, nil
	}
	f.nextID++
	location.ID = f.nextID
	f.rows[location.IdentityKey] = location
	return location.ID, true, nil
}

func (f *fakeLocationRepo) FindLocationID(ctx context.Context, identityKey string) (int64, bool, error) {
	if f.findErr != nil {
		return 0, false, f.findErr
	}
	row, ok := f.rows[identityKey]
	if !ok || f.hideOnFind {
		return 0, false, nil
	}
	return row.ID, true, nil
}

func (f *fakeLocationRepo) FillLocation(ctx context.Context, id int64, location database.Location) error {
	f.fills++
	for key, row := range f.rows {
		if row.ID != id {
			continue
		}
		if row.PostalCode == nil {
			row.PostalCode = location.PostalCode
		}
		if row.City == nil {
			row.City = location.City
		}
		f.rows[key] = row
		return nil
	}
	return errors.New("no such location")
}

func (f *fakeLocationRepo) GetLocations(ctx context.Context, city string) ([]database.Location, error) {
	return nil, nil
}

func (f *fakeLocationRepo) GetLocation(ctx context.Context, id int64) (*database.Location, error) {
	return nil, nil
}

func (f *fakeLocationRepo) GetLocationCount(ctx context.Context) (int, error) {
	return len(f.rows), nil
}

type fakeProgramRepo struct {
	batches  [][]database.Program
	failAt   int
	err      error
	existing map[string]bool
}

var _ database.ProgramRepository = (*fakeProgramRepo)(nil)

func (f *fakeProgramRepo) UpsertPrograms(ctx context.Context, runID string, programs []database.Program) (int, int, error) {
	if f.err != nil && len(f.batches) == f.failAt {
		return 0, 0, f.err
	}
	f.batches = append(f.batches, programs)

	if f.existing == nil {
		f.existing = make(map[string]bool)
	}
	inserted, updated := 0, 0
	for _, p := range programs {
		if f.existing[p.ProgramName] {
			updated++
			continue
		}
		f.existing[p.ProgramName] = true
		inserted++
	}
	return inserted, updated, nil
}

func (f *fakeProgramRepo) GetPrograms(ctx context.Context, locationIDs []int64, sector string) ([]database.Program, error) {
	return nil, nil
}

func (f *fakeProgramRepo) GetProgramsByLocation(ctx context.Context, locationID int64) ([]database.Program, error) {
	return nil, nil
}

func (f *fakeProgramRepo) GetProgramCount(ctx context.Context) (int, error) {
	return 0, nil
}

type fakeMetadataRepo struct {
	lastRefreshed *time.Time
	err           error
}

var _ database.MetadataRepository = (*fakeMetadataRepo)(nil)

func (f *fakeMetadataRepo) GetLastRefreshed(ctx context.Context) (*time.Time, error) {
	return f.lastRefreshed, nil
}

func (f *fakeMetadataRepo) TouchLastRefreshed(ctx context.Context, at time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.lastRefreshed = &at
	return nil
}

type recordingObserver struct {
	summaries []*Summary
	errs      []error
}

func (o *recordingObserver) ObserveRun(summary *Summary, err error) {
	o.summaries = append(o.summaries, summary)
	o.errs = append(o.errs, err)
}

// sliceSource yields records and then err, if set. When block is set, the
// sequence closes started and waits for block before yielding.
type sliceSource struct {
	records []RawRecord
	err     error
	block   chan struct{}
	started chan struct{}
	once    sync.Once
}

func (s *sliceSource) Records(ctx context.Context) iter.Seq2[RawRecord, error] {
	return func(yield func(RawRecord, error) bool) {
		if s.block != nil {
			s.once.Do(func() { close(s.started) })
			<-s.block
		}
		for _, record := range s.records {
			if !yield(record, nil) {
				return
			}
		}
		if s.err != nil {
			yield(nil, s.err)
		}
	}
}
