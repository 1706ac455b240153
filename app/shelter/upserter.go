package shelter

import (
	"context"

	"github.com/lysyi3m/shelter-sync/app/database"
)

const DefaultBatchSize = 500

type UpsertResult struct {
	Inserted int
	Updated  int
	Batches  int
}

// BatchUpserter persists program rows in bounded, sequential batches.
type BatchUpserter struct {
	programRepo database.ProgramRepository
	batchSize   int
}

// NewBatchUpserter falls back to DefaultBatchSize when batchSize is not positive.
func NewBatchUpserter(programRepo database.ProgramRepository, batchSize int) *BatchUpserter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BatchUpserter{programRepo: programRepo, batchSize: batchSize}
}

// Upsert stops at the first failing batch and returns a *BatchError along
// with the counts of the batches already committed.
func (u *BatchUpserter) Upsert(ctx context.Context, runID string, rows []ProgramRow) (UpsertResult, error) {
	var result UpsertResult

	for start, index := 0, 0; start < len(rows); start, index = start+u.batchSize, index+1 {
		end := min(start+u.batchSize, len(rows))
		batch := rows[start:end]

		if err := ctx.Err(); err != nil {
			return result, &BatchError{Index: index, Size: len(batch), Err: err}
		}

		programs := make([]database.Program, 0, len(batch))
		for _, row := range batch {
			programs = append(programs, toDatabaseProgram(row))
		}

		inserted, updated, err := u.programRepo.UpsertPrograms(ctx, runID, programs)
		if err != nil {
			return result, &BatchError{Index: index, Size: len(batch), Err: err}
		}

		result.Inserted += inserted
		result.Updated += updated
		result.Batches++
	}

	return result, nil
}

func toDatabaseProgram(row ProgramRow) database.Program {
	return database.Program{
		LocationID:           row.LocationID,
		ProgramName:          row.ProgramName,
		Sector:               row.Sector,
		OvernightServiceType: row.OvernightServiceType,
		ServiceUserCount:     row.ServiceUserCount,
		CapacityActualBed:    row.CapacityActualBed,
		OccupiedBeds:         row.OccupiedBeds,
		UnoccupiedBeds:       row.UnoccupiedBeds,
		CapacityActualRoom:   row.CapacityActualRoom,
		OccupiedRooms:        row.OccupiedRooms,
		UnoccupiedRooms:      row.UnoccupiedRooms,
		OccupancyDate:        row.OccupancyDate,
	}
}
