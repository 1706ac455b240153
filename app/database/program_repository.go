package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

var _ ProgramRepository = (*ProgramRepo)(nil)

const programColumns = `id, location_id, program_name, sector, overnight_service_type, service_user_count,
	capacity_actual_bed, occupied_beds, unoccupied_beds, capacity_actual_room, occupied_rooms,
	unoccupied_rooms, occupancy_date, created_run_id, created_at, updated_at`

// Columns written by UpsertPrograms, in placeholder order
const upsertColumnCount = 13

// ProgramRepo handles database operations for shelter programs
type ProgramRepo struct {
	db *DB
}

// NewProgramRepository creates a new program repository
func NewProgramRepository(db *DB) *ProgramRepo {
	return &ProgramRepo{db: db}
}

// UpsertPrograms writes one batch in a single statement inside a transaction.
// Conflicting rows have every mutable column replaced by the incoming values.
func (r *ProgramRepo) UpsertPrograms(ctx context.Context, runID string, programs []Program) (int, int, error) {
	if len(programs) == 0 {
		return 0, 0, nil
	}

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", upsertColumnCount), ", ") + ")"
	values := make([]string, 0, len(programs))
	args := make([]any, 0, len(programs)*upsertColumnCount)

	for _, p := range programs {
		values = append(values, placeholder)
		args = append(args,
			p.LocationID, p.ProgramName, p.Sector, p.OvernightServiceType, p.ServiceUserCount,
			p.CapacityActualBed, p.OccupiedBeds, p.UnoccupiedBeds,
			p.CapacityActualRoom, p.OccupiedRooms, p.UnoccupiedRooms,
			p.OccupancyDate, runID)
	}

	query := r.db.Rebind(`
		INSERT INTO programs (
			location_id, program_name, sector, overnight_service_type, service_user_count,
			capacity_actual_bed, occupied_beds, unoccupied_beds,
			capacity_actual_room, occupied_rooms, unoccupied_rooms,
			occupancy_date, created_run_id
		) VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT (location_id, program_name) DO UPDATE SET
			sector = excluded.sector,
			overnight_service_type = excluded.overnight_service_type,
			service_user_count = excluded.service_user_count,
			capacity_actual_bed = excluded.capacity_actual_bed,
			occupied_beds = excluded.occupied_beds,
			unoccupied_beds = excluded.unoccupied_beds,
			capacity_actual_room = excluded.capacity_actual_room,
			occupied_rooms = excluded.occupied_rooms,
			unoccupied_rooms = excluded.unoccupied_rooms,
			occupancy_date = excluded.occupancy_date,
			updated_at = CURRENT_TIMESTAMP
		RETURNING created_run_id
	`)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin program batch: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to upsert programs: %w", err)
	}

	inserted, updated := 0, 0
	for rows.Next() {
		var createdRunID string
		if err := rows.Scan(&createdRunID); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("failed to scan upserted program: %w", err)
		}
		if createdRunID == runID {
			inserted++
		} else {
			updated++
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, 0, fmt.Errorf("error iterating upserted programs: %w", err)
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit program batch: %w", err)
	}

	return inserted, updated, nil
}

// GetPrograms returns programs for the given locations, optionally restricted to one sector
func (r *ProgramRepo) GetPrograms(ctx context.Context, locationIDs []int64, sector string) ([]Program, error) {
	if len(locationIDs) == 0 {
		return nil, nil
	}

	query := `SELECT ` + programColumns + ` FROM programs WHERE location_id IN (?)`
	args := []any{locationIDs}

	if sector != "" {
		query += ` AND sector = ?`
		args = append(args, sector)
	}
	query += ` ORDER BY location_id, id`

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build programs query: %w", err)
	}

	var programs []Program
	if err := r.db.SelectContext(ctx, &programs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get programs: %w", err)
	}

	return programs, nil
}

// GetProgramsByLocation returns every program of one location
func (r *ProgramRepo) GetProgramsByLocation(ctx context.Context, locationID int64) ([]Program, error) {
	var programs []Program
	err := r.db.SelectContext(ctx, &programs, r.db.Rebind(`
		SELECT `+programColumns+` FROM programs WHERE location_id = ? ORDER BY id
	`), locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get programs for location: %w", err)
	}

	return programs, nil
}

// GetProgramCount returns the total number of programs
func (r *ProgramRepo) GetProgramCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM programs"); err != nil {
		return 0, fmt.Errorf("failed to get program count: %w", err)
	}
	return count, nil
}
