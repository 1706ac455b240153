package database

import (
	"database/sql/driver"
	"time"
)

type Location struct {
	ID           int64     `db:"id"`
	IdentityKey  string    `db:"identity_key"` // Case/whitespace-folded (name, address, city, province)
	LocationName string    `db:"location_name"`
	Address      string    `db:"address"`
	PostalCode   *string   `db:"postal_code"`
	City         *string   `db:"city"`
	Province     *string   `db:"province"`
	Latitude     *float64  `db:"latitude"`
	Longitude    *float64  `db:"longitude"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type Program struct {
	ID                   int64     `db:"id"`
	LocationID           int64     `db:"location_id"`
	ProgramName          string    `db:"program_name"`
	Sector               *string   `db:"sector"`
	OvernightServiceType *string   `db:"overnight_service_type"`
	ServiceUserCount     *int64    `db:"service_user_count"`
	CapacityActualBed    *int64    `db:"capacity_actual_bed"`
	OccupiedBeds         *int64    `db:"occupied_beds"`
	UnoccupiedBeds       *int64    `db:"unoccupied_beds"`
	CapacityActualRoom   *int64    `db:"capacity_actual_room"`
	OccupiedRooms        *int64    `db:"occupied_rooms"`
	UnoccupiedRooms      *int64    `db:"unoccupied_rooms"`
	OccupancyDate        *string   `db:"occupancy_date"`
	CreatedRunID         string    `db:"created_run_id"` // Run that first inserted the row
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

func (s RunStatus) Value() (driver.Value, error) {
	return string(s), nil
}

type SyncRun struct {
	ID                  string     `db:"id" json:"id"`
	Status              RunStatus  `db:"status" json:"status"`
	StartedAt           time.Time  `db:"started_at" json:"started_at"`
	FinishedAt          *time.Time `db:"finished_at" json:"finished_at"`
	RecordsFetched      int        `db:"records_fetched" json:"records_fetched"`
	RecordsDropped      int        `db:"records_dropped" json:"records_dropped"`
	RecordsSkipped      int        `db:"records_skipped" json:"records_skipped"`
	LocationsInserted   int        `db:"locations_inserted" json:"locations_inserted"`
	LocationsExisting   int        `db:"locations_existing" json:"locations_existing"`
	LocationsUnresolved int        `db:"locations_unresolved" json:"locations_unresolved"`
	ProgramsInserted    int        `db:"programs_inserted" json:"programs_inserted"`
	ProgramsUpdated     int        `db:"programs_updated" json:"programs_updated"`
	ProgramsSkipped     int        `db:"programs_skipped" json:"programs_skipped"`
	Batches             int        `db:"batches" json:"batches"`
	Error               *string    `db:"error" json:"error"`
}
