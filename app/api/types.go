package api

import (
	"time"

	"github.com/lysyi3m/shelter-sync/app/database"
	"github.com/lysyi3m/shelter-sync/app/tasks"
)

type Handler struct {
	locationRepo database.LocationRepository
	programRepo  database.ProgramRepository
	metadataRepo database.MetadataRepository
	runRepo      database.RunRepository
	scheduler    tasks.TaskSchedulerInterface
	cache        ResponseCache
}

type LocationResponse struct {
	ID           int64             `json:"id"`
	LocationName string            `json:"location_name"`
	Address      string            `json:"address"`
	PostalCode   *string           `json:"postal_code"`
	City         *string           `json:"city"`
	Province     *string           `json:"province"`
	Latitude     *float64          `json:"latitude"`
	Longitude    *float64          `json:"longitude"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Programs     []ProgramResponse `json:"programs"`
}

type ProgramResponse struct {
	ID                   int64     `json:"id"`
	LocationID           int64     `json:"location_id"`
	ProgramName          string    `json:"program_name"`
	Sector               *string   `json:"sector"`
	OvernightServiceType *string   `json:"overnight_service_type"`
	ServiceUserCount     *int64    `json:"service_user_count"`
	CapacityActualBed    *int64    `json:"capacity_actual_bed"`
	OccupiedBeds         *int64    `json:"occupied_beds"`
	UnoccupiedBeds       *int64    `json:"unoccupied_beds"`
	CapacityActualRoom   *int64    `json:"capacity_actual_room"`
	OccupiedRooms        *int64    `json:"occupied_rooms"`
	UnoccupiedRooms      *int64    `json:"unoccupied_rooms"`
	OccupancyDate        *string   `json:"occupancy_date"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type OccupancyResponse struct {
	ID                 int64    `json:"id"`
	ProgramName        string   `json:"program_name"`
	CapacityActualBed  *int64   `json:"capacity_actual_bed"`
	OccupiedBeds       *int64   `json:"occupied_beds"`
	UnoccupiedBeds     *int64   `json:"unoccupied_beds"` // Derived from capacity and occupancy
	CapacityActualRoom *int64   `json:"capacity_actual_room"`
	OccupiedRooms      *int64   `json:"occupied_rooms"`
	UnoccupiedRooms    *int64   `json:"unoccupied_rooms"`
	OccupancyRateBeds  *float64 `json:"occupancy_rate_beds"` // Percent
	OccupancyRateRooms *float64 `json:"occupancy_rate_rooms"`
	OccupancyDate      *string  `json:"occupancy_date"`
}

type MapLocationResponse struct {
	ID           int64    `json:"id"`
	LocationName string   `json:"location_name"`
	Address      string   `json:"address"`
	City         *string  `json:"city"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

func toLocationResponse(location database.Location, programs []database.Program) LocationResponse {
	response := LocationResponse{
		ID:           location.ID,
		LocationName: location.LocationName,
		Address:      location.Address,
		PostalCode:   location.PostalCode,
		City:         location.City,
		Province:     location.Province,
		Latitude:     location.Latitude,
		Longitude:    location.Longitude,
		UpdatedAt:    location.UpdatedAt,
		Programs:     make([]ProgramResponse, 0, len(programs)),
	}

	for _, p := range programs {
		response.Programs = append(response.Programs, ProgramResponse{
			ID:                   p.ID,
			LocationID:           p.LocationID,
			ProgramName:          p.ProgramName,
			Sector:               p.Sector,
			OvernightServiceType: p.OvernightServiceType,
			ServiceUserCount:     p.ServiceUserCount,
			CapacityActualBed:    p.CapacityActualBed,
			OccupiedBeds:         p.OccupiedBeds,
			UnoccupiedBeds:       p.UnoccupiedBeds,
			CapacityActualRoom:   p.CapacityActualRoom,
			OccupiedRooms:        p.OccupiedRooms,
			UnoccupiedRooms:      p.UnoccupiedRooms,
			OccupancyDate:        p.OccupancyDate,
			UpdatedAt:            p.UpdatedAt,
		})
	}

	return response
}

func toOccupancyResponse(p database.Program) OccupancyResponse {
	return OccupancyResponse{
		ID:                 p.ID,
		ProgramName:        p.ProgramName,
		CapacityActualBed:  p.CapacityActualBed,
		OccupiedBeds:       p.OccupiedBeds,
		UnoccupiedBeds:     vacancy(p.CapacityActualBed, p.OccupiedBeds),
		CapacityActualRoom: p.CapacityActualRoom,
		OccupiedRooms:      p.OccupiedRooms,
		UnoccupiedRooms:    vacancy(p.CapacityActualRoom, p.OccupiedRooms),
		OccupancyRateBeds:  occupancyRate(p.CapacityActualBed, p.OccupiedBeds),
		OccupancyRateRooms: occupancyRate(p.CapacityActualRoom, p.OccupiedRooms),
		OccupancyDate:      p.OccupancyDate,
	}
}

// vacancy is nil unless both capacity and occupancy are known.
func vacancy(capacity, occupied *int64) *int64 {
	if capacity == nil || occupied == nil {
		return nil
	}
	v := *capacity - *occupied
	return &v
}

// occupancyRate treats unknown occupancy as zero; zero or unknown capacity yields nil.
func occupancyRate(capacity, occupied *int64) *float64 {
	if capacity == nil || *capacity == 0 {
		return nil
	}
	var used int64
	if occupied != nil {
		used = *occupied
	}
	rate := float64(used) / float64(*capacity) * 100
	return &rate
}

// hasVacancy reports whether capacity minus known occupancy reaches minimum.
// Programs with unknown capacity never match a minimum.
func hasVacancy(capacity, occupied *int64, minimum int64) bool {
	if capacity == nil {
		return false
	}
	var used int64
	if occupied != nil {
		used = *occupied
	}
	return *capacity-used >= minimum
}
