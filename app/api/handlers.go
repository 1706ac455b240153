package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/shelter-sync/app/database"
	"github.com/lysyi3m/shelter-sync/app/tasks"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

func NewHandler(locationRepo database.LocationRepository, programRepo database.ProgramRepository,
	metadataRepo database.MetadataRepository, runRepo database.RunRepository,
	scheduler tasks.TaskSchedulerInterface, cache ResponseCache) *Handler {
	return &Handler{
		locationRepo: locationRepo,
		programRepo:  programRepo,
		metadataRepo: metadataRepo,
		runRepo:      runRepo,
		scheduler:    scheduler,
		cache:        cache,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()

	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if locationCount, err := h.locationRepo.GetLocationCount(ctx); err == nil {
		health["locations"] = locationCount
	}

	if programCount, err := h.programRepo.GetProgramCount(ctx); err == nil {
		health["programs"] = programCount
	}

	if lastRefreshed, err := h.metadataRepo.GetLastRefreshed(ctx); err == nil {
		health["last_refreshed"] = lastRefreshed
	}

	if h.cache != nil {
		health["cache"] = h.cache.Health(ctx)
	}

	c.JSON(http.StatusOK, health)
}

// GetLocations lists locations with their programs. Locations left without
// programs after the sector and vacancy filters are omitted.
func (h *Handler) GetLocations(c *gin.Context) {
	ctx := c.Request.Context()
	city := c.Query("city")
	sector := c.Query("sector")

	minVacancyBeds, okBeds := optionalInt(c, "min_vacancy_beds", "minVacancyBeds")
	minVacancyRooms, okRooms := optionalInt(c, "min_vacancy_rooms", "minVacancyRooms")
	if !okBeds || !okRooms {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Vacancy filters must be integers"})
		return
	}

	locations, err := h.locationRepo.GetLocations(ctx, city)
	if err != nil {
		slog.Error("Database error", "operation", "get_locations", "city", city, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	locationIDs := make([]int64, 0, len(locations))
	for _, location := range locations {
		locationIDs = append(locationIDs, location.ID)
	}

	programs, err := h.programRepo.GetPrograms(ctx, locationIDs, sector)
	if err != nil {
		slog.Error("Database error", "operation", "get_programs", "sector", sector, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	byLocation := make(map[int64][]database.Program)
	for _, p := range programs {
		if minVacancyBeds != nil && !hasVacancy(p.CapacityActualBed, p.OccupiedBeds, *minVacancyBeds) {
			continue
		}
		if minVacancyRooms != nil && !hasVacancy(p.CapacityActualRoom, p.OccupiedRooms, *minVacancyRooms) {
			continue
		}
		byLocation[p.LocationID] = append(byLocation[p.LocationID], p)
	}

	response := make([]LocationResponse, 0, len(byLocation))
	for _, location := range locations {
		if len(byLocation[location.ID]) == 0 {
			continue
		}
		response = append(response, toLocationResponse(location, byLocation[location.ID]))
	}

	c.JSON(http.StatusOK, gin.H{"locations": response})
}

// GetLocationsMap lists the locations that can be placed on a map
func (h *Handler) GetLocationsMap(c *gin.Context) {
	locations, err := h.locationRepo.GetLocations(c.Request.Context(), "")
	if err != nil {
		slog.Error("Database error", "operation", "get_locations", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	response := make([]MapLocationResponse, 0, len(locations))
	for _, location := range locations {
		if location.Latitude == nil || location.Longitude == nil {
			continue
		}
		response = append(response, MapLocationResponse{
			ID:           location.ID,
			LocationName: location.LocationName,
			Address:      location.Address,
			City:         location.City,
			Latitude:     location.Latitude,
			Longitude:    location.Longitude,
		})
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) GetLocationsMetadata(c *gin.Context) {
	lastRefreshed, err := h.metadataRepo.GetLastRefreshed(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "get_last_refreshed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"last_refreshed": lastRefreshed})
}

func (h *Handler) GetLocation(c *gin.Context) {
	location, programs, ok := h.loadLocation(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, toLocationResponse(*location, programs))
}

func (h *Handler) GetLocationOccupancy(c *gin.Context) {
	location, programs, ok := h.loadLocation(c)
	if !ok {
		return
	}

	occupancy := make([]OccupancyResponse, 0, len(programs))
	for _, p := range programs {
		occupancy = append(occupancy, toOccupancyResponse(p))
	}

	c.JSON(http.StatusOK, gin.H{
		"id":            location.ID,
		"location_name": location.LocationName,
		"address":       location.Address,
		"city":          location.City,
		"programs":      occupancy,
	})
}

func (h *Handler) APIListRuns(c *gin.Context) {
	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		limit = min(parsed, maxRunsLimit)
	}

	runs, err := h.runRepo.GetRecentRuns(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_recent_runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"total": len(runs),
	})
}

func (h *Handler) APITriggerSync(c *gin.Context) {
	queued, err := h.scheduler.EnqueueSync(tasks.TriggerAPI)
	if err != nil {
		slog.Error("Failed to enqueue sync", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to enqueue sync"})
		return
	}

	status := "queued"
	if !queued {
		status = "already_pending"
	}

	slog.Info("Sync requested via API", "status", status)

	c.JSON(http.StatusAccepted, gin.H{"status": status})
}

func (h *Handler) loadLocation(c *gin.Context) (*database.Location, []database.Program, bool) {
	ctx := c.Request.Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid location id"})
		return nil, nil, false
	}

	location, err := h.locationRepo.GetLocation(ctx, id)
	if err != nil {
		slog.Error("Database error", "operation", "get_location", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, nil, false
	}

	if location == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Location not found"})
		return nil, nil, false
	}

	programs, err := h.programRepo.GetProgramsByLocation(ctx, id)
	if err != nil {
		slog.Error("Database error", "operation", "get_programs", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, nil, false
	}

	return location, programs, true
}

// optionalInt returns nil when the query parameter is absent and false when it is not an integer.
// optionalInt reads the first non-empty query parameter among keys.
func optionalInt(c *gin.Context, keys ...string) (*int64, bool) {
	var raw string
	for _, key := range keys {
		if raw = c.Query(key); raw != "" {
			break
		}
	}
	if raw == "" {
		return nil, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, false
	}
	return &n, true
}
