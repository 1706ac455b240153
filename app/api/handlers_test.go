package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/shelter-sync/app/database"
	"github.com/lysyi3m/shelter-sync/app/tasks"
)

type fakeLocationRepo struct {
	locations []database.Location
	err       error
}

func (f *fakeLocationRepo) GetLocations(ctx context.Context, city string) ([]database.Location, error) {
	if f.err != nil {
		return nil, f.err
	}
	var result []database.Location
	for _, l := range f.locations {
		if city == "" || (l.City != nil && strings.EqualFold(*l.City, city)) {
			result = append(result, l)
		}
	}
	return result, nil
}

func (f *fakeLocationRepo) GetLocation(ctx context.Context, id int64) (*database.Location, error) {
	for _, l := range f.locations {
		if l.ID == id {
			return &l, nil
		}
	}
	return nil, nil
}

func (f *fakeLocationRepo) GetLocationCount(ctx context.Context) (int, error) {
	return len(f.locations), nil
}

func (f *fakeLocationRepo) InsertLocation(ctx context.Context, location database.Location) (int64, bool, error) {
	return 0, false, nil
}

func (f *fakeLocationRepo) FindLocationID(ctx context.Context, identityKey string) (int64, bool, error) {
	return 0, false, nil
}

func (f *fakeLocationRepo) FillLocation(ctx context.Context, id int64, location database.Location) error {
	return nil
}

type fakeProgramRepo struct {
	programs []database.Program
}

func (f *fakeProgramRepo) GetPrograms(ctx context.Context, locationIDs []int64, sector string) ([]database.Program, error) {
	wanted := make(map[int64]bool)
	for _, id := range locationIDs {
		wanted[id] = true
	}
	var result []database.Program
	for _, p := range f.programs {
		if wanted[p.LocationID] && (sector == "" || (p.Sector != nil && *p.Sector == sector)) {
			result = append(result, p)
		}
	}
	return result, nil
}

func (f *fakeProgramRepo) GetProgramsByLocation(ctx context.Context, locationID int64) ([]database.Program, error) {
	return f.GetPrograms(ctx, []int64{locationID}, "")
}

func (f *fakeProgramRepo) GetProgramCount(ctx context.Context) (int, error) {
	return len(f.programs), nil
}

func (f *fakeProgramRepo) UpsertPrograms(ctx context.Context, runID string, programs []database.Program) (int, int, error) {
	return 0, 0, nil
}

type fakeMetadataRepo struct {
	lastRefreshed *time.Time
}

func (f *fakeMetadataRepo) GetLastRefreshed(ctx context.Context) (*time.Time, error) {
	return f.lastRefreshed, nil
}

func (f *fakeMetadataRepo) TouchLastRefreshed(ctx context.Context, at time.Time) error {
	f.lastRefreshed = &at
	return nil
}

type fakeRunRepo struct {
	runs      []database.SyncRun
	lastLimit int
}

func (f *fakeRunRepo) GetRecentRuns(ctx context.Context, limit int) ([]database.SyncRun, error) {
	f.lastLimit = limit
	return f.runs, nil
}

func (f *fakeRunRepo) StartRun(ctx context.Context, run database.SyncRun) error { return nil }

func (f *fakeRunRepo) FinishRun(ctx context.Context, run database.SyncRun) error { return nil }

func (f *fakeRunRepo) AbandonStaleRuns(ctx context.Context, startedBefore time.Time) (int, error) {
	return 0, nil
}

type fakeScheduler struct {
	queued   bool
	err      error
	triggers []string
}

func (f *fakeScheduler) Start() {}

func (f *fakeScheduler) Stop() {}

func (f *fakeScheduler) EnqueueTask(task tasks.TaskInterface) error { return nil }

func (f *fakeScheduler) EnqueueSync(trigger string) (bool, error) {
	f.triggers = append(f.triggers, trigger)
	return f.queued, f.err
}

func strPtr(s string) *string { return &s }

func int64Ptr(n int64) *int64 { return &n }

type fakeCache struct {
	entries map[string][]byte
	getErr  error
	sets    int
}

func (f *fakeCache) Get(ctx context.Context, requestKey string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	body, ok := f.entries[requestKey]
	return body, ok, nil
}

func (f *fakeCache) Set(ctx context.Context, requestKey string, body []byte) error {
	f.entries[requestKey] = bytes.Clone(body)
	f.sets++
	return nil
}

func (f *fakeCache) Health(ctx context.Context) map[string]any {
	return map[string]any{"status": "healthy", "type": "fake"}
}

type testServer struct {
	http.Handler
	locations *fakeLocationRepo
	runs      *fakeRunRepo
	scheduler *fakeScheduler
}

func newTestServer(apiKey string) *testServer {
	return newCachedTestServer(apiKey, nil)
}

func newCachedTestServer(apiKey string, cache ResponseCache) *testServer {
	seatonLat, seatonLon := 43.6598, -79.3737
	locations := &fakeLocationRepo{locations: []database.Location{
		{ID: 1, LocationName: "Seaton House", Address: "339 George St", City: strPtr("Toronto"), Latitude: &seatonLat, Longitude: &seatonLon},
		{ID: 2, LocationName: "Fred Victor", Address: "145 Queen St E", City: strPtr("Toronto")},
		{ID: 3, LocationName: "Empty", Address: "1 Nowhere Rd", City: strPtr("Toronto")},
	}}
	programs := &fakeProgramRepo{programs: []database.Program{
		{ID: 10, LocationID: 1, ProgramName: "Winter Program", Sector: strPtr("Men"), CapacityActualBed: int64Ptr(100), OccupiedBeds: int64Ptr(85)},
		{ID: 11, LocationID: 2, ProgramName: "Women's Hotel", Sector: strPtr("Women"), CapacityActualRoom: int64Ptr(20), OccupiedRooms: int64Ptr(20)},
	}}
	refreshed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	ts := &testServer{
		locations: locations,
		runs:      &fakeRunRepo{runs: []database.SyncRun{{ID: "run-1", Status: database.RunStatusSucceeded}}},
		scheduler: &fakeScheduler{queued: true},
	}
	handler := NewHandler(locations, programs, &fakeMetadataRepo{lastRefreshed: &refreshed}, ts.runs, ts.scheduler, cache)
	ts.Handler = NewServer(handler, apiKey, nil)

	return ts
}

func doRequest(t *testing.T, h http.Handler, method, path string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var body map[string]any
	if strings.HasPrefix(strings.TrimSpace(w.Body.String()), "{") {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}

	return w, body
}

func TestGetHealth(t *testing.T) {
	ts := newTestServer("")

	w, body := doRequest(t, ts, "GET", "/health", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body["locations"] != float64(3) || body["programs"] != float64(2) {
		t.Errorf("Unexpected counts: %v / %v", body["locations"], body["programs"])
	}
	if body["last_refreshed"] != "2025-03-01T12:00:00Z" {
		t.Errorf("Unexpected last_refreshed: %v", body["last_refreshed"])
	}
}

func TestGetLocationsOmitsLocationsWithoutPrograms(t *testing.T) {
	ts := newTestServer("")

	w, body := doRequest(t, ts, "GET", "/locations", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	locations := body["locations"].([]any)
	if len(locations) != 2 {
		t.Fatalf("Expected 2 locations, got %d", len(locations))
	}
}

func TestGetLocationsFilters(t *testing.T) {
	ts := newTestServer("")

	_, body := doRequest(t, ts, "GET", "/locations?sector=Women", nil)
	locations := body["locations"].([]any)
	if len(locations) != 1 || locations[0].(map[string]any)["location_name"] != "Fred Victor" {
		t.Errorf("Expected only Fred Victor for sector filter, got %v", locations)
	}

	_, body = doRequest(t, ts, "GET", "/locations?min_vacancy_beds=10", nil)
	locations = body["locations"].([]any)
	if len(locations) != 1 || locations[0].(map[string]any)["location_name"] != "Seaton House" {
		t.Errorf("Expected only Seaton House for bed vacancy filter, got %v", locations)
	}

	_, body = doRequest(t, ts, "GET", "/locations?min_vacancy_rooms=1", nil)
	if locations = body["locations"].([]any); len(locations) != 0 {
		t.Errorf("Expected no locations with room vacancy, got %d", len(locations))
	}

	_, body = doRequest(t, ts, "GET", "/locations?minVacancyBeds=10", nil)
	locations = body["locations"].([]any)
	if len(locations) != 1 || locations[0].(map[string]any)["location_name"] != "Seaton House" {
		t.Errorf("Expected camelCase bed vacancy filter to apply, got %v", locations)
	}

	_, body = doRequest(t, ts, "GET", "/locations?minVacancyRooms=1", nil)
	if locations = body["locations"].([]any); len(locations) != 0 {
		t.Errorf("Expected camelCase room vacancy filter to apply, got %d", len(locations))
	}

	w, _ := doRequest(t, ts, "GET", "/locations?min_vacancy_beds=lots", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid filter, got %d", w.Code)
	}
}

func TestGetLocationsMap(t *testing.T) {
	ts := newTestServer("")

	w, _ := doRequest(t, ts, "GET", "/locations/map", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var markers []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &markers); err != nil {
		t.Fatal(err)
	}
	if len(markers) != 1 {
		t.Fatalf("Expected only the geocoded location, got %d", len(markers))
	}
	if markers[0]["location_name"] != "Seaton House" || markers[0]["latitude"] != 43.6598 {
		t.Errorf("Unexpected marker: %v", markers[0])
	}
}

func TestGetLocationsMetadata(t *testing.T) {
	ts := newTestServer("")

	_, body := doRequest(t, ts, "GET", "/locations/metadata", nil)

	if body["last_refreshed"] != "2025-03-01T12:00:00Z" {
		t.Errorf("Unexpected last_refreshed: %v", body["last_refreshed"])
	}
}

func TestGetLocation(t *testing.T) {
	ts := newTestServer("")

	w, body := doRequest(t, ts, "GET", "/locations/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body["location_name"] != "Seaton House" {
		t.Errorf("Unexpected location: %v", body["location_name"])
	}
	if programs := body["programs"].([]any); len(programs) != 1 {
		t.Errorf("Expected 1 program, got %d", len(programs))
	}

	w, body = doRequest(t, ts, "GET", "/locations/1/location", nil)
	if w.Code != http.StatusOK || body["location_name"] != "Seaton House" {
		t.Errorf("Expected /location suffix to return the same location, got %d %v", w.Code, body["location_name"])
	}

	if w, _ := doRequest(t, ts, "GET", "/locations/99", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing location, got %d", w.Code)
	}
	if w, _ := doRequest(t, ts, "GET", "/locations/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid id, got %d", w.Code)
	}
}

func TestGetLocationOccupancy(t *testing.T) {
	ts := newTestServer("")

	w, body := doRequest(t, ts, "GET", "/locations/1/occupancy", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	program := body["programs"].([]any)[0].(map[string]any)
	if program["unoccupied_beds"] != float64(15) {
		t.Errorf("Expected 15 unoccupied beds, got %v", program["unoccupied_beds"])
	}
	if program["occupancy_rate_beds"] != float64(85) {
		t.Errorf("Expected 85%% bed occupancy, got %v", program["occupancy_rate_beds"])
	}
	if program["occupancy_rate_rooms"] != nil {
		t.Errorf("Expected no room occupancy rate, got %v", program["occupancy_rate_rooms"])
	}
}

func TestAPIRoutesDisabledWithoutKey(t *testing.T) {
	ts := newTestServer("")

	if w, _ := doRequest(t, ts, "GET", "/api/runs", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 when API is disabled, got %d", w.Code)
	}
}

func TestAPIRequiresKey(t *testing.T) {
	ts := newTestServer("secret")

	if w, _ := doRequest(t, ts, "GET", "/api/runs", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", w.Code)
	}
	if w, _ := doRequest(t, ts, "GET", "/api/runs", map[string]string{"X-API-Key": "wrong"}); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong key, got %d", w.Code)
	}

	w, body := doRequest(t, ts, "GET", "/api/runs?limit=500", map[string]string{"Authorization": "Bearer secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 with bearer key, got %d", w.Code)
	}
	if body["total"] != float64(1) {
		t.Errorf("Expected 1 run, got %v", body["total"])
	}
	if ts.runs.lastLimit != maxRunsLimit {
		t.Errorf("Expected limit to be capped at %d, got %d", maxRunsLimit, ts.runs.lastLimit)
	}
}

func TestAPITriggerSync(t *testing.T) {
	ts := newTestServer("secret")
	headers := map[string]string{"X-API-Key": "secret"}

	w, body := doRequest(t, ts, "POST", "/api/sync", headers)
	if w.Code != http.StatusAccepted || body["status"] != "queued" {
		t.Errorf("Expected 202 queued, got %d %v", w.Code, body["status"])
	}
	if len(ts.scheduler.triggers) != 1 || ts.scheduler.triggers[0] != tasks.TriggerAPI {
		t.Errorf("Expected one API trigger, got %v", ts.scheduler.triggers)
	}

	ts.scheduler.queued = false
	if _, body := doRequest(t, ts, "POST", "/api/sync", headers); body["status"] != "already_pending" {
		t.Errorf("Expected already_pending, got %v", body["status"])
	}

	ts.scheduler.err = errors.New("task queue is full")
	if w, _ := doRequest(t, ts, "POST", "/api/sync", headers); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when the queue is full, got %d", w.Code)
	}
}

func TestCachedLocationsAreServedFromCache(t *testing.T) {
	cache := &fakeCache{entries: make(map[string][]byte)}
	ts := newCachedTestServer("", cache)

	first, firstBody := doRequest(t, ts, "GET", "/locations?city=Toronto", nil)
	if first.Code != http.StatusOK || first.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("Expected 200 cache miss, got %d %s", first.Code, first.Header().Get("X-Cache"))
	}
	if cache.sets != 1 {
		t.Fatalf("Expected response to be stored, got %d sets", cache.sets)
	}

	ts.locations.err = errors.New("database is gone")

	second, secondBody := doRequest(t, ts, "GET", "/locations?city=Toronto", nil)
	if second.Code != http.StatusOK || second.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("Expected 200 cache hit, got %d %s", second.Code, second.Header().Get("X-Cache"))
	}
	if len(secondBody["locations"].([]any)) != len(firstBody["locations"].([]any)) {
		t.Error("Expected cached body to match the first response")
	}

	if w, _ := doRequest(t, ts, "GET", "/locations?city=Etobicoke", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("Expected uncached query to reach the database, got %d", w.Code)
	}
}

func TestCacheSkipsErrorResponses(t *testing.T) {
	cache := &fakeCache{entries: make(map[string][]byte)}
	ts := newCachedTestServer("", cache)

	if w, _ := doRequest(t, ts, "GET", "/locations/99", nil); w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", w.Code)
	}
	if cache.sets != 0 {
		t.Errorf("Expected error responses not to be cached, got %d sets", cache.sets)
	}
}

func TestCacheReadFailureFallsThrough(t *testing.T) {
	cache := &fakeCache{entries: make(map[string][]byte), getErr: errors.New("connection refused")}
	ts := newCachedTestServer("", cache)

	w, body := doRequest(t, ts, "GET", "/locations/1", nil)
	if w.Code != http.StatusOK || body["location_name"] != "Seaton House" {
		t.Errorf("Expected request to be served despite cache failure, got %d", w.Code)
	}

	_, health := doRequest(t, ts, "GET", "/health", nil)
	if health["cache"].(map[string]any)["status"] != "healthy" {
		t.Errorf("Expected cache health in health response, got %v", health["cache"])
	}
}
