package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lysyi3m/shelter-sync/app/shelter"
)

func TestRecorderObservesSuccessfulRun(t *testing.T) {
	recorder := NewRecorder()
	finished := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	recorder.ObserveRun(&shelter.Summary{
		StartedAt:         finished.Add(-time.Minute),
		FinishedAt:        finished,
		LocationsInserted: 3,
		ProgramsInserted:  5,
		ProgramsUpdated:   2,
	}, nil)

	if got := testutil.ToFloat64(recorder.runsTotal.WithLabelValues("succeeded")); got != 1 {
		t.Errorf("Expected 1 succeeded run, got %v", got)
	}
	if got := testutil.ToFloat64(recorder.locationsTotal.WithLabelValues("inserted")); got != 3 {
		t.Errorf("Expected 3 inserted locations, got %v", got)
	}
	if got := testutil.ToFloat64(recorder.programsTotal.WithLabelValues("updated")); got != 2 {
		t.Errorf("Expected 2 updated programs, got %v", got)
	}
	if got := testutil.ToFloat64(recorder.lastSuccessSeconds); got != float64(finished.Unix()) {
		t.Errorf("Expected last success %d, got %v", finished.Unix(), got)
	}
}

func TestRecorderObservesFailedRun(t *testing.T) {
	recorder := NewRecorder()

	recorder.ObserveRun(&shelter.Summary{StartedAt: time.Now(), FinishedAt: time.Now()}, errors.New("boom"))

	if got := testutil.ToFloat64(recorder.runsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("Expected 1 failed run, got %v", got)
	}
	if got := testutil.ToFloat64(recorder.lastSuccessSeconds); got != 0 {
		t.Errorf("Expected last success to stay unset, got %v", got)
	}
}

func TestRecorderHandlerExposesMetrics(t *testing.T) {
	recorder := NewRecorder()
	recorder.ObserveRun(&shelter.Summary{StartedAt: time.Now(), FinishedAt: time.Now()}, nil)

	w := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "shelter_sync_runs_total") {
		t.Error("Expected shelter_sync_runs_total in exposition output")
	}
}
