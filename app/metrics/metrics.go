package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lysyi3m/shelter-sync/app/shelter"
)

var _ shelter.Observer = (*Recorder)(nil)

// Recorder exposes shelter sync outcomes as Prometheus metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal          *prometheus.CounterVec
	runDuration        prometheus.Histogram
	locationsTotal     *prometheus.CounterVec
	programsTotal      *prometheus.CounterVec
	recordsTotal       *prometheus.CounterVec
	lastSuccessSeconds prometheus.Gauge
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,

		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shelter_sync_runs_total",
			Help: "Total number of shelter sync runs by final status",
		}, []string{"status"}),

		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "shelter_sync_duration_seconds",
			Help:    "Duration of shelter sync runs in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),

		locationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shelter_sync_locations_total",
			Help: "Locations processed by shelter sync runs by outcome",
		}, []string{"outcome"}),

		programsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shelter_sync_programs_total",
			Help: "Programs processed by shelter sync runs by outcome",
		}, []string{"outcome"}),

		recordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shelter_sync_records_total",
			Help: "Upstream records seen by shelter sync runs by outcome",
		}, []string{"outcome"}),

		lastSuccessSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shelter_sync_last_success_timestamp_seconds",
			Help: "Unix time of the last successful shelter sync",
		}),
	}
}

// ObserveRun records counts even for failed runs, since committed batches stay durable.
func (r *Recorder) ObserveRun(summary *shelter.Summary, err error) {
	status := "succeeded"
	if err != nil {
		status = "failed"
	}

	r.runsTotal.WithLabelValues(status).Inc()
	r.runDuration.Observe(summary.Duration().Seconds())

	r.recordsTotal.WithLabelValues("fetched").Add(float64(summary.RecordsFetched))
	r.recordsTotal.WithLabelValues("dropped").Add(float64(summary.RecordsDropped))
	r.recordsTotal.WithLabelValues("skipped").Add(float64(summary.RecordsSkipped))

	r.locationsTotal.WithLabelValues("inserted").Add(float64(summary.LocationsInserted))
	r.locationsTotal.WithLabelValues("existing").Add(float64(summary.LocationsExisting))
	r.locationsTotal.WithLabelValues("unresolved").Add(float64(summary.LocationsUnresolved))

	r.programsTotal.WithLabelValues("inserted").Add(float64(summary.ProgramsInserted))
	r.programsTotal.WithLabelValues("updated").Add(float64(summary.ProgramsUpdated))
	r.programsTotal.WithLabelValues("skipped").Add(float64(summary.ProgramsSkipped))

	if err == nil {
		r.lastSuccessSeconds.Set(float64(summary.FinishedAt.Unix()))
	}
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
