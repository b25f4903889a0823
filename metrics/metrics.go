package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// storage
	DBQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Database query duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	ArchiveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_archive_failures_total",
		Help: "Records that could not be written to an archive backend",
	})

	// ingestion
	SamplesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "samples_ingested_total",
		Help: "Sensor samples received, by transport and result",
	}, []string{"transport", "result"})

	LatestReading = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "air_latest_reading",
		Help: "Most recent accepted reading per pollutant",
	}, []string{"pollutant"})

	// evaluation
	Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evaluations_total",
		Help: "Evaluation cycles by controller rule (or skipped/error)",
	}, []string{"rule"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notifications produced by severity and pollutant",
	}, []string{"severity", "pollutant"})

	StaleStateConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fan_state_conflicts_total",
		Help: "Fan state appends rejected because a newer record existed",
	})

	FanDesired = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fan_desired_state",
		Help: "Last accepted desired fan state (1 = on)",
	})

	ActuatorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "actuator_failures_total",
		Help: "Failed attempts to apply the fan state, by actuator",
	}, []string{"actuator"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Events written to the event bus, by result",
	}, []string{"result"})
)
