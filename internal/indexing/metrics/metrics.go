package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LastVersion tracks the ledger version of the last applied event per stream
	LastVersion = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingestor_last_version",
			Help: "Transaction version of the last applied event",
		},
		[]string{"stream"},
	)

	// EventsTotal tracks events by outcome (applied, skipped, duplicate)
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestor_events_total",
			Help: "Total number of events handled",
		},
		[]string{"stream", "outcome"},
	)

	// ErrorsTotal tracks failed ticks per stream and error class
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestor_errors_total",
			Help: "Total number of failed poll ticks",
		},
		[]string{"stream", "kind"},
	)

	// CooldownSeconds tracks the last cooldown pause applied to a stream
	CooldownSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingestor_cooldown_seconds",
			Help: "Last cooldown pause applied after a failed tick",
		},
		[]string{"stream"},
	)

	// EndpointRotations tracks indexer endpoint rotations on quota signals
	EndpointRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestor_endpoint_rotations_total",
			Help: "Total number of indexer endpoint rotations",
		},
		[]string{"stream"},
	)

	// TickDuration tracks poll tick latency
	TickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingestor_tick_duration_seconds",
			Help:    "Poll tick duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stream"},
	)

	// CacheRequests tracks lookups of in-process caches
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestor_cache_requests_total",
			Help: "Cache lookups by result",
		},
		[]string{"cache", "result"},
	)

	// DBConnectionPoolUsage tracks the database connection pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingestor_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)

// Recorder writes ingestion metrics to the Prometheus collectors above.
type Recorder struct{}

func NewRecorder() *Recorder { return &Recorder{} }

func (Recorder) SetLastVersion(stream string, version int64) {
	LastVersion.WithLabelValues(stream).Set(float64(version))
}

func (Recorder) IncEvents(stream, outcome string) {
	EventsTotal.WithLabelValues(stream, outcome).Inc()
}

func (Recorder) IncError(stream, kind string) {
	ErrorsTotal.WithLabelValues(stream, kind).Inc()
}

func (Recorder) SetCooldown(stream string, d time.Duration) {
	CooldownSeconds.WithLabelValues(stream).Set(d.Seconds())
}

func (Recorder) IncRotation(stream string) {
	EndpointRotations.WithLabelValues(stream).Inc()
}

func (Recorder) ObserveTick(stream string, d time.Duration) {
	TickDuration.WithLabelValues(stream).Observe(d.Seconds())
}

func (Recorder) IncCache(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheRequests.WithLabelValues(cache, result).Inc()
}
