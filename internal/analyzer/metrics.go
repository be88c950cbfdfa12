package analyzer

import (
	"time"

	"github.com/justin4957/fleetwatch/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes engine counters to Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	anomaliesDetected   *prometheus.CounterVec
	candidatesDiscarded *prometheus.CounterVec
	vehiclesFailed      prometheus.Counter
	scanDuration        prometheus.Histogram
	storedAnomalies     prometheus.Gauge
	baselines           prometheus.Gauge
}

// NewMetrics registers the engine metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		anomaliesDetected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetwatch_anomalies_detected_total",
				Help: "Anomalies accepted by the classifier",
			},
			[]string{"type", "severity"},
		),
		candidatesDiscarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetwatch_candidates_discarded_total",
				Help: "Candidate anomalies dropped below the acceptance threshold",
			},
			[]string{"type"},
		),
		vehiclesFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fleetwatch_scan_vehicle_failures_total",
				Help: "Vehicles skipped during a fleet scan because of bad records",
			},
		),
		scanDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fleetwatch_scan_duration_seconds",
				Help:    "Duration of a full fleet scan",
				Buckets: prometheus.DefBuckets,
			},
		),
		storedAnomalies: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleetwatch_stored_anomalies",
				Help: "Anomalies currently held in the store",
			},
		),
		baselines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleetwatch_vehicle_baselines",
				Help: "Vehicles with a computed baseline",
			},
		),
	}
}

func (m *Metrics) anomalyDetected(a models.DetectedAnomaly) {
	if m == nil {
		return
	}
	m.anomaliesDetected.WithLabelValues(a.AnomalyType.ID, string(a.AnomalyType.Severity)).Inc()
}

func (m *Metrics) candidateDiscarded(typeID string) {
	if m == nil {
		return
	}
	m.candidatesDiscarded.WithLabelValues(typeID).Inc()
}

func (m *Metrics) vehicleFailed() {
	if m == nil {
		return
	}
	m.vehiclesFailed.Inc()
}

func (m *Metrics) observeScan(elapsed time.Duration, stored, baselines int) {
	if m == nil {
		return
	}
	m.scanDuration.Observe(elapsed.Seconds())
	m.storedAnomalies.Set(float64(stored))
	m.baselines.Set(float64(baselines))
}

func (m *Metrics) setStored(stored int) {
	if m == nil {
		return
	}
	m.storedAnomalies.Set(float64(stored))
}
