package analyzer

import (
	"context"
	"time"

	"github.com/justin4957/fleetwatch/internal/config"
	"github.com/justin4957/fleetwatch/pkg/models"
	"github.com/rs/zerolog"
)

// TripSource supplies the trip history of a vehicle
type TripSource interface {
	TripsFor(vehicleID string) []models.Trip
}

// TripMap is an in-memory TripSource keyed by vehicle id
type TripMap map[string][]models.Trip

// TripsFor returns the trips recorded for one vehicle
func (tm TripMap) TripsFor(vehicleID string) []models.Trip {
	return tm[vehicleID]
}

// Publisher forwards newly detected anomalies to an alerting layer
type Publisher interface {
	Publish(ctx context.Context, anomalies []models.DetectedAnomaly) error
}

// Engine owns the baselines and anomaly history of one fleet
type Engine struct {
	config     config.DetectorConfig
	builder    *BaselineBuilder
	baselines  *BaselineStore
	classifier *Classifier
	store      *AnomalyStore
	metrics    *Metrics
	publisher  Publisher
	logger     zerolog.Logger
	now        func() time.Time
}

// Option customizes an Engine
type Option func(*Engine)

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine logger
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics enables Prometheus instrumentation
func WithMetrics(metrics *Metrics) Option {
	return func(e *Engine) { e.metrics = metrics }
}

// WithPublisher sets where Start forwards new anomalies
func WithPublisher(publisher Publisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

// NewEngine creates an independent engine instance
func NewEngine(cfg config.DetectorConfig, opts ...Option) *Engine {
	e := &Engine{
		config:    cfg,
		baselines: NewBaselineStore(),
		store:     NewAnomalyStore(),
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.config = withDetectorDefaults(e.config)

	e.builder = NewBaselineBuilder(e.now)
	e.classifier = NewClassifier(e.config, e.now, e.metrics)
	return e
}

// withDetectorDefaults fills unset detector fields from the defaults and lifts
// the acceptance threshold to the fixed floor
func withDetectorDefaults(cfg config.DetectorConfig) config.DetectorConfig {
	defaults := config.DefaultConfig().Detector
	if cfg.AcceptanceThreshold < config.MinAcceptanceThreshold {
		cfg.AcceptanceThreshold = config.MinAcceptanceThreshold
	}
	if cfg.EngineTempLimit <= 0 {
		cfg.EngineTempLimit = defaults.EngineTempLimit
	}
	if cfg.EngineTempZScore <= 0 {
		cfg.EngineTempZScore = defaults.EngineTempZScore
	}
	if cfg.RetentionDays < 1 {
		cfg.RetentionDays = defaults.RetentionDays
	}
	if cfg.RetentionInterval <= 0 {
		cfg.RetentionInterval = defaults.RetentionInterval
	}
	if cfg.ScanWorkers < 1 {
		cfg.ScanWorkers = 1
	}
	return cfg
}

// UpdateBaseline recomputes and stores the vehicle's baseline
func (e *Engine) UpdateBaseline(vehicle models.Vehicle, trips []models.Trip) models.VehicleBaseline {
	baseline := e.builder.Build(vehicle, trips)
	e.baselines.Upsert(baseline)
	return baseline
}

// Baseline returns the stored baseline of a vehicle
func (e *Engine) Baseline(vehicleID string) (models.VehicleBaseline, bool) {
	return e.baselines.Get(vehicleID)
}

// DetectAnomalies classifies one vehicle against its stored baseline.
// Without a stored baseline it builds one from trips and reports nothing this cycle.
// Results are not added to the store.
func (e *Engine) DetectAnomalies(vehicle models.Vehicle, trips []models.Trip) []models.DetectedAnomaly {
	baseline, ok := e.baselines.Get(vehicle.ID)
	if !ok {
		e.UpdateBaseline(vehicle, trips)
		return []models.DetectedAnomaly{}
	}
	return e.classifier.Classify(vehicle, baseline)
}

// GetAnomalyTypes returns the anomaly type catalog
func (e *Engine) GetAnomalyTypes() []models.AnomalyType {
	return ListTypes()
}

// GetStatistics computes fleet-wide statistics over the stored anomalies
func (e *Engine) GetStatistics() models.AnomalyStatistics {
	return ComputeStatistics(e.store.Snapshot(), e.now())
}

// GetRecentAnomalies returns the limit most recently detected anomalies, newest first.
// A negative limit returns the whole history.
func (e *Engine) GetRecentAnomalies(limit int) []models.DetectedAnomaly {
	return e.store.Recent(limit)
}

// GetVehicleAnomalies returns every stored anomaly for one vehicle
func (e *Engine) GetVehicleAnomalies(vehicleID string) []models.DetectedAnomaly {
	return e.store.ForVehicle(vehicleID)
}

// AcknowledgeAnomaly marks an anomaly as acknowledged. It reports whether the id was found.
func (e *Engine) AcknowledgeAnomaly(id string) bool {
	return e.store.Acknowledge(id)
}

// ResolveAnomaly closes an anomaly, manually or automatically. It reports whether the id was found.
func (e *Engine) ResolveAnomaly(id string, auto bool) bool {
	return e.store.Resolve(id, auto, e.now())
}

// ClearOldAnomalies prunes closed anomalies older than days and returns how many were removed
func (e *Engine) ClearOldAnomalies(days int) int {
	cutoff := e.now().AddDate(0, 0, -days)
	removed := e.store.ClearBefore(cutoff)
	e.metrics.setStored(e.store.Len())
	if removed > 0 {
		e.logger.Info().Int("removed", removed).Int("days", days).Msg("pruned anomaly history")
	}
	return removed
}

// Start scans every snapshot received on input and forwards new anomalies and
// refreshed statistics to output. History is pruned on the retention interval.
func (e *Engine) Start(ctx context.Context, input <-chan *models.FleetSnapshot, output chan<- interface{}) {
	interval := e.config.RetentionTick()
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-input:
			if !ok {
				return
			}
			if snapshot == nil {
				continue
			}
			snapshot.Index()

			anomalies, err := e.DetectFleetAnomalies(snapshot.Vehicles, snapshot)
			if err != nil {
				e.logger.Warn().Err(err).Msg("fleet scan completed with errors")
			}

			if len(anomalies) > 0 && e.publisher != nil {
				if err := e.publisher.Publish(ctx, anomalies); err != nil {
					e.logger.Error().Err(err).Int("count", len(anomalies)).Msg("failed to publish anomalies")
				}
			}

			for _, anomaly := range anomalies {
				if !send(ctx, output, anomaly) {
					return
				}
			}
			if !send(ctx, output, e.GetStatistics()) {
				return
			}
		case <-ticker.C:
			e.ClearOldAnomalies(e.config.RetentionDays)
		}
	}
}

func send(ctx context.Context, output chan<- interface{}, v interface{}) bool {
	if output == nil {
		return true
	}
	select {
	case output <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
