package analyzer

import (
	"math"
	"sync"
	"time"

	"github.com/justin4957/fleetwatch/pkg/models"
)

// Fallback samples used when a metric has no data at all
const (
	defaultEngineTemperature = 80.0 // °C
	defaultFuelEfficiency    = 8.0  // km/L
	defaultAverageSpeed      = 50.0 // km/h
	defaultIdleTime          = 10.0 // minutes

	// minStdDev keeps z-scores finite for zero-variance history
	minStdDev = 1.0
)

// Oil pressure and battery voltage use fixed nominal bands instead of observed ones
var (
	nominalOilPressure = models.MetricBaseline{Mean: 45, StdDev: 5, Min: 30, Max: 60}
	nominalBattery     = models.MetricBaseline{Mean: 12.6, StdDev: 0.5, Min: 12.0, Max: 14.8}
)

// BaselineBuilder computes vehicle baselines from trip history and the current snapshot
type BaselineBuilder struct {
	now func() time.Time
}

// NewBaselineBuilder creates a builder stamping baselines with the given clock
func NewBaselineBuilder(now func() time.Time) *BaselineBuilder {
	if now == nil {
		now = time.Now
	}
	return &BaselineBuilder{now: now}
}

// Build recomputes the full baseline. Nothing from a previous baseline is reused.
func (b *BaselineBuilder) Build(vehicle models.Vehicle, trips []models.Trip) models.VehicleBaseline {
	var engineTemps, efficiencies, speeds, idleTimes []float64

	for _, trip := range trips {
		if trip.EngineTemperature != nil {
			engineTemps = append(engineTemps, *trip.EngineTemperature)
		}
		if trip.FuelEfficiency != nil {
			efficiencies = append(efficiencies, *trip.FuelEfficiency)
		}
		if trip.AverageSpeed != nil {
			speeds = append(speeds, *trip.AverageSpeed)
		}
		if trip.IdleTime != nil {
			idleTimes = append(idleTimes, *trip.IdleTime)
		}
	}

	// The current reading counts as one more sample
	oil := nominalOilPressure
	battery := nominalBattery
	if s := vehicle.Sensors; s != nil {
		if s.EngineTemperature != nil {
			engineTemps = append(engineTemps, *s.EngineTemperature)
		}
		if s.OilPressure != nil {
			oil.Mean = *s.OilPressure
		}
		if s.BatteryVoltage != nil {
			battery.Mean = *s.BatteryVoltage
		}
	}
	if vehicle.FuelEfficiency != nil {
		efficiencies = append(efficiencies, *vehicle.FuelEfficiency)
	}

	return models.VehicleBaseline{
		VehicleID:         vehicle.ID,
		EngineTemperature: calculateStats(orDefault(engineTemps, defaultEngineTemperature)),
		FuelEfficiency:    calculateStats(orDefault(efficiencies, defaultFuelEfficiency)),
		OilPressure:       oil,
		BatteryVoltage:    battery,
		AverageSpeed:      calculateStats(orDefault(speeds, defaultAverageSpeed)),
		IdleTime:          calculateStats(orDefault(idleTimes, defaultIdleTime)),
		LastUpdated:       b.now(),
		DataPoints:        len(trips),
	}
}

func orDefault(samples []float64, fallback float64) []float64 {
	if len(samples) == 0 {
		return []float64{fallback}
	}
	return samples
}

// calculateStats returns population mean and standard deviation, floored at minStdDev
func calculateStats(samples []float64) models.MetricBaseline {
	if len(samples) == 0 {
		return models.MetricBaseline{StdDev: minStdDev}
	}

	sum := 0.0
	minVal, maxVal := samples[0], samples[0]
	for _, v := range samples {
		sum += v
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	mean := sum / float64(len(samples))

	variance := 0.0
	for _, v := range samples {
		diff := v - mean
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(len(samples)))

	return models.MetricBaseline{
		Mean:   mean,
		StdDev: math.Max(stdDev, minStdDev),
		Min:    minVal,
		Max:    maxVal,
	}
}

// BaselineStore owns one baseline per vehicle
type BaselineStore struct {
	mu        sync.RWMutex
	baselines map[string]models.VehicleBaseline
}

// NewBaselineStore creates an empty baseline store
func NewBaselineStore() *BaselineStore {
	return &BaselineStore{
		baselines: make(map[string]models.VehicleBaseline),
	}
}

// Upsert replaces the baseline for its vehicle
func (bs *BaselineStore) Upsert(baseline models.VehicleBaseline) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.baselines[baseline.VehicleID] = baseline
}

// Get returns a snapshot of the vehicle's baseline
func (bs *BaselineStore) Get(vehicleID string) (models.VehicleBaseline, bool) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	baseline, ok := bs.baselines[vehicleID]
	return baseline, ok
}

// Len returns the number of vehicles with a baseline
func (bs *BaselineStore) Len() int {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return len(bs.baselines)
}
