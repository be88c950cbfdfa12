package analyzer

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/justin4957/fleetwatch/internal/config"
	"github.com/justin4957/fleetwatch/pkg/models"
)

// Rule thresholds
const (
	oilPressureMin     = 25.0 // psi
	oilPressureNominal = 30.0
	oilPressureScale   = 5.0

	batteryCenter = 12.6 // V
	batteryScale  = 0.5

	tireVarianceLimit = 9.0  // psi²
	tireMinPressure   = 28.0 // psi
	tireNominal       = 30.0
	tireUpper         = 35.0
	tireLowScale      = 3.0

	fuelEfficiencySigmas = 2.0
	engineTempSigmas     = 2.0
)

// Fixed confidences for boolean trigger rules
const (
	confidenceOilPressure   = 0.90
	confidenceBattery       = 0.85
	confidenceTireImbalance = 0.80
	confidenceTireLow       = 0.85
	confidenceFuelDrop      = 0.75
	confidenceOverdue       = 0.95
	confidenceEngineTempCap = 0.95
)

// candidate is a rule hit that has not yet passed the acceptance floor
type candidate struct {
	typeID         string
	value          float64
	expected       models.ExpectedRange
	deviation      float64
	confidence     float64
	context        string
	recommendation string
}

// rule evaluates one check. Missing inputs yield no candidates.
type rule func(vehicle models.Vehicle, baseline models.VehicleBaseline, now time.Time) []candidate

// Classifier evaluates detection rules for a vehicle against its baseline
type Classifier struct {
	config  config.DetectorConfig
	rules   []rule
	now     func() time.Time
	newID   func() string
	metrics *Metrics
}

// NewClassifier creates a classifier with the full rule set. An acceptance
// threshold below config.MinAcceptanceThreshold is raised to it.
func NewClassifier(cfg config.DetectorConfig, now func() time.Time, metrics *Metrics) *Classifier {
	if now == nil {
		now = time.Now
	}
	cfg.AcceptanceThreshold = math.Max(cfg.AcceptanceThreshold, config.MinAcceptanceThreshold)
	c := &Classifier{
		config:  cfg,
		now:     now,
		newID:   uuid.NewString,
		metrics: metrics,
	}
	c.rules = []rule{
		c.checkEngineTemperature,
		checkOilPressure,
		checkBatteryVoltage,
		checkTirePressure,
		checkFuelEfficiency,
		checkOverdueDates,
	}
	return c
}

// Classify runs every rule and returns the candidates that pass the acceptance threshold
func (c *Classifier) Classify(vehicle models.Vehicle, baseline models.VehicleBaseline) []models.DetectedAnomaly {
	now := c.now()
	anomalies := []models.DetectedAnomaly{}

	for _, r := range c.rules {
		for _, cand := range r(vehicle, baseline, now) {
			confidence := clamp01(cand.confidence)
			if confidence < c.config.AcceptanceThreshold {
				c.metrics.candidateDiscarded(cand.typeID)
				continue
			}

			anomalies = append(anomalies, models.DetectedAnomaly{
				ID:             c.newID(),
				VehicleID:      vehicle.ID,
				VehicleName:    vehicle.Name,
				AnomalyType:    mustType(cand.typeID),
				DetectedAt:     now,
				Value:          cand.value,
				ExpectedRange:  cand.expected,
				Deviation:      cand.deviation,
				Confidence:     confidence,
				Context:        cand.context,
				Recommendation: cand.recommendation,
			})
		}
	}

	return anomalies
}

func (c *Classifier) checkEngineTemperature(vehicle models.Vehicle, baseline models.VehicleBaseline, _ time.Time) []candidate {
	if vehicle.Sensors == nil || vehicle.Sensors.EngineTemperature == nil {
		return nil
	}
	reading := *vehicle.Sensors.EngineTemperature
	b := baseline.EngineTemperature
	z := math.Abs(reading-b.Mean) / b.StdDev

	if reading <= c.config.EngineTempLimit && z <= c.config.EngineTempZScore {
		return nil
	}

	spike := reading > c.config.EngineTempLimit || reading >= b.Mean
	typeID := TypeEngineTempDrop
	if spike {
		typeID = TypeEngineTempSpike
	}

	return []candidate{{
		typeID:         typeID,
		value:          reading,
		expected:       sigmaRange(b, engineTempSigmas),
		deviation:      z,
		confidence:     math.Min(confidenceEngineTempCap, 0.5+z*0.15),
		context:        engineTempContext(reading, b.Mean, z),
		recommendation: engineTempRecommendation(spike),
	}}
}

func checkOilPressure(vehicle models.Vehicle, baseline models.VehicleBaseline, _ time.Time) []candidate {
	if vehicle.Sensors == nil || vehicle.Sensors.OilPressure == nil {
		return nil
	}
	reading := *vehicle.Sensors.OilPressure
	if reading >= oilPressureMin {
		return nil
	}

	return []candidate{{
		typeID:         TypeOilPressureDrop,
		value:          reading,
		expected:       models.ExpectedRange{Min: baseline.OilPressure.Min, Max: baseline.OilPressure.Max},
		deviation:      (oilPressureNominal - reading) / oilPressureScale,
		confidence:     confidenceOilPressure,
		context:        oilPressureContext(reading),
		recommendation: oilPressureRecommendation(),
	}}
}

func checkBatteryVoltage(vehicle models.Vehicle, baseline models.VehicleBaseline, _ time.Time) []candidate {
	if vehicle.Sensors == nil || vehicle.Sensors.BatteryVoltage == nil {
		return nil
	}
	reading := *vehicle.Sensors.BatteryVoltage
	if reading >= nominalBattery.Min && reading <= nominalBattery.Max {
		return nil
	}

	return []candidate{{
		typeID:         TypeLowBatteryVoltage,
		value:          reading,
		expected:       models.ExpectedRange{Min: baseline.BatteryVoltage.Min, Max: baseline.BatteryVoltage.Max},
		deviation:      math.Abs(reading-batteryCenter) / batteryScale,
		confidence:     confidenceBattery,
		context:        batteryContext(reading),
		recommendation: batteryRecommendation(reading),
	}}
}

// checkTirePressure runs both tire rules; a vehicle can trip both at once
func checkTirePressure(vehicle models.Vehicle, _ models.VehicleBaseline, _ time.Time) []candidate {
	if vehicle.Sensors == nil || vehicle.Sensors.TirePressure == nil {
		return nil
	}
	pressures := vehicle.Sensors.TirePressure.Values()
	stats := tireStats(pressures)
	variance := stats.StdDev * stats.StdDev

	var candidates []candidate

	if variance > tireVarianceLimit {
		candidates = append(candidates, candidate{
			typeID:         TypeTirePressure,
			value:          variance,
			expected:       models.ExpectedRange{Min: stats.Mean - stats.StdDev, Max: stats.Mean + stats.StdDev},
			deviation:      stats.StdDev / 2,
			confidence:     confidenceTireImbalance,
			context:        tireImbalanceContext(pressures, stats.StdDev),
			recommendation: tireImbalanceRecommendation(),
		})
	}

	if stats.Min < tireMinPressure {
		candidates = append(candidates, candidate{
			typeID:         TypeTirePressure,
			value:          stats.Min,
			expected:       models.ExpectedRange{Min: tireMinPressure, Max: tireUpper},
			deviation:      (tireNominal - stats.Min) / tireLowScale,
			confidence:     confidenceTireLow,
			context:        tireLowContext(stats.Min),
			recommendation: tireLowRecommendation(),
		})
	}

	return candidates
}

// tireStats is calculateStats without the std-dev floor; tire spread can legitimately be zero
func tireStats(pressures [4]float64) models.MetricBaseline {
	sum := 0.0
	minVal, maxVal := pressures[0], pressures[0]
	for _, p := range pressures {
		sum += p
		minVal = math.Min(minVal, p)
		maxVal = math.Max(maxVal, p)
	}
	mean := sum / float64(len(pressures))

	variance := 0.0
	for _, p := range pressures {
		diff := p - mean
		variance += diff * diff
	}

	return models.MetricBaseline{
		Mean:   mean,
		StdDev: math.Sqrt(variance / float64(len(pressures))),
		Min:    minVal,
		Max:    maxVal,
	}
}

func checkFuelEfficiency(vehicle models.Vehicle, baseline models.VehicleBaseline, _ time.Time) []candidate {
	if vehicle.FuelEfficiency == nil {
		return nil
	}
	efficiency := *vehicle.FuelEfficiency
	b := baseline.FuelEfficiency
	if efficiency >= b.Mean-fuelEfficiencySigmas*b.StdDev {
		return nil
	}

	return []candidate{{
		typeID:         TypeFuelEfficiencyDrop,
		value:          efficiency,
		expected:       sigmaRange(b, fuelEfficiencySigmas),
		deviation:      (b.Mean - efficiency) / b.StdDev,
		confidence:     confidenceFuelDrop,
		context:        fuelEfficiencyContext(efficiency, b.Mean),
		recommendation: fuelEfficiencyRecommendation(),
	}}
}

func checkOverdueDates(vehicle models.Vehicle, _ models.VehicleBaseline, now time.Time) []candidate {
	info := vehicle.MaintenanceInfo
	if info == nil {
		return nil
	}

	dates := []struct {
		due    *time.Time
		label  string
		action string
	}{
		{info.InsuranceExpiry, "Insurance", "Renew the insurance policy"},
		{info.RegistrationExpiry, "Registration", "Renew the vehicle registration"},
		{info.NextServiceDue, "Scheduled service", "Book the scheduled service"},
	}

	var candidates []candidate
	for _, d := range dates {
		if d.due == nil || !d.due.Before(now) {
			continue
		}
		days := math.Floor(now.Sub(*d.due).Hours() / 24)
		candidates = append(candidates, candidate{
			typeID:         TypeOverdueMaintenance,
			value:          days,
			expected:       models.ExpectedRange{Min: 0, Max: 0},
			deviation:      days / 7,
			confidence:     confidenceOverdue,
			context:        overdueContext(d.label, days),
			recommendation: overdueRecommendation(d.action),
		})
	}
	return candidates
}

func sigmaRange(b models.MetricBaseline, k float64) models.ExpectedRange {
	return models.ExpectedRange{Min: b.Mean - k*b.StdDev, Max: b.Mean + k*b.StdDev}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
