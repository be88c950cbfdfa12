package models

import (
	"time"
)

// Category groups anomaly types by what they describe
type Category string

const (
	CategorySensor      Category = "sensor"
	CategoryBehavior    Category = "behavior"
	CategoryPattern     Category = "pattern"
	CategoryLocation    Category = "location"
	CategoryMaintenance Category = "maintenance"
)

// Severity represents anomaly severity
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AnomalyType is an immutable catalog entry
type AnomalyType struct {
	ID          string   `json:"id"`
	Category    Category `json:"category"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// MetricBaseline is the normal-range profile of one metric
type MetricBaseline struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// VehicleBaseline holds per-metric baselines for one vehicle
type VehicleBaseline struct {
	VehicleID         string         `json:"vehicle_id"`
	EngineTemperature MetricBaseline `json:"engine_temperature"`
	FuelEfficiency    MetricBaseline `json:"fuel_efficiency"`
	OilPressure       MetricBaseline `json:"oil_pressure"`
	BatteryVoltage    MetricBaseline `json:"battery_voltage"`
	AverageSpeed      MetricBaseline `json:"average_speed"`
	IdleTime          MetricBaseline `json:"idle_time"`
	LastUpdated       time.Time      `json:"last_updated"`
	DataPoints        int            `json:"data_points"` // trips in the history, excluding the current reading
}

// ExpectedRange is the band a reading was expected to fall in
type ExpectedRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DetectedAnomaly represents a detected anomaly
type DetectedAnomaly struct {
	ID             string        `json:"id"`
	VehicleID      string        `json:"vehicle_id"`
	VehicleName    string        `json:"vehicle_name"`
	AnomalyType    AnomalyType   `json:"anomaly_type"`
	DetectedAt     time.Time     `json:"detected_at"`
	Value          float64       `json:"value"`
	ExpectedRange  ExpectedRange `json:"expected_range"`
	Deviation      float64       `json:"deviation"`
	Confidence     float64       `json:"confidence"`
	Context        string        `json:"context"`
	Recommendation string        `json:"recommendation"`
	Acknowledged   bool          `json:"acknowledged"`
	AutoResolved   bool          `json:"auto_resolved"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
}

// IsOpen reports whether the anomaly is neither acknowledged nor auto-resolved.
// Retention never prunes open anomalies.
func (a *DetectedAnomaly) IsOpen() bool {
	return !a.Acknowledged && !a.AutoResolved
}

// AnomalyStatistics is a fleet-wide rollup derived from the anomaly store
type AnomalyStatistics struct {
	Total               int              `json:"total"`
	ByCategory          map[Category]int `json:"by_category"`
	BySeverity          map[Severity]int `json:"by_severity"`
	AvgConfidence       float64          `json:"avg_confidence"`
	AutoResolvedRate    float64          `json:"auto_resolved_rate"`
	TopAffectedVehicles []VehicleCount   `json:"top_affected_vehicles"`
	TrendsLastWeek      []DayCount       `json:"trends_last_week"`
}

// VehicleCount represents anomaly count per vehicle
type VehicleCount struct {
	VehicleID   string `json:"vehicle_id"`
	VehicleName string `json:"vehicle_name"`
	Count       int    `json:"count"`
}

// DayCount represents anomaly count per calendar day
type DayCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}
