package analyzer

import (
	"github.com/justin4957/fleetwatch/pkg/models"
)

// Catalog ids referenced by the classifier
const (
	TypeEngineTempSpike    = "engine_temp_spike"
	TypeEngineTempDrop     = "engine_temp_drop"
	TypeOilPressureDrop    = "oil_pressure_drop"
	TypeLowBatteryVoltage  = "low_battery_voltage"
	TypeTirePressure       = "tire_pressure_anomaly"
	TypeHarshBraking       = "harsh_braking"
	TypeRapidAcceleration  = "rapid_acceleration"
	TypeExcessiveIdling    = "excessive_idling"
	TypeSpeedViolation     = "speed_violation"
	TypeFuelEfficiencyDrop = "fuel_efficiency_drop"
	TypeUnusualRoute       = "unusual_route"
	TypeOffHoursUsage      = "off_hours_usage"
	TypeGeofenceViolation  = "geofence_violation"
	TypeOverdueMaintenance = "overdue_maintenance"
	TypeComponentWear      = "component_wear"
)

var anomalyTypes = []models.AnomalyType{
	{
		ID:          TypeEngineTempSpike,
		Category:    models.CategorySensor,
		Name:        "Engine Temperature Spike",
		Description: "Engine temperature significantly above the vehicle's normal operating range",
		Severity:    models.SeverityHigh,
	},
	{
		ID:          TypeEngineTempDrop,
		Category:    models.CategorySensor,
		Name:        "Engine Temperature Drop",
		Description: "Engine temperature significantly below the vehicle's normal operating range",
		Severity:    models.SeverityMedium,
	},
	{
		ID:          TypeOilPressureDrop,
		Category:    models.CategorySensor,
		Name:        "Oil Pressure Drop",
		Description: "Oil pressure below the safe operating minimum",
		Severity:    models.SeverityCritical,
	},
	{
		ID:          TypeLowBatteryVoltage,
		Category:    models.CategorySensor,
		Name:        "Battery Voltage Out of Range",
		Description: "Battery or charging system voltage outside the nominal band",
		Severity:    models.SeverityMedium,
	},
	{
		ID:          TypeTirePressure,
		Category:    models.CategorySensor,
		Name:        "Tire Pressure Anomaly",
		Description: "Under-inflated tire or uneven pressure across the wheels",
		Severity:    models.SeverityHigh,
	},
	{
		ID:          TypeHarshBraking,
		Category:    models.CategoryBehavior,
		Name:        "Harsh Braking",
		Description: "Sudden deceleration events beyond the driver's usual pattern",
		Severity:    models.SeverityMedium,
	},
	{
		ID:          TypeRapidAcceleration,
		Category:    models.CategoryBehavior,
		Name:        "Rapid Acceleration",
		Description: "Aggressive acceleration events",
		Severity:    models.SeverityLow,
	},
	{
		ID:          TypeExcessiveIdling,
		Category:    models.CategoryBehavior,
		Name:        "Excessive Idling",
		Description: "Engine idle time well above the vehicle's baseline",
		Severity:    models.SeverityLow,
	},
	{
		ID:          TypeSpeedViolation,
		Category:    models.CategoryBehavior,
		Name:        "Speed Violation",
		Description: "Vehicle speed above the permitted limit",
		Severity:    models.SeverityHigh,
	},
	{
		ID:          TypeFuelEfficiencyDrop,
		Category:    models.CategoryPattern,
		Name:        "Fuel Efficiency Degradation",
		Description: "Fuel efficiency well below the vehicle's historical average",
		Severity:    models.SeverityMedium,
	},
	{
		ID:          TypeUnusualRoute,
		Category:    models.CategoryPattern,
		Name:        "Unusual Route",
		Description: "Trip deviates from the vehicle's established routes",
		Severity:    models.SeverityMedium,
	},
	{
		ID:          TypeOffHoursUsage,
		Category:    models.CategoryPattern,
		Name:        "Off-Hours Usage",
		Description: "Vehicle in use outside scheduled operating hours",
		Severity:    models.SeverityMedium,
	},
	{
		ID:          TypeGeofenceViolation,
		Category:    models.CategoryLocation,
		Name:        "Geofence Violation",
		Description: "Vehicle left its assigned operating area",
		Severity:    models.SeverityHigh,
	},
	{
		ID:          TypeOverdueMaintenance,
		Category:    models.CategoryMaintenance,
		Name:        "Overdue Maintenance",
		Description: "Insurance, registration or scheduled service date has passed",
		Severity:    models.SeverityHigh,
	},
	{
		ID:          TypeComponentWear,
		Category:    models.CategoryMaintenance,
		Name:        "Accelerated Component Wear",
		Description: "Sensor trends indicate a component wearing faster than expected",
		Severity:    models.SeverityMedium,
	},
}

var anomalyTypeIndex = func() map[string]models.AnomalyType {
	index := make(map[string]models.AnomalyType, len(anomalyTypes))
	for _, t := range anomalyTypes {
		index[t.ID] = t
	}
	return index
}()

// ListTypes returns a copy of the anomaly type catalog
func ListTypes() []models.AnomalyType {
	types := make([]models.AnomalyType, len(anomalyTypes))
	copy(types, anomalyTypes)
	return types
}

// LookupType resolves a catalog entry by id
func LookupType(id string) (models.AnomalyType, bool) {
	t, ok := anomalyTypeIndex[id]
	return t, ok
}

func mustType(id string) models.AnomalyType {
	t, ok := LookupType(id)
	if !ok {
		panic("analyzer: unknown anomaly type " + id)
	}
	return t
}
