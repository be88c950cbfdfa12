package models

import (
	"time"
)

// Vehicle is the current snapshot of a fleet vehicle as served by the data-access layer
type Vehicle struct {
	ID              string           `json:"id" yaml:"id"`
	Name            string           `json:"name" yaml:"name"`
	Sensors         *SensorReadings  `json:"sensors,omitempty" yaml:"sensors,omitempty"`
	MaintenanceInfo *MaintenanceInfo `json:"maintenance_info,omitempty" yaml:"maintenance_info,omitempty"`
	FuelEfficiency  *float64         `json:"fuel_efficiency,omitempty" yaml:"fuel_efficiency,omitempty"` // km/L
}

// SensorReadings holds the latest sensor values. Any field may be absent.
type SensorReadings struct {
	EngineTemperature *float64      `json:"engine_temperature,omitempty" yaml:"engine_temperature,omitempty"` // °C
	OilPressure       *float64      `json:"oil_pressure,omitempty" yaml:"oil_pressure,omitempty"`             // psi
	BatteryVoltage    *float64      `json:"battery_voltage,omitempty" yaml:"battery_voltage,omitempty"`       // V
	FuelLevel         *float64      `json:"fuel_level,omitempty" yaml:"fuel_level,omitempty"`                 // percentage
	TirePressure      *TirePressure `json:"tire_pressure,omitempty" yaml:"tire_pressure,omitempty"`
}

// TirePressure holds the four wheel pressures in psi
type TirePressure struct {
	FrontLeft  float64 `json:"front_left" yaml:"front_left"`
	FrontRight float64 `json:"front_right" yaml:"front_right"`
	RearLeft   float64 `json:"rear_left" yaml:"rear_left"`
	RearRight  float64 `json:"rear_right" yaml:"rear_right"`
}

// Values returns the four pressures in a fixed wheel order
func (tp TirePressure) Values() [4]float64 {
	return [4]float64{tp.FrontLeft, tp.FrontRight, tp.RearLeft, tp.RearRight}
}

// MaintenanceInfo carries the expiry and due dates tracked for a vehicle
type MaintenanceInfo struct {
	InsuranceExpiry    *time.Time `json:"insurance_expiry,omitempty" yaml:"insurance_expiry,omitempty"`
	RegistrationExpiry *time.Time `json:"registration_expiry,omitempty" yaml:"registration_expiry,omitempty"`
	NextServiceDue     *time.Time `json:"next_service_due,omitempty" yaml:"next_service_due,omitempty"`
}

// Trip is one historical trip record. Samples are optional.
type Trip struct {
	ID                string    `json:"id" yaml:"id"`
	VehicleID         string    `json:"vehicle_id" yaml:"vehicle_id"`
	StartedAt         time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	EngineTemperature *float64  `json:"engine_temperature,omitempty" yaml:"engine_temperature,omitempty"`
	FuelEfficiency    *float64  `json:"fuel_efficiency,omitempty" yaml:"fuel_efficiency,omitempty"`
	AverageSpeed      *float64  `json:"average_speed,omitempty" yaml:"average_speed,omitempty"` // km/h
	IdleTime          *float64  `json:"idle_time,omitempty" yaml:"idle_time,omitempty"`         // minutes
}

// FleetSnapshot is a full read of the fleet: every vehicle and its trip history
type FleetSnapshot struct {
	GeneratedAt time.Time `json:"generated_at,omitempty" yaml:"generated_at,omitempty"`
	Vehicles    []Vehicle `json:"vehicles" yaml:"vehicles"`
	Trips       []Trip    `json:"trips,omitempty" yaml:"trips,omitempty"`

	byVehicle map[string][]Trip
}

// Index groups trips by vehicle so TripsFor is a map lookup.
// Call it once before sharing the snapshot between goroutines.
func (fs *FleetSnapshot) Index() {
	fs.byVehicle = make(map[string][]Trip, len(fs.Vehicles))
	for _, trip := range fs.Trips {
		fs.byVehicle[trip.VehicleID] = append(fs.byVehicle[trip.VehicleID], trip)
	}
}

// TripsFor returns the trips recorded for one vehicle. A nil snapshot has no trips.
func (fs *FleetSnapshot) TripsFor(vehicleID string) []Trip {
	if fs == nil {
		return nil
	}
	if fs.byVehicle != nil {
		return fs.byVehicle[vehicleID]
	}

	var trips []Trip
	for _, trip := range fs.Trips {
		if trip.VehicleID == vehicleID {
			trips = append(trips, trip)
		}
	}
	return trips
}

// Float returns a pointer to v. Handy for building optional readings.
func Float(v float64) *float64 {
	return &v
}
