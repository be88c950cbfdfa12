package analyzer

import (
	"fmt"
	"time"

	"github.com/justin4957/fleetwatch/internal/config"
	"github.com/justin4957/fleetwatch/pkg/models"
)

var testNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func testDetectorConfig() config.DetectorConfig {
	return config.DefaultConfig().Detector
}

// createTestVehicle creates a vehicle with healthy readings on every sensor
func createTestVehicle(id string) models.Vehicle {
	return models.Vehicle{
		ID:   id,
		Name: "Truck " + id,
		Sensors: &models.SensorReadings{
			EngineTemperature: models.Float(88),
			OilPressure:       models.Float(45),
			BatteryVoltage:    models.Float(12.7),
			FuelLevel:         models.Float(60),
			TirePressure:      &models.TirePressure{FrontLeft: 32, FrontRight: 32, RearLeft: 33, RearRight: 33},
		},
		FuelEfficiency: models.Float(9),
	}
}

// generateTrips creates count trips with engine temperature and efficiency around a center value
func generateTrips(vehicleID string, count int, engineTemp, efficiency float64) []models.Trip {
	trips := make([]models.Trip, count)
	for i := 0; i < count; i++ {
		offset := float64(i%3) - 1 // -1, 0, 1
		trips[i] = models.Trip{
			ID:                fmt.Sprintf("%s-trip-%d", vehicleID, i),
			VehicleID:         vehicleID,
			StartedAt:         testNow.Add(-time.Duration(i+1) * time.Hour),
			EngineTemperature: models.Float(engineTemp + offset),
			FuelEfficiency:    models.Float(efficiency + offset*0.2),
			AverageSpeed:      models.Float(55 + offset),
			IdleTime:          models.Float(12 + offset),
		}
	}
	return trips
}

func findByType(anomalies []models.DetectedAnomaly, typeID string) []models.DetectedAnomaly {
	var matched []models.DetectedAnomaly
	for _, a := range anomalies {
		if a.AnomalyType.ID == typeID {
			matched = append(matched, a)
		}
	}
	return matched
}
