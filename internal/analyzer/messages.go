package analyzer

import (
	"fmt"
)

// Context and recommendation text is a pure function of the triggering values.

func engineTempContext(reading, mean, z float64) string {
	return fmt.Sprintf("Engine temperature %.1f°C vs baseline %.1f°C (%.1fσ)", reading, mean, z)
}

func engineTempRecommendation(spike bool) string {
	if spike {
		return "Check coolant level, radiator and thermostat; avoid heavy loads until inspected"
	}
	return "Inspect thermostat and temperature sensor; engine may not be reaching operating temperature"
}

func oilPressureContext(reading float64) string {
	return fmt.Sprintf("Oil pressure %.1f psi is below the 25 psi safety minimum", reading)
}

func oilPressureRecommendation() string {
	return "Stop the vehicle safely and check oil level; schedule oil pump inspection"
}

func batteryContext(reading float64) string {
	if reading < nominalBattery.Min {
		return fmt.Sprintf("Battery voltage %.2fV is below %.1fV", reading, nominalBattery.Min)
	}
	return fmt.Sprintf("Battery voltage %.2fV is above %.1fV", reading, nominalBattery.Max)
}

func batteryRecommendation(reading float64) string {
	if reading < nominalBattery.Min {
		return "Test battery and alternator output; clean terminals"
	}
	return "Inspect voltage regulator for overcharging"
}

func tireImbalanceContext(pressures [4]float64, stdDev float64) string {
	return fmt.Sprintf("Tire pressures FL %.0f / FR %.0f / RL %.0f / RR %.0f psi differ by %.1f psi (σ)",
		pressures[0], pressures[1], pressures[2], pressures[3], stdDev)
}

func tireImbalanceRecommendation() string {
	return "Equalize tire pressures and inspect for slow leaks"
}

func tireLowContext(minPressure float64) string {
	return fmt.Sprintf("Lowest tire pressure %.1f psi is below the 28 psi minimum", minPressure)
}

func tireLowRecommendation() string {
	return "Inflate tires to the recommended pressure and check for punctures"
}

func fuelEfficiencyContext(efficiency, mean float64) string {
	return fmt.Sprintf("Fuel efficiency %.1f km/L vs baseline %.1f km/L", efficiency, mean)
}

func fuelEfficiencyRecommendation() string {
	return "Check tire pressure, air filter and driving patterns; consider an engine diagnostic"
}

func overdueContext(label string, days float64) string {
	return fmt.Sprintf("%s overdue by %.0f days", label, days)
}

func overdueRecommendation(action string) string {
	return action + " and update the maintenance record"
}
