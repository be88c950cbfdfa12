package analyzer

import (
	"sort"
	"time"

	"github.com/justin4957/fleetwatch/pkg/models"
)

const (
	topVehiclesLimit = 5
	trendDays        = 7
	dayLayout        = "2006-01-02"
)

// ComputeStatistics derives fleet-wide rollups from a list of anomalies.
// Nothing is cached; callers recompute on every request.
func ComputeStatistics(anomalies []models.DetectedAnomaly, now time.Time) models.AnomalyStatistics {
	stats := models.AnomalyStatistics{
		Total:      len(anomalies),
		ByCategory: make(map[models.Category]int),
		BySeverity: make(map[models.Severity]int),
	}

	confidenceSum := 0.0
	autoResolved := 0
	for _, a := range anomalies {
		stats.ByCategory[a.AnomalyType.Category]++
		stats.BySeverity[a.AnomalyType.Severity]++
		confidenceSum += a.Confidence
		if a.AutoResolved {
			autoResolved++
		}
	}

	if len(anomalies) > 0 {
		stats.AvgConfidence = confidenceSum / float64(len(anomalies))
		stats.AutoResolvedRate = float64(autoResolved) / float64(len(anomalies)) * 100
	}

	stats.TopAffectedVehicles = getTopVehicles(anomalies, topVehiclesLimit)
	stats.TrendsLastWeek = getDailyTrend(anomalies, now, trendDays)

	return stats
}

// getTopVehicles ranks vehicles by anomaly count; ties keep first-seen order
func getTopVehicles(anomalies []models.DetectedAnomaly, limit int) []models.VehicleCount {
	counts := make(map[string]int, len(anomalies))
	sorted := make([]models.VehicleCount, 0)
	for _, a := range anomalies {
		idx, seen := counts[a.VehicleID]
		if !seen {
			idx = len(sorted)
			counts[a.VehicleID] = idx
			sorted = append(sorted, models.VehicleCount{VehicleID: a.VehicleID, VehicleName: a.VehicleName})
		}
		sorted[idx].Count++
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Count > sorted[j].Count
	})

	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// getDailyTrend buckets anomalies by calendar day, oldest first, ending today.
// Empty days are present with a zero count.
func getDailyTrend(anomalies []models.DetectedAnomaly, now time.Time, days int) []models.DayCount {
	loc := now.Location()
	trend := make([]models.DayCount, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		date := now.AddDate(0, 0, i-(days-1)).Format(dayLayout)
		trend[i] = models.DayCount{Date: date}
		index[date] = i
	}

	for _, a := range anomalies {
		if i, ok := index[a.DetectedAt.In(loc).Format(dayLayout)]; ok {
			trend[i].Count++
		}
	}
	return trend
}
