package analyzer

import (
	"sort"
	"sync"
	"time"

	"github.com/justin4957/fleetwatch/pkg/models"
)

// AnomalyStore is the indexed ledger of detected anomalies.
// Records are kept by id; order preserves insertion for stable iteration.
type AnomalyStore struct {
	mu    sync.RWMutex
	byID  map[string]*models.DetectedAnomaly
	order []string
}

// NewAnomalyStore creates an empty store
func NewAnomalyStore() *AnomalyStore {
	return &AnomalyStore{
		byID:  make(map[string]*models.DetectedAnomaly),
		order: make([]string, 0),
	}
}

// Add appends anomalies to the ledger
func (s *AnomalyStore) Add(anomalies ...models.DetectedAnomaly) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range anomalies {
		a := anomalies[i]
		if _, exists := s.byID[a.ID]; !exists {
			s.order = append(s.order, a.ID)
		}
		s.byID[a.ID] = &a
	}
}

// Get returns a copy of one anomaly
func (s *AnomalyStore) Get(id string) (models.DetectedAnomaly, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return models.DetectedAnomaly{}, false
	}
	return copyAnomaly(a), true
}

// Acknowledge marks an anomaly as seen by an operator. Unknown ids are ignored.
func (s *AnomalyStore) Acknowledge(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return false
	}
	a.Acknowledged = true
	return true
}

// Resolve closes an anomaly. Unknown ids are ignored.
func (s *AnomalyStore) Resolve(id string, auto bool, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return false
	}
	a.AutoResolved = auto
	a.ResolvedAt = &at
	return true
}

// ClearBefore drops closed anomalies detected before cutoff and returns how many went.
// Open anomalies stay regardless of age.
func (s *AnomalyStore) ClearBefore(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		a := s.byID[id]
		if a.DetectedAt.Before(cutoff) && !a.IsOpen() {
			delete(s.byID, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}

// Recent returns up to limit anomalies, newest first. A negative limit returns all.
func (s *AnomalyStore) Recent(limit int) []models.DetectedAnomaly {
	s.mu.RLock()
	result := make([]models.DetectedAnomaly, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		result = append(result, copyAnomaly(s.byID[s.order[i]]))
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].DetectedAt.After(result[j].DetectedAt)
	})

	if limit >= 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// ForVehicle returns every anomaly recorded for one vehicle in insertion order
func (s *AnomalyStore) ForVehicle(vehicleID string) []models.DetectedAnomaly {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []models.DetectedAnomaly{}
	for _, id := range s.order {
		if a := s.byID[id]; a.VehicleID == vehicleID {
			result = append(result, copyAnomaly(a))
		}
	}
	return result
}

// Snapshot returns a copy of the whole ledger in insertion order
func (s *AnomalyStore) Snapshot() []models.DetectedAnomaly {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.DetectedAnomaly, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, copyAnomaly(s.byID[id]))
	}
	return result
}

// Len returns the number of stored anomalies
func (s *AnomalyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func copyAnomaly(a *models.DetectedAnomaly) models.DetectedAnomaly {
	c := *a
	if a.ResolvedAt != nil {
		resolvedAt := *a.ResolvedAt
		c.ResolvedAt = &resolvedAt
	}
	return c
}
