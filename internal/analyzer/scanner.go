package analyzer

import (
	"errors"
	"fmt"
	"time"

	"github.com/justin4957/fleetwatch/pkg/models"
	"golang.org/x/sync/errgroup"
)

// ErrMissingVehicleID is reported for vehicle records without an id
var ErrMissingVehicleID = errors.New("vehicle record has no id")

// VehicleError reports a vehicle that could not be scanned
type VehicleError struct {
	Index     int
	VehicleID string
	Err       error
}

func (ve *VehicleError) Error() string {
	if ve.VehicleID == "" {
		return fmt.Sprintf("vehicle #%d: %v", ve.Index, ve.Err)
	}
	return fmt.Sprintf("vehicle %s: %v", ve.VehicleID, ve.Err)
}

func (ve *VehicleError) Unwrap() error {
	return ve.Err
}

// DetectFleetAnomalies refreshes every vehicle's baseline, classifies it and
// appends the results to the store. A bad record only skips its own vehicle;
// the per-vehicle errors are joined into the returned error.
func (e *Engine) DetectFleetAnomalies(vehicles []models.Vehicle, trips TripSource) ([]models.DetectedAnomaly, error) {
	if len(vehicles) == 0 {
		return []models.DetectedAnomaly{}, nil
	}
	started := time.Now()

	results := make([][]models.DetectedAnomaly, len(vehicles))
	errs := make([]error, len(vehicles))

	var group errgroup.Group
	group.SetLimit(e.config.ScanWorkers)
	for idx := range vehicles {
		idx := idx
		group.Go(func() error {
			results[idx], errs[idx] = e.scanVehicle(idx, vehicles[idx], trips)
			return nil
		})
	}
	_ = group.Wait()

	// Merge in input order so the outcome does not depend on scheduling
	found := []models.DetectedAnomaly{}
	for idx := range results {
		if errs[idx] != nil {
			e.metrics.vehicleFailed()
			e.logger.Warn().Err(errs[idx]).Int("index", idx).Str("vehicle_id", vehicles[idx].ID).Msg("skipping vehicle")
			continue
		}
		found = append(found, results[idx]...)
	}

	e.store.Add(found...)
	for _, a := range found {
		e.metrics.anomalyDetected(a)
	}
	e.metrics.observeScan(time.Since(started), e.store.Len(), e.baselines.Len())

	e.logger.Debug().
		Int("vehicles", len(vehicles)).
		Int("anomalies", len(found)).
		Dur("elapsed", time.Since(started)).
		Msg("fleet scan finished")

	return found, errors.Join(errs...)
}

// scanVehicle refreshes one baseline and classifies the vehicle. Panics from a
// malformed record are turned into that vehicle's error.
func (e *Engine) scanVehicle(idx int, vehicle models.Vehicle, trips TripSource) (found []models.DetectedAnomaly, err error) {
	defer func() {
		if r := recover(); r != nil {
			found = nil
			err = &VehicleError{Index: idx, VehicleID: vehicle.ID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if vehicle.ID == "" {
		return nil, &VehicleError{Index: idx, Err: ErrMissingVehicleID}
	}

	var history []models.Trip
	if trips != nil {
		history = trips.TripsFor(vehicle.ID)
	}

	baseline := e.UpdateBaseline(vehicle, history)
	return e.classifier.Classify(vehicle, baseline), nil
}
