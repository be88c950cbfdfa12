package analyzer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/justin4957/fleetwatch/internal/config"
	"github.com/justin4957/fleetwatch/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(opts ...Option) *Engine {
	return NewEngine(testDetectorConfig(), append([]Option{WithClock(fixedClock)}, opts...)...)
}

// faultyFleet returns a fleet where vehicle "v2" has low oil pressure
func faultyFleet() ([]models.Vehicle, TripMap) {
	vehicles := []models.Vehicle{createTestVehicle("v1"), createTestVehicle("v2"), createTestVehicle("v3")}
	vehicles[1].Sensors.OilPressure = models.Float(18)

	trips := TripMap{}
	for _, v := range vehicles {
		trips[v.ID] = generateTrips(v.ID, 10, 88, 9)
	}
	return vehicles, trips
}

type panickingTrips struct {
	TripMap
	bad string
}

func (pt panickingTrips) TripsFor(vehicleID string) []models.Trip {
	if vehicleID == pt.bad {
		panic("corrupt trip record")
	}
	return pt.TripMap.TripsFor(vehicleID)
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []models.DetectedAnomaly
}

func (rp *recordingPublisher) Publish(_ context.Context, anomalies []models.DetectedAnomaly) error {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.published = append(rp.published, anomalies...)
	return nil
}

func (rp *recordingPublisher) count() int {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return len(rp.published)
}

// TestEngine_DetectFleetAnomalies tests a full scan feeding the store
func TestEngine_DetectFleetAnomalies(t *testing.T) {
	engine := newTestEngine()
	vehicles, trips := faultyFleet()

	anomalies, err := engine.DetectFleetAnomalies(vehicles, trips)
	require.NoError(t, err)

	require.Len(t, anomalies, 1)
	assert.Equal(t, "v2", anomalies[0].VehicleID)
	assert.Equal(t, TypeOilPressureDrop, anomalies[0].AnomalyType.ID)

	for _, v := range vehicles {
		_, ok := engine.Baseline(v.ID)
		assert.True(t, ok, "baseline for %s", v.ID)
	}

	assert.Len(t, engine.GetVehicleAnomalies("v2"), 1)
	assert.Empty(t, engine.GetVehicleAnomalies("v1"))
	assert.Len(t, engine.GetRecentAnomalies(10), 1)

	// history is append-only across scans
	_, err = engine.DetectFleetAnomalies(vehicles, trips)
	require.NoError(t, err)
	assert.Len(t, engine.GetVehicleAnomalies("v2"), 2)
}

func TestEngine_EmptyFleet(t *testing.T) {
	engine := newTestEngine()

	anomalies, err := engine.DetectFleetAnomalies(nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, anomalies)
	assert.Empty(t, anomalies)
}

// TestEngine_BadRecordsDoNotAbortScan tests per-vehicle error isolation
func TestEngine_BadRecordsDoNotAbortScan(t *testing.T) {
	engine := newTestEngine()
	vehicles, trips := faultyFleet()
	missingID := createTestVehicle("")
	missingID.Sensors.OilPressure = models.Float(10)
	vehicles = append(vehicles, missingID, createTestVehicle("v4"))
	vehicles[4].Sensors.BatteryVoltage = models.Float(11)

	anomalies, err := engine.DetectFleetAnomalies(vehicles, panickingTrips{TripMap: trips, bad: "v1"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingVehicleID))

	var vehicleErr *VehicleError
	require.True(t, errors.As(err, &vehicleErr))

	found := make(map[string]bool)
	for _, a := range anomalies {
		found[a.VehicleID] = true
	}
	assert.True(t, found["v2"])
	assert.True(t, found["v4"])
	assert.False(t, found[""])
	assert.Contains(t, err.Error(), "vehicle v1: panic: corrupt trip record")
}

// TestEngine_ParallelScanMatchesSequential tests that workers do not change the outcome
func TestEngine_ParallelScanMatchesSequential(t *testing.T) {
	vehicles := make([]models.Vehicle, 0, 40)
	trips := TripMap{}
	for i := 0; i < 40; i++ {
		v := createTestVehicle(string(rune('A'+i%26)) + string(rune('a'+i/26)))
		if i%3 == 0 {
			v.Sensors.OilPressure = models.Float(20)
		}
		if i%5 == 0 {
			v.Sensors.BatteryVoltage = models.Float(15.5)
		}
		vehicles = append(vehicles, v)
		trips[v.ID] = generateTrips(v.ID, 8, 88, 9)
	}

	sequential := newTestEngine()
	cfg := testDetectorConfig()
	cfg.ScanWorkers = 8
	parallel := NewEngine(cfg, WithClock(fixedClock))

	seqResult, err := sequential.DetectFleetAnomalies(vehicles, trips)
	require.NoError(t, err)
	parResult, err := parallel.DetectFleetAnomalies(vehicles, trips)
	require.NoError(t, err)

	require.Equal(t, len(seqResult), len(parResult))
	for i := range seqResult {
		assert.Equal(t, seqResult[i].VehicleID, parResult[i].VehicleID)
		assert.Equal(t, seqResult[i].AnomalyType.ID, parResult[i].AnomalyType.ID)
		assert.Equal(t, seqResult[i].Value, parResult[i].Value)
	}
}

// TestEngine_DetectAnomaliesColdStart tests that the first call only builds a baseline
func TestEngine_DetectAnomaliesColdStart(t *testing.T) {
	engine := newTestEngine()
	vehicle := createTestVehicle("v1")
	vehicle.Sensors.OilPressure = models.Float(20)

	first := engine.DetectAnomalies(vehicle, nil)
	assert.Empty(t, first)
	_, ok := engine.Baseline("v1")
	assert.True(t, ok)

	second := engine.DetectAnomalies(vehicle, nil)
	assert.Len(t, findByType(second, TypeOilPressureDrop), 1)

	// classification alone does not touch the store
	assert.Empty(t, engine.GetRecentAnomalies(-1))
}

// TestEngine_LifecycleAndRetention tests acknowledge/resolve and pruning through the engine
func TestEngine_LifecycleAndRetention(t *testing.T) {
	now := testNow
	engine := NewEngine(testDetectorConfig(), WithClock(func() time.Time { return now }))
	vehicles, trips := faultyFleet()

	anomalies, err := engine.DetectFleetAnomalies(vehicles, trips)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	id := anomalies[0].ID

	assert.False(t, engine.AcknowledgeAnomaly("missing"))
	assert.False(t, engine.ResolveAnomaly("missing", true))

	assert.True(t, engine.AcknowledgeAnomaly(id))
	assert.True(t, engine.GetRecentAnomalies(1)[0].Acknowledged)

	now = testNow.Add(2 * time.Hour)
	assert.True(t, engine.ResolveAnomaly(id, false))
	resolved := engine.GetRecentAnomalies(1)[0]
	assert.False(t, resolved.AutoResolved)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, now, *resolved.ResolvedAt)

	// a second, still open anomaly from the same old scan
	now = testNow
	_, err = engine.DetectFleetAnomalies(vehicles, trips)
	require.NoError(t, err)

	now = testNow.AddDate(0, 0, 40)
	assert.Equal(t, 1, engine.ClearOldAnomalies(30))
	remaining := engine.GetRecentAnomalies(-1)
	require.Len(t, remaining, 1)
	assert.False(t, remaining[0].Acknowledged)
}

func TestEngine_GetStatistics(t *testing.T) {
	engine := newTestEngine()
	vehicles, trips := faultyFleet()
	_, err := engine.DetectFleetAnomalies(vehicles, trips)
	require.NoError(t, err)

	stats := engine.GetStatistics()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 0.9, stats.AvgConfidence)
	require.Len(t, stats.TrendsLastWeek, 7)
	assert.Equal(t, 1, stats.TrendsLastWeek[6].Count)
	assert.Len(t, engine.GetAnomalyTypes(), len(anomalyTypes))
}

// TestEngine_Metrics tests Prometheus instrumentation of a scan
func TestEngine_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	engine := newTestEngine(WithMetrics(metrics))

	vehicles, trips := faultyFleet()
	vehicles = append(vehicles, models.Vehicle{Name: "no id"})
	_, err := engine.DetectFleetAnomalies(vehicles, trips)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.anomaliesDetected.WithLabelValues(TypeOilPressureDrop, "critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.vehiclesFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.storedAnomalies))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.baselines))
}

// TestEngine_Start tests the snapshot loop end to end
func TestEngine_Start(t *testing.T) {
	publisher := &recordingPublisher{}
	engine := newTestEngine(WithPublisher(publisher))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	input := make(chan *models.FleetSnapshot, 1)
	output := make(chan interface{}, 10)
	done := make(chan struct{})
	go func() {
		engine.Start(ctx, input, output)
		close(done)
	}()

	vehicles, tripMap := faultyFleet()
	snapshot := &models.FleetSnapshot{Vehicles: vehicles}
	for _, trips := range tripMap {
		snapshot.Trips = append(snapshot.Trips, trips...)
	}
	input <- snapshot

	var gotAnomaly bool
	var gotStats bool
	timeout := time.After(2 * time.Second)
	for !gotStats {
		select {
		case msg := <-output:
			switch m := msg.(type) {
			case models.DetectedAnomaly:
				gotAnomaly = true
				assert.Equal(t, "v2", m.VehicleID)
			case models.AnomalyStatistics:
				gotStats = true
				assert.Equal(t, 1, m.Total)
			}
		case <-timeout:
			t.Fatal("timed out waiting for engine output")
		}
	}

	assert.True(t, gotAnomaly)
	assert.Equal(t, 1, publisher.count())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after cancel")
	}
}

// TestEngine_ZeroConfigUsesDefaults tests that an empty detector config behaves like the defaults
func TestEngine_ZeroConfigUsesDefaults(t *testing.T) {
	engine := NewEngine(config.DetectorConfig{}, WithClock(fixedClock))
	vehicles, trips := faultyFleet()

	anomalies, err := engine.DetectFleetAnomalies(vehicles, trips)
	require.NoError(t, err)

	require.Len(t, anomalies, 1)
	assert.Equal(t, TypeOilPressureDrop, anomalies[0].AnomalyType.ID)
	assert.Empty(t, findByType(anomalies, TypeEngineTempSpike))
}

// TestEngine_AcceptanceFloorCannotBeLowered tests that a threshold under 0.70 is lifted to it
func TestEngine_AcceptanceFloorCannotBeLowered(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	cfg := config.DetectorConfig{AcceptanceThreshold: 0.5, EngineTempLimit: 90}
	engine := NewEngine(cfg, WithClock(fixedClock), WithMetrics(metrics))

	// 91 °C is over the limit but only about one sigma from the ~90 °C history,
	// so its confidence lands between 0.5 and 0.70
	vehicle := createTestVehicle("v1")
	vehicle.Sensors.EngineTemperature = models.Float(91)
	trips := TripMap{"v1": generateTrips("v1", 10, 90, 9)}

	anomalies, err := engine.DetectFleetAnomalies([]models.Vehicle{vehicle}, trips)
	require.NoError(t, err)

	assert.Empty(t, findByType(anomalies, TypeEngineTempSpike))
	for _, a := range engine.GetRecentAnomalies(-1) {
		assert.GreaterOrEqual(t, a.Confidence, config.MinAcceptanceThreshold)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.candidatesDiscarded.WithLabelValues(TypeEngineTempSpike)))
}

// TestEngine_NilSnapshotTrips tests scanning against a nil snapshot as the trip source
func TestEngine_NilSnapshotTrips(t *testing.T) {
	engine := newTestEngine()
	vehicles, _ := faultyFleet()

	var snapshot *models.FleetSnapshot
	anomalies, err := engine.DetectFleetAnomalies(vehicles, snapshot)
	require.NoError(t, err)

	require.Len(t, anomalies, 1)
	baseline, ok := engine.Baseline("v1")
	require.True(t, ok)
	assert.Equal(t, 0, baseline.DataPoints)
}
