package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/justin4957/fleetwatch/internal/analyzer"
	"github.com/justin4957/fleetwatch/internal/config"
	"github.com/justin4957/fleetwatch/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

// newTestServer builds a dashboard over a real engine holding one oil pressure anomaly
func newTestServer(t *testing.T) (*Server, *analyzer.Engine, string) {
	t.Helper()
	cfg := config.DefaultConfig()
	reg := prometheus.NewRegistry()
	engine := analyzer.NewEngine(cfg.Detector,
		analyzer.WithClock(func() time.Time { return testNow }),
		analyzer.WithMetrics(analyzer.NewMetrics(reg)),
	)

	vehicles := []models.Vehicle{
		{ID: "v1", Name: "Van 1", Sensors: &models.SensorReadings{OilPressure: models.Float(20)}},
		{ID: "v2", Name: "Van 2"},
	}
	anomalies, err := engine.DetectFleetAnomalies(vehicles, analyzer.TripMap{})
	require.NoError(t, err)
	require.Len(t, anomalies, 1)

	metrics := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return NewServer(cfg.Dashboard, engine, metrics, zerolog.Nop()), engine, anomalies[0].ID
}

func doRequest(t *testing.T, handler http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestServer_RecentAnomalies(t *testing.T) {
	server, _, id := newTestServer(t)
	handler := server.Handler()

	rec := doRequest(t, handler, http.MethodGet, "/api/anomalies?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)

	var anomalies []models.DetectedAnomaly
	decode(t, rec, &anomalies)
	require.Len(t, anomalies, 1)
	assert.Equal(t, id, anomalies[0].ID)
	assert.Equal(t, "oil_pressure_drop", anomalies[0].AnomalyType.ID)

	rec = doRequest(t, handler, http.MethodGet, "/api/anomalies?limit=0")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = doRequest(t, handler, http.MethodGet, "/api/anomalies?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_VehicleEndpoints(t *testing.T) {
	server, _, _ := newTestServer(t)
	handler := server.Handler()

	rec := doRequest(t, handler, http.MethodGet, "/api/vehicles/v1/anomalies")
	require.Equal(t, http.StatusOK, rec.Code)
	var anomalies []models.DetectedAnomaly
	decode(t, rec, &anomalies)
	assert.Len(t, anomalies, 1)

	rec = doRequest(t, handler, http.MethodGet, "/api/vehicles/v2/anomalies")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = doRequest(t, handler, http.MethodGet, "/api/vehicles/v1/baseline")
	require.Equal(t, http.StatusOK, rec.Code)
	var baseline models.VehicleBaseline
	decode(t, rec, &baseline)
	assert.Equal(t, 30.0, baseline.OilPressure.Min)

	rec = doRequest(t, handler, http.MethodGet, "/api/vehicles/ghost/baseline")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestServer_Lifecycle tests acknowledge, resolve and clear over HTTP
func TestServer_Lifecycle(t *testing.T) {
	server, engine, id := newTestServer(t)
	handler := server.Handler()

	rec := doRequest(t, handler, http.MethodPost, "/api/anomalies/"+id+"/acknowledge")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated": true}`, rec.Body.String())

	rec = doRequest(t, handler, http.MethodPost, "/api/anomalies/unknown/acknowledge")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated": false}`, rec.Body.String())

	rec = doRequest(t, handler, http.MethodPost, "/api/anomalies/"+id+"/resolve?auto=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated": true}`, rec.Body.String())

	stored := engine.GetVehicleAnomalies("v1")[0]
	assert.True(t, stored.Acknowledged)
	assert.True(t, stored.AutoResolved)
	require.NotNil(t, stored.ResolvedAt)

	rec = doRequest(t, handler, http.MethodPost, "/api/anomalies/"+id+"/resolve?auto=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// detected today, so nothing is old enough to prune
	rec = doRequest(t, handler, http.MethodPost, "/api/anomalies/clear?days=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed": 0}`, rec.Body.String())

	rec = doRequest(t, handler, http.MethodPost, "/api/anomalies/clear")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/anomalies/"+id+"/acknowledge")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_StatisticsAndTypes(t *testing.T) {
	server, _, _ := newTestServer(t)
	handler := server.Handler()

	rec := doRequest(t, handler, http.MethodGet, "/api/statistics")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.AnomalyStatistics
	decode(t, rec, &stats)
	assert.Equal(t, 1, stats.Total)
	assert.Len(t, stats.TrendsLastWeek, 7)
	assert.Equal(t, 1, stats.BySeverity[models.SeverityCritical])

	rec = doRequest(t, handler, http.MethodGet, "/api/anomaly-types")
	require.Equal(t, http.StatusOK, rec.Code)
	var types []models.AnomalyType
	decode(t, rec, &types)
	assert.Len(t, types, len(analyzer.ListTypes()))
}

func TestServer_MetricsAndIndex(t *testing.T) {
	server, _, _ := newTestServer(t)
	handler := server.Handler()

	rec := doRequest(t, handler, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fleetwatch_anomalies_detected_total")

	rec = doRequest(t, handler, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "FleetWatch"))
}

func TestServer_CORS(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Dashboard.AllowedOrigins = []string{"https://ops.example.com"}
	server := NewServer(cfg.Dashboard, analyzer.NewEngine(cfg.Detector), nil, zerolog.Nop())
	handler := server.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/statistics", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/statistics", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, server.checkOrigin(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, server.checkOrigin(req))
}

// TestServer_WebSocketBroadcast tests that engine output reaches connected clients
func TestServer_WebSocketBroadcast(t *testing.T) {
	server, _, _ := newTestServer(t)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	input := make(chan interface{}, 1)
	go server.broadcastLoop(ctx)
	go server.handleInput(ctx, input)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// wait for the server to register the client
	require.Eventually(t, func() bool {
		server.clientsMu.RLock()
		defer server.clientsMu.RUnlock()
		return len(server.clients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	input <- models.AnomalyStatistics{Total: 3}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Kind string                   `json:"kind"`
		Data models.AnomalyStatistics `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "statistics", msg.Kind)
	assert.Equal(t, 3, msg.Data.Total)
}
