package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/justin4957/fleetwatch/internal/config"
	"github.com/justin4957/fleetwatch/pkg/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// AnomalyService is the engine surface the dashboard exposes
type AnomalyService interface {
	GetRecentAnomalies(limit int) []models.DetectedAnomaly
	GetVehicleAnomalies(vehicleID string) []models.DetectedAnomaly
	Baseline(vehicleID string) (models.VehicleBaseline, bool)
	GetStatistics() models.AnomalyStatistics
	GetAnomalyTypes() []models.AnomalyType
	AcknowledgeAnomaly(id string) bool
	ResolveAnomaly(id string, auto bool) bool
	ClearOldAnomalies(days int) int
}

// Server provides the web dashboard
type Server struct {
	config         config.DashboardConfig
	service        AnomalyService
	metricsHandler http.Handler
	cors           *cors.Cors
	logger         zerolog.Logger
	upgrader       websocket.Upgrader
	clients        map[*websocket.Conn]bool
	clientsMu      sync.RWMutex
	broadcast      chan interface{}
}

// NewServer creates a new dashboard server. metrics may be nil.
func NewServer(cfg config.DashboardConfig, service AnomalyService, metrics http.Handler, logger zerolog.Logger) *Server {
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	s := &Server{
		config:         cfg,
		service:        service,
		metricsHandler: metrics,
		cors: cors.New(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
		}),
		logger:    logger.With().Str("component", "dashboard").Logger(),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan interface{}, 100),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// checkOrigin accepts same-host clients that send no Origin and any origin CORS allows
func (s *Server) checkOrigin(r *http.Request) bool {
	if r.Header.Get("Origin") == "" {
		return true
	}
	return s.cors.OriginAllowed(r)
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/anomalies", s.handleRecent).Methods(http.MethodGet)
	api.HandleFunc("/anomalies/clear", s.handleClear).Methods(http.MethodPost)
	api.HandleFunc("/anomalies/{id}/acknowledge", s.handleAcknowledge).Methods(http.MethodPost)
	api.HandleFunc("/anomalies/{id}/resolve", s.handleResolve).Methods(http.MethodPost)
	api.HandleFunc("/vehicles/{id}/anomalies", s.handleVehicleAnomalies).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{id}/baseline", s.handleBaseline).Methods(http.MethodGet)
	api.HandleFunc("/statistics", s.handleStatistics).Methods(http.MethodGet)
	api.HandleFunc("/anomaly-types", s.handleTypes).Methods(http.MethodGet)

	r.Handle("/metrics", s.metricsHandler)
	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/", s.handleIndex)
	return s.cors.Handler(r)
}

// Start serves HTTP and relays engine output to websocket clients until ctx ends
func (s *Server) Start(ctx context.Context, input <-chan interface{}) error {
	go s.broadcastLoop(ctx)
	go s.handleInput(ctx, input)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("dashboard server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("dashboard server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeClients()
	return server.Shutdown(shutdownCtx)
}

func (s *Server) handleInput(ctx context.Context, input <-chan interface{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-input:
			if !ok {
				return
			}
			select {
			case s.broadcast <- envelope(data):
			case <-ctx.Done():
				return
			}
		}
	}
}

// message tags websocket payloads so the page can tell them apart
type message struct {
	Kind string      `json:"kind"`
	Data interface{} `json:"data"`
}

func envelope(data interface{}) message {
	switch data.(type) {
	case models.DetectedAnomaly:
		return message{Kind: "anomaly", Data: data}
	case models.AnomalyStatistics:
		return message{Kind: "statistics", Data: data}
	default:
		return message{Kind: "event", Data: data}
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.broadcast:
			var failed []*websocket.Conn
			s.clientsMu.RLock()
			for client := range s.clients {
				if err := client.WriteJSON(msg); err != nil {
					s.logger.Warn().Err(err).Msg("websocket write error")
					failed = append(failed, client)
				}
			}
			s.clientsMu.RUnlock()

			for _, client := range failed {
				client.Close()
				s.removeClient(client)
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade error")
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()

	s.logger.Debug().Str("remote", r.RemoteAddr).Msg("websocket client connected")

	// Keep connection alive
	for {
		if _, _, err := conn.NextReader(); err != nil {
			s.removeClient(conn)
			break
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	delete(s.clients, conn)
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for conn := range s.clients {
		conn.Close()
		delete(s.clients, conn)
	}
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := s.config.RecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	writeJSON(w, http.StatusOK, s.service.GetRecentAnomalies(limit))
}

func (s *Server) handleVehicleAnomalies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.GetVehicleAnomalies(mux.Vars(r)["id"]))
}

func (s *Server) handleBaseline(w http.ResponseWriter, r *http.Request) {
	baseline, ok := s.service.Baseline(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "no baseline for vehicle")
		return
	}
	writeJSON(w, http.StatusOK, baseline)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.GetStatistics())
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.GetAnomalyTypes())
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	updated := s.service.AcknowledgeAnomaly(mux.Vars(r)["id"])
	writeJSON(w, http.StatusOK, map[string]bool{"updated": updated})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	auto := false
	if raw := r.URL.Query().Get("auto"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "auto must be a boolean")
			return
		}
		auto = parsed
	}
	updated := s.service.ResolveAnomaly(mux.Vars(r)["id"], auto)
	writeJSON(w, http.StatusOK, map[string]bool{"updated": updated})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days < 0 {
		writeError(w, http.StatusBadRequest, "days must be a non-negative integer")
		return
	}
	removed := s.service.ClearOldAnomalies(days)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(indexHTML))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
