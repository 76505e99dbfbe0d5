package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"air-monitor/internal/database"
	"air-monitor/internal/models"
	"air-monitor/internal/storage"
)

// SnapshotSource returns the most recent snapshot, nil before the first cycle
type SnapshotSource interface {
	Latest() *models.Snapshot
}

// ReadingLog is the capped log of published readings
type ReadingLog interface {
	Recent(ctx context.Context, n int) ([]storage.LogEntry, error)
	ClearLog(ctx context.Context) error
}

// SettingsStore holds the persisted device settings
type SettingsStore interface {
	ResetSettings(ctx context.Context) error
}

// Broker reports the message bus connection
type Broker interface {
	IsConnected() bool
}

// History answers aggregated queries over stored readings
type History interface {
	HourlyAverages(ctx context.Context, deviceID string, hours int) ([]database.HourlyAverage, error)
}

const (
	defaultLogEntries   = 20
	defaultHistoryHours = 24
	maxHistoryHours     = 24 * 31
	requestTimeout      = 10 * time.Second
)

type ServerConfig struct {
	Addr     string
	DeviceID string
}

// Server exposes metrics and the local JSON API
type Server struct {
	config  ServerConfig
	metrics *Metrics
	source  SnapshotSource
	hub     *Hub
	started time.Time

	// Optional backends; endpoints that need a nil one answer 404
	Log      ReadingLog
	History  History
	Settings SettingsStore
	Broker   Broker
	Commands chan<- models.Command

	SnapshotChan chan *models.Snapshot
	AlarmChan    chan *models.AlarmEvent
}

func NewServer(config ServerConfig, metrics *Metrics, source SnapshotSource) *Server {
	return &Server{
		config:  config,
		metrics: metrics,
		source:  source,
		hub:     NewHub(),
		started: time.Now(),
	}
}

// Handler builds the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/data", s.handleData)
	mux.HandleFunc("/api/alarm", s.handleAlarm)
	mux.HandleFunc("/api/log", s.handleLog)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.Handle("/ws", s.hub)
	return mux
}

// Start serves HTTP and feeds metrics until ctx is cancelled
func (s *Server) Start(ctx context.Context) {
	log.Printf("Monitor: Starting on %s...", s.config.Addr)

	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Monitor: HTTP server error: %v", err)
		}
	}()

	s.consume(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Monitor: HTTP shutdown: %v", err)
	}
}

func (s *Server) consume(ctx context.Context) {
	snapshots, alarms := s.SnapshotChan, s.AlarmChan
	for {
		select {
		case <-ctx.Done():
			log.Println("Monitor: Context cancelled, shutting down...")
			return

		case snap, ok := <-snapshots:
			if !ok {
				snapshots = nil
				continue
			}
			s.metrics.Observe(snap)
			s.hub.Broadcast(snap)

		case e, ok := <-alarms:
			if !ok {
				alarms = nil
				continue
			}
			s.metrics.ObserveAlarm(e)
		}
	}
}

type healthResponse struct {
	Status    string              `json:"status"`
	Uptime    string              `json:"uptime"`
	PMStatus  models.SensorStatus `json:"pm_status"`
	EnvStatus models.SensorStatus `json:"env_status"`
	Clients   int                 `json:"ws_clients"`
	MQTT      string              `json:"mqtt,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "starting",
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		PMStatus:  models.StatusInitializing,
		EnvStatus: models.StatusInitializing,
		Clients:   s.hub.Count(),
	}
	if snap := s.source.Latest(); snap != nil {
		resp.PMStatus, resp.EnvStatus = snap.PMStatus, snap.EnvStatus
		resp.Status = "ok"
		if !snap.PMStatus.Healthy() || !snap.EnvStatus.Healthy() {
			resp.Status = "degraded"
		}
	}
	if s.Broker != nil {
		resp.MQTT = "connected"
		if !s.Broker.IsConnected() {
			resp.MQTT = "disconnected"
			if resp.Status == "ok" {
				resp.Status = "degraded"
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Latest()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no reading yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAlarm(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Latest()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no reading yet")
		return
	}
	writeJSON(w, http.StatusOK, snap.Alarm)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if s.Log == nil {
		writeError(w, http.StatusNotFound, "reading log disabled")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	switch r.Method {
	case http.MethodGet:
		n := queryInt(r, "n", defaultLogEntries)
		entries, err := s.Log.Recent(ctx, n)
		if err != nil {
			log.Errorf("Monitor: reading log: %v", err)
			writeError(w, http.StatusBadGateway, "log unavailable")
			return
		}
		writeJSON(w, http.StatusOK, entries)

	case http.MethodDelete:
		if err := s.Log.ClearLog(ctx); err != nil {
			log.Errorf("Monitor: clearing log: %v", err)
			writeError(w, http.StatusBadGateway, "log unavailable")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "use GET or DELETE")
	}
}

// handleSettings performs a factory reset: persisted settings and the reading
// log are erased. Running settings stay in effect until the next restart.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.Settings == nil {
		writeError(w, http.StatusNotFound, "settings storage disabled")
		return
	}
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "use DELETE")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := s.Settings.ResetSettings(ctx); err != nil {
		log.Errorf("Monitor: resetting settings: %v", err)
		writeError(w, http.StatusBadGateway, "settings storage unavailable")
		return
	}
	if s.Log != nil {
		if err := s.Log.ClearLog(ctx); err != nil {
			log.Errorf("Monitor: clearing log: %v", err)
			writeError(w, http.StatusBadGateway, "log unavailable")
			return
		}
	}
	log.Warn("Monitor: factory reset, persisted settings and log erased")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	hours := queryInt(r, "hours", defaultHistoryHours)
	if hours < 1 || hours > maxHistoryHours {
		writeError(w, http.StatusBadRequest, "hours out of range")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	rows, err := s.History.HourlyAverages(ctx, s.config.DeviceID, hours)
	if err != nil {
		log.Errorf("Monitor: history query: %v", err)
		writeError(w, http.StatusBadGateway, "history unavailable")
		return
	}
	if rows == nil {
		rows = []database.HourlyAverage{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.Commands == nil {
		writeError(w, http.StatusNotFound, "commands disabled")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}

	var cmd models.Command
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid command body")
		return
	}
	if cmd.Asset == "" || len(cmd.Value) == 0 {
		writeError(w, http.StatusBadRequest, "asset and value are required")
		return
	}

	select {
	case s.Commands <- cmd:
		log.Infof("Monitor: queued %s command", cmd.Asset)
		w.WriteHeader(http.StatusAccepted)
	default:
		writeError(w, http.StatusServiceUnavailable, "command queue full")
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("Monitor: writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
