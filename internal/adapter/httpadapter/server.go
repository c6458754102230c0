// Package httpadapter exposes health, metrics, and the on-demand
// destination API over HTTP.
package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/geohash-dispatch/internal/coordinator"
	"github.com/couchcryptid/geohash-dispatch/internal/domain"
)

// Dispatcher is the coordinator surface the API needs.
type Dispatcher interface {
	ManualDestination(ctx context.Context, date time.Time, g *domain.Graticule) (domain.Destination, domain.FetchOutcome)
	Snapshot() coordinator.Status
	SetAlarm(enabled bool)
	AlarmEnabled() bool
}

// Server exposes health, readiness, metrics, and the v1 API.
type Server struct {
	httpServer *http.Server
	dispatch   Dispatcher
	logger     *slog.Logger
}

// NewServer creates the HTTP server with all routes registered.
func NewServer(addr string, dispatch Dispatcher, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		dispatch: dispatch,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/destination", s.handleDestination)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("POST /v1/alarm", s.handleAlarm)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type destinationResponse struct {
	Date      string  `json:"date"`
	Graticule string  `json:"graticule,omitempty"`
	Global    bool    `json:"global"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

// handleDestination computes the destination for a date and either a
// lat/lon pair (the containing graticule) or global=true.
func (s *Server) handleDestination(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	date, err := time.Parse("2006-01-02", q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or missing date, want YYYY-MM-DD")
		return
	}

	var g *domain.Graticule
	if q.Get("global") != "true" {
		lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
		lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
		if latErr != nil || lonErr != nil {
			writeError(w, http.StatusBadRequest, "lat and lon are required unless global=true")
			return
		}
		cell, err := domain.GraticuleAt(lat, lon)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		g = &cell
	}

	dest, outcome := s.dispatch.ManualDestination(r.Context(), date, g)
	switch outcome.Kind {
	case domain.OutcomeSuccess:
	case domain.OutcomeNotPosted:
		writeError(w, http.StatusNotFound, "index value not posted for this date yet")
		return
	case domain.OutcomeMalformed:
		writeError(w, http.StatusBadGateway, "index source returned a malformed value")
		return
	default: // no connection, transient
		writeError(w, http.StatusServiceUnavailable, "index source unavailable, try again later")
		return
	}

	resp := destinationResponse{
		Date:   dest.Date.Format("2006-01-02"),
		Global: dest.Global(),
		Lat:    dest.Lat,
		Lon:    dest.Lon,
	}
	if !dest.Global() {
		resp.Graticule = dest.Graticule.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatch.Snapshot())
}

type alarmRequest struct {
	Enabled *bool `json:"enabled"`
}

type alarmResponse struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleAlarm(w http.ResponseWriter, r *http.Request) {
	var req alarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, `body must be {"enabled": true|false}`)
		return
	}

	s.dispatch.SetAlarm(*req.Enabled)
	writeJSON(w, http.StatusOK, alarmResponse{Enabled: s.dispatch.AlarmEnabled()})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
