// Package api serves the node's HTTP surface: JSON telemetry, the
// flight-mode parameter group and a couple of debug charts.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"tailscale.com/tsweb"

	"github.com/banshee-data/meshpilot/internal/commander"
	"github.com/banshee-data/meshpilot/internal/db"
	"github.com/banshee-data/meshpilot/internal/monitoring"
	"github.com/banshee-data/meshpilot/internal/navigation"
	"github.com/banshee-data/meshpilot/internal/pipeline"
	"github.com/banshee-data/meshpilot/internal/version"
)

const (
	defaultPositionLimit = 200
	maxPositionLimit     = 5000
	maxParamsBody        = 4 << 10
)

var logf = monitoring.Component("api")

// Config wires a Server. Only Commander is required.
type Config struct {
	Commander *commander.Commander
	Locator   *navigation.Locator
	Stats     *monitoring.LinkStats
	Loop      *pipeline.ControlLoop
	DB        *db.DB
	SessionID string
}

type Server struct {
	commander *commander.Commander
	locator   *navigation.Locator
	stats     *monitoring.LinkStats
	loop      *pipeline.ControlLoop
	db        *db.DB
	sessionID string
}

func NewServer(cfg Config) *Server {
	return &Server{
		commander: cfg.Commander,
		locator:   cfg.Locator,
		stats:     cfg.Stats,
		loop:      cfg.Loop,
		db:        cfg.DB,
		sessionID: cfg.SessionID,
	}
}

// StateResponse is the body of GET /api/state.
type StateResponse struct {
	Commander commander.Status          `json:"commander"`
	Setpoint  *pipeline.Setpoint        `json:"setpoint,omitempty"`
	Cycles    uint64                    `json:"cycles"`
	Estimate  *navigation.Estimate      `json:"estimate,omitempty"`
	Staleness int                       `json:"staleness"`
	Anchors   []navigation.AnchorSample `json:"anchors,omitempty"`
	Link      *monitoring.LinkSnapshot  `json:"link,omitempty"`
	Session   string                    `json:"session_id,omitempty"`
	Version   string                    `json:"version"`
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/params", s.handleParams)
	mux.HandleFunc("/api/positions", s.handlePositions)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/charts/altitude", s.handleAltitudeChart)
	mux.HandleFunc("/charts/track.png", s.handleTrackPlot)
	return mux
}

// AttachDebugRoutes adds watchdog and link values to the tsweb debug page.
func (s *Server) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KVFunc("Watchdog state", func() any { return s.commander.State().String() })
	debug.KVFunc("Frames submitted", func() any { return s.commander.Status().Submitted })
	if s.stats != nil {
		debug.KVFunc("Frames received", func() any {
			frames, _ := s.stats.Totals()
			return frames
		})
	}
	debug.HandleFunc("state", "Commander and navigation state as JSON", s.handleState)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	resp := StateResponse{
		Commander: s.commander.Status(),
		Session:   s.sessionID,
		Version:   version.Version,
	}
	if s.loop != nil {
		resp.Setpoint = s.loop.Latest()
		resp.Cycles = s.loop.Cycles()
	}
	if s.locator != nil {
		if est := s.locator.Estimate(); est.Valid {
			resp.Estimate = &est
		}
		resp.Staleness = s.locator.Staleness()
		resp.Anchors = s.locator.Anchors()
	}
	if s.stats != nil {
		resp.Link = s.stats.Latest()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.commander.FlightModes())
	case http.MethodPost:
		s.updateParams(w, r)
	default:
		methodNotAllowed(w)
	}
}

// updateParams applies a full or partial flight-mode group. Fields missing
// from the body keep their current values.
func (s *Server) updateParams(w http.ResponseWriter, r *http.Request) {
	current := s.commander.FlightModes()
	next := current

	dec := json.NewDecoder(io.LimitReader(r.Body, maxParamsBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&next); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := next.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.commander.SetFlightModes(next)
	if next.AltHold && !current.AltHold {
		s.commander.SetAltHoldMode(true)
	}
	logf("flight modes updated: althold=%t yaw=%s", next.AltHold, next.YawMode)
	writeJSON(w, http.StatusOK, s.commander.FlightModes())
}

// limitParam reads ?limit=, falling back to defaultPositionLimit.
func limitParam(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultPositionLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > maxPositionLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d", maxPositionLimit)
	}
	return n, nil
}

func (s *Server) sessionParam(r *http.Request) string {
	if id := r.URL.Query().Get("session_id"); id != "" {
		return id
	}
	return s.sessionID
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.db == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no flight database configured")
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.db.RecentEstimates(s.sessionParam(r), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load estimates: %v", err))
		return
	}
	if rows == nil {
		rows = []db.EstimateRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.db == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no flight database configured")
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := s.db.WatchdogEvents(s.sessionParam(r), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load events: %v", err))
		return
	}
	if events == nil {
		events = []db.WatchdogEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
