package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/meshpilot/internal/commander"
	"github.com/banshee-data/meshpilot/internal/db"
	"github.com/banshee-data/meshpilot/internal/monitoring"
	"github.com/banshee-data/meshpilot/internal/navigation"
	"github.com/banshee-data/meshpilot/internal/setpoint"
	"github.com/banshee-data/meshpilot/internal/timeutil"
	"github.com/banshee-data/meshpilot/internal/vecmath"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	server *Server
	cmd    *commander.Commander
	db     *db.DB
	store  *db.SessionStore
	mux    *http.ServeMux
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	clock := timeutil.NewMockClock(epoch)
	cmd := commander.New(commander.DefaultConfig(), clock)
	loc := navigation.NewLocator(navigation.Config{}, clock)

	flightDB, err := db.NewDB(filepath.Join(t.TempDir(), "flight.db"))
	require.NoError(t, err)
	t.Cleanup(func() { flightDB.Close() })
	sess, err := flightDB.StartSession(3, "test", epoch)
	require.NoError(t, err)

	s := NewServer(Config{
		Commander: cmd,
		Locator:   loc,
		Stats:     monitoring.NewLinkStats(),
		DB:        flightDB,
		SessionID: sess.ID,
	})
	return &testEnv{server: s, cmd: cmd, db: flightDB, store: flightDB.ForSession(sess.ID), mux: s.ServeMux()}
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func (e *testEnv) recordTrack(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, e.store.RecordEstimate(navigation.Estimate{
			Position: vecmath.Vec{X: float64(i), Y: float64(2 * i), Z: 1.5},
			Anchors:  [3]uint8{1, 2, 3},
			At:       epoch.Add(time.Duration(i) * 100 * time.Millisecond),
			Valid:    true,
		}))
	}
}

func TestHandleState(t *testing.T) {
	env := setupTestServer(t)
	env.cmd.Submit(setpoint.Record{ID: 2, Seq: 7, Thrust: 0})

	w := env.do(http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp struct {
		Commander struct {
			State     string `json:"state"`
			Submitted uint64 `json:"submitted"`
			Active    struct {
				Seq uint16 `json:"seq"`
			} `json:"active"`
		} `json:"commander"`
		Estimate *json.RawMessage `json:"estimate"`
		Session  string           `json:"session_id"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "shutdown", resp.Commander.State, "no watchdog tick yet")
	assert.EqualValues(t, 1, resp.Commander.Submitted)
	assert.EqualValues(t, 7, resp.Commander.Active.Seq)
	assert.Nil(t, resp.Estimate, "no solve yet")
	assert.Equal(t, env.server.sessionID, resp.Session)

	assert.Equal(t, http.StatusMethodNotAllowed, env.do(http.MethodPost, "/api/state", "").Code)
}

func TestHandleParams(t *testing.T) {
	env := setupTestServer(t)

	t.Run("GET", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/params", "")
		require.Equal(t, http.StatusOK, w.Code)
		var got commander.FlightModes
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		assert.Equal(t, env.cmd.FlightModes(), got)
	})

	t.Run("POST_partial", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/params", `{"yaw_mode": 1, "stab_mode_yaw": 1}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		modes := env.cmd.FlightModes()
		assert.Equal(t, commander.PlusMode, modes.YawMode)
		assert.Equal(t, commander.Angle, modes.StabModeYaw)
		assert.False(t, modes.AltHold)
	})

	t.Run("POST_rejects_out_of_range", func(t *testing.T) {
		before := env.cmd.FlightModes()
		w := env.do(http.MethodPost, "/api/params", `{"yaw_mode": 7}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, before, env.cmd.FlightModes())
	})

	t.Run("POST_rejects_unknown_field", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/params", `{"yaw": 1}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("DELETE", func(t *testing.T) {
		assert.Equal(t, http.StatusMethodNotAllowed, env.do(http.MethodDelete, "/api/params", "").Code)
	})
}

func TestEnablingAltHoldParksThrustAtHover(t *testing.T) {
	env := setupTestServer(t)
	env.cmd.Submit(setpoint.Record{Thrust: 0})

	w := env.do(http.MethodPost, "/api/params", `{"althold": true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.cmd.AltHoldMode())
	assert.EqualValues(t, 32767, env.cmd.ReadActive().Thrust)
}

func TestHandlePositions(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(http.MethodGet, "/api/positions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	env.recordTrack(t, 3)

	w = env.do(http.MethodGet, "/api/positions?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rows []db.EstimateRow
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rows))
	require.Len(t, rows, 2)
	assert.Equal(t, 1.0, rows[0].Position.X, "latest two, oldest first")
	assert.Equal(t, 2.0, rows[1].Position.X)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/positions?limit=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/positions?limit=abc", "").Code)
}

func TestHandleEvents(t *testing.T) {
	env := setupTestServer(t)
	require.NoError(t, env.store.RecordTransition(commander.Transition{
		From: commander.Fresh, To: commander.Degraded, Inactivity: 510 * time.Millisecond,
	}, epoch))

	w := env.do(http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, w.Code)
	var events []db.WatchdogEvent
	require.NoError(t, json.NewDecoder(w.Body).Decode(&events))
	require.Len(t, events, 1)
	assert.Equal(t, "fresh", events[0].From)
	assert.Equal(t, "degraded", events[0].To)
	assert.InDelta(t, 510, events[0].InactivityMS, 1e-9)
}

func TestHandlersWithoutDatabase(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	s := NewServer(Config{Commander: commander.New(commander.DefaultConfig(), clock)})
	mux := s.ServeMux()

	for _, path := range []string{"/api/positions", "/api/events", "/charts/altitude", "/charts/track.png"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAltitudeChart(t *testing.T) {
	env := setupTestServer(t)

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/charts/altitude", "").Code)

	env.recordTrack(t, 5)
	w := env.do(http.MethodGet, "/charts/altitude", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "Estimated altitude")
}

func TestTrackPlot(t *testing.T) {
	env := setupTestServer(t)
	env.recordTrack(t, 5)

	w := env.do(http.MethodGet, "/charts/track.png", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG\r\n\x1a\n")))
}

func TestLoggingMiddlewareKeepsStatus(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusTeapot, "short and stout")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pot", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.JSONEq(t, `{"error":"short and stout"}`, w.Body.String())
}
