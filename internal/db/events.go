package db

import (
	"fmt"
	"time"

	"github.com/banshee-data/meshpilot/internal/commander"
	"github.com/banshee-data/meshpilot/internal/navigation"
	"github.com/banshee-data/meshpilot/internal/vecmath"
)

// WatchdogEvent is one stored state transition.
type WatchdogEvent struct {
	At           time.Time `json:"at"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	InactivityMS float64   `json:"inactivity_ms"`
}

// EstimateRow is one stored position estimate.
type EstimateRow struct {
	At       time.Time   `json:"at"`
	Position vecmath.Vec `json:"position"`
	Anchors  [3]uint8    `json:"anchors"`
}

// SessionStore writes events for one session. It satisfies the control
// loop's store interface.
type SessionStore struct {
	db        *DB
	sessionID string
}

// ForSession returns a store bound to sessionID.
func (db *DB) ForSession(sessionID string) *SessionStore {
	return &SessionStore{db: db, sessionID: sessionID}
}

// SessionID returns the bound session.
func (s *SessionStore) SessionID() string { return s.sessionID }

// RecordTransition stores a watchdog state change.
func (s *SessionStore) RecordTransition(tr commander.Transition, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO watchdog_events (session_id, recorded_at_ns, from_state, to_state, inactivity_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		s.sessionID, at.UnixNano(), tr.From.String(), tr.To.String(),
		float64(tr.Inactivity)/float64(time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("failed to insert watchdog event: %w", err)
	}
	return nil
}

// RecordEstimate stores a position estimate.
func (s *SessionStore) RecordEstimate(est navigation.Estimate) error {
	_, err := s.db.Exec(
		`INSERT INTO position_estimates (session_id, recorded_at_ns, x, y, z, anchor_a, anchor_b, anchor_c)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.sessionID, est.At.UnixNano(), est.Position.X, est.Position.Y, est.Position.Z,
		int(est.Anchors[0]), int(est.Anchors[1]), int(est.Anchors[2]),
	)
	if err != nil {
		return fmt.Errorf("failed to insert position estimate: %w", err)
	}
	return nil
}

// WatchdogEvents returns the most recent transitions of a session, oldest
// first.
func (db *DB) WatchdogEvents(sessionID string, limit int) ([]WatchdogEvent, error) {
	rows, err := db.Query(
		`SELECT recorded_at_ns, from_state, to_state, inactivity_ms FROM (
		   SELECT event_id, recorded_at_ns, from_state, to_state, inactivity_ms
		   FROM watchdog_events WHERE session_id = ?
		   ORDER BY event_id DESC LIMIT ?
		 ) ORDER BY event_id ASC`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WatchdogEvent
	for rows.Next() {
		var (
			e  WatchdogEvent
			ns int64
		)
		if err := rows.Scan(&ns, &e.From, &e.To, &e.InactivityMS); err != nil {
			return nil, err
		}
		e.At = time.Unix(0, ns).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecentEstimates returns the most recent estimates of a session, oldest
// first.
func (db *DB) RecentEstimates(sessionID string, limit int) ([]EstimateRow, error) {
	rows, err := db.Query(
		`SELECT recorded_at_ns, x, y, z, anchor_a, anchor_b, anchor_c FROM (
		   SELECT estimate_id, recorded_at_ns, x, y, z, anchor_a, anchor_b, anchor_c
		   FROM position_estimates WHERE session_id = ?
		   ORDER BY estimate_id DESC LIMIT ?
		 ) ORDER BY estimate_id ASC`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EstimateRow
	for rows.Next() {
		var (
			e       EstimateRow
			ns      int64
			a, b, c int
		)
		if err := rows.Scan(&ns, &e.Position.X, &e.Position.Y, &e.Position.Z, &a, &b, &c); err != nil {
			return nil, err
		}
		e.At = time.Unix(0, ns).UTC()
		e.Anchors = [3]uint8{uint8(a), uint8(b), uint8(c)}
		out = append(out, e)
	}
	return out, rows.Err()
}
