package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// Session is one run of the node daemon.
type Session struct {
	ID        string     `json:"session_id"`
	NodeID    uint8      `json:"node_id"`
	Version   string     `json:"version"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// StartSession records a new session with a random id.
func (db *DB) StartSession(nodeID uint8, version string, at time.Time) (*Session, error) {
	s := &Session{
		ID:        uuid.NewString(),
		NodeID:    nodeID,
		Version:   version,
		StartedAt: at,
	}
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, node_id, version, started_at_ns) VALUES (?, ?, ?, ?)`,
		s.ID, int(s.NodeID), s.Version, at.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return s, nil
}

// EndSession stamps the session end time.
func (db *DB) EndSession(id string, at time.Time) error {
	res, err := db.Exec(`UPDATE sessions SET ended_at_ns = ? WHERE session_id = ?`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// Session loads one session.
func (db *DB) Session(id string) (*Session, error) {
	row := db.QueryRow(
		`SELECT session_id, node_id, version, started_at_ns, ended_at_ns FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, err
}

// Sessions returns sessions newest first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	rows, err := db.Query(
		`SELECT session_id, node_id, version, started_at_ns, ended_at_ns
		 FROM sessions ORDER BY started_at_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s       Session
		nodeID  int
		started int64
		ended   sql.NullInt64
	)
	if err := row.Scan(&s.ID, &nodeID, &s.Version, &started, &ended); err != nil {
		return nil, err
	}
	s.NodeID = uint8(nodeID)
	s.StartedAt = time.Unix(0, started).UTC()
	if ended.Valid {
		t := time.Unix(0, ended.Int64).UTC()
		s.EndedAt = &t
	}
	return &s, nil
}
