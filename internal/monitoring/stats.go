package monitoring

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// LinkSnapshot is a point-in-time view of radio link traffic rates.
type LinkSnapshot struct {
	FramesPerSec   float64   `json:"frames_per_sec"`
	BytesPerSec    float64   `json:"bytes_per_sec"`
	Malformed      int64     `json:"malformed"`
	Relayed        int64     `json:"relayed"`
	RelayDropped   int64     `json:"relay_dropped"`
	TotalFrames    int64     `json:"total_frames"`
	TotalMalformed int64     `json:"total_malformed"`
	Timestamp      time.Time `json:"timestamp"`
}

// LinkStats tracks frame counters for the receive and relay paths.
type LinkStats struct {
	mu             sync.Mutex
	frames         int64
	bytes          int64
	malformed      int64
	relayed        int64
	relayDropped   int64
	totalFrames    int64
	totalMalformed int64
	lastReset      time.Time
	latest         *LinkSnapshot
}

// NewLinkStats creates a new LinkStats instance.
func NewLinkStats() *LinkStats {
	return &LinkStats{lastReset: time.Now()}
}

// AddFrame records one received frame of n bytes.
func (s *LinkStats) AddFrame(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	s.totalFrames++
	s.bytes += int64(n)
}

// AddMalformed records a frame rejected by the codec.
func (s *LinkStats) AddMalformed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.malformed++
	s.totalMalformed++
}

// AddRelayed records a frame handed back to the transport for rebroadcast.
func (s *LinkStats) AddRelayed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relayed++
}

// AddDropped records a relayed frame the transport could not queue.
func (s *LinkStats) AddDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relayDropped++
}

// Totals returns lifetime frame and malformed counts.
func (s *LinkStats) Totals() (frames, malformed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalFrames, s.totalMalformed
}

// Rotate computes rates over the interval since the previous call, stores
// the snapshot and resets the interval counters.
func (s *LinkStats) Rotate(now time.Time) LinkSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	secs := now.Sub(s.lastReset).Seconds()
	if secs <= 0 {
		secs = 1
	}
	snap := LinkSnapshot{
		FramesPerSec:   float64(s.frames) / secs,
		BytesPerSec:    float64(s.bytes) / secs,
		Malformed:      s.malformed,
		Relayed:        s.relayed,
		RelayDropped:   s.relayDropped,
		TotalFrames:    s.totalFrames,
		TotalMalformed: s.totalMalformed,
		Timestamp:      now,
	}
	s.frames, s.bytes, s.malformed, s.relayed, s.relayDropped = 0, 0, 0, 0, 0
	s.lastReset = now
	s.latest = &snap
	return snap
}

// LogStats rotates the counters and logs a summary line when there was traffic.
func (s *LinkStats) LogStats() {
	snap := s.Rotate(time.Now())
	if snap.FramesPerSec == 0 && snap.Malformed == 0 {
		return
	}
	msg := fmt.Sprintf("Link stats (/sec): %s, %.1f frames", humanize.Bytes(uint64(snap.BytesPerSec)), snap.FramesPerSec)
	if snap.Malformed > 0 {
		msg += fmt.Sprintf(", %d malformed", snap.Malformed)
	}
	if snap.Relayed > 0 || snap.RelayDropped > 0 {
		msg += fmt.Sprintf(", %d relayed (%d dropped)", snap.Relayed, snap.RelayDropped)
	}
	Logf("%s", msg)
}

// Latest returns a copy of the most recent snapshot, or nil before the first
// rotation.
func (s *LinkStats) Latest() *LinkSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return nil
	}
	snap := *s.latest
	return &snap
}
