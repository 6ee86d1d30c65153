// Package navigation keeps the table of anchor observations gathered from
// received frames and turns the freshest three into a position estimate.
package navigation

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/meshpilot/internal/monitoring"
	"github.com/banshee-data/meshpilot/internal/setpoint"
	"github.com/banshee-data/meshpilot/internal/timeutil"
	"github.com/banshee-data/meshpilot/internal/trilateration"
	"github.com/banshee-data/meshpilot/internal/vecmath"
)

// ErrNotEnoughAnchors is returned by Solve when fewer than three anchors
// have been heard within the configured age.
var ErrNotEnoughAnchors = errors.New("navigation: fewer than three fresh anchors")

const (
	DefaultScale   = 0.01
	DefaultMaxAge  = time.Second
	DefaultEpsilon = 1e-6
)

// AnchorSample is the latest observation of one peer.
type AnchorSample struct {
	ID       uint8       `json:"id"`
	Position vecmath.Vec `json:"position"`
	Range    float64     `json:"range_m"`
	At       time.Time   `json:"at"`
}

// Estimate is the result of the most recent successful solve.
type Estimate struct {
	Position   vecmath.Vec    `json:"position"`
	Candidates [2]vecmath.Vec `json:"candidates"`
	Anchors    [3]uint8       `json:"anchors"`
	At         time.Time      `json:"at"`
	Valid      bool           `json:"valid"`
}

// Config parameterizes a Locator.
type Config struct {
	// Scale converts the x/y/z hint of a frame to metres.
	Scale float64
	// MaxAge bounds how old an anchor may be to take part in a solve.
	MaxAge time.Duration
	// Epsilon is the solver tolerance.
	Epsilon float64
	// Ranges maps a frame to a distance. Defaults to DefaultPathLoss.
	Ranges RangeModel
	// Initial seeds the continuity check of the first solve.
	Initial vecmath.Vec
}

// Locator is safe for concurrent use. Observe is called from the receive
// path and Solve from the control loop.
type Locator struct {
	cfg   Config
	clock timeutil.Clock
	logf  func(format string, v ...interface{})

	mu      sync.Mutex
	anchors map[uint8]AnchorSample
	est     Estimate
	prev    vecmath.Vec
	stale   int
}

// NewLocator returns a locator with defaults applied to zero fields.
func NewLocator(cfg Config, clock timeutil.Clock) *Locator {
	if cfg.Scale <= 0 {
		cfg.Scale = DefaultScale
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = DefaultEpsilon
	}
	if cfg.Ranges == nil {
		cfg.Ranges = DefaultPathLoss()
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Locator{
		cfg:     cfg,
		clock:   clock,
		logf:    monitoring.Component("navigation"),
		anchors: make(map[uint8]AnchorSample),
		prev:    cfg.Initial,
	}
}

// Observe records r as the latest sample from its origin. Frames without a
// usable range are ignored; the return value reports whether r was kept.
func (l *Locator) Observe(r setpoint.Record) bool {
	d, ok := l.cfg.Ranges.Range(r)
	if !ok {
		return false
	}
	s := AnchorSample{
		ID: r.ID,
		Position: vecmath.Vec{
			X: float64(r.X) * l.cfg.Scale,
			Y: float64(r.Y) * l.cfg.Scale,
			Z: float64(r.Z) * l.cfg.Scale,
		},
		Range: d,
		At:    l.clock.Now(),
	}
	l.mu.Lock()
	l.anchors[r.ID] = s
	l.mu.Unlock()
	return true
}

// Anchors returns the anchor table ordered by id.
func (l *Locator) Anchors() []AnchorSample {
	l.mu.Lock()
	out := make([]AnchorSample, 0, len(l.anchors))
	for _, a := range l.anchors {
		out = append(out, a)
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Solve estimates the position from the three freshest anchors. On failure
// the previous estimate is kept and the staleness count grows.
func (l *Locator) Solve() (Estimate, error) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	fresh := make([]AnchorSample, 0, len(l.anchors))
	for id, a := range l.anchors {
		if now.Sub(a.At) > l.cfg.MaxAge {
			delete(l.anchors, id)
			continue
		}
		fresh = append(fresh, a)
	}
	if len(fresh) < 3 {
		l.stale++
		return l.est, fmt.Errorf("%w: have %d", ErrNotEnoughAnchors, len(fresh))
	}
	sort.Slice(fresh, func(i, j int) bool {
		if !fresh[i].At.Equal(fresh[j].At) {
			return fresh[i].At.After(fresh[j].At)
		}
		return fresh[i].ID < fresh[j].ID
	})
	a, b, c := fresh[0], fresh[1], fresh[2]

	cand, err := trilateration.Solve(a.Position, a.Range, b.Position, b.Range, c.Position, c.Range, l.cfg.Epsilon)
	if err != nil {
		l.stale++
		if l.stale == 1 {
			l.logf("solve failed with anchors %d,%d,%d: %v", a.ID, b.ID, c.ID, err)
		}
		return l.est, fmt.Errorf("solve with anchors %d,%d,%d: %w", a.ID, b.ID, c.ID, err)
	}

	pos := trilateration.Resolve(cand, l.prev)
	l.prev = pos
	l.stale = 0
	l.est = Estimate{
		Position:   pos,
		Candidates: [2]vecmath.Vec{cand.A, cand.B},
		Anchors:    [3]uint8{a.ID, b.ID, c.ID},
		At:         now,
		Valid:      true,
	}
	return l.est, nil
}

// Estimate returns the latest successful estimate.
func (l *Locator) Estimate() Estimate {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.est
}

// Position returns the latest estimated position, if any.
func (l *Locator) Position() (vecmath.Vec, bool) {
	e := l.Estimate()
	return e.Position, e.Valid
}

// Staleness is the number of consecutive failed solves.
func (l *Locator) Staleness() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stale
}
