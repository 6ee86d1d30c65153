package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/meshpilot/internal/commander"
	"github.com/banshee-data/meshpilot/internal/monitoring"
	"github.com/banshee-data/meshpilot/internal/navigation"
	"github.com/banshee-data/meshpilot/internal/timeutil"
)

// Setpoint is what the control loop hands to the flight controller each
// cycle.
type Setpoint struct {
	State   commander.State `json:"state"`
	Roll    float32         `json:"roll"`
	Pitch   float32         `json:"pitch"`
	Yaw     float32         `json:"yaw"`
	Thrust  uint16          `json:"thrust"`
	AltHold bool            `json:"althold"`
	// AltHoldEngaged is true on the first cycle after altitude hold turns on.
	AltHoldEngaged bool              `json:"althold_engaged"`
	AltHoldRate    float32           `json:"althold_rate"`
	RollType       commander.RPYType `json:"roll_type"`
	PitchType      commander.RPYType `json:"pitch_type"`
	YawType        commander.RPYType `json:"yaw_type"`
	YawMode        commander.YawMode `json:"yaw_mode"`
}

// Controller is the downstream flight controller.
type Controller interface {
	Update(sp Setpoint)
}

// ControllerFunc adapts a function to Controller.
type ControllerFunc func(sp Setpoint)

// Update calls f(sp).
func (f ControllerFunc) Update(sp Setpoint) { f(sp) }

// Store persists loop events. Calls are made from the recorder goroutine,
// never from the control cycle itself.
type Store interface {
	RecordTransition(tr commander.Transition, at time.Time) error
	RecordEstimate(est navigation.Estimate) error
}

const (
	DefaultPeriod     = 10 * time.Millisecond
	DefaultSolveEvery = 10

	recorderQueue = 64
)

// LoopConfig configures a ControlLoop.
type LoopConfig struct {
	Period     time.Duration
	SolveEvery int
	Clock      timeutil.Clock
	Commander  *commander.Commander
	Locator    *navigation.Locator
	Controller Controller
	Store      Store
}

// ControlLoop reads the commander once per period.
type ControlLoop struct {
	period     time.Duration
	solveEvery uint64
	clock      timeutil.Clock
	cmd        *commander.Commander
	locator    *navigation.Locator
	controller Controller
	store      Store

	cycles  atomic.Uint64
	dropped atomic.Uint64
	state   commander.State
	latest  atomic.Pointer[Setpoint]
	records chan func(Store) error
	logf    func(format string, v ...interface{})
}

// NewControlLoop returns a loop with defaults applied.
func NewControlLoop(cfg LoopConfig) *ControlLoop {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.SolveEvery <= 0 {
		cfg.SolveEvery = DefaultSolveEvery
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &ControlLoop{
		period:     cfg.Period,
		solveEvery: uint64(cfg.SolveEvery),
		clock:      cfg.Clock,
		cmd:        cfg.Commander,
		locator:    cfg.Locator,
		controller: cfg.Controller,
		store:      cfg.Store,
		state:      cfg.Commander.State(),
		records:    make(chan func(Store) error, recorderQueue),
		logf:       monitoring.Component("control"),
	}
}

// Step runs one control cycle. Run calls it on every tick; tests may call
// it directly. It must not be called concurrently with itself.
func (l *ControlLoop) Step() Setpoint {
	state := l.cmd.Tick()
	if state != l.state {
		tr := commander.Transition{From: l.state, To: state, Inactivity: l.cmd.InactivityTime()}
		at := l.clock.Now()
		l.record(func(s Store) error { return s.RecordTransition(tr, at) })
		l.state = state
	}

	sp := Setpoint{State: state}
	sp.Roll, sp.Pitch, sp.Yaw = l.cmd.RPY()
	sp.Thrust = l.cmd.Thrust()
	sp.AltHold, sp.AltHoldEngaged, sp.AltHoldRate = l.cmd.AltHold()
	sp.RollType, sp.PitchType, sp.YawType = l.cmd.RPYType()
	sp.YawMode = l.cmd.YawMode()

	if l.controller != nil {
		l.controller.Update(sp)
	}
	l.latest.Store(&sp)

	n := l.cycles.Add(1)
	if l.locator != nil && n%l.solveEvery == 0 {
		if est, err := l.locator.Solve(); err == nil {
			l.record(func(s Store) error { return s.RecordEstimate(est) })
		}
	}
	return sp
}

// record queues a store write without blocking the cycle.
func (l *ControlLoop) record(fn func(Store) error) {
	if l.store == nil {
		return
	}
	select {
	case l.records <- fn:
	default:
		l.dropped.Add(1)
	}
}

// Run ticks until ctx is cancelled.
func (l *ControlLoop) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.drain(ctx)
	}()
	defer func() { <-done }()

	ticker := l.clock.NewTicker(l.period)
	defer ticker.Stop()
	l.logf("running at %v per cycle", l.period)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			l.Step()
		}
	}
}

func (l *ControlLoop) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// flush what was already queued
			for {
				select {
				case fn := <-l.records:
					l.write(fn)
				default:
					return
				}
			}
		case fn := <-l.records:
			l.write(fn)
		}
	}
}

func (l *ControlLoop) write(fn func(Store) error) {
	if err := fn(l.store); err != nil {
		l.logf("store write failed: %v", err)
	}
}

// Latest returns the setpoint produced by the most recent cycle, or nil.
func (l *ControlLoop) Latest() *Setpoint { return l.latest.Load() }

// Cycles returns the number of completed cycles.
func (l *ControlLoop) Cycles() uint64 { return l.cycles.Load() }

// DroppedRecords counts store writes discarded because the recorder queue
// was full.
func (l *ControlLoop) DroppedRecords() uint64 { return l.dropped.Load() }
