// Package commander ingests setpoints arriving over the radio link and gates
// what the control loop may act on as the link goes stale.
//
// One goroutine (the receive path) calls Submit. The control loop calls
// Tick, Thrust, RPY and AltHold. Flight-mode parameters may be read and
// written from any goroutine. No method blocks or takes a lock.
package commander

import (
	"sync/atomic"
	"time"

	"github.com/banshee-data/meshpilot/internal/monitoring"
	"github.com/banshee-data/meshpilot/internal/setpoint"
	"github.com/banshee-data/meshpilot/internal/timeutil"
)

const (
	DefaultStabilizeTimeout = 500 * time.Millisecond
	DefaultShutdownTimeout  = 2000 * time.Millisecond
	DefaultMinThrust        = 1000
	DefaultMaxThrust        = 60000

	// hoverThrust is the thrust midpoint; alt-hold reads thrust relative to it.
	hoverThrust = 32767
)

// Config holds the commander tunables.
type Config struct {
	StabilizeTimeout time.Duration
	ShutdownTimeout  time.Duration
	MinThrust        uint16
	MaxThrust        uint16
	Modes            FlightModes

	// OnTransition, if set, is called from Tick whenever the watchdog state
	// changes.
	OnTransition func(Transition)
}

// DefaultConfig returns the stock timeouts, thrust band and flight modes.
func DefaultConfig() Config {
	return Config{
		StabilizeTimeout: DefaultStabilizeTimeout,
		ShutdownTimeout:  DefaultShutdownTimeout,
		MinThrust:        DefaultMinThrust,
		MaxThrust:        DefaultMaxThrust,
		Modes: FlightModes{
			YawMode:       XMode,
			StabModeRoll:  Angle,
			StabModePitch: Angle,
			StabModeYaw:   Rate,
		},
	}
}

// Commander owns the ingest buffer, the watchdog and the flight-mode
// parameters of one vehicle.
type Commander struct {
	cfg   Config
	clock timeutil.Clock
	start time.Time

	buf ingestBuffer

	// lastUpdate is the clock offset from start of the latest Submit.
	lastUpdate   atomic.Int64
	inactive     atomic.Bool
	thrustLocked atomic.Bool
	state        atomic.Uint32
	overrides    atomic.Uint64

	altHold    atomic.Bool
	altHoldOld atomic.Bool

	yawMode       atomic.Uint32
	yawReset      atomic.Bool
	stabModeRoll  atomic.Uint32
	stabModePitch atomic.Uint32
	stabModeYaw   atomic.Uint32

	logf func(format string, v ...interface{})
}

// New creates a commander. It starts inactive and thrust-locked: commanded
// thrust stays zero until a frame with zero thrust arms it.
func New(cfg Config, clock timeutil.Clock) *Commander {
	if cfg.StabilizeTimeout <= 0 {
		cfg.StabilizeTimeout = DefaultStabilizeTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.MaxThrust == 0 {
		cfg.MaxThrust = DefaultMaxThrust
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	c := &Commander{
		cfg:   cfg,
		clock: clock,
		start: clock.Now(),
		logf:  monitoring.Component("commander"),
	}
	c.inactive.Store(true)
	c.thrustLocked.Store(true)
	c.state.Store(uint32(Shutdown))
	c.SetFlightModes(cfg.Modes)
	return c
}

// Submit stores one decoded frame. It is called once per inbound frame from
// the receive path only.
//
// The watchdog timestamp is reset before the record is published so a
// concurrent Tick never derates the new record. The thrust-lock is released
// after publication so an arm signal never unlocks a stale record.
func (c *Commander) Submit(r setpoint.Record) {
	c.lastUpdate.Store(int64(c.clock.Since(c.start)))
	c.buf.store(r)
	if r.Thrust == 0 {
		c.thrustLocked.Store(false)
	}
}

// ReadActive returns a copy of the active record with any watchdog or
// alt-hold adjustments applied.
func (c *Commander) ReadActive() setpoint.Record {
	r, gen := c.buf.load()
	return c.applyOverrides(r, gen)
}

// RPY returns the roll, pitch and yaw setpoints.
func (c *Commander) RPY() (roll, pitch, yaw float32) {
	r := c.ReadActive()
	return r.Roll, r.Pitch, r.Yaw
}

// Thrust returns the commanded thrust and then evaluates the watchdog, so
// reading thrust alone is enough to keep the failsafe running.
func (c *Commander) Thrust() uint16 {
	out := c.gatedThrust(c.ReadActive().Thrust)
	c.Tick()
	return out
}

// gatedThrust applies the thrust-lock and the configured thrust band.
func (c *Commander) gatedThrust(raw uint16) uint16 {
	if c.thrustLocked.Load() {
		return 0
	}
	var out uint16
	if raw > c.cfg.MinThrust {
		out = raw
	}
	if raw > c.cfg.MaxThrust {
		out = c.cfg.MaxThrust
	}
	return out
}

// AltHold reports whether altitude hold is active, whether it became active
// since the previous call, and the normalized altitude-rate command
// (thrust - 32767) / 32767 while active.
func (c *Commander) AltHold() (active, justActivated bool, rate float32) {
	active = c.altHold.Load()
	old := c.altHoldOld.Swap(active)
	justActivated = active && !old
	if active {
		rate = (float32(c.ReadActive().Thrust) - hoverThrust) / hoverThrust
	}
	return active, justActivated, rate
}

// AltHoldMode reports the stored altitude-hold flag.
func (c *Commander) AltHoldMode() bool {
	return c.altHold.Load()
}

// SetAltHoldMode switches altitude hold. Enabling it sets the active thrust
// to the hover midpoint so the first rate command is zero rather than -1
// when the pilot enables hold with the stick at zero.
func (c *Commander) SetAltHoldMode(on bool) {
	c.altHold.Store(on)
	if on {
		c.override(c.buf.activeGen(), thrustSetBit|hoverThrust, thrustMask)
	}
}

// RPYType returns the stabilization type of each axis.
func (c *Commander) RPYType() (roll, pitch, yaw RPYType) {
	return RPYType(c.stabModeRoll.Load()), RPYType(c.stabModePitch.Load()), RPYType(c.stabModeYaw.Load())
}

// YawMode returns the configured yaw mode.
func (c *Commander) YawMode() YawMode {
	return YawMode(c.yawMode.Load())
}

// CarefreeResetFront reports whether the carefree front should be reset.
func (c *Commander) CarefreeResetFront() bool {
	return c.yawReset.Load()
}

// FlightModes returns the current parameter group.
func (c *Commander) FlightModes() FlightModes {
	roll, pitch, yaw := c.RPYType()
	return FlightModes{
		AltHold:            c.altHold.Load(),
		YawMode:            c.YawMode(),
		CarefreeResetFront: c.yawReset.Load(),
		StabModeRoll:       roll,
		StabModePitch:      pitch,
		StabModeYaw:        yaw,
	}
}

// SetFlightModes stores the parameter group verbatim. Unlike SetAltHoldMode
// it does not touch the buffered thrust.
func (c *Commander) SetFlightModes(m FlightModes) {
	c.altHold.Store(m.AltHold)
	c.yawMode.Store(uint32(m.YawMode))
	c.yawReset.Store(m.CarefreeResetFront)
	c.stabModeRoll.Store(uint32(m.StabModeRoll))
	c.stabModePitch.Store(uint32(m.StabModePitch))
	c.stabModeYaw.Store(uint32(m.StabModeYaw))
}

// Status is a read-only view of the commander for telemetry.
type Status struct {
	State        State           `json:"state"`
	Inactive     bool            `json:"inactive"`
	ThrustLocked bool            `json:"thrust_locked"`
	Inactivity   time.Duration   `json:"inactivity_ns"`
	Thrust       uint16          `json:"thrust"`
	Active       setpoint.Record `json:"active"`
	Submitted    uint64          `json:"submitted"`
	Modes        FlightModes     `json:"modes"`
}

// Status returns a snapshot without evaluating the watchdog.
func (c *Commander) Status() Status {
	r := c.ReadActive()
	return Status{
		State:        c.State(),
		Inactive:     c.inactive.Load(),
		ThrustLocked: c.thrustLocked.Load(),
		Inactivity:   c.InactivityTime(),
		Thrust:       c.gatedThrust(r.Thrust),
		Active:       r,
		Submitted:    c.buf.submit.Load(),
		Modes:        c.FlightModes(),
	}
}
