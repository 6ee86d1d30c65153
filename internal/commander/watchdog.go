package commander

import (
	"fmt"
	"time"

	"github.com/banshee-data/meshpilot/internal/setpoint"
)

// State is the link-health state of the watchdog.
type State uint32

const (
	// Fresh: the latest frame is within the stabilize deadline.
	Fresh State = iota
	// Degraded: attitude setpoints are zeroed, thrust is kept.
	Degraded
	// Shutdown: thrust is zeroed, alt-hold cleared and thrust-lock engaged.
	Shutdown
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Degraded:
		return "degraded"
	case Shutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Transition describes one watchdog state change.
type Transition struct {
	From       State
	To         State
	Inactivity time.Duration
}

// Overrides are the in-place edits the watchdog and alt-hold make to the
// active record. They are packed in one word together with the generation
// of the record they apply to, so they lapse as soon as a newer record is
// published and the producer's slots are never written from the consumer.
const (
	thrustMask       uint64 = 0xFFFF
	thrustSetBit     uint64 = 1 << 16
	zeroAttitudeBit  uint64 = 1 << 17
	genShift                = 24
	overrideBitsMask uint64 = 1<<genShift - 1
)

func (c *Commander) override(gen uint64, set, clear uint64) {
	tag := gen << genShift
	for {
		old := c.overrides.Load()
		cur := old
		if cur&^overrideBitsMask != tag {
			cur = tag
		}
		next := cur&^clear | set
		if c.overrides.CompareAndSwap(old, next) {
			return
		}
	}
}

func (c *Commander) applyOverrides(r setpoint.Record, gen uint64) setpoint.Record {
	w := c.overrides.Load()
	if w&^overrideBitsMask != gen<<genShift {
		return r
	}
	if w&zeroAttitudeBit != 0 {
		r.Roll, r.Pitch, r.Yaw = 0, 0, 0
	}
	if w&thrustSetBit != 0 {
		r.Thrust = uint16(w & thrustMask)
	}
	return r
}

// Tick evaluates the watchdog deadlines against the time since the latest
// Submit. It is called once per control cycle and also by Thrust. Repeated
// calls within a cycle converge on the same state.
func (c *Commander) Tick() State {
	// Read the generation before the elapsed time: Submit resets the
	// timestamp before publishing, so a fresh generation always comes with
	// a fresh timestamp.
	gen := c.buf.activeGen()
	elapsed := c.InactivityTime()

	next := Fresh
	if elapsed > c.cfg.StabilizeTimeout {
		c.override(gen, zeroAttitudeBit, 0)
		next = Degraded
	}
	if elapsed > c.cfg.ShutdownTimeout {
		c.override(gen, thrustSetBit, thrustMask)
		c.altHold.Store(false)
		c.inactive.Store(true)
		c.thrustLocked.Store(true)
		next = Shutdown
	} else {
		c.inactive.Store(false)
	}

	if prev := State(c.state.Swap(uint32(next))); prev != next {
		c.logf("link %s after %v without frames", next, elapsed.Round(time.Millisecond))
		if c.cfg.OnTransition != nil {
			c.cfg.OnTransition(Transition{From: prev, To: next, Inactivity: elapsed})
		}
	}
	return next
}

// State returns the state computed by the most recent Tick.
func (c *Commander) State() State {
	return State(c.state.Load())
}

// Inactive reports whether the most recent Tick found the link shut down.
func (c *Commander) Inactive() bool {
	return c.inactive.Load()
}

// ThrustLocked reports whether the arm interlock is engaged.
func (c *Commander) ThrustLocked() bool {
	return c.thrustLocked.Load()
}

// InactivityTime returns the time since the latest Submit, or since New if
// nothing has been submitted.
func (c *Commander) InactivityTime() time.Duration {
	return c.clock.Since(c.start) - time.Duration(c.lastUpdate.Load())
}
