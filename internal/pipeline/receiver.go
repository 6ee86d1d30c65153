// Package pipeline wires the receive path (frame in, setpoint submitted,
// anchor observed, frame relayed) and the fixed-rate control loop that
// consumes the gated setpoint.
package pipeline

import (
	"sync"

	"github.com/banshee-data/meshpilot/internal/commander"
	"github.com/banshee-data/meshpilot/internal/monitoring"
	"github.com/banshee-data/meshpilot/internal/navigation"
	"github.com/banshee-data/meshpilot/internal/relay"
	"github.com/banshee-data/meshpilot/internal/setpoint"
)

// Transmitter sends a relay frame toward the rest of the mesh.
type Transmitter interface {
	Transmit(frame []byte) error
}

// ReceiverConfig configures a Receiver. Locator, Stamper and Relay are
// optional; relaying requires both Stamper and Relay.
type ReceiverConfig struct {
	Commander *commander.Commander
	Locator   *navigation.Locator
	Stamper   *relay.Stamper
	Relay     Transmitter
	Stats     *monitoring.LinkStats
}

// Receiver is the single producer for the commander. Transports may call
// HandleFrame from different goroutines; calls are serialized so the
// ingest buffer still sees one writer.
type Receiver struct {
	cmd     *commander.Commander
	locator *navigation.Locator
	stamper *relay.Stamper
	relay   Transmitter
	stats   *monitoring.LinkStats

	mu  sync.Mutex
	out [setpoint.FrameSize]byte
}

// NewReceiver returns a receiver. A nil Stats gets a private counter set.
func NewReceiver(cfg ReceiverConfig) *Receiver {
	if cfg.Stats == nil {
		cfg.Stats = monitoring.NewLinkStats()
	}
	return &Receiver{
		cmd:     cfg.Commander,
		locator: cfg.Locator,
		stamper: cfg.Stamper,
		relay:   cfg.Relay,
		stats:   cfg.Stats,
	}
}

// HandleFrame processes one inbound frame. Malformed frames are counted and
// returned as errors without touching the commander. Frames carrying this
// node's own id are mesh echoes of our relay and are ignored.
func (r *Receiver) HandleFrame(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.AddFrame(len(frame))
	rec, err := setpoint.Decode(frame)
	if err != nil {
		r.stats.AddMalformed()
		return err
	}
	if r.stamper != nil && rec.ID == r.stamper.NodeID() {
		return nil
	}

	r.cmd.Submit(rec)
	if r.locator != nil {
		r.locator.Observe(rec)
	}

	if r.stamper != nil && r.relay != nil {
		r.stamper.StampInto(r.out[:], rec)
		if err := r.relay.Transmit(r.out[:]); err != nil {
			r.stats.AddDropped()
		} else {
			r.stats.AddRelayed()
		}
	}
	return nil
}

// Stats returns the receiver's counters.
func (r *Receiver) Stats() *monitoring.LinkStats { return r.stats }
