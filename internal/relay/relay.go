// Package relay re-stamps received setpoint frames with the local node
// identity before they are forwarded across the mesh.
package relay

import (
	"math"

	"github.com/banshee-data/meshpilot/internal/setpoint"
	"github.com/banshee-data/meshpilot/internal/vecmath"
)

// Hook may rewrite a record before it is re-encoded. It operates on a copy;
// the caller's record is never changed.
type Hook interface {
	Apply(r *setpoint.Record)
}

// HookFunc adapts a function to Hook.
type HookFunc func(r *setpoint.Record)

// Apply calls f(r).
func (f HookFunc) Apply(r *setpoint.Record) { f(r) }

// Stamper encodes outbound relay frames.
type Stamper struct {
	nodeID uint8
	hook   Hook
}

// New returns a stamper for nodeID. A nil hook relays the record unchanged
// apart from the origin id.
func New(nodeID uint8, hook Hook) *Stamper {
	return &Stamper{nodeID: nodeID, hook: hook}
}

// NodeID returns the id written into every stamped frame.
func (s *Stamper) NodeID() uint8 { return s.nodeID }

// Stamp returns a new frame for r carrying the local node id.
func (s *Stamper) Stamp(r setpoint.Record) []byte {
	out := make([]byte, setpoint.FrameSize)
	s.StampInto(out, r)
	return out
}

// StampInto writes the stamped frame into dst, which must hold at least
// setpoint.FrameSize bytes.
func (s *Stamper) StampInto(dst []byte, r setpoint.Record) {
	if s.hook != nil {
		cp := r
		s.hook.Apply(&cp)
		r = cp
	}
	setpoint.Put(dst, r, s.nodeID)
}

// PositionSource supplies the node's latest position estimate in metres.
type PositionSource interface {
	Position() (vecmath.Vec, bool)
}

// EstimateHook replaces the x/y/z hints with the local position estimate,
// quantized at scale metres per unit. Records pass through untouched while
// no estimate is available.
type EstimateHook struct {
	Source PositionSource
	Scale  float64
}

// Apply implements Hook.
func (h EstimateHook) Apply(r *setpoint.Record) {
	if h.Source == nil || h.Scale <= 0 {
		return
	}
	p, ok := h.Source.Position()
	if !ok {
		return
	}
	r.X = quantize(p.X, h.Scale)
	r.Y = quantize(p.Y, h.Scale)
	r.Z = quantize(p.Z, h.Scale)
}

func quantize(v, scale float64) uint16 {
	q := math.Round(v / scale)
	switch {
	case math.IsNaN(q) || q <= 0:
		return 0
	case q >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(q)
}
