// Package transport moves setpoint frames between the radio mesh and the
// receive pipeline: UDP, a serial radio dongle, and pcap replay.
package transport

import "errors"

// FrameHandler receives one inbound frame. The slice is only valid for the
// duration of the call.
type FrameHandler interface {
	HandleFrame(frame []byte) error
}

// HandlerFunc adapts a function to FrameHandler.
type HandlerFunc func(frame []byte) error

// HandleFrame calls f(frame).
func (f HandlerFunc) HandleFrame(frame []byte) error { return f(frame) }

// DropCounter is notified whenever an outbound frame is discarded.
type DropCounter interface {
	AddDropped()
}

type noopDrops struct{}

func (noopDrops) AddDropped() {}

// ErrQueueFull is returned by Forwarder.Transmit when the send queue is full
// and the frame was dropped.
var ErrQueueFull = errors.New("transport: forward queue full")
