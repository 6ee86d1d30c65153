package transport

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"
)

// DefaultQueueSize is the number of outbound frames buffered by a Forwarder.
const DefaultQueueSize = 256

// Forwarder sends relay frames to a peer over UDP from its own goroutine so
// the receive path never blocks on the network.
type Forwarder struct {
	conn        io.WriteCloser
	queue       chan []byte
	drops       DropCounter
	logInterval time.Duration
	address     string
	closeOnce   sync.Once
}

// NewForwarder dials address and returns a forwarder sending to it.
func NewForwarder(address string, drops DropCounter, logInterval time.Duration) (*Forwarder, error) {
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve forward address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward connection: %w", err)
	}
	return NewForwarderConn(conn, address, drops, logInterval, DefaultQueueSize), nil
}

// NewForwarderConn wraps an established connection.
func NewForwarderConn(conn io.WriteCloser, address string, drops DropCounter, logInterval time.Duration, queueSize int) *Forwarder {
	if drops == nil {
		drops = noopDrops{}
	}
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Forwarder{
		conn:        conn,
		queue:       make(chan []byte, queueSize),
		drops:       drops,
		logInterval: logInterval,
		address:     address,
	}
}

// Start runs the send loop until ctx is cancelled. Write failures are
// counted as drops and summarized once per log interval.
func (f *Forwarder) Start(ctx context.Context) {
	go func() {
		failed := 0
		var lastErr error
		ticker := time.NewTicker(f.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-f.queue:
				if _, err := f.conn.Write(frame); err != nil {
					failed++
					lastErr = err
					f.drops.AddDropped()
				}
			case <-ticker.C:
				if failed > 0 {
					log.Printf("Dropped %d relayed frames to %s (latest: %v)", failed, f.address, lastErr)
					failed = 0
					lastErr = nil
				}
			}
		}
	}()
	log.Printf("Relaying frames to %s", f.address)
}

// Transmit queues a copy of frame. A full queue drops the frame and returns
// ErrQueueFull; the caller accounts for it. Only write failures in the send
// loop are reported to the forwarder's DropCounter.
func (f *Forwarder) Transmit(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	select {
	case f.queue <- cp:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close releases the connection. Frames still queued are discarded.
func (f *Forwarder) Close() error {
	var err error
	f.closeOnce.Do(func() { err = f.conn.Close() })
	return err
}
