package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"
)

const (
	// DefaultReadTimeout bounds how long a read may block before the
	// listener rechecks its context.
	DefaultReadTimeout = 100 * time.Millisecond

	maxDatagram = 2048
)

// ListenerConfig configures a UDP listener.
type ListenerConfig struct {
	Address     string
	RcvBuf      int
	ReadTimeout time.Duration
	Handler     FrameHandler
	Sockets     UDPSocketFactory
}

// Listener receives setpoint datagrams and passes each to a handler.
type Listener struct {
	address     string
	rcvBuf      int
	readTimeout time.Duration
	handler     FrameHandler
	sockets     UDPSocketFactory
}

// NewListener returns a listener; call Start to run it.
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Sockets == nil {
		cfg.Sockets = RealUDPSocketFactory{}
	}
	return &Listener{
		address:     cfg.Address,
		rcvBuf:      cfg.RcvBuf,
		readTimeout: cfg.ReadTimeout,
		handler:     cfg.Handler,
		sockets:     cfg.Sockets,
	}
}

// Start receives until ctx is cancelled. Handler errors are logged and do
// not stop the listener.
func (l *Listener) Start(ctx context.Context) error {
	if l.handler == nil {
		return errors.New("transport: listener has no handler")
	}
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := l.sockets.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			log.Printf("Warning: failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}
	log.Printf("UDP listener started on %s", conn.LocalAddr())

	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(l.readTimeout))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Printf("UDP read error: %v", err)
			continue
		}
		if err := l.handler.HandleFrame(buf[:n]); err != nil {
			log.Printf("Dropped frame from %v: %v", from, err)
		}
	}
}
