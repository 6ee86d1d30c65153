package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/meshpilot/internal/setpoint"
)

// PortOptions describes how to open the radio dongle's serial port.
type PortOptions struct {
	BaudRate int    `json:"baud_rate" yaml:"baud_rate"`
	DataBits int    `json:"data_bits" yaml:"data_bits"`
	StopBits int    `json:"stop_bits" yaml:"stop_bits"`
	Parity   string `json:"parity" yaml:"parity"`
}

// DefaultBaudRate is the dongle's factory rate.
const DefaultBaudRate = 115200

// Normalize validates the options and fills in defaults.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o
	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}
	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch p := strings.TrimSpace(strings.ToUpper(opts.Parity)); p {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	return opts, nil
}

// SerialMode converts the options for serial.Open.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// SerialLink exchanges fixed-size frames with a radio dongle. The dongle
// delivers one frame per setpoint with no additional framing.
type SerialLink struct {
	port io.ReadWriteCloser
	path string

	wmu       sync.Mutex
	closeOnce sync.Once
}

// OpenSerial opens the port at path.
func OpenSerial(path string, opts PortOptions) (*SerialLink, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return NewSerialLink(port, path), nil
}

// NewSerialLink wraps an already opened port.
func NewSerialLink(port io.ReadWriteCloser, path string) *SerialLink {
	return &SerialLink{port: port, path: path}
}

// Run reads frames until ctx is cancelled or the port fails. Cancelling
// ctx closes the port to unblock the pending read.
func (s *SerialLink) Run(ctx context.Context, h FrameHandler) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	log.Printf("Serial link reading frames from %s", s.path)
	var frame [setpoint.FrameSize]byte
	for {
		if _, err := io.ReadFull(s.port, frame[:]); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("serial link %s closed: %w", s.path, err)
			}
			return fmt.Errorf("serial read on %s: %w", s.path, err)
		}
		if err := h.HandleFrame(frame[:]); err != nil {
			log.Printf("Dropped serial frame: %v", err)
		}
	}
}

// Transmit writes one frame to the dongle.
func (s *SerialLink) Transmit(frame []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err := s.port.Write(frame)
	return err
}

// Close closes the port. It is safe to call more than once.
func (s *SerialLink) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.port.Close() })
	return err
}
