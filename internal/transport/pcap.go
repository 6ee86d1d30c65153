package transport

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// ReplayOptions controls a pcap replay.
type ReplayOptions struct {
	// Port keeps only UDP datagrams to or from this port. Zero keeps all.
	Port int
	// Speed paces delivery by capture timestamps, divided by Speed. Zero
	// delivers as fast as possible.
	Speed float64
}

// ReplayStats summarizes one replay.
type ReplayStats struct {
	Packets   int           `json:"packets"`
	Delivered int           `json:"delivered"`
	Rejected  int           `json:"rejected"`
	Span      time.Duration `json:"span"`
}

// ReplayPCAP reads a classic pcap stream and delivers the payload of each
// matching UDP datagram to h.
func ReplayPCAP(ctx context.Context, r io.Reader, opts ReplayOptions, h FrameHandler) (ReplayStats, error) {
	var stats ReplayStats

	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return stats, fmt.Errorf("failed to read pcap header: %w", err)
	}
	src := gopacket.NewPacketSource(reader, reader.LinkType())
	src.NoCopy = true

	var first, prevTS time.Time
	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		packet, err := src.NextPacket()
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("pcap packet %d: %w", stats.Packets+1, err)
		}
		stats.Packets++

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if opts.Port != 0 && int(udp.DstPort) != opts.Port && int(udp.SrcPort) != opts.Port {
			continue
		}

		ts := packet.Metadata().Timestamp
		if first.IsZero() {
			first = ts
		} else if opts.Speed > 0 {
			if err := sleepCtx(ctx, time.Duration(float64(ts.Sub(prevTS))/opts.Speed)); err != nil {
				return stats, err
			}
		}
		prevTS = ts
		stats.Span = ts.Sub(first)

		if err := h.HandleFrame(udp.Payload); err != nil {
			stats.Rejected++
			if stats.Rejected <= 10 {
				log.Printf("PCAP packet %d rejected: %v", stats.Packets, err)
			}
			continue
		}
		stats.Delivered++
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
