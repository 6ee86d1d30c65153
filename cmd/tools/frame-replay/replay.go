package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/meshpilot/internal/commander"
	"github.com/banshee-data/meshpilot/internal/config"
	"github.com/banshee-data/meshpilot/internal/navigation"
	"github.com/banshee-data/meshpilot/internal/pipeline"
	"github.com/banshee-data/meshpilot/internal/setpoint"
	"github.com/banshee-data/meshpilot/internal/timeutil"
	"github.com/banshee-data/meshpilot/internal/transport"
)

type replayConfig struct {
	Port  int
	Speed float64
	Node  *config.NodeConfig
	Clock timeutil.Clock
}

type report struct {
	Replay    transport.ReplayStats     `json:"replay"`
	Frames    int64                     `json:"frames"`
	Malformed int64                     `json:"malformed"`
	Origins   map[uint8]int             `json:"origins"`
	Commander commander.Status          `json:"commander"`
	Anchors   []navigation.AnchorSample `json:"anchors"`
	Estimate  *navigation.Estimate      `json:"estimate,omitempty"`
	SolveErr  string                    `json:"solve_error,omitempty"`
}

// replay runs a capture through a receiver without relaying, then solves
// once from whatever anchors the capture left behind.
func replay(ctx context.Context, r io.Reader, cfg replayConfig) (*report, error) {
	if cfg.Node == nil {
		cfg.Node = &config.NodeConfig{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	cmd := commander.New(cfg.Node.CommanderConfig(), cfg.Clock)
	loc := navigation.NewLocator(cfg.Node.LocatorConfig(), cfg.Clock)
	recv := pipeline.NewReceiver(pipeline.ReceiverConfig{Commander: cmd, Locator: loc})

	origins := map[uint8]int{}
	h := transport.HandlerFunc(func(frame []byte) error {
		if rec, err := setpoint.Decode(frame); err == nil {
			origins[rec.ID]++
		}
		return recv.HandleFrame(frame)
	})

	stats, err := transport.ReplayPCAP(ctx, r, transport.ReplayOptions{Port: cfg.Port, Speed: cfg.Speed}, h)
	if err != nil {
		return nil, err
	}

	cmd.Tick()
	rep := &report{
		Replay:    stats,
		Origins:   origins,
		Commander: cmd.Status(),
		Anchors:   loc.Anchors(),
	}
	rep.Frames, rep.Malformed = recv.Stats().Totals()
	if est, err := loc.Solve(); err != nil {
		rep.SolveErr = err.Error()
	} else {
		rep.Estimate = &est
	}
	return rep, nil
}

func (r *report) print(w io.Writer) {
	fmt.Fprintf(w, "packets:   %s (%s delivered, %s rejected) over %v\n",
		humanize.Comma(int64(r.Replay.Packets)), humanize.Comma(int64(r.Replay.Delivered)),
		humanize.Comma(int64(r.Replay.Rejected)), r.Replay.Span)
	fmt.Fprintf(w, "frames:    %s received, %s malformed\n", humanize.Comma(r.Frames), humanize.Comma(r.Malformed))

	ids := make([]int, 0, len(r.Origins))
	for id := range r.Origins {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "origin %3d: %s frames\n", id, humanize.Comma(int64(r.Origins[uint8(id)])))
	}

	fmt.Fprintf(w, "watchdog:  %s (thrust locked: %t)\n", r.Commander.State, r.Commander.ThrustLocked)
	fmt.Fprintf(w, "last seq:  %d from node %d\n", r.Commander.Active.Seq, r.Commander.Active.ID)
	if r.Estimate != nil {
		p := r.Estimate.Position
		fmt.Fprintf(w, "position:  (%.3f, %.3f, %.3f) from anchors %v\n", p.X, p.Y, p.Z, r.Estimate.Anchors)
	} else {
		fmt.Fprintf(w, "position:  unavailable (%s)\n", r.SolveErr)
	}
}
