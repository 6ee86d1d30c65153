package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/meshpilot/internal/commander"
	"github.com/banshee-data/meshpilot/internal/navigation"
	"github.com/banshee-data/meshpilot/internal/setpoint"
	"github.com/banshee-data/meshpilot/internal/timeutil"
)

type memStore struct {
	mu          sync.Mutex
	transitions []commander.Transition
	estimates   []navigation.Estimate
}

func (m *memStore) RecordTransition(tr commander.Transition, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, tr)
	return nil
}

func (m *memStore) RecordEstimate(est navigation.Estimate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.estimates = append(m.estimates, est)
	return nil
}

// flush writes all queued records synchronously.
func flush(l *ControlLoop) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.drain(ctx)
}

func TestStepHandsGatedSetpointToController(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(epoch)
	cmd := commander.New(commander.DefaultConfig(), clock)
	var got []Setpoint
	l := NewControlLoop(LoopConfig{
		Clock:      clock,
		Commander:  cmd,
		Controller: ControllerFunc(func(sp Setpoint) { got = append(got, sp) }),
	})

	cmd.Submit(setpoint.Record{})
	cmd.Submit(setpoint.Record{Roll: 0.5, Pitch: -0.5, Yaw: 1, Thrust: 30000})
	sp := l.Step()

	require.Len(t, got, 1)
	assert.Equal(t, sp, got[0])
	assert.Equal(t, commander.Fresh, sp.State)
	assert.EqualValues(t, 30000, sp.Thrust)
	assert.EqualValues(t, 0.5, sp.Roll)
	assert.Equal(t, commander.XMode, sp.YawMode)
	assert.Equal(t, commander.Angle, sp.RollType)
	assert.Equal(t, commander.Rate, sp.YawType)
	assert.Equal(t, &sp, l.Latest())
	assert.EqualValues(t, 1, l.Cycles())
}

func TestStepRecordsTransitions(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(epoch)
	cmd := commander.New(commander.DefaultConfig(), clock)
	store := &memStore{}
	l := NewControlLoop(LoopConfig{Clock: clock, Commander: cmd, Store: store})

	cmd.Submit(setpoint.Record{Roll: 1, Thrust: 0})
	l.Step()
	clock.Advance(600 * time.Millisecond)
	sp := l.Step()
	assert.Equal(t, commander.Degraded, sp.State)
	assert.Zero(t, sp.Roll)
	clock.Advance(1600 * time.Millisecond)
	sp = l.Step()
	assert.Equal(t, commander.Shutdown, sp.State)
	assert.Zero(t, sp.Thrust)
	l.Step()

	flush(l)
	require.Len(t, store.transitions, 3)
	assert.Equal(t, commander.Transition{From: commander.Shutdown, To: commander.Fresh}, store.transitions[0])
	assert.Equal(t, commander.Degraded, store.transitions[1].To)
	assert.Equal(t, commander.Shutdown, store.transitions[2].To)
	assert.Equal(t, 2200*time.Millisecond, store.transitions[2].Inactivity)
}

func TestStepSolvesEveryNCycles(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(epoch)
	cmd := commander.New(commander.DefaultConfig(), clock)
	target := navigation.RangeFunc(func(r setpoint.Record) (float64, bool) {
		// ranges to (2, 1, 1) from anchors at (0,0,0), (4,0,0), (0,3,0)
		switch r.ID {
		case 1:
			return 2.449489742783178, true
		case 2:
			return 2.449489742783178, true
		case 3:
			return 3, true
		}
		return 0, false
	})
	loc := navigation.NewLocator(navigation.Config{Scale: 0.5, Ranges: target}, clock)
	for _, r := range []setpoint.Record{{ID: 1}, {ID: 2, X: 8}, {ID: 3, Y: 6}} {
		require.True(t, loc.Observe(r))
	}
	store := &memStore{}
	l := NewControlLoop(LoopConfig{Clock: clock, Commander: cmd, Locator: loc, Store: store, SolveEvery: 3})

	for i := 0; i < 7; i++ {
		l.Step()
	}
	flush(l)

	require.Len(t, store.estimates, 2)
	est := store.estimates[1]
	assert.True(t, est.Valid)
	assert.InDelta(t, 2, est.Position.X, 1e-6)
	assert.InDelta(t, 1, est.Position.Y, 1e-6)
	assert.InDelta(t, 1, est.Position.Z, 1e-6)
}

func TestRunTicksOnClock(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(epoch)
	cmd := commander.New(commander.DefaultConfig(), clock)
	updates := make(chan Setpoint, 8)
	l := NewControlLoop(LoopConfig{
		Period:     10 * time.Millisecond,
		Clock:      clock,
		Commander:  cmd,
		Controller: ControllerFunc(func(sp Setpoint) { updates <- sp }),
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	// the ticker is created inside Run, so keep advancing until it fires
	var sp Setpoint
	require.Eventually(t, func() bool {
		clock.Advance(10 * time.Millisecond)
		select {
		case sp = <-updates:
			return true
		default:
			return false
		}
	}, 2*time.Second, time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.GreaterOrEqual(t, l.Cycles(), uint64(1))
	assert.EqualValues(t, 0, sp.Thrust, "locked at boot")
}
