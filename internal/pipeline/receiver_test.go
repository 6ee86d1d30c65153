package pipeline

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/meshpilot/internal/commander"
	"github.com/banshee-data/meshpilot/internal/navigation"
	"github.com/banshee-data/meshpilot/internal/relay"
	"github.com/banshee-data/meshpilot/internal/setpoint"
	"github.com/banshee-data/meshpilot/internal/timeutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type captureTx struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (c *captureTx) Transmit(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return nil
}

func newReceiver(t *testing.T, tx Transmitter) (*Receiver, *commander.Commander, *navigation.Locator) {
	t.Helper()
	clock := timeutil.NewMockClock(epoch)
	cmd := commander.New(commander.DefaultConfig(), clock)
	loc := navigation.NewLocator(navigation.Config{}, clock)
	r := NewReceiver(ReceiverConfig{
		Commander: cmd,
		Locator:   loc,
		Stamper:   relay.New(5, nil),
		Relay:     tx,
	})
	return r, cmd, loc
}

func TestHandleFrameSubmitsObservesAndRelays(t *testing.T) {
	t.Parallel()
	tx := &captureTx{}
	r, cmd, loc := newReceiver(t, tx)

	in := setpoint.Record{ID: 2, Seq: 40, LinkQuality: 50, X: 100, Roll: 0.25, Thrust: 0}
	require.NoError(t, r.HandleFrame(setpoint.Encode(in, in.ID)))

	assert.Equal(t, in, cmd.ReadActive())
	assert.False(t, cmd.ThrustLocked(), "zero thrust frame arms")
	require.Len(t, loc.Anchors(), 1)
	assert.EqualValues(t, 2, loc.Anchors()[0].ID)

	require.Len(t, tx.frames, 1)
	out, err := setpoint.Decode(tx.frames[0])
	require.NoError(t, err)
	want := in
	want.ID = 5
	assert.Equal(t, want, out)

	frames, malformed := r.Stats().Totals()
	assert.EqualValues(t, 1, frames)
	assert.Zero(t, malformed)
}

func TestHandleFrameRejectsMalformed(t *testing.T) {
	t.Parallel()
	tx := &captureTx{}
	r, cmd, _ := newReceiver(t, tx)

	err := r.HandleFrame([]byte{1, 2, 3})
	assert.ErrorIs(t, err, setpoint.ErrMalformedFrame)
	assert.Equal(t, setpoint.Record{}, cmd.ReadActive())
	assert.Empty(t, tx.frames)
	assert.EqualValues(t, 0, cmd.Status().Submitted)

	_, malformed := r.Stats().Totals()
	assert.EqualValues(t, 1, malformed)
}

func TestHandleFrameIgnoresOwnEcho(t *testing.T) {
	t.Parallel()
	tx := &captureTx{}
	r, cmd, _ := newReceiver(t, tx)

	require.NoError(t, r.HandleFrame(setpoint.Encode(setpoint.Record{Seq: 1}, 5)))
	assert.EqualValues(t, 0, cmd.Status().Submitted)
	assert.Empty(t, tx.frames)
}

func TestHandleFrameCountsRelayFailures(t *testing.T) {
	t.Parallel()
	tx := &captureTx{err: errors.New("queue full")}
	r, cmd, _ := newReceiver(t, tx)

	require.NoError(t, r.HandleFrame(setpoint.Encode(setpoint.Record{Seq: 1}, 3)))
	assert.EqualValues(t, 1, cmd.Status().Submitted)

	snap := r.Stats().Rotate(time.Now())
	assert.EqualValues(t, 1, snap.RelayDropped)
	assert.Zero(t, snap.Relayed)
}

func TestHandleFrameWithoutRelay(t *testing.T) {
	t.Parallel()
	cmd := commander.New(commander.DefaultConfig(), timeutil.NewMockClock(epoch))
	r := NewReceiver(ReceiverConfig{Commander: cmd})

	require.NoError(t, r.HandleFrame(setpoint.Encode(setpoint.Record{Seq: 9}, 5)))
	assert.EqualValues(t, 9, cmd.ReadActive().Seq)
}
