package commander

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/meshpilot/internal/setpoint"
)

func TestIngestBufferGenerations(t *testing.T) {
	t.Parallel()
	var b ingestBuffer

	r, gen := b.load()
	assert.Equal(t, setpoint.Record{}, r)
	assert.Zero(t, gen)

	assert.EqualValues(t, 1, b.store(setpoint.Record{Seq: 7}))
	assert.EqualValues(t, 2, b.store(setpoint.Record{Seq: 8}))

	r, gen = b.load()
	assert.EqualValues(t, 8, r.Seq)
	assert.EqualValues(t, 2, gen)
	assert.EqualValues(t, 2, b.activeGen())
}

// record derives every field from i so a mix of two records is detectable.
func record(i int) setpoint.Record {
	v := uint16(i)
	return setpoint.Record{
		ID:          uint8(i),
		Seq:         v,
		LinkQuality: uint8(i >> 8),
		X:           v,
		Y:           v,
		Z:           v,
		Roll:        float32(v),
		Pitch:       float32(v),
		Yaw:         float32(v),
		Thrust:      v,
		Reserved:    uint8(i),
	}
}

func TestConcurrentSubmitNeverTears(t *testing.T) {
	t.Parallel()
	c, _ := newTestCommander(t)
	const n = 20000

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 1; i <= n; i++ {
			c.Submit(record(i))
		}
	}()

	torn := 0
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		r := c.ReadActive()
		if r != record(int(r.Seq)) {
			torn++
		}
	}
	wg.Wait()

	assert.Zero(t, torn)
	assert.Equal(t, uint16(n), c.ReadActive().Seq)
}
