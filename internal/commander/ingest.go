package commander

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/banshee-data/meshpilot/internal/setpoint"
)

// slotWords is the number of 64-bit words needed to hold one encoded frame.
const slotWords = (setpoint.FrameSize + 7) / 8

// slot holds one encoded setpoint. seq is odd while the producer is writing
// the words; gen is the submit count that produced the contents.
type slot struct {
	seq   atomic.Uint64
	gen   atomic.Uint64
	words [slotWords]atomic.Uint64
}

// ingestBuffer is the single-producer, single-consumer double buffer between
// the receive path and the control loop.
//
// The producer always writes the inactive slot and publishes it by storing
// side last. A reader loads side and copies the slot it names. If the
// producer laps the reader (two submits during one copy) the slot sequence
// changes and the reader retries, so a torn record is never returned.
type ingestBuffer struct {
	slots  [2]slot
	side   atomic.Uint32
	submit atomic.Uint64
}

// store writes r into the inactive slot and flips the active side. It must
// only be called from the producer goroutine.
func (b *ingestBuffer) store(r setpoint.Record) uint64 {
	next := 1 - b.side.Load()
	s := &b.slots[next]

	var buf [slotWords * 8]byte
	setpoint.Put(buf[:], r, r.ID)

	gen := b.submit.Add(1)
	s.seq.Add(1)
	for i := range s.words {
		s.words[i].Store(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	s.gen.Store(gen)
	s.seq.Add(1)

	b.side.Store(next)
	return gen
}

// load returns a copy of the active record and its generation.
func (b *ingestBuffer) load() (setpoint.Record, uint64) {
	var buf [slotWords * 8]byte
	for {
		s := &b.slots[b.side.Load()]
		seq := s.seq.Load()
		if seq&1 == 1 {
			continue
		}
		for i := range s.words {
			binary.LittleEndian.PutUint64(buf[i*8:], s.words[i].Load())
		}
		gen := s.gen.Load()
		if s.seq.Load() == seq {
			return setpoint.Unpack(buf[:]), gen
		}
	}
}

// activeGen returns the generation of the active slot without copying it.
func (b *ingestBuffer) activeGen() uint64 {
	return b.slots[b.side.Load()].gen.Load()
}
