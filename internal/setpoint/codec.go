// Package setpoint encodes and decodes the fixed-layout setpoint frame
// exchanged over the radio mesh.
package setpoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

/*
Frame layout (25 bytes, multi-byte fields little-endian):

	offset  size  field
	0       1     origin id
	1       2     sequence / protocol id
	3       1     link-quality indicator
	4       2     x position hint
	6       2     y position hint
	8       2     z position hint
	10      4     roll  (float32)
	14      4     pitch (float32)
	18      4     yaw   (float32)
	22      2     thrust
	24      1     reserved trailer, carried verbatim
*/
const (
	FrameSize = 25

	offsetID          = 0
	offsetSeq         = 1
	offsetLinkQuality = 3
	offsetX           = 4
	offsetY           = 6
	offsetZ           = 8
	offsetRoll        = 10
	offsetPitch       = 14
	offsetYaw         = 18
	offsetThrust      = 22
	offsetReserved    = 24
)

// ErrMalformedFrame is returned for input that is not exactly FrameSize bytes.
var ErrMalformedFrame = errors.New("malformed setpoint frame")

// Record is the in-memory form of one setpoint frame.
type Record struct {
	ID          uint8   `json:"id"`
	Seq         uint16  `json:"seq"`
	LinkQuality uint8   `json:"link_quality"`
	X           uint16  `json:"x"`
	Y           uint16  `json:"y"`
	Z           uint16  `json:"z"`
	Roll        float32 `json:"roll"`
	Pitch       float32 `json:"pitch"`
	Yaw         float32 `json:"yaw"`
	Thrust      uint16  `json:"thrust"`
	Reserved    uint8   `json:"reserved"`
}

// Decode unpacks a frame. Any length other than FrameSize is rejected.
func Decode(data []byte) (Record, error) {
	if len(data) != FrameSize {
		return Record{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedFrame, FrameSize, len(data))
	}
	return unpack(data), nil
}

// Encode returns the canonical frame for r with originID in the id field,
// regardless of r.ID.
func Encode(r Record, originID uint8) []byte {
	out := make([]byte, FrameSize)
	Put(out, r, originID)
	return out
}

// Put writes the frame for r into dst, which must hold at least FrameSize
// bytes. It does not allocate.
func Put(dst []byte, r Record, originID uint8) {
	_ = dst[FrameSize-1]
	dst[offsetID] = originID
	binary.LittleEndian.PutUint16(dst[offsetSeq:], r.Seq)
	dst[offsetLinkQuality] = r.LinkQuality
	binary.LittleEndian.PutUint16(dst[offsetX:], r.X)
	binary.LittleEndian.PutUint16(dst[offsetY:], r.Y)
	binary.LittleEndian.PutUint16(dst[offsetZ:], r.Z)
	binary.LittleEndian.PutUint32(dst[offsetRoll:], math.Float32bits(r.Roll))
	binary.LittleEndian.PutUint32(dst[offsetPitch:], math.Float32bits(r.Pitch))
	binary.LittleEndian.PutUint32(dst[offsetYaw:], math.Float32bits(r.Yaw))
	binary.LittleEndian.PutUint16(dst[offsetThrust:], r.Thrust)
	dst[offsetReserved] = r.Reserved
}

// unpack assumes len(data) >= FrameSize.
func unpack(data []byte) Record {
	return Record{
		ID:          data[offsetID],
		Seq:         binary.LittleEndian.Uint16(data[offsetSeq:]),
		LinkQuality: data[offsetLinkQuality],
		X:           binary.LittleEndian.Uint16(data[offsetX:]),
		Y:           binary.LittleEndian.Uint16(data[offsetY:]),
		Z:           binary.LittleEndian.Uint16(data[offsetZ:]),
		Roll:        math.Float32frombits(binary.LittleEndian.Uint32(data[offsetRoll:])),
		Pitch:       math.Float32frombits(binary.LittleEndian.Uint32(data[offsetPitch:])),
		Yaw:         math.Float32frombits(binary.LittleEndian.Uint32(data[offsetYaw:])),
		Thrust:      binary.LittleEndian.Uint16(data[offsetThrust:]),
		Reserved:    data[offsetReserved],
	}
}

// Unpack is Decode for callers that already hold a buffer of at least
// FrameSize bytes, such as the ingest slots. Bytes past FrameSize are
// ignored.
func Unpack(data []byte) Record {
	_ = data[FrameSize-1]
	return unpack(data)
}
