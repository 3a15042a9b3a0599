package broadcast

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// ShredSize is the size on the wire of a full shred.
	ShredSize = 1228

	shredHeaderSize = 8 + 4 + 1 + 2

	// ShredPayloadSize is the number of entry bytes one shred carries.
	ShredPayloadSize = ShredSize - shredHeaderSize
)

// Shred flags.
const (
	// FlagDataComplete marks the last shred of an entry.
	FlagDataComplete uint8 = 1 << iota
	// FlagLastInSlot marks the last shred of a slot.
	FlagLastInSlot
)

var errShortShred = errors.New("shred too short")

// Shred is a fixed-size fragment of a serialized entry.
//
// Wire layout (little endian):
//
//	u64 slot | u32 index | u8 flags | u16 size | payload, zero padded
type Shred struct {
	Slot    uint64
	Index   uint32
	Flags   uint8
	Payload []byte
}

func (s Shred) DataComplete() bool { return s.Flags&FlagDataComplete != 0 }
func (s Shred) LastInSlot() bool   { return s.Flags&FlagLastInSlot != 0 }

// Encode returns the ShredSize bytes of s.
func (s Shred) Encode() []byte {
	buf := make([]byte, ShredSize)
	binary.LittleEndian.PutUint64(buf[0:], s.Slot)
	binary.LittleEndian.PutUint32(buf[8:], s.Index)
	buf[12] = s.Flags
	binary.LittleEndian.PutUint16(buf[13:], uint16(len(s.Payload)))
	copy(buf[shredHeaderSize:], s.Payload)
	return buf
}

// DecodeShred parses a shred received from the network.
func DecodeShred(b []byte) (Shred, error) {
	if len(b) < shredHeaderSize {
		return Shred{}, errShortShred
	}
	size := int(binary.LittleEndian.Uint16(b[13:]))
	if size > ShredPayloadSize || shredHeaderSize+size > len(b) {
		return Shred{}, fmt.Errorf("shred payload size %d out of range", size)
	}
	return Shred{
		Slot:    binary.LittleEndian.Uint64(b[0:]),
		Index:   binary.LittleEndian.Uint32(b[8:]),
		Flags:   b[12],
		Payload: append([]byte(nil), b[shredHeaderSize:shredHeaderSize+size]...),
	}, nil
}

// shredder splits entries into shreds, numbering them within a slot.
type shredder struct {
	slot uint64
	next uint32
}

func (s *shredder) shred(data []byte, slot uint64, lastInSlot bool) []Shred {
	if slot != s.slot {
		s.slot, s.next = slot, 0
	}

	n := (len(data) + ShredPayloadSize - 1) / ShredPayloadSize
	if n == 0 {
		n = 1
	}
	shreds := make([]Shred, 0, n)
	for i := 0; i < n; i++ {
		end := (i + 1) * ShredPayloadSize
		if end > len(data) {
			end = len(data)
		}
		sh := Shred{
			Slot:    slot,
			Index:   s.next,
			Payload: data[i*ShredPayloadSize : end],
		}
		if i == n-1 {
			sh.Flags |= FlagDataComplete
			if lastInSlot {
				sh.Flags |= FlagLastInSlot
			}
		}
		s.next++
		shreds = append(shreds, sh)
	}
	return shreds
}
