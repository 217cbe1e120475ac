// Package packet models timestamped batches of MIDI messages as delivered to
// a receiver port.
//
// A Batch is read-only once built. Handlers run on the real-time thread and
// may read a batch concurrently with other handlers, so no accessor mutates
// it and the slices handed out must be treated as read-only views.
package packet

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
)

var (
	// ErrEmptyMessage is returned when a packet carries no bytes.
	ErrEmptyMessage = errors.New("empty MIDI message")
	// ErrTimestampOrder is returned when timestamps decrease within a batch.
	ErrTimestampOrder = errors.New("timestamps must be nondecreasing within a batch")
)

// SourceID identifies a connected source for the lifetime of its connection.
// The zero value never names a source.
type SourceID uint64

// Valid reports whether id can name a source.
func (id SourceID) Valid() bool { return id != 0 }

// String renders id as slot.generation.
func (id SourceID) String() string {
	return fmt.Sprintf("%d.%d", uint32(id), uint32(id>>32))
}

// Timestamp is a point on the transport clock in nanoseconds.
type Timestamp uint64

// IsFuture reports whether the event is scheduled after now. Receivers must
// schedule such events instead of playing them immediately.
func (t Timestamp) IsFuture(now Timestamp) bool { return t > now }

// Packet is one timestamped MIDI wire message.
type Packet struct {
	Timestamp Timestamp
	Message   midi.Message
}

// Batch is an ordered group of packets from one source.
type Batch struct {
	source SourceID
	stamps []Timestamp
	ends   []uint32 // end offset of message i in data
	data   []byte
}

// New builds a batch from source and packets, copying every message.
// Only structural checks are made: each message must be non-empty and the
// timestamps must not decrease. Byte content is passed through untouched.
func New(source SourceID, packets ...Packet) (*Batch, error) {
	size := 0
	for _, p := range packets {
		size += len(p.Message)
	}
	b := &Batch{
		source: source,
		stamps: make([]Timestamp, 0, len(packets)),
		ends:   make([]uint32, 0, len(packets)),
		data:   make([]byte, 0, size),
	}
	for i, p := range packets {
		if err := b.add(p.Timestamp, p.Message); err != nil {
			return nil, fmt.Errorf("packet %d: %w", i, err)
		}
	}
	return b, nil
}

func (b *Batch) add(ts Timestamp, msg []byte) error {
	if len(msg) == 0 {
		return ErrEmptyMessage
	}
	if n := len(b.stamps); n > 0 && ts < b.stamps[n-1] {
		return ErrTimestampOrder
	}
	b.data = append(b.data, msg...)
	b.stamps = append(b.stamps, ts)
	b.ends = append(b.ends, uint32(len(b.data)))
	return nil
}

// Source returns the identity of the source the batch came from.
func (b *Batch) Source() SourceID { return b.source }

// Len returns the number of packets.
func (b *Batch) Len() int { return len(b.stamps) }

// Timestamp returns the timestamp of packet i.
func (b *Batch) Timestamp(i int) Timestamp { return b.stamps[i] }

// Message returns a read-only view of the bytes of packet i. The view is
// capacity limited so appending to it never writes into the batch; callers
// must not modify its contents.
func (b *Batch) Message(i int) midi.Message {
	start := uint32(0)
	if i > 0 {
		start = b.ends[i-1]
	}
	end := b.ends[i]
	return midi.Message(b.data[start:end:end])
}

// AppendMessage appends a copy of the bytes of packet i to dst.
func (b *Batch) AppendMessage(dst []byte, i int) []byte {
	return append(dst, b.Message(i)...)
}

// Packet returns packet i.
func (b *Batch) Packet(i int) Packet {
	return Packet{Timestamp: b.stamps[i], Message: b.Message(i)}
}

// Each calls fn for every packet in order until fn returns false.
func (b *Batch) Each(fn func(i int, p Packet) bool) {
	for i := range b.stamps {
		if !fn(i, b.Packet(i)) {
			return
		}
	}
}

// First returns the earliest timestamp, or zero for an empty batch.
func (b *Batch) First() Timestamp {
	if len(b.stamps) == 0 {
		return 0
	}
	return b.stamps[0]
}

// Last returns the latest timestamp, or zero for an empty batch.
func (b *Batch) Last() Timestamp {
	if len(b.stamps) == 0 {
		return 0
	}
	return b.stamps[len(b.stamps)-1]
}

// String describes the batch for logs. It allocates; do not call it from a
// real-time handler.
func (b *Batch) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "source=%s packets=%d", b.source, b.Len())
	for i := range b.stamps {
		fmt.Fprintf(&sb, " [t=%d %s]", b.stamps[i], b.Message(i))
	}
	return sb.String()
}
