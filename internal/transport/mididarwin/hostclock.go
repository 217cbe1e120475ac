package mididarwin

import "github.com/leandrodaf/midiport/sdk/packet"

// hostClock maps CoreMIDI host-time ticks onto the transport clock:
// nanoseconds since origin. numer/denom is the mach timebase.
type hostClock struct {
	numer  uint64
	denom  uint64
	origin uint64 // host ticks at transport creation
}

func newHostClock(numer, denom uint32, origin uint64) hostClock {
	if numer == 0 || denom == 0 {
		numer, denom = 1, 1
	}
	return hostClock{numer: uint64(numer), denom: uint64(denom), origin: origin}
}

// nanos converts a tick count without overflowing for long uptimes.
func (c hostClock) nanos(ticks uint64) uint64 {
	return ticks/c.denom*c.numer + ticks%c.denom*c.numer/c.denom
}

// stamp converts a packet's host time. A zero host time means "now" in
// CoreMIDI; times before origin clamp to zero.
func (c hostClock) stamp(hostTime, now uint64) packet.Timestamp {
	if hostTime == 0 {
		hostTime = now
	}
	if hostTime <= c.origin {
		return 0
	}
	return packet.Timestamp(c.nanos(hostTime - c.origin))
}
