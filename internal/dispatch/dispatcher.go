package dispatch

import (
	"github.com/leandrodaf/midiport/sdk/contracts"
	"github.com/leandrodaf/midiport/sdk/packet"
)

// acquire pins the slot named by id for one delivery. It returns nil when
// the id is stale or the slot is not eligible. A non-nil slot must be
// released with s.inflight.Add(-1).
//
// The increment happens before the eligibility check and Disable stores
// before Quiesce loads, so either the delivery sees the slot disabled or
// Quiesce sees the delivery in flight.
func (t *Table) acquire(id contracts.SourceID) *slot {
	index, gen := unpack(id)
	if gen == 0 || int(index) >= len(t.slots) {
		return nil
	}
	s := &t.slots[index]
	s.inflight.Add(1)
	if !s.eligible.Load() || s.gen.Load() != gen {
		s.inflight.Add(-1)
		return nil
	}
	return s
}

func (t *Table) handlersOf(s *slot) *Handlers {
	if t.mode == SingleInstance {
		return t.shared.Load()
	}
	return s.handlers.Load()
}

// Dispatch hands batch to the receiver resolved for id, synchronously on the
// calling goroutine. Batches for unknown or disconnected sources, or for
// sources without a receiver, are counted and dropped.
//
// A panicking receiver is not recovered; the slot is still released so a
// pending disconnect is not stranded.
func (t *Table) Dispatch(id contracts.SourceID, batch *packet.Batch) bool {
	s := t.acquire(id)
	if s == nil {
		t.dropped.Add(1)
		return false
	}
	defer s.inflight.Add(-1)

	h := t.handlersOf(s)
	if h.Receive == nil {
		t.dropped.Add(1)
		return false
	}
	h.Receive(id, batch)
	t.delivered.Add(1)
	return true
}
