// Package dispatch is the real-time delivery core of a receiver port.
//
// Sources live in a slot table allocated once when the port is created.
// A SourceID packs the slot index with the slot's generation, so an id that
// outlives its connection no longer matches and resolves to nothing.
//
// The delivery path (Dispatch, Flush, FlushAll) only performs atomic loads,
// stores and adds on preallocated memory: it never locks and never
// allocates. Everything that does (Allocate, Release, handler assignment)
// runs on control goroutines.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/midiport/sdk/contracts"
)

// Mode selects how handlers are resolved.
type Mode int

const (
	// SingleInstance delivers every source's traffic to one port-wide handler set.
	SingleInstance Mode = iota
	// MultiInstance delivers each source's traffic to that source's own handler set.
	MultiInstance
)

// Handlers is an immutable handler set. Assignments publish a new value.
type Handlers struct {
	Receive contracts.ReceiverFunc
	Flush   contracts.FlushFunc
}

// Stats holds the delivery counters.
type Stats struct {
	Delivered      uint64
	Dropped        uint64
	Flushes        uint64
	FlushesDropped uint64
}

type slot struct {
	gen      atomic.Uint32
	eligible atomic.Bool
	inflight atomic.Int32
	handlers atomic.Pointer[Handlers]
}

// Table is the preallocated slot table shared by the delivery and control paths.
type Table struct {
	mode   Mode
	slots  []slot
	shared atomic.Pointer[Handlers]
	poll   time.Duration

	mu   sync.Mutex
	free []uint32

	delivered      atomic.Uint64
	dropped        atomic.Uint64
	flushes        atomic.Uint64
	flushesDropped atomic.Uint64
}

// New allocates a table with room for capacity sources. poll bounds the
// pause between checks in Quiesce.
func New(mode Mode, capacity int, poll time.Duration) *Table {
	if capacity <= 0 {
		capacity = contracts.DefaultMaxSources
	}
	if poll <= 0 {
		poll = contracts.DefaultReclaimPoll
	}
	t := &Table{
		mode:  mode,
		slots: make([]slot, capacity),
		poll:  poll,
		free:  make([]uint32, 0, capacity),
	}
	for i := capacity - 1; i >= 0; i-- {
		t.slots[i].gen.Store(1)
		t.slots[i].handlers.Store(&Handlers{})
		t.free = append(t.free, uint32(i))
	}
	t.shared.Store(&Handlers{})
	return t
}

func pack(index, gen uint32) contracts.SourceID {
	return contracts.SourceID(uint64(gen)<<32 | uint64(index))
}

func unpack(id contracts.SourceID) (index, gen uint32) {
	return uint32(id), uint32(id >> 32)
}

// Mode returns the handler resolution mode.
func (t *Table) Mode() Mode { return t.mode }

// Cap returns the number of slots.
func (t *Table) Cap() int { return len(t.slots) }

// lookup returns the slot named by id if its generation still matches.
func (t *Table) lookup(id contracts.SourceID) *slot {
	index, gen := unpack(id)
	if gen == 0 || int(index) >= len(t.slots) {
		return nil
	}
	s := &t.slots[index]
	if s.gen.Load() != gen {
		return nil
	}
	return s
}

// Allocate reserves a slot for a new source. The slot is not eligible for
// delivery until Enable. In multi-instance mode it starts with the current
// port-wide handler set as its default.
func (t *Table) Allocate() (contracts.SourceID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.free)
	if n == 0 {
		return 0, contracts.ErrTooManySources
	}
	index := t.free[n-1]
	t.free = t.free[:n-1]

	s := &t.slots[index]
	s.eligible.Store(false)
	s.handlers.Store(t.shared.Load())
	return pack(index, s.gen.Load()), nil
}

// Release returns a slot to the free list and bumps its generation so the
// old id stops resolving. Call it only after Disable and Quiesce.
func (t *Table) Release(id contracts.SourceID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.lookup(id)
	if s == nil {
		return false
	}
	s.eligible.Store(false)
	if s.gen.Add(1) == 0 {
		s.gen.Store(1)
	}
	s.handlers.Store(&Handlers{})
	index, _ := unpack(id)
	t.free = append(t.free, index)
	return true
}

// Enable makes a slot eligible for delivery.
func (t *Table) Enable(id contracts.SourceID) bool {
	s := t.lookup(id)
	if s == nil {
		return false
	}
	s.eligible.Store(true)
	return true
}

// Disable stops new deliveries to a slot. Deliveries already running finish.
func (t *Table) Disable(id contracts.SourceID) bool {
	s := t.lookup(id)
	if s == nil {
		return false
	}
	s.eligible.Store(false)
	return true
}

// Eligible reports whether deliveries to id currently reach a handler set.
func (t *Table) Eligible(id contracts.SourceID) bool {
	s := t.lookup(id)
	return s != nil && s.eligible.Load()
}

// Quiesce waits until no delivery to id is running. It must not be called
// from a handler for the same source.
func (t *Table) Quiesce(ctx context.Context, id contracts.SourceID) error {
	s := t.lookup(id)
	if s == nil {
		return contracts.ErrUnknownSource
	}
	wait := time.Microsecond
	for s.inflight.Load() != 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if wait *= 2; wait > t.poll {
			wait = t.poll
		}
	}
	return nil
}

// SetShared publishes the port-wide handler set.
func (t *Table) SetShared(h Handlers) {
	t.shared.Store(&h)
}

// Shared returns the port-wide handler set.
func (t *Table) Shared() Handlers {
	return *t.shared.Load()
}

// SetHandlers publishes the handler set of one source. It has no effect on
// delivery in single-instance mode.
func (t *Table) SetHandlers(id contracts.SourceID, h Handlers) bool {
	s := t.lookup(id)
	if s == nil {
		return false
	}
	s.handlers.Store(&h)
	return true
}

// Handlers returns the handler set stored for one source.
func (t *Table) Handlers(id contracts.SourceID) (Handlers, bool) {
	s := t.lookup(id)
	if s == nil {
		return Handlers{}, false
	}
	return *s.handlers.Load(), true
}

// Stats returns the delivery counters.
func (t *Table) Stats() Stats {
	return Stats{
		Delivered:      t.delivered.Load(),
		Dropped:        t.dropped.Load(),
		Flushes:        t.flushes.Load(),
		FlushesDropped: t.flushesDropped.Load(),
	}
}
