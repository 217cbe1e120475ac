package dispatch

import "github.com/leandrodaf/midiport/sdk/contracts"

// Flush invokes the flush handler resolved for id. In multi-instance mode
// only that source's instance is flushed; in single-instance mode the
// port-wide handler is called once with id.
func (t *Table) Flush(id contracts.SourceID) bool {
	s := t.acquire(id)
	if s == nil {
		t.flushesDropped.Add(1)
		return false
	}
	defer s.inflight.Add(-1)

	h := t.handlersOf(s)
	if h.Flush == nil {
		t.flushesDropped.Add(1)
		return false
	}
	h.Flush(id)
	t.flushes.Add(1)
	return true
}

// FlushAll flushes every source that is currently eligible and returns how
// many flush handlers ran.
func (t *Table) FlushAll() int {
	n := 0
	for i := range t.slots {
		s := &t.slots[i]
		if !s.eligible.Load() {
			continue
		}
		if t.Flush(pack(uint32(i), s.gen.Load())) {
			n++
		}
	}
	return n
}
