package session

import (
	"sync"
	"sync/atomic"

	"github.com/leandrodaf/midiport/internal/dispatch"
	"github.com/leandrodaf/midiport/sdk/contracts"
)

// instance is the receiver state kept for one connected source.
type instance struct {
	id     contracts.SourceID
	mgr    *Manager
	state  atomic.Int32
	source atomic.Pointer[contracts.Source]

	mu sync.Mutex // serializes handler read-modify-write
}

func newInstance(m *Manager, src contracts.Source) *instance {
	inst := &instance{id: src.ID, mgr: m}
	inst.state.Store(int32(contracts.Connecting))
	inst.source.Store(&src)
	return inst
}

func (i *instance) ID() contracts.SourceID { return i.id }

func (i *instance) Source() contracts.Source { return *i.source.Load() }

func (i *instance) Port() contracts.Port { return i.mgr.cfg.Port }

func (i *instance) State() contracts.InstanceState {
	return contracts.InstanceState(i.state.Load())
}

func (i *instance) transition(from, to contracts.InstanceState) bool {
	return i.state.CompareAndSwap(int32(from), int32(to))
}

func (i *instance) SetReceiver(fn contracts.ReceiverFunc) {
	i.update(func(h *dispatch.Handlers) { h.Receive = fn })
}

func (i *instance) SetFlushHandler(fn contracts.FlushFunc) {
	i.update(func(h *dispatch.Handlers) { h.Flush = fn })
}

func (i *instance) update(apply func(*dispatch.Handlers)) {
	i.mu.Lock()
	defer i.mu.Unlock()

	h, ok := i.mgr.cfg.Table.Handlers(i.id)
	if !ok {
		return
	}
	apply(&h)
	i.mgr.cfg.Table.SetHandlers(i.id, h)
}

func (i *instance) Handlers() (contracts.ReceiverFunc, contracts.FlushFunc) {
	h, _ := i.mgr.cfg.Table.Handlers(i.id)
	return h.Receive, h.Flush
}
