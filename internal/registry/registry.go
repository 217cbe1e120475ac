// Package registry keeps the set of sources connected to a port.
//
// Writers serialize on a mutex and publish a fresh immutable snapshot
// through an atomic pointer. Readers load the pointer and never lock, so the
// delivery thread can resolve a source while a control goroutine connects or
// disconnects another one.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/leandrodaf/midiport/sdk/contracts"
)

type snapshot struct {
	version uint64
	sources []contracts.Source // connect order
	byID    map[contracts.SourceID]int
	byKey   map[string]contracts.SourceID
}

var empty = &snapshot{
	byID:  map[contracts.SourceID]int{},
	byKey: map[string]contracts.SourceID{},
}

// Registry is the set of connected sources.
type Registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{}
	r.snap.Store(empty)
	return r
}

// publish builds and stores the snapshot for sources. Callers hold r.mu.
func (r *Registry) publish(sources []contracts.Source) {
	next := &snapshot{
		version: r.snap.Load().version + 1,
		sources: sources,
		byID:    make(map[contracts.SourceID]int, len(sources)),
		byKey:   make(map[string]contracts.SourceID, len(sources)),
	}
	for i, s := range sources {
		next.byID[s.ID] = i
		next.byKey[s.Key] = s.ID
	}
	r.snap.Store(next)
}

// Add inserts src. It reports false when the id or key is already present.
func (r *Registry) Add(src contracts.Source) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	if _, ok := cur.byID[src.ID]; ok {
		return false
	}
	if _, ok := cur.byKey[src.Key]; ok {
		return false
	}
	sources := make([]contracts.Source, 0, len(cur.sources)+1)
	sources = append(sources, cur.sources...)
	r.publish(append(sources, src))
	return true
}

// Update replaces the metadata of a present source, keeping its position.
func (r *Registry) Update(src contracts.Source) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	i, ok := cur.byID[src.ID]
	if !ok || cur.sources[i].Key != src.Key {
		return false
	}
	sources := append([]contracts.Source(nil), cur.sources...)
	sources[i] = src
	r.publish(sources)
	return true
}

// Remove deletes the source with the given id.
func (r *Registry) Remove(id contracts.SourceID) (contracts.Source, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	i, ok := cur.byID[id]
	if !ok {
		return contracts.Source{}, false
	}
	removed := cur.sources[i]
	sources := make([]contracts.Source, 0, len(cur.sources)-1)
	sources = append(sources, cur.sources[:i]...)
	sources = append(sources, cur.sources[i+1:]...)
	r.publish(sources)
	return removed, true
}

// Lookup returns the source with the given id.
func (r *Registry) Lookup(id contracts.SourceID) (contracts.Source, bool) {
	cur := r.snap.Load()
	i, ok := cur.byID[id]
	if !ok {
		return contracts.Source{}, false
	}
	return cur.sources[i], true
}

// LookupKey resolves a transport key to the id of a connected source.
func (r *Registry) LookupKey(key string) (contracts.SourceID, bool) {
	id, ok := r.snap.Load().byKey[key]
	return id, ok
}

// Snapshot returns a copy of the connected sources in connect order. The
// copy is never modified by later connects or disconnects.
func (r *Registry) Snapshot() []contracts.Source {
	cur := r.snap.Load()
	return append([]contracts.Source(nil), cur.sources...)
}

// Len returns the number of connected sources.
func (r *Registry) Len() int { return len(r.snap.Load().sources) }

// Version increases with every published change.
func (r *Registry) Version() uint64 { return r.snap.Load().version }
