// Package session drives the connect and disconnect lifecycle of the
// sources of a port.
//
// Each source moves through Connecting, Connected, Disconnecting and
// Disconnected. A source only becomes eligible for delivery once the
// connected notification has returned, and its slot is only reclaimed once
// no delivery can still observe it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/leandrodaf/midiport/internal/dispatch"
	"github.com/leandrodaf/midiport/internal/registry"
	"github.com/leandrodaf/midiport/sdk/contracts"
)

// Config wires a Manager to the structures it drives.
type Config struct {
	Table          *dispatch.Table
	Registry       *registry.Registry
	Port           contracts.Port         // Back reference handed out by Instance.Port.
	OnConnected    contracts.InstanceFunc // Optional; multi-instance ports only.
	OnDisconnected contracts.InstanceFunc // Optional; multi-instance ports only.
	Logger         contracts.Logger
}

// Manager owns the instances of one port.
type Manager struct {
	cfg Config

	mu        sync.Mutex
	instances map[contracts.SourceID]*instance
	byKey     map[string]contracts.SourceID
	closed    bool

	pending sync.WaitGroup
}

// New returns a manager for cfg.
func New(cfg Config) *Manager {
	return &Manager{
		cfg:       cfg,
		instances: make(map[contracts.SourceID]*instance),
		byKey:     make(map[string]contracts.SourceID),
	}
}

// Connect registers a peer. Connecting a key that is already live refreshes
// its title and icon and returns the existing id, so one key never owns two
// instances. A key still connecting or disconnecting is busy. The connected
// notification runs on the calling goroutine without any manager lock held.
func (m *Manager) Connect(ctx context.Context, info contracts.SourceInfo) (contracts.SourceID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if info.Key == "" {
		info.Key = uuid.NewString()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, contracts.ErrPortClosed
	}
	if id, ok := m.byKey[info.Key]; ok {
		defer m.mu.Unlock()
		inst := m.instances[id]
		if st := inst.State(); st == contracts.Connecting || st == contracts.Disconnecting {
			return 0, fmt.Errorf("%w: %s", contracts.ErrSourceBusy, info.Key)
		}
		src := inst.Source()
		src.Name, src.Title, src.Icon = info.Name, info.Title, info.Icon
		inst.source.Store(&src)
		m.cfg.Registry.Update(src)
		return id, nil
	}

	id, err := m.cfg.Table.Allocate()
	if err != nil {
		m.mu.Unlock()
		return 0, err
	}
	inst := newInstance(m, contracts.Source{
		ID:    id,
		Key:   info.Key,
		Name:  info.Name,
		Title: info.Title,
		Icon:  info.Icon,
	})
	m.instances[id] = inst
	m.byKey[info.Key] = id
	m.mu.Unlock()

	if m.cfg.OnConnected != nil {
		m.cfg.OnConnected(inst)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !inst.transition(contracts.Connecting, contracts.Connected) {
		return 0, fmt.Errorf("%w: %s disconnected while connecting", contracts.ErrUnknownSource, info.Key)
	}
	m.cfg.Table.Enable(id)
	m.cfg.Registry.Add(inst.Source())
	return id, nil
}

// Disconnect removes a peer. The disconnected notification runs while the
// instance is still eligible; afterwards delivery is shut off and the call
// waits for in-flight deliveries to finish. If ctx ends first, reclamation
// continues in the background and ErrReclaimDeferred is returned; the source
// is gone from the registry and from delivery either way.
//
// Disconnect must not be called from a handler of the same source.
func (m *Manager) Disconnect(ctx context.Context, id contracts.SourceID) error {
	m.mu.Lock()
	inst, ok := m.instances[id]
	if !ok || !(inst.transition(contracts.Connected, contracts.Disconnecting) ||
		inst.transition(contracts.Connecting, contracts.Disconnecting)) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", contracts.ErrUnknownSource, id)
	}
	m.mu.Unlock()

	if m.cfg.OnDisconnected != nil {
		m.cfg.OnDisconnected(inst)
	}

	m.mu.Lock()
	m.cfg.Table.Disable(id)
	m.cfg.Registry.Remove(id)
	delete(m.byKey, inst.Source().Key)
	m.mu.Unlock()

	if err := m.cfg.Table.Quiesce(ctx, id); err != nil {
		m.pending.Add(1)
		go func() {
			defer m.pending.Done()
			if err := m.cfg.Table.Quiesce(context.Background(), id); err != nil {
				m.cfg.Logger.Error("Deferred reclamation failed",
					m.cfg.Logger.Field().String("source", id.String()),
					m.cfg.Logger.Field().Error("error", err))
				return
			}
			m.finish(inst)
			m.cfg.Logger.Debug("Deferred reclamation finished",
				m.cfg.Logger.Field().String("source", id.String()))
		}()
		return fmt.Errorf("%w: %v", contracts.ErrReclaimDeferred, err)
	}
	m.finish(inst)
	return nil
}

func (m *Manager) finish(inst *instance) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cfg.Table.Release(inst.id)
	delete(m.instances, inst.id)
	inst.state.Store(int32(contracts.Disconnected))
}

// Instance returns the connected instance for id.
func (m *Manager) Instance(id contracts.SourceID) (contracts.Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[id]
	if !ok || inst.State() != contracts.Connected {
		return nil, false
	}
	return inst, true
}

// Instances returns the connected instances in connect order.
func (m *Manager) Instances() []contracts.Instance {
	sources := m.cfg.Registry.Snapshot()

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]contracts.Instance, 0, len(sources))
	for _, src := range sources {
		if inst, ok := m.instances[src.ID]; ok && inst.State() == contracts.Connected {
			out = append(out, inst)
		}
	}
	return out
}

// Wait blocks until every deferred reclamation has finished or ctx ends.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown refuses further connects, disconnects every live source and
// waits for reclamation.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	ids := make([]contracts.SourceID, 0, len(m.instances))
	for id, inst := range m.instances {
		if s := inst.State(); s == contracts.Connecting || s == contracts.Connected {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	var err error
	for _, id := range ids {
		// Deferred reclamations are covered by Wait below.
		if derr := m.Disconnect(ctx, id); derr != nil && !errors.Is(derr, contracts.ErrReclaimDeferred) {
			err = multierr.Append(err, derr)
		}
	}
	return multierr.Append(err, m.Wait(ctx))
}
