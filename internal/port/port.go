// Package port implements contracts.Port on top of the dispatch table, the
// source registry and the session manager.
package port

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/leandrodaf/midiport/internal/dispatch"
	"github.com/leandrodaf/midiport/internal/metrics"
	"github.com/leandrodaf/midiport/internal/registry"
	"github.com/leandrodaf/midiport/internal/session"
	"github.com/leandrodaf/midiport/sdk/contracts"
	"github.com/leandrodaf/midiport/sdk/packet"
)

// Config describes a port to build.
type Config struct {
	Name           string
	Title          string
	Receiver       contracts.ReceiverFunc // Single-instance ports.
	OnConnected    contracts.InstanceFunc // Multi-instance ports.
	OnDisconnected contracts.InstanceFunc // Multi-instance ports.
	MultiInstance  bool
	Options        contracts.PortOptions
}

// ReceiverPort receives MIDI from the sources connected to it.
type ReceiverPort struct {
	name   string
	title  string
	multi  bool
	logger contracts.Logger

	table    *dispatch.Table
	registry *registry.Registry
	sessions *session.Manager
	metrics  *metrics.PortCollectors

	handlersMu sync.Mutex
	closed     atomic.Bool
}

var _ contracts.Port = (*ReceiverPort)(nil)

// New validates cfg and builds the port. Options must already carry their
// defaults.
func New(cfg Config) (*ReceiverPort, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, contracts.ErrInvalidName
	}
	if cfg.MultiInstance {
		if cfg.OnConnected == nil || cfg.OnDisconnected == nil {
			return nil, contracts.ErrNilHandler
		}
	} else if cfg.Receiver == nil {
		return nil, contracts.ErrNilHandler
	}
	if cfg.Title == "" {
		cfg.Title = cfg.Name
	}

	mode := dispatch.SingleInstance
	if cfg.MultiInstance {
		mode = dispatch.MultiInstance
	}

	p := &ReceiverPort{
		name:     cfg.Name,
		title:    cfg.Title,
		multi:    cfg.MultiInstance,
		logger:   cfg.Options.Logger.Named(cfg.Name),
		table:    dispatch.New(mode, cfg.Options.MaxSources, cfg.Options.ReclaimPoll),
		registry: registry.New(),
	}
	p.table.SetShared(dispatch.Handlers{Receive: cfg.Receiver})

	sc := session.Config{
		Table:    p.table,
		Registry: p.registry,
		Port:     p,
		Logger:   p.logger,
	}
	if cfg.MultiInstance {
		sc.OnConnected = cfg.OnConnected
		sc.OnDisconnected = cfg.OnDisconnected
	}
	p.sessions = session.New(sc)

	if cfg.Options.Registerer != nil {
		pc, err := metrics.Register(cfg.Options.Registerer, cfg.Name, p)
		if err != nil {
			return nil, err
		}
		p.metrics = pc
	}

	p.logger.Info("Receiver port created",
		p.logger.Field().String("title", p.title),
		p.logger.Field().Bool("multiInstance", p.multi),
		p.logger.Field().Int("maxSources", p.table.Cap()))
	return p, nil
}

// Name returns the internal name of the port.
func (p *ReceiverPort) Name() string { return p.name }

// Title returns the title shown to the user.
func (p *ReceiverPort) Title() string { return p.title }

// MultiInstance reports whether each source gets its own instance.
func (p *ReceiverPort) MultiInstance() bool { return p.multi }

// Connect registers a peer reported by a transport.
func (p *ReceiverPort) Connect(ctx context.Context, info contracts.SourceInfo) (contracts.SourceID, error) {
	if p.closed.Load() {
		return 0, contracts.ErrPortClosed
	}
	id, err := p.sessions.Connect(ctx, info)
	if err != nil {
		p.logger.Warn("Source connect failed",
			p.logger.Field().String("key", info.Key),
			p.logger.Field().Error("error", err))
		return 0, err
	}
	p.logger.Info("Source connected",
		p.logger.Field().String("source", id.String()),
		p.logger.Field().String("title", info.Title),
		p.logger.Field().Int("sources", p.registry.Len()))
	return id, nil
}

// Disconnect removes a peer reported lost by a transport.
func (p *ReceiverPort) Disconnect(ctx context.Context, id contracts.SourceID) error {
	if err := p.sessions.Disconnect(ctx, id); err != nil {
		p.logger.Warn("Source disconnect incomplete",
			p.logger.Field().String("source", id.String()),
			p.logger.Field().Error("error", err))
		return err
	}
	p.logger.Info("Source disconnected",
		p.logger.Field().String("source", id.String()),
		p.logger.Field().Int("sources", p.registry.Len()))
	return nil
}

// Receive delivers batch on the calling real-time thread.
func (p *ReceiverPort) Receive(id contracts.SourceID, batch *packet.Batch) bool {
	return p.table.Dispatch(id, batch)
}

// Flush delivers a flush on the calling real-time thread.
func (p *ReceiverPort) Flush(id contracts.SourceID) bool {
	return p.table.Flush(id)
}

// FlushAll flushes every connected source.
func (p *ReceiverPort) FlushAll() {
	p.table.FlushAll()
}

// SetReceiver replaces the port-wide receiver. On a multi-instance port it
// becomes the default for instances connected afterwards.
func (p *ReceiverPort) SetReceiver(fn contracts.ReceiverFunc) {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()

	h := p.table.Shared()
	h.Receive = fn
	p.table.SetShared(h)
}

// SetFlushHandler replaces the port-wide flush handler. On a multi-instance
// port it becomes the default for instances connected afterwards.
func (p *ReceiverPort) SetFlushHandler(fn contracts.FlushFunc) {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()

	h := p.table.Shared()
	h.Flush = fn
	p.table.SetShared(h)
}

// Sources returns a snapshot of the connected sources in connect order.
func (p *ReceiverPort) Sources() []contracts.Source {
	return p.registry.Snapshot()
}

// Source returns the connected source with the given id.
func (p *ReceiverPort) Source(id contracts.SourceID) (contracts.Source, bool) {
	return p.registry.Lookup(id)
}

// SourcesTitle joins the titles of the connected sources.
func (p *ReceiverPort) SourcesTitle() string {
	sources := p.registry.Snapshot()
	titles := make([]string, 0, len(sources))
	for _, s := range sources {
		title := s.Title
		if title == "" {
			title = s.Name
		}
		if title != "" {
			titles = append(titles, title)
		}
	}
	return strings.Join(titles, ", ")
}

// SourcesIcon returns the icon of the only connected source, or nil when
// zero or several sources are connected.
func (p *ReceiverPort) SourcesIcon() []byte {
	sources := p.registry.Snapshot()
	if len(sources) != 1 {
		return nil
	}
	return sources[0].Icon
}

// Instances returns the connected instances of a multi-instance port.
func (p *ReceiverPort) Instances() []contracts.Instance {
	if !p.multi {
		return nil
	}
	return p.sessions.Instances()
}

// Instance returns the instance serving id on a multi-instance port.
func (p *ReceiverPort) Instance(id contracts.SourceID) (contracts.Instance, bool) {
	if !p.multi {
		return nil, false
	}
	return p.sessions.Instance(id)
}

// Stats returns the delivery counters and the number of connected sources.
func (p *ReceiverPort) Stats() contracts.PortStats {
	st := p.table.Stats()
	return contracts.PortStats{
		Delivered:      st.Delivered,
		Dropped:        st.Dropped,
		Flushes:        st.Flushes,
		FlushesDropped: st.FlushesDropped,
		Connected:      p.registry.Len(),
	}
}

// Close disconnects every source, waits for reclamation and unregisters
// metrics. It is safe to call more than once.
func (p *ReceiverPort) Close(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.sessions.Shutdown(ctx)
	if p.metrics != nil {
		err = multierr.Append(err, p.metrics.Unregister())
	}
	if err != nil {
		p.logger.Error("Receiver port closed with errors", p.logger.Field().Error("error", err))
		return err
	}
	p.logger.Info("Receiver port closed")
	return nil
}
