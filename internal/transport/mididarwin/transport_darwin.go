//go:build darwin
// +build darwin

package mididarwin

/*
#include <mach/mach_time.h>
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/leandrodaf/midiport/sdk/contracts"
	"github.com/leandrodaf/midiport/sdk/packet"
	"github.com/youpy/go-coremidi"
	"go.uber.org/multierr"
)

// Error definitions for CoreMIDI connection issues.
var (
	ErrNoMIDISources       = errors.New("no MIDI sources found")
	ErrMIDIConnectionError = errors.New("error connecting to MIDI source")
	ErrCreateInputPort     = errors.New("error creating input port")
)

// internalPortConnection is an interface for handling disconnection from a MIDI port.
type internalPortConnection interface {
	Disconnect()
}

// sourceConn is one CoreMIDI source feeding the sink. The builder is only
// touched from the CoreMIDI read thread.
type sourceConn struct {
	id      contracts.SourceID
	name    string
	conn    internalPortConnection
	builder *packet.Builder
}

// Transport feeds a sink from every CoreMIDI source on the system.
// Each source gets its own input port so the read callback knows which
// source it serves without a lookup.
type Transport struct {
	logger contracts.Logger
	client coremidi.Client // CoreMIDI client instance.
	clock  hostClock       // Origin and timebase of packet timestamps.

	mu      sync.Mutex
	sink    contracts.Sink
	conns   []*sourceConn
	started bool
}

// NewTransport creates the CoreMIDI client named by the transport config.
func NewTransport(options *contracts.PortOptions) (contracts.Transport, error) {
	client, err := coremidi.NewClient(options.TransportConfig.ClientName)
	if err != nil {
		return nil, err
	}
	options.Logger.Info("CoreMIDI client successfully created")

	return &Transport{
		logger: options.Logger,
		client: client,
		clock:  systemHostClock(),
	}, nil
}

func hostNow() uint64 { return uint64(C.mach_absolute_time()) }

func systemHostClock() hostClock {
	var tb C.mach_timebase_info_data_t
	C.mach_timebase_info(&tb)
	return newHostClock(uint32(tb.numer), uint32(tb.denom), hostNow())
}

// Start connects every CoreMIDI source to sink. Sources that fail to
// connect are skipped and reported in the returned error.
func (t *Transport) Start(ctx context.Context, sink contracts.Sink) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return contracts.ErrTransportStarted
	}

	sources, err := coremidi.AllSources()
	if err != nil {
		return fmt.Errorf("error listing MIDI sources: %w", err)
	}
	if len(sources) == 0 {
		t.logger.Warn(ErrNoMIDISources.Error())
		return ErrNoMIDISources
	}

	t.sink = sink
	t.started = true

	var errs error
	for i, source := range sources {
		sc, err := t.connect(ctx, i, source)
		if err != nil {
			t.logger.Error("Failed to connect MIDI source",
				t.logger.Field().String("sourceName", source.Name()),
				t.logger.Field().Error("error", err))
			errs = multierr.Append(errs, err)
			continue
		}
		t.conns = append(t.conns, sc)
	}
	return errs
}

func (t *Transport) connect(ctx context.Context, index int, source coremidi.Source) (*sourceConn, error) {
	entity := source.Entity()
	id, err := t.sink.Connect(ctx, contracts.SourceInfo{
		Key:   fmt.Sprintf("coremidi:%d:%s", index, source.Name()),
		Name:  source.Name(),
		Title: fmt.Sprintf("%s (%s)", entity.Name(), entity.Manufacturer()),
	})
	if err != nil {
		return nil, err
	}

	sc := &sourceConn{id: id, name: source.Name(), builder: packet.NewBuilder(1, 256)}
	inputPort, err := coremidi.NewInputPort(t.client, source.Name(), func(_ coremidi.Source, p coremidi.Packet) {
		t.handlePacket(sc, p)
	})
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("%w: %v", ErrCreateInputPort, err), t.sink.Disconnect(ctx, id))
	}

	sc.conn, err = inputPort.Connect(source)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("%w: %v", ErrMIDIConnectionError, err), t.sink.Disconnect(ctx, id))
	}

	t.logger.Info("MIDI source connected",
		t.logger.Field().String("sourceName", source.Name()),
		t.logger.Field().String("source", id.String()))
	return sc, nil
}

// handlePacket runs on the CoreMIDI read thread. The packet keeps the
// sender's host-time schedule, so look-ahead events arrive in the future.
func (t *Transport) handlePacket(sc *sourceConn, p coremidi.Packet) {
	sc.builder.Reset(sc.id)
	if sc.builder.Add(t.clock.stamp(uint64(p.TimeStamp), hostNow()), p.Data) != nil {
		return
	}
	t.sink.Receive(sc.id, sc.builder.Batch())
}

// Stop flushes pending events, disconnects every source from CoreMIDI and
// from the sink.
func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		t.logger.Warn("Stop called on a CoreMIDI transport that is not started")
		return nil
	}

	var errs error
	for _, sc := range t.conns {
		if sc.conn != nil {
			sc.conn.Disconnect()
		}
		t.sink.Flush(sc.id)
		errs = multierr.Append(errs, t.sink.Disconnect(context.Background(), sc.id))
	}
	t.conns = nil
	t.started = false
	t.logger.Info("CoreMIDI transport stopped")
	return errs
}
