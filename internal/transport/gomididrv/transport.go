// Package gomididrv feeds a receiver port from any gomidi input port.
//
// The driver is chosen by the caller through gomidi's driver registry
// (for example by importing gitlab.com/gomidi/midi/v2/drivers/rtmididrv),
// which keeps this package free of cgo.
package gomididrv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"go.uber.org/multierr"

	"github.com/leandrodaf/midiport/sdk/contracts"
	"github.com/leandrodaf/midiport/sdk/packet"
)

// Transport connects one gomidi input port as one source.
type Transport struct {
	in     drivers.In
	title  string
	logger contracts.Logger

	mu      sync.Mutex
	sink    contracts.Sink
	id      contracts.SourceID
	stop    func()
	builder *packet.Builder // only used from the driver's listener goroutine
}

// New returns a transport for in. title is shown for the source; the port
// name is used when it is empty.
func New(in drivers.In, title string, logger contracts.Logger) *Transport {
	if title == "" {
		title = in.String()
	}
	return &Transport{
		in:      in,
		title:   title,
		logger:  logger,
		builder: packet.NewBuilder(1, 64),
	}
}

// Find returns a transport for the first input port whose name contains name.
func Find(name string, logger contracts.Logger) (*Transport, error) {
	in, err := midi.FindInPort(name)
	if err != nil {
		return nil, fmt.Errorf("find MIDI input %q: %w", name, err)
	}
	return New(in, "", logger), nil
}

// Start connects the input port to sink and starts listening.
func (t *Transport) Start(ctx context.Context, sink contracts.Sink) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sink != nil {
		return contracts.ErrTransportStarted
	}

	id, err := sink.Connect(ctx, contracts.SourceInfo{
		Key:   fmt.Sprintf("gomidi:%d:%s", t.in.Number(), t.in.String()),
		Name:  t.in.String(),
		Title: t.title,
	})
	if err != nil {
		return err
	}

	epoch := time.Now()
	stop, err := midi.ListenTo(t.in, func(msg midi.Message, _ int32) {
		t.builder.Reset(id)
		if t.builder.Add(packet.Timestamp(time.Since(epoch)), msg) != nil {
			return
		}
		sink.Receive(id, t.builder.Batch())
	}, midi.UseSysEx())
	if err != nil {
		return multierr.Append(fmt.Errorf("listen to %s: %w", t.in, err), sink.Disconnect(ctx, id))
	}

	t.sink, t.id, t.stop = sink, id, stop
	t.logger.Info("MIDI input listening",
		t.logger.Field().String("input", t.in.String()),
		t.logger.Field().String("source", id.String()))
	return nil
}

// Stop stops listening, flushes the source and disconnects it.
func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sink == nil {
		return nil
	}
	t.stop()
	t.sink.Flush(t.id)
	err := multierr.Append(
		t.sink.Disconnect(context.Background(), t.id),
		t.in.Close(),
	)
	t.sink, t.stop = nil, nil
	t.logger.Info("MIDI input stopped", t.logger.Field().String("input", t.in.String()))
	return err
}
