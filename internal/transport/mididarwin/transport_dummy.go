//go:build !darwin
// +build !darwin

package mididarwin

import (
	"context"

	"github.com/leandrodaf/midiport/sdk/contracts"
)

type DummyTransport struct {
	logger contracts.Logger
}

func NewTransport(options *contracts.PortOptions) (contracts.Transport, error) {
	options.Logger.Info("Using dummy CoreMIDI transport for non-macOS system")
	return &DummyTransport{
		logger: options.Logger,
	}, nil
}

func (t *DummyTransport) Start(ctx context.Context, sink contracts.Sink) error {
	t.logger.Warn("Start called on dummy CoreMIDI transport")
	return contracts.ErrUnsupportedPlatform
}

func (t *DummyTransport) Stop() error {
	t.logger.Warn("Stop called on dummy CoreMIDI transport")
	return nil
}
