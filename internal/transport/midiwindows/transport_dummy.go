//go:build !windows
// +build !windows

package midiwindows

import (
	"context"

	"github.com/leandrodaf/midiport/sdk/contracts"
)

type dummyTransport struct {
	logger contracts.Logger
}

// NewTransport initializes a dummy transport for non-Windows systems.
func NewTransport(options *contracts.PortOptions) (contracts.Transport, error) {
	options.Logger.Info("Using dummy winmm transport for non-Windows system")
	return &dummyTransport{
		logger: options.Logger,
	}, nil
}

// Start logs a warning and reports that winmm is unavailable on this platform.
func (t *dummyTransport) Start(ctx context.Context, sink contracts.Sink) error {
	t.logger.Warn("Start called on dummy winmm transport")
	return contracts.ErrUnsupportedPlatform
}

// Stop logs a warning indicating that Stop was called on the dummy transport.
func (t *dummyTransport) Stop() error {
	t.logger.Warn("Stop called on dummy winmm transport")
	return nil
}
