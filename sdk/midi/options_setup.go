package midi

import (
	"github.com/leandrodaf/midiport/internal/logger"
	"github.com/leandrodaf/midiport/sdk/contracts"
)

// applyDefaultOptions sets default values for PortOptions if not explicitly provided.
//
// opts ...contracts.Option: A variadic list of option functions that can modify PortOptions.
//
// Returns:
//   - contracts.PortOptions: The finalized options with defaults applied.
func applyDefaultOptions(opts ...contracts.Option) contracts.PortOptions {
	options := &contracts.PortOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Logger == nil {
		options.Logger = logger.NewZapLogger()
	}
	if options.MaxSources <= 0 {
		options.MaxSources = contracts.DefaultMaxSources
	}
	if options.ReclaimPoll <= 0 {
		options.ReclaimPoll = contracts.DefaultReclaimPoll
	}
	if options.TransportConfig == nil {
		options.TransportConfig = &contracts.TransportConfig{ClientName: "GO MIDI Receiver"}
	}

	options.Logger.SetLevel(options.LogLevel)
	if options.LogFilePath != "" {
		options.Logger.SetDestination(contracts.FileLog, options.LogFilePath)
	}
	return *options
}
