package midi

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/leandrodaf/midiport/internal/transport/mididarwin"
	"github.com/leandrodaf/midiport/internal/transport/midiwindows"
	"github.com/leandrodaf/midiport/sdk/contracts"
)

// ErrUnsupportedOS is returned when no system transport exists for the operating system.
var ErrUnsupportedOS = errors.New("unsupported operating system")

// transportInitializers maps OS names to system transport constructors.
var transportInitializers = map[string]func(*contracts.PortOptions) (contracts.Transport, error){
	"darwin":  mididarwin.NewTransport,  // CoreMIDI.
	"windows": midiwindows.NewTransport, // winmm.
}

// NewSystemTransport returns the MIDI transport of the current operating
// system. Start it with a port to feed the port from every MIDI input.
//
// Returns:
//   - contracts.Transport: The transport.
//   - error: ErrUnsupportedOS when the operating system has no transport.
func NewSystemTransport(opts ...contracts.Option) (contracts.Transport, error) {
	options := applyDefaultOptions(opts...)
	if initializer, exists := transportInitializers[runtime.GOOS]; exists {
		return initializer(&options)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedOS, runtime.GOOS)
}
