// Package midi builds receiver ports and system transports.
package midi

import (
	"github.com/leandrodaf/midiport/internal/port"
	"github.com/leandrodaf/midiport/sdk/contracts"
)

// NewReceiverPort creates a single-instance receiver port. Every connected
// source is delivered through receiver.
//
// name string: Internal name of the port, used for routing. Must not be empty.
// title string: Title shown to the user. Defaults to name.
// receiver contracts.ReceiverFunc: Called on the real-time thread for every batch.
//
// Returns:
//   - contracts.Port: The receiver port.
//   - error: contracts.ErrInvalidName or contracts.ErrNilHandler on invalid input,
//     or an error registering metrics.
func NewReceiverPort(name, title string, receiver contracts.ReceiverFunc, opts ...contracts.Option) (contracts.Port, error) {
	p, err := port.New(port.Config{
		Name:     name,
		Title:    title,
		Receiver: receiver,
		Options:  applyDefaultOptions(opts...),
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewMultiInstanceReceiverPort creates a port that keeps one instance per
// connected source.
//
// onConnected is called on the control goroutine when a source connects,
// before the instance receives anything; it is the place to assign the
// instance's receiver and flush handler. onDisconnected is called when the
// source goes away, while its instance can still receive.
//
// Returns:
//   - contracts.Port: The receiver port.
//   - error: contracts.ErrInvalidName or contracts.ErrNilHandler on invalid input,
//     or an error registering metrics.
func NewMultiInstanceReceiverPort(name, title string, onConnected, onDisconnected contracts.InstanceFunc, opts ...contracts.Option) (contracts.Port, error) {
	p, err := port.New(port.Config{
		Name:           name,
		Title:          title,
		OnConnected:    onConnected,
		OnDisconnected: onDisconnected,
		MultiInstance:  true,
		Options:        applyDefaultOptions(opts...),
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
