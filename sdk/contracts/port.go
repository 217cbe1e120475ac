package contracts

import (
	"context"

	"github.com/leandrodaf/midiport/sdk/packet"
)

// SourceID identifies a connected source; see packet.SourceID.
type SourceID = packet.SourceID

// SourceInfo describes a peer as reported by a transport on connect.
type SourceInfo struct {
	Key   string // Opaque, stable identity of the peer. Generated when empty.
	Name  string // Internal name of the peer.
	Title string // Title shown to the user.
	Icon  []byte // Optional encoded image.
}

// Source is a peer currently connected to a port.
type Source struct {
	ID    SourceID
	Key   string
	Name  string
	Title string
	Icon  []byte
}

// ReceiverFunc handles an incoming batch.
//
// It runs on the real-time delivery thread: it must not allocate, block,
// or take locks that a control goroutine could hold. The batch is only valid
// for the duration of the call.
type ReceiverFunc func(source SourceID, batch *packet.Batch)

// FlushFunc handles a flush: discard events scheduled with future timestamps
// and stop sounding notes. It runs on the real-time delivery thread under
// the same constraints as ReceiverFunc.
type FlushFunc func(source SourceID)

// InstanceFunc is notified on the control goroutine when an instance of a
// multi-instance port connects or disconnects. It may assign handlers.
type InstanceFunc func(instance Instance)

// InstanceState is the lifecycle stage of an Instance.
type InstanceState int32

const (
	// Connecting: the instance exists but receives nothing yet.
	Connecting InstanceState = iota
	// Connected: batches and flushes are delivered.
	Connected
	// Disconnecting: delivery is being shut off and drained.
	Disconnecting
	// Disconnected is terminal.
	Disconnected
)

// String returns the name of the state.
func (s InstanceState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Instance is the receiver state kept for one source.
type Instance interface {
	ID() SourceID
	Source() Source
	Port() Port
	State() InstanceState
	SetReceiver(fn ReceiverFunc)  // Takes effect for the next delivered batch.
	SetFlushHandler(fn FlushFunc) // Takes effect for the next flush.
	Handlers() (ReceiverFunc, FlushFunc)
}

// Sink is the side of a port that transports drive.
type Sink interface {
	// Connect registers a peer and returns its id. Control goroutine only.
	Connect(ctx context.Context, info SourceInfo) (SourceID, error)
	// Disconnect removes a peer; it returns once no delivery can still reach
	// the peer's handlers, or when ctx ends. Control goroutine only.
	Disconnect(ctx context.Context, id SourceID) error
	// Receive delivers a batch on the real-time thread. It reports whether
	// a handler was invoked.
	Receive(id SourceID, batch *packet.Batch) bool
	// Flush delivers a flush on the real-time thread.
	Flush(id SourceID) bool
}

// Port is a named endpoint receiving MIDI from connected sources.
type Port interface {
	Sink

	Name() string
	Title() string
	MultiInstance() bool

	Sources() []Source
	Source(id SourceID) (Source, bool)
	SourcesTitle() string
	SourcesIcon() []byte

	Instances() []Instance
	Instance(id SourceID) (Instance, bool)

	SetReceiver(fn ReceiverFunc)
	SetFlushHandler(fn FlushFunc)

	// FlushAll flushes every connected source, e.g. on transport stop.
	FlushAll()

	Stats() PortStats
	Close(ctx context.Context) error
}

// PortStats is a point-in-time view of the port's delivery counters.
type PortStats struct {
	Delivered      uint64 // Batches handed to a handler.
	Dropped        uint64 // Batches for unknown, disconnected or handler-less sources.
	Flushes        uint64 // Flushes handed to a handler.
	FlushesDropped uint64 // Flushes with no eligible handler.
	Connected      int    // Sources currently connected.
}

// Transport feeds a Sink from some external MIDI service.
type Transport interface {
	Start(ctx context.Context, sink Sink) error
	Stop() error
}
