package contracts

import "errors"

// Errors returned by ports and transports.
var (
	ErrInvalidName         = errors.New("port name must not be empty")
	ErrNilHandler          = errors.New("handler must not be nil")
	ErrTooManySources      = errors.New("source slot table is full")
	ErrUnknownSource       = errors.New("unknown source")
	ErrSourceBusy          = errors.New("source is disconnecting")
	ErrPortClosed          = errors.New("port is closed")
	ErrReclaimDeferred     = errors.New("instance reclamation deferred")
	ErrUnsupportedPlatform = errors.New("transport is not available on this platform")
	ErrTransportStarted    = errors.New("transport already started")
)
