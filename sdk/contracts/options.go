package contracts

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultMaxSources is the slot table capacity used when none is configured.
	DefaultMaxSources = 64
	// DefaultReclaimPoll bounds the backoff between quiescence checks.
	DefaultReclaimPoll = time.Millisecond
)

// TransportConfig holds configuration for system MIDI transports.
type TransportConfig struct {
	ClientName string // Name the transport registers with the OS MIDI service.
}

// PortOptions defines the configuration options for a receiver port.
type PortOptions struct {
	Logger          Logger                // Logger for lifecycle events and errors.
	LogLevel        LogLevel              // Level of logging to use.
	LogFilePath     string                // File path for logging if file logging is enabled.
	MaxSources      int                   // Capacity of the preallocated source slot table.
	ReclaimPoll     time.Duration         // Upper bound of the wait between quiescence checks.
	Registerer      prometheus.Registerer // Optional registerer for port metrics.
	TransportConfig *TransportConfig      // Configuration specific to system transports.
}

// Option is a function that modifies PortOptions.
type Option func(*PortOptions)

// WithLogger sets the logger for the port.
func WithLogger(l Logger) Option {
	return func(opts *PortOptions) {
		opts.Logger = l
	}
}

// WithLogLevel sets the logging level for the port.
func WithLogLevel(level LogLevel) Option {
	return func(opts *PortOptions) {
		opts.LogLevel = level
	}
}

// WithLogFile directs log output to the given file.
func WithLogFile(path string) Option {
	return func(opts *PortOptions) {
		opts.LogFilePath = path
	}
}

// WithMaxSources sets how many sources may be connected at once.
func WithMaxSources(n int) Option {
	return func(opts *PortOptions) {
		opts.MaxSources = n
	}
}

// WithReclaimPoll sets the longest pause between checks while waiting for
// in-flight deliveries to drain on disconnect.
func WithReclaimPoll(d time.Duration) Option {
	return func(opts *PortOptions) {
		opts.ReclaimPoll = d
	}
}

// WithMetrics registers the port's Prometheus collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(opts *PortOptions) {
		opts.Registerer = reg
	}
}

// WithTransportConfig sets the configuration used by system transports.
func WithTransportConfig(config TransportConfig) Option {
	return func(opts *PortOptions) {
		opts.TransportConfig = &config
	}
}
