package contracts

import "time"

// LogLevel represents the severity level for logging.
type LogLevel int

const (
	// InfoLevel indicates informational messages such as connects and disconnects.
	InfoLevel LogLevel = iota
	// DebugLevel indicates messages useful when troubleshooting routing issues.
	DebugLevel
	// ErrorLevel indicates transport or lifecycle failures that need attention.
	ErrorLevel
	// WarnLevel indicates degraded situations, such as deferred reclamation.
	WarnLevel
	// FatalLevel indicates errors after which the process cannot continue.
	FatalLevel
)

// LogDestination specifies where the log messages should be directed.
type LogDestination string

const (
	// ConsoleLog directs log messages to stderr.
	ConsoleLog LogDestination = "console"
	// FileLog directs log messages to a file.
	FileLog LogDestination = "file"
)

// Field is a typed key/value pair attached to a log entry.
type Field interface {
	Bool(key string, val bool) Field
	Int(key string, val int) Field
	Float64(key string, val float64) Field
	String(key string, val string) Field
	Time(key string, val time.Time) Field
	Int64(key string, val int64) Field
	Error(key string, val error) Field
	Uint64(key string, val uint64) Field
	Uint8(key string, val uint8) Field
}

// Logger records messages at different levels.
//
// Logger is a control-thread facility. Nothing on the real-time delivery
// path logs.
type Logger interface {
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	Field() Field

	// Named returns a child logger whose entries carry the given name.
	Named(name string) Logger

	SetLevel(level LogLevel)
	SetDestination(dest LogDestination, filePath ...string)
}
