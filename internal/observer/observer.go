// Package observer provides a level-filtered logging callback that is
// passed explicitly to the components that need it, rather than reached for
// through a package-level logger.
//
// Every component in this module takes an [Observer] value instead of
// writing to a global sink, so a caller running many reverse-diff operations
// across accounts can route each one to its own log context (or none at
// all) without any package holding shared mutable state.
package observer

import "fmt"

// Level orders log severities from most to least verbose.
type Level int

const (
	LevelTrace Level = iota
	LevelNotice
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelNotice:
		return "notice"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Observer is a level-filtered callback handle. The zero value discards
// everything; it is always safe to pass around and call.
type Observer struct {
	min  Level
	emit func(level Level, msg string)
}

// New returns an Observer that calls emit for every message at or above min.
func New(min Level, emit func(level Level, msg string)) Observer {
	return Observer{min: min, emit: emit}
}

// Nop returns an Observer that discards every message.
func Nop() Observer {
	return Observer{}
}

func (o Observer) log(level Level, format string, args ...any) {
	if o.emit == nil || level < o.min {
		return
	}

	o.emit(level, fmt.Sprintf(format, args...))
}

// Trace logs a high-volume, low-importance message — per-block progress
// during reverse-diff, for instance.
func (o Observer) Trace(format string, args ...any) {
	o.log(LevelTrace, format, args...)
}

// Notice logs a noteworthy but non-error event, such as a lock acquisition
// that had to wait for a prior holder to release.
func (o Observer) Notice(format string, args ...any) {
	o.log(LevelNotice, format, args...)
}

// Error logs a failure the caller is about to propagate. Components call
// this immediately before returning an error, not instead of returning one.
func (o Observer) Error(format string, args ...any) {
	o.log(LevelError, format, args...)
}
