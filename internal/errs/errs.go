// Package errs defines the closed error taxonomy shared across chronostore
// components. Components return one of these sentinels (optionally wrapped
// with fmt.Errorf("...: %w", ...) for context) rather than ad-hoc error
// strings, so callers can branch on kind with errors.Is.
package errs

import "errors"

var (
	// LateWrite: sample timestamp older than the sequencer's window. Dropped, counted.
	LateWrite = errors.New("late write: sample older than sequencer window")

	// Busy: a sequencer checkpoint/merge is already in progress.
	Busy = errors.New("busy: merge in progress")

	// Overflow: active volume (or page) has no room for another block/entry.
	Overflow = errors.New("overflow: no room left")

	// BadData: malformed series name, unparseable integer, too many tags, length overflow.
	BadData = errors.New("bad data")

	// ParseError: protocol framing violation (bad leading byte, bad terminator, length overrun).
	ParseError = errors.New("parse error")

	// Unavailable: a zero-copy or memory-mapped read target isn't materialized.
	Unavailable = errors.New("unavailable")

	// Closed: operation attempted after close() began.
	Closed = errors.New("closed")
)
