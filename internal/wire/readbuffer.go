// Package wire implements the framed-stream parser (spec.md §4.5): a
// resumable ReadBuffer substrate shared by two line/record dialects.
// Grounded on akumulid/stream.h's ByteStreamReader (cons/rpos/wpos cursors,
// consume()/discard()) and akumulid/resp.cpp's RESP reader, reworked into
// idiomatic Go incremental-parse style (a parser that returns "need more
// data" rather than blocking on the stream directly).
package wire

import (
	"fmt"

	"github.com/launix-de/chronostore/internal/errs"
)

const (
	bufferSize = 4096
	nBuf       = 16 // ReadBuffer grows by doubling up to nBuf*bufferSize before rotating
)

// ErrIncomplete signals "need more data"; callers call Discard and feed
// more bytes via Pull/Push.
var ErrIncomplete = fmt.Errorf("wire: incomplete frame")

// ReadBuffer is the framing substrate shared by Dialect A and B: a
// contiguous byte buffer with cons/rpos/wpos cursors (spec.md §4.5).
type ReadBuffer struct {
	buf  []byte
	cons int // last committed position
	rpos int // current read position
	wpos int // next write position
}

func NewReadBuffer() *ReadBuffer {
	return &ReadBuffer{buf: make([]byte, bufferSize)}
}

// Pull returns the writable tail for the caller to fill (e.g. via
// conn.Read). Only one outstanding writer slice may exist at a time.
func (b *ReadBuffer) Pull() []byte {
	if b.wpos == len(b.buf) {
		b.grow()
	}
	return b.buf[b.wpos:]
}

// Push advances wpos by n bytes just written into the Pull() slice.
func (b *ReadBuffer) Push(n int) { b.wpos += n }

// Reserve returns a writable slice of at least n bytes, growing as many
// times as needed. Used by callers that write one whole unit (e.g. a UDP
// datagram) in a single copy rather than streaming through Pull/Push
// incrementally.
func (b *ReadBuffer) Reserve(n int) []byte {
	before := -1
	for len(b.buf)-b.wpos < n {
		if len(b.buf) == before {
			// grow() has already rotated unread bytes to the front with no
			// capacity change (at the nBuf*bufferSize cap): force a direct
			// expansion sized to the request instead of looping forever.
			bigger := make([]byte, b.wpos+n)
			copy(bigger, b.buf[:b.wpos])
			b.buf = bigger
			break
		}
		before = len(b.buf)
		b.grow()
	}
	return b.buf[b.wpos:]
}

// grow doubles the buffer up to nBuf*bufferSize, or rotates unread bytes
// (from cons onward) to the front once the cap is reached.
func (b *ReadBuffer) grow() {
	unread := b.wpos - b.cons
	if len(b.buf) < nBuf*bufferSize {
		bigger := make([]byte, len(b.buf)*2)
		copy(bigger, b.buf[b.cons:b.wpos])
		b.buf = bigger
	} else {
		copy(b.buf, b.buf[b.cons:b.wpos])
	}
	b.rpos -= b.cons
	b.wpos = unread
	b.cons = 0
}

// Consume commits the bytes read since the last Consume/Discard: a frame
// parsed successfully, so cons advances to rpos.
func (b *ReadBuffer) Consume() { b.cons = b.rpos }

// Discard rewinds rpos back to cons: the in-flight frame was incomplete,
// so the next parse attempt retries from the same byte.
func (b *ReadBuffer) Discard() { b.rpos = b.cons }

// Unread reports how many unconsumed bytes are buffered.
func (b *ReadBuffer) Unread() int { return b.wpos - b.cons }

func (b *ReadBuffer) peek(n int) ([]byte, bool) {
	if b.rpos+n > b.wpos {
		return nil, false
	}
	return b.buf[b.rpos : b.rpos+n], true
}

// readByte returns the next unread byte without advancing rpos past wpos.
func (b *ReadBuffer) readByte() (byte, bool) {
	if b.rpos >= b.wpos {
		return 0, false
	}
	c := b.buf[b.rpos]
	b.rpos++
	return c, true
}

// readLine reads up to and including a line terminator (\r\n or bare \n),
// returning the line without the terminator. Returns ok=false ("need more
// data") if no terminator has arrived yet.
func (b *ReadBuffer) readLine() (string, bool) {
	start := b.rpos
	for i := start; i < b.wpos; i++ {
		if b.buf[i] == '\n' {
			end := i
			if end > start && b.buf[end-1] == '\r' {
				end--
			}
			line := string(b.buf[start:end])
			b.rpos = i + 1
			return line, true
		}
	}
	return "", false
}

// ErrorContext reconstructs the offending line around rpos for diagnostics
// (spec.md §4.5): between the last '\n' before rpos and the next line
// terminator or 64 bytes, whichever comes first, with \r and \n escaped.
func (b *ReadBuffer) ErrorContext() string {
	start := b.rpos
	for start > b.cons && b.buf[start-1] != '\n' {
		start--
	}
	end := start
	limit := start + 64
	for end < b.wpos && end < limit && b.buf[end] != '\n' {
		end++
	}
	return escapeLine(b.buf[start:end])
}

func escapeLine(raw []byte) string {
	out := make([]byte, 0, len(raw))
	for _, c := range raw {
		switch c {
		case '\r':
			out = append(out, '\\', 'r')
		case '\n':
			out = append(out, '\\', 'n')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// badData wraps errs.ParseError with the offending-line context, used by
// both dialects on malformed boundary input.
func (b *ReadBuffer) badData(msg string) error {
	return fmt.Errorf("%s (near %q): %w", msg, b.ErrorContext(), errs.ParseError)
}
