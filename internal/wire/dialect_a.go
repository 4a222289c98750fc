package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/launix-de/chronostore/internal/errs"
)

// DialectA parses the RESP-like framing (spec.md §4.5 "Dialect A"): each
// record is a triplet of top-level RESP items (name, timestamp, value),
// with an optional pipe-delimited bulk mode. Grounded on
// akumulid/resp.cpp's RESPStream::next_type/read_int/read_string, adapted
// from a blocking stream reader to an incremental ReadBuffer-driven one.
type DialectA struct{}

// ParseNext attempts to parse one complete record (or a bulk-mode burst)
// from buf. On success it calls buf.Consume() and returns the records. On
// "need more data" it calls buf.Discard() and returns ErrIncomplete so the
// caller can Pull/Push more bytes and retry.
func (DialectA) ParseNext(buf *ReadBuffer) ([]Record, error) {
	nameTok, err := readRESPString(buf)
	if err != nil {
		return nil, err
	}
	tsTok, err := readRESPInt(buf)
	if err != nil {
		return nil, err
	}
	valTok, err := readRESPValue(buf)
	if err != nil {
		return nil, err
	}

	names := strings.Split(nameTok, "|")
	if len(names) == 1 {
		v, ok := valTok.scalar()
		if !ok {
			buf.Discard()
			return nil, buf.badData("scalar value expected for single series")
		}
		buf.Consume()
		return []Record{{Name: names[0], Timestamp: tsTok, Value: v}}, nil
	}

	// Bulk mode: m pipe-delimited names paired with an m-element array.
	values, ok := valTok.array()
	if !ok || len(values) != len(names) {
		buf.Discard()
		return nil, buf.badData("bulk name/value count mismatch")
	}
	buf.Consume()
	out := make([]Record, len(names))
	for i, n := range names {
		out[i] = Record{Name: n, Timestamp: tsTok, Value: values[i]}
	}
	return out, nil
}

// respValue holds either a scalar or an array result from read_array/
// read_int so ParseNext can distinguish single vs. bulk mode.
type respValue struct {
	isArray bool
	scalarV float64
	arrayV  []float64
}

func (v respValue) scalar() (float64, bool) {
	if v.isArray {
		return 0, false
	}
	return v.scalarV, true
}

func (v respValue) array() ([]float64, bool) {
	if !v.isArray {
		return nil, false
	}
	return v.arrayV, true
}

func readRESPString(buf *ReadBuffer) (string, error) {
	tag, ok := buf.readByte()
	if !ok {
		buf.Discard()
		return "", ErrIncomplete
	}
	switch tag {
	case '+':
		line, ok := buf.readLine()
		if !ok {
			buf.Discard()
			return "", ErrIncomplete
		}
		return line, nil
	case '$':
		return readBulkBody(buf)
	case '-':
		line, ok := buf.readLine()
		if !ok {
			buf.Discard()
			return "", ErrIncomplete
		}
		buf.Discard()
		return "", fmt.Errorf("rejected error record %q: %w", line, errs.BadData)
	default:
		buf.Discard()
		return "", buf.badData(fmt.Sprintf("expected name field, got %q", tag))
	}
}

func readBulkBody(buf *ReadBuffer) (string, error) {
	lenLine, ok := buf.readLine()
	if !ok {
		buf.Discard()
		return "", ErrIncomplete
	}
	if len(lenLine) > maxIntDigits {
		buf.Discard()
		return "", buf.badData("bulk length too long")
	}
	n, err := strconv.Atoi(lenLine)
	if err != nil || n < 0 {
		buf.Discard()
		return "", buf.badData("malformed bulk length")
	}
	body, ok := buf.peek(n + 1) // +1: trailing terminator start
	if !ok {
		buf.Discard()
		return "", ErrIncomplete
	}
	buf.rpos += n
	// consume trailing \r\n or \n
	if _, ok := buf.readLine(); !ok {
		buf.Discard()
		return "", ErrIncomplete
	}
	return string(body[:n]), nil
}

func readRESPInt(buf *ReadBuffer) (uint64, error) {
	tag, ok := buf.readByte()
	if !ok {
		buf.Discard()
		return 0, ErrIncomplete
	}
	if tag != ':' {
		buf.Discard()
		return 0, buf.badData(fmt.Sprintf("expected integer field, got %q", tag))
	}
	line, ok := buf.readLine()
	if !ok {
		buf.Discard()
		return 0, ErrIncomplete
	}
	if len(line) > maxIntDigits {
		buf.Discard()
		return 0, buf.badData("integer body too long")
	}
	v, err := strconv.ParseUint(line, 10, 64)
	if err != nil {
		buf.Discard()
		return 0, buf.badData("malformed integer")
	}
	return v, nil
}

func readRESPValue(buf *ReadBuffer) (respValue, error) {
	tag, ok := buf.readByte()
	if !ok {
		buf.Discard()
		return respValue{}, ErrIncomplete
	}
	switch tag {
	case ':':
		buf.rpos-- // readRESPInt below re-reads the tag
		v, err := readRESPInt(buf)
		if err != nil {
			return respValue{}, err
		}
		return respValue{scalarV: float64(v)}, nil
	case '$':
		s, err := readBulkBody(buf)
		if err != nil {
			return respValue{}, err
		}
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			buf.Discard()
			return respValue{}, buf.badData("malformed bulk float")
		}
		return respValue{scalarV: f}, nil
	case '*':
		line, ok := buf.readLine()
		if !ok {
			buf.Discard()
			return respValue{}, ErrIncomplete
		}
		n, err := strconv.Atoi(line)
		if err != nil || n < 0 {
			buf.Discard()
			return respValue{}, buf.badData("malformed array size")
		}
		values := make([]float64, n)
		for i := 0; i < n; i++ {
			item, err := readRESPScalarItem(buf)
			if err != nil {
				return respValue{}, err
			}
			values[i] = item
		}
		return respValue{isArray: true, arrayV: values}, nil
	default:
		buf.Discard()
		return respValue{}, buf.badData(fmt.Sprintf("expected value field, got %q", tag))
	}
}

func readRESPScalarItem(buf *ReadBuffer) (float64, error) {
	tag, ok := buf.readByte()
	if !ok {
		buf.Discard()
		return 0, ErrIncomplete
	}
	switch tag {
	case ':':
		buf.rpos--
		v, err := readRESPInt(buf)
		return float64(v), err
	case '$':
		s, err := readBulkBody(buf)
		if err != nil {
			return 0, err
		}
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			buf.Discard()
			return 0, buf.badData("malformed bulk float")
		}
		return f, nil
	default:
		buf.Discard()
		return 0, buf.badData(fmt.Sprintf("expected array item, got %q", tag))
	}
}
