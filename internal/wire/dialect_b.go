package wire

import (
	"strconv"
	"strings"
)

// DialectB parses the line-oriented "put" protocol (spec.md §4.5):
//
//	put <metric> <tag>=<value>... <ts_seconds> <value>\n
//
// Not present in the akumulid sources (which only speak RESP); grounded on
// the same ReadBuffer/badData/ErrorContext substrate as Dialect A, with the
// line itself tokenized the way the example in spec.md §7 resolves:
// "put cpu region=eu 1700000000 0.75\n" -> name "cpu region=eu".
type DialectB struct{}

func (DialectB) ParseNext(buf *ReadBuffer) ([]Record, error) {
	line, ok := buf.readLine()
	if !ok {
		buf.Discard()
		return nil, ErrIncomplete
	}

	fields := strings.Fields(line) // collapses whitespace runs
	if len(fields) < 4 || fields[0] != "put" {
		buf.Discard()
		return nil, buf.badData("malformed put line")
	}

	metric := fields[1]
	tags := fields[2 : len(fields)-2]
	if len(tags) == 0 {
		buf.Discard()
		return nil, buf.badData("put line has no tags")
	}
	tsTok, valTok := fields[len(fields)-2], fields[len(fields)-1]

	tsSeconds, err := strconv.ParseUint(tsTok, 10, 64)
	if err != nil {
		buf.Discard()
		return nil, buf.badData("malformed put timestamp")
	}
	value, err := strconv.ParseFloat(valTok, 64)
	if err != nil {
		buf.Discard()
		return nil, buf.badData("malformed put value")
	}

	buf.Consume()
	name := metric + " " + strings.Join(tags, " ")
	return []Record{{Name: name, Timestamp: tsSeconds * 1_000_000_000, Value: value}}, nil
}
