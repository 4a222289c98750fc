package wire

// Record is one parsed wire record before series-name resolution: a
// textual series name, a nanosecond timestamp, and a value (spec.md §3
// "Sample... the on-wire form carries a textual series name").
type Record struct {
	Name      string
	Timestamp uint64
	Value     float64
}

const maxIntDigits = 84 // spec.md §4.5: integer bodies longer than this are ParseError
