package pagecodec

import "encoding/binary"

// Integer stream codec: Delta -> ZigZag -> RLE -> Base128, exactly the
// composition spec.md §4.2 prescribes. The "storage so simple, don't need
// scan" mindset of storage/storage-int.go's bit-packed column encoder is
// the model: one pass to compute deltas, one pass to emit bytes.

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// encodeIntStream delta+zigzag+RLE+base128-encodes an absolute-value
// stream (series ids or timestamps) relative to a running previous value
// that starts at 0.
func encodeIntStream(values []uint64) []byte {
	out := make([]byte, 0, len(values)*2)
	var prev int64
	var varintBuf [binary.MaxVarintLen64]byte

	i := 0
	for i < len(values) {
		delta := int64(values[i]) - prev
		z := zigzagEncode(delta)
		run := uint64(1)
		j := i + 1
		for j < len(values) {
			d2 := int64(values[j]) - int64(values[j-1])
			if zigzagEncode(d2) != z {
				break
			}
			run++
			j++
		}
		n := binary.PutUvarint(varintBuf[:], z)
		out = append(out, varintBuf[:n]...)
		n = binary.PutUvarint(varintBuf[:], run)
		out = append(out, varintBuf[:n]...)
		prev = int64(values[j-1])
		i = j
	}
	return out
}

// decodeIntStream inverts encodeIntStream, reconstructing exactly n values.
func decodeIntStream(data []byte, n int) ([]uint64, error) {
	out := make([]uint64, 0, n)
	var prev int64
	pos := 0
	for len(out) < n {
		if pos >= len(data) {
			return nil, errShortIntStream
		}
		z, m := binary.Uvarint(data[pos:])
		if m <= 0 {
			return nil, errShortIntStream
		}
		pos += m
		run, m := binary.Uvarint(data[pos:])
		if m <= 0 {
			return nil, errShortIntStream
		}
		pos += m
		delta := zigzagDecode(z)
		for k := uint64(0); k < run && len(out) < n; k++ {
			prev += delta
			out = append(out, uint64(prev))
		}
	}
	return out, nil
}
