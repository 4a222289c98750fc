// Package pagecodec implements the Page & chunk codec (spec.md §4.2): entry
// layout, delta-RLE+XOR value compression, and chunk framing inside a
// fixed-size paged volume. It is grounded on storage/storage-int.go's
// bit-packed column codec (same two-pass prepare/scan/build shape, same
// little-endian binary.Write field-by-field serialization style) and on
// storage/index.go's bounding-box bookkeeping.
package pagecodec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	errShortIntStream   = errors.New("pagecodec: truncated integer stream")
	errShortValueStream = errors.New("pagecodec: truncated value stream")
	errTruncatedChunk   = errors.New("pagecodec: truncated chunk")
)

// Sample is the in-memory unit the codec operates on. The on-wire Sample of
// spec.md §3 additionally carries a textual series name before the registry
// resolves it; by the time samples reach pagecodec they are always resolved.
type Sample struct {
	SeriesID  uint64
	Timestamp uint64
	Value     float64
}

// EncodeChunk renders a sorted (by timestamp, then series id) sample
// sequence into the wire layout described in spec.md §4.2:
//
//	u32 total_bytes
//	u32 n_elements
//	u32 series_id_stream_bytes
//	  delta+RLE-encoded series ids
//	u32 timestamp_stream_bytes
//	  delta+RLE-encoded timestamps
//	u32 n_columns (always 1)
//	u32 value_stream_bytes
//	  XOR-compressed f64 stream
//
// The caller (the sequencer) is responsible for the sort order invariant;
// EncodeChunk does not re-sort.
func EncodeChunk(samples []Sample) []byte {
	ids := make([]uint64, len(samples))
	tss := make([]uint64, len(samples))
	vals := make([]float64, len(samples))
	for i, s := range samples {
		ids[i] = s.SeriesID
		tss[i] = s.Timestamp
		vals[i] = s.Value
	}

	idStream := encodeIntStream(ids)
	tsStream := encodeIntStream(tss)
	valStream := encodeValueStream(vals)

	body := make([]byte, 0, 24+len(idStream)+len(tsStream)+len(valStream))
	body = appendU32(body, uint32(len(samples)))
	body = appendU32(body, uint32(len(idStream)))
	body = append(body, idStream...)
	body = appendU32(body, uint32(len(tsStream)))
	body = append(body, tsStream...)
	body = appendU32(body, 1) // n_columns, always 1
	body = appendU32(body, uint32(len(valStream)))
	body = append(body, valStream...)

	out := make([]byte, 0, 4+len(body))
	out = appendU32(out, uint32(4+len(body))) // total_bytes includes itself
	out = append(out, body...)
	return out
}

// DecodeChunk inverts EncodeChunk exactly.
func DecodeChunk(data []byte) ([]Sample, error) {
	if len(data) < 4 {
		return nil, errTruncatedChunk
	}
	totalBytes := readU32(data)
	if int(totalBytes) > len(data) {
		return nil, errTruncatedChunk
	}
	data = data[:totalBytes]
	pos := 4

	n, pos, err := readU32At(data, pos)
	if err != nil {
		return nil, err
	}
	idLen, pos, err := readU32At(data, pos)
	if err != nil {
		return nil, err
	}
	if pos+int(idLen) > len(data) {
		return nil, errTruncatedChunk
	}
	ids, err := decodeIntStream(data[pos:pos+int(idLen)], int(n))
	if err != nil {
		return nil, err
	}
	pos += int(idLen)

	tsLen, pos, err := readU32At(data, pos)
	if err != nil {
		return nil, err
	}
	if pos+int(tsLen) > len(data) {
		return nil, errTruncatedChunk
	}
	tss, err := decodeIntStream(data[pos:pos+int(tsLen)], int(n))
	if err != nil {
		return nil, err
	}
	pos += int(tsLen)

	nColumns, pos, err := readU32At(data, pos)
	if err != nil {
		return nil, err
	}
	if nColumns != 1 {
		return nil, fmt.Errorf("pagecodec: unsupported n_columns %d", nColumns)
	}

	valLen, pos, err := readU32At(data, pos)
	if err != nil {
		return nil, err
	}
	if pos+int(valLen) > len(data) {
		return nil, errTruncatedChunk
	}
	vals, err := decodeValueStream(data[pos:pos+int(valLen)], int(n))
	if err != nil {
		return nil, err
	}

	out := make([]Sample, n)
	for i := range out {
		out[i] = Sample{SeriesID: ids[i], Timestamp: tss[i], Value: vals[i]}
	}
	return out, nil
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func readU32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

func readU32At(b []byte, pos int) (uint32, int, error) {
	if pos+4 > len(b) {
		return 0, pos, errTruncatedChunk
	}
	return binary.LittleEndian.Uint32(b[pos:]), pos + 4, nil
}
