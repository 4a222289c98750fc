package pagecodec

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/launix-de/chronostore/internal/errs"
)

// BlockSize is the fixed I/O unit of a volume (spec.md §3 "Block").
const BlockSize = 4096

// headerFixedSize is the byte size of every fixed-width PageHeader field,
// written in the exact field order below. The trailing index array starts
// immediately after it and grows upward (toward higher offsets) as chunks
// are completed; entries/chunk payloads grow downward from the end of the
// volume. The page is full when the two fronts would collide (spec.md §4.2,
// §6 "Volume file" layout).
const headerFixedSize = 4 + 8 + 4 + 8 + 4 + 8 + 4 + 4 + 8 + 8 + 8 + 8 + 8 + 16

const indexEntrySize = 16 // timestamp u64 + block_offset u64

// PageHeader mirrors spec.md §4.2's packed header fields plus one
// domain-stack addition (Instance), an instance uuid used only for
// crash-recovery diagnostics (grounded on storage/fast_uuid.go).
type PageHeader struct {
	Version    uint32
	PageID     uint64
	Count      uint32 // number of completed chunks, and index-array length
	LastOffset uint64 // entry tail: absolute byte offset where the most recently placed entry/chunk begins; free space ends just below it
	SyncCount  uint32 // odd = merge/checkpoint in progress, even = stable
	Checkpoint uint64 // current sequencer checkpoint id bound to this page
	OpenCount  uint32
	CloseCount uint32
	Length     uint64 // total addressable bytes (capacity * BlockSize)
	MinID      uint64
	MaxID      uint64
	MinTS      uint64
	MaxTS      uint64
	Instance   uuid.UUID
}

// ChunkHeader describes one completed, placed chunk: where its payload
// lives and the bounding box to fold into the page header / index.
type ChunkHeader struct {
	Offset      uint64 // byte offset (from start of volume) where payload begins
	MinTS       uint64
	MaxTS       uint64
	MinID       uint64
	MaxID       uint64
	NumElements uint32
	TotalBytes  uint32
}

type indexEntry struct {
	Timestamp   uint64
	BlockOffset uint64
}

// Page is the in-memory view of one volume's logical layout: a fixed-size
// byte buffer with a header growing forward and entries/chunks growing
// backward from the end, meeting in the middle. Exactly one Page is bound
// to each volume (spec.md §3 "a volume is a file of capacity × 4KiB").
type Page struct {
	buf    []byte
	header PageHeader
	index  []indexEntry
}

// NewPage initializes a fresh page over buf (len(buf) must be capacity*BlockSize).
func NewPage(buf []byte, pageID uint64) *Page {
	if len(buf)%BlockSize != 0 {
		panic("pagecodec: volume buffer is not block-aligned")
	}
	p := &Page{
		buf: buf,
		header: PageHeader{
			Version:    1,
			PageID:     pageID,
			LastOffset: uint64(len(buf)),
			Length:     uint64(len(buf)),
			Instance:   uuid.New(),
		},
	}
	p.flushHeader()
	return p
}

// LoadPage parses an existing volume buffer's header and index.
func LoadPage(buf []byte) (*Page, error) {
	if len(buf) < headerFixedSize {
		return nil, fmt.Errorf("pagecodec: buffer too small for header: %w", errs.BadData)
	}
	p := &Page{buf: buf}
	p.header = decodeHeader(buf)
	idxBytes := int(p.header.Count) * indexEntrySize
	if headerFixedSize+idxBytes > len(buf) {
		return nil, fmt.Errorf("pagecodec: corrupt index length: %w", errs.BadData)
	}
	p.index = make([]indexEntry, p.header.Count)
	off := headerFixedSize
	for i := range p.index {
		p.index[i] = indexEntry{
			Timestamp:   binary.LittleEndian.Uint64(buf[off:]),
			BlockOffset: binary.LittleEndian.Uint64(buf[off+8:]),
		}
		off += indexEntrySize
	}
	return p, nil
}

func decodeHeader(buf []byte) PageHeader {
	var h PageHeader
	off := 0
	read32 := func() uint32 { v := binary.LittleEndian.Uint32(buf[off:]); off += 4; return v }
	read64 := func() uint64 { v := binary.LittleEndian.Uint64(buf[off:]); off += 8; return v }
	h.Version = read32()
	h.PageID = read64()
	h.Count = read32()
	h.LastOffset = read64()
	h.SyncCount = read32()
	h.Checkpoint = read64()
	h.OpenCount = read32()
	h.CloseCount = read32()
	h.Length = read64()
	h.MinID = read64()
	h.MaxID = read64()
	h.MinTS = read64()
	h.MaxTS = read64()
	copy(h.Instance[:], buf[off:off+16])
	off += 16
	return h
}

func (p *Page) flushHeader() {
	buf := p.buf
	off := 0
	write32 := func(v uint32) { binary.LittleEndian.PutUint32(buf[off:], v); off += 4 }
	write64 := func(v uint64) { binary.LittleEndian.PutUint64(buf[off:], v); off += 8 }
	h := p.header
	write32(h.Version)
	write64(h.PageID)
	write32(h.Count)
	write64(h.LastOffset)
	write32(h.SyncCount)
	write64(h.Checkpoint)
	write32(h.OpenCount)
	write32(h.CloseCount)
	write64(h.Length)
	write64(h.MinID)
	write64(h.MaxID)
	write64(h.MinTS)
	write64(h.MaxTS)
	copy(buf[off:off+16], h.Instance[:])
	off += 16

	idxOff := headerFixedSize
	for _, e := range p.index {
		binary.LittleEndian.PutUint64(buf[idxOff:], e.Timestamp)
		binary.LittleEndian.PutUint64(buf[idxOff+8:], e.BlockOffset)
		idxOff += indexEntrySize
	}
}

// Header returns a copy of the current page header.
func (p *Page) Header() PageHeader { return p.header }

// indexEnd is the first free byte after the index array.
func (p *Page) indexEnd() int {
	return headerFixedSize + len(p.index)*indexEntrySize
}

// Full reports whether nextEntryLen bytes of entry payload plus one more
// index slot would collide with the index front (spec.md §4.2).
func (p *Page) Full(nextEntryLen int) bool {
	return p.indexEnd()+indexEntrySize > int(p.header.LastOffset)-nextEntryLen
}

// AddEntry places one raw {timestamp, series_id, length, payload} entry at
// the tail and updates the bounding box. Returns the entry's byte offset.
func (p *Page) AddEntry(seriesID, ts uint64, payload []byte) (uint64, error) {
	entryLen := 8 + 8 + 4 + len(payload)
	if p.Full(entryLen) {
		return 0, errs.Overflow
	}
	offset := p.header.LastOffset - uint64(entryLen)
	buf := p.buf[offset:]
	binary.LittleEndian.PutUint64(buf[0:], ts)
	binary.LittleEndian.PutUint64(buf[8:], seriesID)
	binary.LittleEndian.PutUint32(buf[16:], uint32(len(payload)))
	copy(buf[20:], payload)
	p.header.LastOffset = offset
	p.updateBoundingBox(seriesID, seriesID, ts, ts)
	return offset, nil
}

// AddChunk places a pre-encoded chunk payload at the tail, reserving
// minFree additional bytes beyond the payload for the caller's eventual
// CompleteChunk call. Returns the payload's byte offset.
func (p *Page) AddChunk(payload []byte, minFree uint32) (uint64, error) {
	need := len(payload) + int(minFree)
	if p.Full(need) {
		return 0, errs.Overflow
	}
	offset := p.header.LastOffset - uint64(len(payload))
	copy(p.buf[offset:], payload)
	p.header.LastOffset = offset
	return offset, nil
}

// CompleteChunk finalizes a chunk by writing its descriptor into the page
// index and folding its bounding box into the header.
func (p *Page) CompleteChunk(h ChunkHeader) {
	p.index = append(p.index, indexEntry{Timestamp: h.MinTS, BlockOffset: h.Offset})
	p.updateBoundingBox(h.MinID, h.MaxID, h.MinTS, h.MaxTS)
	p.header.Count++
}

func (p *Page) updateBoundingBox(minID, maxID, minTS, maxTS uint64) {
	if p.header.Count == 0 && p.header.MinID == 0 && p.header.MaxID == 0 && p.header.MinTS == 0 && p.header.MaxTS == 0 {
		p.header.MinID, p.header.MaxID, p.header.MinTS, p.header.MaxTS = minID, maxID, minTS, maxTS
		return
	}
	if minID < p.header.MinID {
		p.header.MinID = minID
	}
	if maxID > p.header.MaxID {
		p.header.MaxID = maxID
	}
	if minTS < p.header.MinTS {
		p.header.MinTS = minTS
	}
	if maxTS > p.header.MaxTS {
		p.header.MaxTS = maxTS
	}
}

// ChunkAt decodes the chunk payload placed at offset. offset is usually
// taken from an IndexEntries() result.
func (p *Page) ChunkAt(offset uint64) ([]Sample, error) {
	if offset >= uint64(len(p.buf)) {
		return nil, errs.Unavailable
	}
	return DecodeChunk(p.buf[offset:])
}

// IndexEntries exposes the (timestamp, offset) index for iteration, e.g. to
// seed an in-memory btree seek index (see internal/volume).
func (p *Page) IndexEntries() []struct {
	Timestamp uint64
	Offset    uint64
} {
	out := make([]struct {
		Timestamp uint64
		Offset    uint64
	}, len(p.index))
	for i, e := range p.index {
		out[i] = struct {
			Timestamp uint64
			Offset    uint64
		}{e.Timestamp, e.BlockOffset}
	}
	return out
}

// Flush serializes the header and index back into the backing buffer. It
// does not fsync; that is the volume store's job.
func (p *Page) Flush() {
	p.flushHeader()
}

// Open bumps OpenCount, used on volume activation (spec.md §4.8 rotation).
func (p *Page) Open() {
	p.header.OpenCount++
	p.flushHeader()
}

// Close bumps CloseCount, used on volume deactivation.
func (p *Page) Close() {
	p.header.CloseCount++
	p.flushHeader()
}

// Reset zeroes the page back to an empty state bound to a new page id,
// destructive (spec.md §4.1 reset()).
func (p *Page) Reset(newPageID uint64) {
	for i := range p.buf {
		p.buf[i] = 0
	}
	p.index = nil
	p.header = PageHeader{
		Version:    1,
		PageID:     newPageID,
		LastOffset: uint64(len(p.buf)),
		Length:     uint64(len(p.buf)),
		Instance:   uuid.New(),
	}
	p.flushHeader()
}
