// Package volume implements the block/volume store (spec.md §4.1):
// append-only 4 KiB block I/O over a fixed-capacity backend, fronted by an
// optional read-only memory map, plus the meta-volume that tracks each
// volume's generation and capacity. Grounded on the persistence-engine
// factory pattern of storage/persistence-files.go, persistence-s3.go and
// persistence-ceph.go (CreateDatabase(name) PersistenceEngine), adapted
// from a column-blob store to fixed-size block addressing.
package volume

import (
	"encoding/binary"
	"fmt"

	"github.com/launix-de/chronostore/internal/errs"
	"github.com/launix-de/chronostore/internal/pagecodec"
)

// LogicalAddr encodes a volume id and a byte offset within it.
type LogicalAddr struct {
	VolumeID uint32
	Offset   uint32
}

func (a LogicalAddr) String() string {
	return fmt.Sprintf("%d:%d", a.VolumeID, a.Offset)
}

// Backend is the block I/O substrate a Volume is built on: a flat,
// capacity-bounded byte space with fsync (resetting is done by Volume.Reset
// on the page view, not by the backend). File,
// S3 and Ceph implementations satisfy it (see file_backend.go,
// s3_backend.go, ceph_backend.go).
type Backend interface {
	// ReadAt copies len(p) bytes starting at off into p.
	ReadAt(p []byte, off int64) (int, error)
	// WriteAt writes p at off.
	WriteAt(p []byte, off int64) (int, error)
	// Mmap returns a zero-copy read-only view if the backend supports it.
	Mmap() ([]byte, bool)
	Sync() error
	Capacity() int64
	Close() error
}

// Volume is one ring member: a Backend plus the Page view over it
// (spec.md §3 "Page/Volume").
type Volume struct {
	ID       uint32
	backend  Backend
	page     *pagecodec.Page
	writePos uint64 // next block-aligned byte offset free for appends
}

// Open loads (or, if buf is freshly zeroed, initializes) the page header
// from backend and wraps it as a Volume.
func Open(id uint32, backend Backend) (*Volume, error) {
	cap := backend.Capacity()
	if cap%pagecodec.BlockSize != 0 {
		return nil, fmt.Errorf("volume: capacity not block-aligned: %w", errs.BadData)
	}
	buf := make([]byte, cap)
	if _, err := backend.ReadAt(buf, 0); err != nil {
		return nil, err
	}

	var page *pagecodec.Page
	if isZero(buf[:64]) {
		page = pagecodec.NewPage(buf, uint64(id))
	} else {
		p, err := pagecodec.LoadPage(buf)
		if err != nil {
			return nil, err
		}
		page = p
	}
	return &Volume{ID: id, backend: backend, page: page}, nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// Page exposes the underlying page view for the façade/sequencer to place
// chunks into.
func (v *Volume) Page() *pagecodec.Page { return v.page }

// AppendBlock writes one 4 KiB block at write_pos, advancing it, and
// returns the resulting logical address (spec.md §4.1 append_block).
func (v *Volume) AppendBlock(block [pagecodec.BlockSize]byte) (LogicalAddr, error) {
	if int64(v.writePos)+pagecodec.BlockSize > v.backend.Capacity() {
		return LogicalAddr{}, errs.Overflow
	}
	off := v.writePos
	if _, err := v.backend.WriteAt(block[:], int64(off)); err != nil {
		panic(fmt.Sprintf("volume: fatal write error below block layer: %v", err))
	}
	v.writePos += pagecodec.BlockSize
	return LogicalAddr{VolumeID: v.ID, Offset: uint32(off)}, nil
}

// ReadBlock returns a copy of the 4 KiB block at addr.Offset.
func (v *Volume) ReadBlock(addr LogicalAddr) ([pagecodec.BlockSize]byte, error) {
	var block [pagecodec.BlockSize]byte
	if uint64(addr.Offset) >= v.writePos {
		return block, fmt.Errorf("volume: address past write_pos: %w", errs.BadData)
	}
	if _, err := v.backend.ReadAt(block[:], int64(addr.Offset)); err != nil {
		return block, err
	}
	return block, nil
}

// ReadBlockZeroCopy returns a zero-copy slice into the memory-mapped
// backend, or Unavailable if the backend isn't mapped.
func (v *Volume) ReadBlockZeroCopy(addr LogicalAddr) ([]byte, error) {
	m, ok := v.backend.Mmap()
	if !ok {
		return nil, errs.Unavailable
	}
	if uint64(addr.Offset) >= v.writePos {
		return nil, fmt.Errorf("volume: address past write_pos: %w", errs.BadData)
	}
	return m[addr.Offset : addr.Offset+pagecodec.BlockSize], nil
}

// Flush issues an OS-level fsync on the backend (spec.md §4.1 flush()).
func (v *Volume) Flush() error {
	v.page.Flush()
	return v.backend.Sync()
}

// Reset zeroes write_pos and the page, destructive (spec.md §4.1 reset()).
func (v *Volume) Reset(newPageID uint64) {
	v.writePos = 0
	v.page.Reset(newPageID)
}

func (v *Volume) Close() error {
	v.page.Close()
	return v.backend.Close()
}

func (v *Volume) Open() { v.page.Open() }

const metaSectorSize = pagecodec.BlockSize

// MetaDescriptor is one volume's entry in the meta-volume (spec.md §6
// "Meta-volume file"): {version, id, nblocks, capacity, generation, path}.
type MetaDescriptor struct {
	Version    uint32
	ID         uint32
	NBlocks    uint32
	Capacity   uint32
	Generation uint32
	Path       string
}

// MetaVolume is a sector-per-descriptor file sitting beside the data
// volumes, double-buffered in memory and flushed through Backend.WriteAt
// one 4 KiB sector at a time so each descriptor update is atomic at the
// sector level (spec.md §4.1 "MetaVolume").
type MetaVolume struct {
	backend     Backend
	descriptors []MetaDescriptor
}

func NewMetaVolume(backend Backend, n int) *MetaVolume {
	return &MetaVolume{backend: backend, descriptors: make([]MetaDescriptor, n)}
}

func (m *MetaVolume) Get(i int) MetaDescriptor { return m.descriptors[i] }

// Set updates descriptor i in memory and persists just its sector.
func (m *MetaVolume) Set(i int, d MetaDescriptor) error {
	m.descriptors[i] = d
	sector := make([]byte, metaSectorSize)
	binary.LittleEndian.PutUint32(sector[0:], d.Version)
	binary.LittleEndian.PutUint32(sector[4:], d.ID)
	binary.LittleEndian.PutUint32(sector[8:], d.NBlocks)
	binary.LittleEndian.PutUint32(sector[12:], d.Capacity)
	binary.LittleEndian.PutUint32(sector[16:], d.Generation)
	path := []byte(d.Path)
	if len(path) > 4076 {
		path = path[:4076]
	}
	copy(sector[20:], path)
	_, err := m.backend.WriteAt(sector, int64(i)*metaSectorSize)
	return err
}

// Load reads all descriptors back from the backend.
func (m *MetaVolume) Load() error {
	for i := range m.descriptors {
		sector := make([]byte, metaSectorSize)
		if _, err := m.backend.ReadAt(sector, int64(i)*metaSectorSize); err != nil {
			return err
		}
		var d MetaDescriptor
		d.Version = binary.LittleEndian.Uint32(sector[0:])
		d.ID = binary.LittleEndian.Uint32(sector[4:])
		d.NBlocks = binary.LittleEndian.Uint32(sector[8:])
		d.Capacity = binary.LittleEndian.Uint32(sector[12:])
		d.Generation = binary.LittleEndian.Uint32(sector[16:])
		end := 20
		for end < len(sector) && sector[end] != 0 {
			end++
		}
		d.Path = string(sector[20:end])
		m.descriptors[i] = d
	}
	return nil
}
