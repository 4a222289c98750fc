package facade

import (
	"testing"

	"github.com/launix-de/chronostore/internal/pagecodec"
	"github.com/launix-de/chronostore/internal/registry"
	"github.com/launix-de/chronostore/internal/sequencer"
	"github.com/launix-de/chronostore/internal/volume"
	"github.com/stretchr/testify/require"
)

type memBackend struct {
	buf []byte
}

func newMemBackend(capacity int) *memBackend { return &memBackend{buf: make([]byte, capacity)} }

func (m *memBackend) ReadAt(p []byte, off int64) (int, error)  { return copy(p, m.buf[off:]), nil }
func (m *memBackend) WriteAt(p []byte, off int64) (int, error) { return copy(m.buf[off:], p), nil }
func (m *memBackend) Mmap() ([]byte, bool)                     { return m.buf, true }
func (m *memBackend) Sync() error                              { return nil }
func (m *memBackend) Capacity() int64                          { return int64(len(m.buf)) }
func (m *memBackend) Close() error                             { return nil }

func newTestVolumes(t *testing.T, n, capacity int) []*volume.Volume {
	t.Helper()
	vols := make([]*volume.Volume, n)
	for i := range vols {
		v, err := volume.Open(uint32(i), newMemBackend(capacity))
		require.NoError(t, err)
		vols[i] = v
	}
	return vols
}

func TestFacadeWriteThenClosePersistsChunk(t *testing.T) {
	vols := newTestVolumes(t, 2, 16*pagecodec.BlockSize)
	vols[0].Open()
	seq := sequencer.New(1000, 1) // the lone sample never ages out; Close merges it onto the page
	reg := registry.New()
	f := New(vols, nil, seq, reg, nil, 0, MaxDurability)

	sess := f.OpenSession()
	id, err := sess.Resolve("cpu host=a")
	require.NoError(t, err)

	require.NoError(t, f.Write(pagecodec.Sample{SeriesID: id, Timestamp: 2000, Value: 42.5}))
	require.NoError(t, f.Close())

	entries := vols[0].Page().IndexEntries()
	require.NotEmpty(t, entries, "a chunk must have been placed on the active page")
}

func TestFacadeRotatesOnOverflow(t *testing.T) {
	// A tiny volume (2 blocks) fills up after about 143 committed
	// one-sample chunks (roughly 40 payload bytes plus a 16-byte index
	// slot each), forcing the overflow-retry path in Write to rotate onto the
	// second volume. Timestamps follow the same "periodic bump past the
	// window" shape as the sequencer package's own no-loss test, so each
	// bump ages out and merges the prior run into a real chunk.
	vols := newTestVolumes(t, 2, 2*pagecodec.BlockSize)
	vols[0].Open()
	seq := sequencer.New(100, 1) // compressionThreshold=1: every aged run merges immediately
	reg := registry.New()
	f := New(vols, nil, seq, reg, nil, 0, MaxDurability)

	sess := f.OpenSession()
	id, err := sess.Resolve("cpu host=a")
	require.NoError(t, err)

	top := uint64(1000)
	for i := 0; i < 200; i++ {
		top += 150 // strictly past the 100ns window every iteration
		require.NoError(t, f.Write(pagecodec.Sample{SeriesID: id, Timestamp: top, Value: float64(i)}))
	}

	require.NotEqual(t, 0, f.activeIndex, "repeated chunk commits into a tiny volume must have rotated the active index")
}
