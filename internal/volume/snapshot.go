package volume

import (
	"bytes"
	"io"

	"github.com/google/btree"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// SnapshotLZ4 compresses a sealed volume's raw bytes for fast local
// archival copies, grounded on the pack's pierrec/lz4 dependency (fast,
// used where snapshot turnaround time matters more than ratio).
func SnapshotLZ4(raw []byte) ([]byte, error) {
	var out bytes.Buffer
	w := lz4.NewWriter(&out)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func RestoreLZ4(compressed []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(compressed)))
}

// SnapshotXZ compresses a volume for cold/long-term archival (e.g. before
// an S3Backend.Sync upload), trading speed for a much smaller object.
func SnapshotXZ(raw []byte) ([]byte, error) {
	var out bytes.Buffer
	w, err := xz.NewWriter(&out)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func RestoreXZ(compressed []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// seekEntry is one (timestamp, addr) pair indexed by a volume's SeekIndex.
type seekEntry struct {
	Timestamp uint64
	Addr      LogicalAddr
}

func seekEntryLess(a, b seekEntry) bool { return a.Timestamp < b.Timestamp }

// SeekIndex is an in-memory, query-side timestamp -> chunk-offset index
// built from a page's IndexEntries, grounded on storage/index.go's
// btree.BTreeG[indexPair] delta index (same generic B-tree, re-keyed from
// a column delta index to a chunk seek index).
type SeekIndex struct {
	tree *btree.BTreeG[seekEntry]
}

func NewSeekIndex() *SeekIndex {
	return &SeekIndex{tree: btree.NewG[seekEntry](32, seekEntryLess)}
}

func (s *SeekIndex) Insert(ts uint64, addr LogicalAddr) {
	s.tree.ReplaceOrInsert(seekEntry{Timestamp: ts, Addr: addr})
}

// Floor returns the entry with the greatest timestamp <= ts, if any.
func (s *SeekIndex) Floor(ts uint64) (LogicalAddr, bool) {
	var found seekEntry
	ok := false
	s.tree.DescendLessOrEqual(seekEntry{Timestamp: ts}, func(e seekEntry) bool {
		found = e
		ok = true
		return false
	})
	return found.Addr, ok
}

func (s *SeekIndex) Len() int { return s.tree.Len() }
