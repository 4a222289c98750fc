package pagecodec

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/launix-de/chronostore/internal/errs"
)

func TestChunkRoundTrip(t *testing.T) {
	samples := []Sample{
		{SeriesID: 1024, Timestamp: 100, Value: 1.5},
		{SeriesID: 1024, Timestamp: 100, Value: 1.5},
		{SeriesID: 1025, Timestamp: 100, Value: -2.25},
		{SeriesID: 1024, Timestamp: 150, Value: 3.0},
		{SeriesID: 1030, Timestamp: 9999999999, Value: math.NaN()},
	}
	enc := EncodeChunk(samples)
	dec, err := DecodeChunk(enc)
	require.NoError(t, err)
	require.Len(t, dec, len(samples))
	for i := range samples {
		require.Equal(t, samples[i].SeriesID, dec[i].SeriesID)
		require.Equal(t, samples[i].Timestamp, dec[i].Timestamp)
		require.Equal(t, math.Float64bits(samples[i].Value), math.Float64bits(dec[i].Value), "value bits must round-trip exactly, index %d", i)
	}
}

func TestChunkRoundTripRandomSorted(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		n := rng.Intn(500)
		samples := make([]Sample, n)
		ts := uint64(rng.Intn(1000))
		for i := 0; i < n; i++ {
			ts += uint64(rng.Intn(5))
			samples[i] = Sample{
				SeriesID:  uint64(1024 + rng.Intn(10)),
				Timestamp: ts,
				Value:     rng.Float64()*2 - 1,
			}
		}
		enc := EncodeChunk(samples)
		dec, err := DecodeChunk(enc)
		require.NoError(t, err)
		if diff := cmp.Diff(samples, dec); diff != "" {
			t.Fatalf("trial %d: round trip mismatch (-want +got):\n%s", trial, diff)
		}
	}
}

func TestValueCodecSpecialBitPatterns(t *testing.T) {
	values := []float64{
		0, 0, 0,
		math.NaN(),
		math.Inf(1),
		math.Inf(-1),
		math.Float64frombits(0x7ff8000000000001), // non-canonical NaN payload
		-0.0,
		1.0, 1.0, 1.0,
		math.MaxFloat64,
		math.SmallestNonzeroFloat64,
	}
	enc := encodeValueStream(values)
	dec, err := decodeValueStream(enc, len(values))
	require.NoError(t, err)
	for i := range values {
		require.Equal(t, math.Float64bits(values[i]), math.Float64bits(dec[i]), "index %d", i)
	}
}

func TestIntStreamRoundTrip(t *testing.T) {
	values := []uint64{1024, 1024, 1024, 1025, 1025, 2000, 2000, 2000, 2000}
	enc := encodeIntStream(values)
	dec, err := decodeIntStream(enc, len(values))
	require.NoError(t, err)
	require.Equal(t, values, dec)
}

func TestPageAddEntryAndOverflow(t *testing.T) {
	buf := make([]byte, 4*BlockSize)
	p := NewPage(buf, 7)
	require.Equal(t, uint64(7), p.Header().PageID)

	_, err := p.AddEntry(1024, 100, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, uint64(1024), p.Header().MinID)
	require.Equal(t, uint64(100), p.Header().MinTS)

	// force overflow with a payload bigger than remaining space
	big := make([]byte, len(buf))
	_, err = p.AddEntry(1025, 200, big)
	require.ErrorIs(t, err, errs.Overflow)
}

func TestPageChunkRoundTripThroughBuffer(t *testing.T) {
	buf := make([]byte, 8*BlockSize)
	p := NewPage(buf, 1)

	samples := []Sample{
		{SeriesID: 1024, Timestamp: 10, Value: 1},
		{SeriesID: 1025, Timestamp: 10, Value: 2},
		{SeriesID: 1024, Timestamp: 20, Value: 3},
	}
	enc := EncodeChunk(samples)
	offset, err := p.AddChunk(enc, 32)
	require.NoError(t, err)
	p.CompleteChunk(ChunkHeader{
		Offset: offset, MinTS: 10, MaxTS: 20, MinID: 1024, MaxID: 1025,
		NumElements: uint32(len(samples)), TotalBytes: uint32(len(enc)),
	})

	p.Flush()

	reloaded, err := LoadPage(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(1), reloaded.Header().Count)
	idx := reloaded.IndexEntries()
	require.Len(t, idx, 1)
	dec, err := reloaded.ChunkAt(idx[0].Offset)
	require.NoError(t, err)
	require.Equal(t, samples, dec)
}
