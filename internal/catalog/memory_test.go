package catalog

import (
	"testing"

	"github.com/launix-de/chronostore/internal/registry"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTripsSeriesNames(t *testing.T) {
	s := NewMemoryStore()
	tuples := []registry.Tuple{
		{SeriesID: 1024, Metric: "cpu", TagBlock: "host=a"},
		{SeriesID: 1025, Metric: "cpu", TagBlock: "host=b"},
	}
	require.NoError(t, s.AppendSeriesNames(tuples))

	got, err := s.LoadSeriesNames()
	require.NoError(t, err)
	require.ElementsMatch(t, tuples, got)
}

func TestMemoryStoreAppendSeriesNamesUpsertsByID(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.AppendSeriesNames([]registry.Tuple{{SeriesID: 1024, Metric: "cpu", TagBlock: "host=a"}}))
	require.NoError(t, s.AppendSeriesNames([]registry.Tuple{{SeriesID: 1024, Metric: "cpu", TagBlock: "host=a,dc=eu"}}))

	got, err := s.LoadSeriesNames()
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "host=a,dc=eu", got[0].TagBlock)
}

func TestMemoryStoreLoadVolumesReturnsSnapshot(t *testing.T) {
	s := NewMemoryStore()
	vols := []VolumeDescriptor{{ID: 0, Path: "/data/vol0"}, {ID: 1, Path: "/data/vol1"}}
	s.SetVolumes(vols)

	got, err := s.LoadVolumes()
	require.NoError(t, err)
	require.Equal(t, vols, got)

	got[0].Path = "mutated"
	got2, err := s.LoadVolumes()
	require.NoError(t, err)
	require.Equal(t, vols, got2, "LoadVolumes must return a defensive copy")
}

func TestMemoryStoreUpsertRescuePointsAcceptsPartialAddrs(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.UpsertRescuePoints([]RescuePoint{{SeriesID: 7, Addrs: []uint64{100, 200}}}))
	require.NoError(t, s.Close())
}
