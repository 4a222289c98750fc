package registry

import (
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalizeIdempotence(t *testing.T) {
	names := []string{
		"cpu",
		"cpu region=eu host=a",
		"sensor  host=a   zone=1",
		"m k=v",
	}
	for _, n := range names {
		c1, err := Canonicalize(n)
		require.NoError(t, err)
		c2, err := Canonicalize(c1.Name)
		require.NoError(t, err)
		require.Equal(t, c1.Name, c2.Name)
	}
}

func TestCanonicalizeTagOrderInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := []string{"b=2", "a=1", "zz=9", "aa=0"}
	want, err := Canonicalize("metric " + strings.Join(base, " "))
	require.NoError(t, err)

	for trial := 0; trial < 20; trial++ {
		perm := append([]string(nil), base...)
		rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		got, err := Canonicalize("metric " + strings.Join(perm, " "))
		require.NoError(t, err)
		require.Equal(t, want.Name, got.Name)
	}
}

func TestCanonicalizeRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"metric badtag",
		"metric =v",
		"metric k=",
	}
	for _, c := range cases {
		_, err := Canonicalize(c)
		require.Error(t, err, c)
	}
}

func TestCanonicalizeTooManyTags(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("metric")
	for i := 0; i < 33; i++ {
		sb.WriteString(" k")
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString("=v")
	}
	_, err := Canonicalize(sb.String())
	require.Error(t, err)
}

func TestRegistryBijection(t *testing.T) {
	reg := New()
	names := []string{
		"sensor host=a",
		"sensor host=b",
		"sensor host=a", // duplicate: same id expected
		"cpu region=eu",
	}
	ids := make([]uint64, len(names))
	for i, n := range names {
		id, err := reg.Resolve(n)
		require.NoError(t, err)
		ids[i] = id
	}
	require.Equal(t, ids[0], ids[2])
	require.NotEqual(t, ids[0], ids[1])

	seen := map[uint64]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		name, ok := reg.NameOf(id)
		require.True(t, ok)
		resolved, err := reg.Resolve(name)
		require.NoError(t, err)
		require.Equal(t, id, resolved)
	}
}

func TestRegistryBaseIDAndLoadTuples(t *testing.T) {
	reg := New()
	id, err := reg.Resolve("cpu region=eu")
	require.NoError(t, err)
	require.Equal(t, BaseID, id)

	reg2 := New()
	err = reg2.LoadTuples([]Tuple{
		{SeriesID: 1024, Metric: "cpu", TagBlock: "region=eu"},
		{SeriesID: 1030, Metric: "mem", TagBlock: ""},
	})
	require.NoError(t, err)
	next, err := reg2.Resolve("new metric=x")
	require.NoError(t, err)
	require.Equal(t, uint64(1031), next)
}

func TestSessionCacheFallsBackToGlobal(t *testing.T) {
	reg := New()
	s1 := reg.OpenSession()
	s2 := reg.OpenSession()

	id1, err := s1.Resolve("sensor host=a")
	require.NoError(t, err)
	id2, err := s2.Resolve("sensor host=a")
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestPendingBatchesBatchSize(t *testing.T) {
	reg := New()
	for i := 0; i < FlushBatchSize+10; i++ {
		_, err := reg.Resolve("metric k=" + strconv.Itoa(i))
		require.NoError(t, err)
	}
	batches := reg.PendingBatches()
	require.Len(t, batches, 2)
	require.Len(t, batches[0], FlushBatchSize)
	require.Len(t, batches[1], 10)
	require.Empty(t, reg.PendingBatches())
}
