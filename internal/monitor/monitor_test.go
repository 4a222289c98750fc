package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	depths      []int
	active      int
	rotations   uint64
	seriesCount int
}

func (f fakeSource) QueueDepths() []int { return f.depths }
func (f fakeSource) ActiveVolume() int  { return f.active }
func (f fakeSource) Rotations() uint64  { return f.rotations }
func (f fakeSource) SeriesCount() int   { return f.seriesCount }

func TestHandleStatsServesJSONSnapshot(t *testing.T) {
	src := fakeSource{depths: []int{1, 2, 3}, active: 1, rotations: 4, seriesCount: 7}
	s := &Server{Source: src}

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	s.handleStats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, Snapshot{QueueDepths: []int{1, 2, 3}, ActiveIndex: 1, Rotations: 4, SeriesCount: 7}, got)
}

func TestCombineJoinsVolumeAndQueueStats(t *testing.T) {
	src := Combine(fakeSource{active: 2, rotations: 9, seriesCount: 5}, fakeSource{depths: []int{8}})
	require.Equal(t, 2, src.ActiveVolume())
	require.Equal(t, uint64(9), src.Rotations())
	require.Equal(t, 5, src.SeriesCount())
	require.Equal(t, []int{8}, src.QueueDepths())
}
