// Package catalog implements the external catalog (spec.md §6 "Catalog"):
// a sqlite-like key-value and table store reachable only through four
// operations (load_volumes, load_series_names, append_series_names,
// upsert_rescue_points). Grounded on libakumuli/metadatastorage.cpp's
// akumuli_volumes/akumuli_series/akumuli_rescue_points tables, reworked
// from APR-DBD onto Go's database/sql, and on
// calvinalkan-agent-task/internal/store's context-first, fmt.Errorf(%w)-
// wrapped database/sql idiom.
package catalog

import "github.com/launix-de/chronostore/internal/registry"

// VolumeDescriptor is one row of the akumuli_volumes-equivalent table:
// a volume's index and backing path (spec.md §6 "Meta-volume file").
type VolumeDescriptor struct {
	ID   uint32
	Path string
}

// RescuePoint mirrors akumuli_rescue_points: the chunk addresses a series
// still has buffered in the sequencer at the moment of a clean shutdown,
// so ingestion can resume without rereading the whole volume (spec.md §8
// "Rescue-point persistence is mentioned ... but not materialized"; this
// package gives it a concrete, if optional, home).
type RescuePoint struct {
	SeriesID uint64
	Addrs    []uint64 // logical chunk addresses, oldest first
}

// Store is the catalog's entire external contract. Nothing else in this
// module is allowed to reach into its schema directly.
type Store interface {
	LoadVolumes() ([]VolumeDescriptor, error)
	LoadSeriesNames() ([]registry.Tuple, error)
	AppendSeriesNames(tuples []registry.Tuple) error
	UpsertRescuePoints(points []RescuePoint) error
	Close() error
}

// rescueAddrSlots is the fixed column width of the rescue-points table,
// taken straight from akumuli_rescue_points' addr0..addr7.
const rescueAddrSlots = 8
