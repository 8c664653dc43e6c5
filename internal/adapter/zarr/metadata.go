// Package zarr persists merged datasets as Zarr-v2-style chunked, compressed
// array stores: one directory per variable, fixed-size independently
// compressed chunks along configured dimensions, and a consolidated
// .zmetadata index so consumers discover the full structure without touching
// a single chunk.
//
// Writes are full-replace: the store is assembled in a temporary directory
// next to the destination, the old store is removed, and the new one is
// renamed into place. A crash between removal and rename leaves the
// destination absent, a known limitation of replace semantics, surfaced
// rather than papered over. There is no incremental update path.
package zarr

import (
	"encoding/json"
	"errors"
)

const (
	zarrFormat         = 2
	consolidatedFormat = 1

	groupFile        = ".zgroup"
	attrsFile        = ".zattrs"
	arrayFile        = ".zarray"
	consolidatedFile = ".zmetadata"

	// arrayDimsAttr is the xarray convention tying a Zarr array to its named
	// dimensions; every exported array carries it.
	arrayDimsAttr = "_ARRAY_DIMENSIONS"
)

// Store-level failure sentinels, matched with errors.Is.
var (
	// ErrWriteFailure covers any I/O error while assembling or committing the
	// store. The destination state is undefined; the caller must not retry
	// automatically.
	ErrWriteFailure = errors.New("store write failure")

	// ErrCleanupFailure means the pre-existing store could not be removed.
	ErrCleanupFailure = errors.New("destination cleanup failure")
)

// CompressorConfig selects the per-chunk codec, serialized into .zarray
// exactly as numcodecs spells it.
type CompressorConfig struct {
	ID    string `json:"id"`
	Level int    `json:"level,omitempty"`
}

// arrayMeta is the Zarr v2 .zarray document. dtype is fixed at
// little-endian float64 and order at C (row-major), matching the dataset
// package's in-memory layout.
type arrayMeta struct {
	Chunks     []int             `json:"chunks"`
	Compressor *CompressorConfig `json:"compressor"`
	DType      string            `json:"dtype"`
	FillValue  any               `json:"fill_value"`
	Filters    any               `json:"filters"`
	Order      string            `json:"order"`
	Shape      []int             `json:"shape"`
	ZarrFormat int               `json:"zarr_format"`
}

// groupMeta is the Zarr v2 .zgroup document.
type groupMeta struct {
	ZarrFormat int `json:"zarr_format"`
}

// consolidatedMeta is the .zmetadata index: every metadata document in the
// store keyed by its relative path.
type consolidatedMeta struct {
	Metadata               map[string]json.RawMessage `json:"metadata"`
	ZarrConsolidatedFormat int                        `json:"zarr_consolidated_format"`
}

func newArrayMeta(shape, chunks []int, comp *CompressorConfig) arrayMeta {
	return arrayMeta{
		Chunks:     chunks,
		Compressor: comp,
		DType:      "<f8",
		FillValue:  "NaN",
		Filters:    nil,
		Order:      "C",
		Shape:      shape,
		ZarrFormat: zarrFormat,
	}
}
