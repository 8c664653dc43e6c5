package zarr

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sayantanonfire/era5-export/internal/dataset"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testDataset builds a two-variable dataset on a (base_time=5, latitude=2)
// grid with one missing point.
func testDataset(t *testing.T) *dataset.Dataset {
	t.Helper()

	times := []float64{0, 3600, 7200, 10800, 14400}
	lats := []float64{47.25, 47.5}

	mk := func(name, unit string) *dataset.Variable {
		data := make([]float64, len(times)*len(lats))
		for i := range data {
			data[i] = float64(i) / 10
		}
		return &dataset.Variable{
			Name:  name,
			Dims:  []string{dataset.DimBaseTime, dataset.DimLatitude},
			Shape: []int{len(times), len(lats)},
			Data:  data,
			Attrs: map[string]string{dataset.AttrUnits: unit, dataset.AttrLongName: name},
			Coords: map[string]dataset.Coordinate{
				dataset.DimBaseTime: {Name: dataset.DimBaseTime, Values: times},
				dataset.DimLatitude: {Name: dataset.DimLatitude, Values: lats},
			},
		}
	}

	t2m := mk("t2m", "°C")
	tp := mk("tp", "mm")
	tp.Data[3] = math.NaN()

	ds, err := dataset.Merge(t2m, tp)
	require.NoError(t, err)
	ds.Attrs["source"] = "era5-export test"
	return ds
}

func writeTestStore(t *testing.T, ds *dataset.Dataset, spec StoreSpec) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.zarr")
	_, err := NewWriter(testLogger()).Write(context.Background(), path, ds, spec)
	require.NoError(t, err)
	return path
}

func TestWriteReadRoundTrip(t *testing.T) {
	specs := map[string]StoreSpec{
		"zstd": {
			Chunks:     map[string]int{dataset.DimBaseTime: 2},
			Compressor: CompressorConfig{ID: "zstd", Level: 3},
		},
		"lz4": {
			Chunks:     map[string]int{dataset.DimBaseTime: 2},
			Compressor: CompressorConfig{ID: "lz4"},
		},
		"raw": {
			Chunks: map[string]int{dataset.DimBaseTime: 2},
		},
	}

	for name, spec := range specs {
		t.Run(name, func(t *testing.T) {
			ds := testDataset(t)
			path := writeTestStore(t, ds, spec)

			store, err := Open(path)
			require.NoError(t, err)

			got, err := store.Dataset()
			require.NoError(t, err)

			assert.Equal(t, ds.VarNames(), got.VarNames())
			assert.Equal(t, "era5-export test", got.Attrs["source"])

			for _, vn := range ds.VarNames() {
				want, have := ds.Vars[vn], got.Vars[vn]
				assert.Equal(t, want.Dims, have.Dims, vn)
				assert.Equal(t, want.Shape, have.Shape, vn)
				assert.Equal(t, want.Unit(), have.Unit(), vn)
				require.Len(t, have.Data, len(want.Data), vn)
				for i := range want.Data {
					if dataset.IsMissing(want.Data[i]) {
						assert.True(t, dataset.IsMissing(have.Data[i]))
						continue
					}
					assert.Equal(t, want.Data[i], have.Data[i])
				}
			}

			assert.Equal(t, ds.Coords[dataset.DimBaseTime].Values, got.Coords[dataset.DimBaseTime].Values)
			assert.Equal(t, ds.Coords[dataset.DimLatitude].Values, got.Coords[dataset.DimLatitude].Values)
		})
	}
}

func TestChunkLayout(t *testing.T) {
	ds := testDataset(t)
	path := writeTestStore(t, ds, StoreSpec{
		Chunks:     map[string]int{dataset.DimBaseTime: 2},
		Compressor: CompressorConfig{ID: "zstd"},
	})

	// base_time=5 with chunk 2 → 3 chunks along time, 1 along latitude.
	for _, key := range []string{"0.0", "1.0", "2.0"} {
		assert.FileExists(t, filepath.Join(path, "t2m", key))
	}
	assert.NoFileExists(t, filepath.Join(path, "t2m", "3.0"))

	store, err := Open(path)
	require.NoError(t, err)
	shape, chunks, comp, err := store.ArrayMeta("t2m")
	require.NoError(t, err)
	assert.Equal(t, []int{5, 2}, shape)
	assert.Equal(t, []int{2, 2}, chunks)
	require.NotNil(t, comp)
	assert.Equal(t, "zstd", comp.ID)
}

func TestConsolidatedIndex(t *testing.T) {
	ds := testDataset(t)
	path := writeTestStore(t, ds, StoreSpec{Chunks: map[string]int{dataset.DimBaseTime: 1000}})

	raw, err := os.ReadFile(filepath.Join(path, consolidatedFile))
	require.NoError(t, err)

	var cons consolidatedMeta
	require.NoError(t, json.Unmarshal(raw, &cons))
	assert.Equal(t, 1, cons.ZarrConsolidatedFormat)

	for _, key := range []string{
		".zgroup", ".zattrs",
		"t2m/.zarray", "t2m/.zattrs",
		"tp/.zarray", "tp/.zattrs",
		"base_time/.zarray", "latitude/.zarray",
	} {
		assert.Contains(t, cons.Metadata, key)
	}

	var meta arrayMeta
	require.NoError(t, json.Unmarshal(cons.Metadata["t2m/.zarray"], &meta))
	assert.Equal(t, "<f8", meta.DType)
	assert.Equal(t, "C", meta.Order)
	assert.Equal(t, 2, meta.ZarrFormat)
	assert.Equal(t, "NaN", meta.FillValue)

	store, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"base_time", "latitude", "t2m", "tp"}, store.ArrayNames())
}

func TestFullReplace(t *testing.T) {
	ds := testDataset(t)
	path := writeTestStore(t, ds, StoreSpec{})

	// Plant a sentinel from the "previous" store and rewrite with a subset.
	stale := filepath.Join(path, "stale_var")
	require.NoError(t, os.MkdirAll(stale, 0o755))

	_, err := NewWriter(testLogger()).Write(context.Background(), path, ds, StoreSpec{
		Variables: []string{"t2m"},
	})
	require.NoError(t, err)

	assert.NoDirExists(t, stale, "no chunk of the prior store may remain observable")
	assert.NoDirExists(t, filepath.Join(path, "tp"), "unselected variables are not exported")
	assert.DirExists(t, filepath.Join(path, "t2m"))
}

func TestExportSelection(t *testing.T) {
	t.Run("unknown variable fails before touching the destination", func(t *testing.T) {
		ds := testDataset(t)
		path := filepath.Join(t.TempDir(), "store.zarr")

		_, err := NewWriter(testLogger()).Write(context.Background(), path, ds, StoreSpec{
			Variables: []string{"t2m", "z500"},
		})
		require.Error(t, err)
		assert.NoDirExists(t, path)
	})

	t.Run("selection keeps its coordinates", func(t *testing.T) {
		ds := testDataset(t)
		path := writeTestStore(t, ds, StoreSpec{Variables: []string{"tp"}})

		store, err := Open(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"base_time", "latitude", "tp"}, store.ArrayNames())
	})
}

func TestPerVariableCompressor(t *testing.T) {
	ds := testDataset(t)
	path := writeTestStore(t, ds, StoreSpec{
		Compressor:  CompressorConfig{ID: "zstd", Level: 3},
		Compressors: map[string]CompressorConfig{"tp": {ID: "lz4"}},
	})

	store, err := Open(path)
	require.NoError(t, err)

	_, _, compT2M, err := store.ArrayMeta("t2m")
	require.NoError(t, err)
	assert.Equal(t, "zstd", compT2M.ID)

	_, _, compTP, err := store.ArrayMeta("tp")
	require.NoError(t, err)
	assert.Equal(t, "lz4", compTP.ID)

	got, err := store.Read("tp")
	require.NoError(t, err)
	assert.Equal(t, ds.Vars["tp"].Shape, got.Shape)
}

func TestRemoveIfExists(t *testing.T) {
	t.Run("missing store is fine", func(t *testing.T) {
		require.NoError(t, RemoveIfExists(filepath.Join(t.TempDir(), "absent")))
	})

	t.Run("existing store is removed", func(t *testing.T) {
		path := writeTestStore(t, testDataset(t), StoreSpec{})
		require.NoError(t, RemoveIfExists(path))
		assert.NoDirExists(t, path)
	})
}

func TestUnsupportedCompressor(t *testing.T) {
	ds := testDataset(t)
	path := filepath.Join(t.TempDir(), "store.zarr")

	_, err := NewWriter(testLogger()).Write(context.Background(), path, ds, StoreSpec{
		Compressor: CompressorConfig{ID: "blosc"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blosc")
}

func TestChunkKey(t *testing.T) {
	assert.Equal(t, "0", chunkKey(nil))
	assert.Equal(t, "3", chunkKey([]int{3}))
	assert.Equal(t, "1.0.2", chunkKey([]int{1, 0, 2}))
}

func TestEncodeScatterChunkEdge(t *testing.T) {
	// 1-D array of 5 with chunk 2: final chunk is half padding.
	data := []float64{1, 2, 3, 4, 5}
	raw := encodeChunk(data, []int{5}, []int{2}, []int{2})

	out := make([]float64, 5)
	require.NoError(t, scatterChunk(out, []int{5}, []int{2}, []int{2}, raw))
	assert.Equal(t, 5.0, out[4])
	assert.Equal(t, 0.0, out[0], "padding never lands in bounds")
}
