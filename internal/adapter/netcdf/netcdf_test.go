package netcdf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sayantanonfire/era5-export/internal/dataset"
)

// fakeAttrs implements attrMap for tests.
type fakeAttrs map[string]any

func (f fakeAttrs) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	return keys
}

func (f fakeAttrs) Get(key string) (any, bool) {
	v, ok := f[key]
	return v, ok
}

func TestFlatten(t *testing.T) {
	t.Run("3-d int16 grid", func(t *testing.T) {
		raw := [][][]int16{
			{{1, 2}, {3, 4}, {5, 6}},
			{{7, 8}, {9, 10}, {11, 12}},
		}
		data, shape, err := flatten(raw)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 3, 2}, shape)
		assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, data)
	})

	t.Run("1-d float32", func(t *testing.T) {
		data, shape, err := flatten([]float32{40.0, 40.25})
		require.NoError(t, err)
		assert.Equal(t, []int{2}, shape)
		assert.Equal(t, []float64{40.0, 40.25}, data)
	})

	t.Run("non-numeric", func(t *testing.T) {
		_, _, err := flatten([]string{"x"})
		require.Error(t, err)
	})

	t.Run("empty dimension", func(t *testing.T) {
		_, _, err := flatten([][]float64{})
		require.Error(t, err)
	})
}

func TestUnpack(t *testing.T) {
	t.Run("cf packed int16 with fill", func(t *testing.T) {
		// ERA5 NetCDF files pack to int16 with per-variable scale and offset.
		data := []float64{0, 100, -32767}
		unpack(data, fakeAttrs{
			"scale_factor": 0.01,
			"add_offset":   273.15,
			"_FillValue":   int16(-32767),
		})

		assert.InDelta(t, 273.15, data[0], 1e-9)
		assert.InDelta(t, 274.15, data[1], 1e-9)
		assert.True(t, math.IsNaN(data[2]), "fill value becomes missing")
	})

	t.Run("no packing attrs leaves data alone", func(t *testing.T) {
		data := []float64{1.5}
		unpack(data, fakeAttrs{"units": "K"})
		assert.Equal(t, []float64{1.5}, data)
	})

	t.Run("missing_value fallback", func(t *testing.T) {
		data := []float64{9999, 1}
		unpack(data, fakeAttrs{"missing_value": float32(9999)})
		assert.True(t, math.IsNaN(data[0]))
		assert.Equal(t, 1.0, data[1])
	})
}

func TestStringAttrs(t *testing.T) {
	attrs := stringAttrs(fakeAttrs{
		"units":        "K",
		"long_name":    "2 metre temperature",
		"scale_factor": 0.01,
		"_FillValue":   int16(-32767),
	})

	assert.Equal(t, "K", attrs["units"])
	assert.Equal(t, "2 metre temperature", attrs["long_name"])
	assert.NotContains(t, attrs, "scale_factor", "packing attrs are consumed on load")
	assert.NotContains(t, attrs, "_FillValue")
}

func TestRenameDims(t *testing.T) {
	got := renameDims([]string{"time", "step", "latitude", "longitude"})
	assert.Equal(t, []string{
		dataset.DimBaseTime, dataset.DimLeadStep, dataset.DimLatitude, dataset.DimLongitude,
	}, got)
}
