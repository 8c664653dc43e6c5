package dataset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepVariable builds a (base_time, lead_step) precipitation variable from
// rows of per-step values, one row per base time.
func stepVariable(rows ...[]float64) *Variable {
	times := rangeCoord(len(rows))
	steps := rangeCoord(len(rows[0]))
	data := make([]float64, 0, len(rows)*len(rows[0]))
	for _, row := range rows {
		data = append(data, row...)
	}
	return &Variable{
		Name:  "tp",
		Dims:  []string{DimBaseTime, DimLeadStep},
		Shape: []int{len(rows), len(rows[0])},
		Data:  data,
		Attrs: map[string]string{AttrUnits: "mm", AttrLongName: "Total precipitation"},
		Coords: map[string]Coordinate{
			DimBaseTime: {Name: DimBaseTime, Values: times},
			DimLeadStep: {Name: DimLeadStep, Values: steps},
		},
	}
}

func singleVarDataset(v *Variable) *Dataset {
	ds, err := Merge(v)
	if err != nil {
		panic(err)
	}
	return ds
}

func TestCollapse(t *testing.T) {
	nan := math.NaN()

	t.Run("sum excludes missing values", func(t *testing.T) {
		ds := singleVarDataset(stepVariable([]float64{1.0, 2.0, nan}))

		derived, err := Collapse(ds, "tp", DimLeadStep, AggSum)
		require.NoError(t, err)
		assert.Equal(t, 3.0, derived.Data[0])
	})

	t.Run("all missing stays missing", func(t *testing.T) {
		ds := singleVarDataset(stepVariable([]float64{nan, nan}))

		derived, err := Collapse(ds, "tp", DimLeadStep, AggSum)
		require.NoError(t, err)
		assert.True(t, IsMissing(derived.Data[0]), "all-missing must not collapse to zero")
	})

	t.Run("reduces per base time", func(t *testing.T) {
		ds := singleVarDataset(stepVariable(
			[]float64{0.5, 0.5, 1.0},
			[]float64{nan, 2.0, 2.0},
		))

		derived, err := Collapse(ds, "tp", DimLeadStep, AggSum)
		require.NoError(t, err)
		assert.Equal(t, []float64{2.0, 4.0}, derived.Data)
		assert.Equal(t, []string{DimBaseTime}, derived.Dims)
		assert.Equal(t, []int{2}, derived.Shape)
	})

	t.Run("mean and max", func(t *testing.T) {
		rows := [][]float64{{1.0, 3.0, nan}}

		ds := singleVarDataset(stepVariable(rows...))
		mean, err := Collapse(ds, "tp", DimLeadStep, AggMean)
		require.NoError(t, err)
		assert.Equal(t, 2.0, mean.Data[0])

		maxv, err := Collapse(ds, "tp", DimLeadStep, AggMax)
		require.NoError(t, err)
		assert.Equal(t, 3.0, maxv.Data[0])
	})

	t.Run("derived metadata", func(t *testing.T) {
		ds := singleVarDataset(stepVariable([]float64{1.0, 2.0}))

		derived, err := Collapse(ds, "tp", DimLeadStep, AggSum)
		require.NoError(t, err)

		assert.Equal(t, "tp_sum", derived.Name)
		assert.Equal(t, "mm", derived.Unit(), "unit is inherited")
		assert.Equal(t, "sum of Total precipitation over lead_step", derived.Attrs[AttrLongName])
		assert.NotContains(t, derived.Coords, DimLeadStep)
		assert.NotEmpty(t, derived.Attrs[AttrHistory])
	})

	t.Run("source variable is retained", func(t *testing.T) {
		ds := singleVarDataset(stepVariable([]float64{1.0, 2.0}))

		_, err := Collapse(ds, "tp", DimLeadStep, AggSum)
		require.NoError(t, err)

		assert.Contains(t, ds.Vars, "tp", "collapse adds, it does not replace")
		assert.Contains(t, ds.Vars, "tp_sum")
	})

	t.Run("collapse over middle axis", func(t *testing.T) {
		// (base_time=1, lead_step=2, latitude=2): sums must land on the right
		// latitude cells.
		v := &Variable{
			Name:  "tp",
			Dims:  []string{DimBaseTime, DimLeadStep, DimLatitude},
			Shape: []int{1, 2, 2},
			Data:  []float64{1.0, 10.0, 2.0, nan},
			Attrs: map[string]string{AttrUnits: "mm"},
			Coords: map[string]Coordinate{
				DimBaseTime: {Name: DimBaseTime, Values: []float64{0}},
				DimLeadStep: {Name: DimLeadStep, Values: []float64{1, 2}},
				DimLatitude: {Name: DimLatitude, Values: []float64{40, 41}},
			},
		}
		ds := singleVarDataset(v)

		derived, err := Collapse(ds, "tp", DimLeadStep, AggSum)
		require.NoError(t, err)
		assert.Equal(t, []float64{3.0, 10.0}, derived.Data)
		assert.Equal(t, []int{1, 2}, derived.Shape)
		assert.Equal(t, 1.0, v.At(0, 0, 0))
		assert.Equal(t, 10.0, v.At(0, 0, 1))
		assert.Equal(t, 10.0, derived.At(0, 1))
	})

	t.Run("unknown variable", func(t *testing.T) {
		ds := singleVarDataset(stepVariable([]float64{1.0}))

		_, err := Collapse(ds, "nope", DimLeadStep, AggSum)
		require.ErrorIs(t, err, ErrVariableNotFound)
	})

	t.Run("unknown dimension", func(t *testing.T) {
		ds := singleVarDataset(stepVariable([]float64{1.0}))

		_, err := Collapse(ds, "tp", "pressure_level", AggSum)
		require.Error(t, err)
	})
}

func TestParseAggFunc(t *testing.T) {
	for _, name := range []string{"sum", "mean", "max"} {
		agg, err := ParseAggFunc(name)
		require.NoError(t, err)
		assert.Equal(t, AggFunc(name), agg)
	}

	_, err := ParseAggFunc("median")
	require.Error(t, err)
}
