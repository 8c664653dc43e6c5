package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gridVariable builds a (base_time, latitude) variable with the given
// coordinate arrays and sequential data values.
func gridVariable(name string, times, lats []float64) *Variable {
	data := make([]float64, len(times)*len(lats))
	for i := range data {
		data[i] = float64(i) + 0.5
	}
	return &Variable{
		Name:  name,
		Dims:  []string{DimBaseTime, DimLatitude},
		Shape: []int{len(times), len(lats)},
		Data:  data,
		Attrs: map[string]string{AttrUnits: "K", "source": name},
		Coords: map[string]Coordinate{
			DimBaseTime: {Name: DimBaseTime, Values: times},
			DimLatitude: {Name: DimLatitude, Values: lats},
		},
	}
}

func TestMerge(t *testing.T) {
	times := []float64{0, 3600, 7200}
	lats := []float64{40.0, 40.25, 40.5, 40.75}

	t.Run("identical grids merge and preserve values", func(t *testing.T) {
		a := gridVariable("t2m", times, lats)
		b := gridVariable("tp", times, lats)
		wantA := append([]float64(nil), a.Data...)
		wantB := append([]float64(nil), b.Data...)

		ds, err := Merge(a, b)
		require.NoError(t, err)

		assert.Equal(t, []string{"t2m", "tp"}, ds.VarNames())
		assert.Equal(t, wantA, ds.Vars["t2m"].Data)
		assert.Equal(t, wantB, ds.Vars["tp"].Data)
		assert.Equal(t, 6.5, ds.Vars["t2m"].At(1, 2), "row-major indexing survives the merge")
		assert.Equal(t, times, ds.Coords[DimBaseTime].Values)
		assert.Equal(t, lats, ds.Coords[DimLatitude].Values)
	})

	t.Run("later stream wins attribute conflicts", func(t *testing.T) {
		a := gridVariable("t2m", times, lats)
		b := gridVariable("tp", times, lats)

		ds, err := Merge(a, b)
		require.NoError(t, err)
		assert.Equal(t, "tp", ds.Attrs["source"], "explicit override precedence, not last-write ambiguity")
	})

	t.Run("coordinate value conflict is fatal", func(t *testing.T) {
		a := gridVariable("t2m", times, lats)
		shifted := append([]float64(nil), lats...)
		shifted[1] += 1e-9 // construction artifact, not a physical difference
		b := gridVariable("tp", times, shifted)

		_, err := Merge(a, b)
		require.ErrorIs(t, err, ErrCoordinateMismatch)
		require.ErrorIs(t, err, ErrNonMergeable)
		assert.Contains(t, err.Error(), DimLatitude)
	})

	t.Run("coordinate length conflict is fatal", func(t *testing.T) {
		a := gridVariable("t2m", times, lats)
		b := gridVariable("tp", times[:2], lats)

		_, err := Merge(a, b)
		require.ErrorIs(t, err, ErrCoordinateMismatch)
	})

	t.Run("length conflict is fatal in either merge order", func(t *testing.T) {
		// One stream uses latitude without carrying its coordinate array, the
		// other carries a latitude coordinate of a different length. The
		// conflict must surface no matter which stream is merged first.
		bare := gridVariable("t2m", times, lats[:3])
		delete(bare.Coords, DimLatitude)
		carrier := gridVariable("tp", times, lats)

		_, err := Merge(bare, carrier)
		require.ErrorIs(t, err, ErrCoordinateMismatch)
		require.ErrorIs(t, err, ErrNonMergeable)

		_, err = Merge(carrier, bare)
		require.ErrorIs(t, err, ErrCoordinateMismatch)
		require.ErrorIs(t, err, ErrNonMergeable)
	})

	t.Run("uncoordinated dimension length conflict is fatal", func(t *testing.T) {
		a := gridVariable("t2m", times, lats)
		b := gridVariable("tp", times, lats)
		delete(a.Coords, DimLatitude)
		delete(b.Coords, DimLatitude)
		b.Shape = []int{len(times), 2}
		b.Data = b.Data[:len(times)*2]

		_, err := Merge(a, b)
		require.ErrorIs(t, err, ErrCoordinateMismatch)
	})

	t.Run("duplicate variable name is non-mergeable", func(t *testing.T) {
		a := gridVariable("t2m", times, lats)
		b := gridVariable("t2m", times, lats)

		_, err := Merge(a, b)
		require.ErrorIs(t, err, ErrNonMergeable)
		assert.NotErrorIs(t, err, ErrCoordinateMismatch)
	})

	t.Run("invalid stream is non-mergeable", func(t *testing.T) {
		a := gridVariable("t2m", times, lats)
		a.Data = a.Data[:3] // shape no longer matches

		_, err := Merge(a)
		require.ErrorIs(t, err, ErrNonMergeable)
	})

	t.Run("empty input is non-mergeable", func(t *testing.T) {
		_, err := Merge()
		require.ErrorIs(t, err, ErrNonMergeable)
	})

	t.Run("per-variable metadata is not promoted", func(t *testing.T) {
		a := gridVariable("t2m", times, lats)
		ds, err := Merge(a)
		require.NoError(t, err)
		assert.NotContains(t, ds.Attrs, AttrUnits)
	})
}
