package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile(t *testing.T) {
	newVar := func() *Variable {
		v := tempVariable("K", 280.0, 281.0)
		// Auxiliary coordinate restating base_time + lead_step, as the GRIB
		// decoder attaches on every filtered load.
		v.Coords["valid_time"] = Coordinate{Name: "valid_time", Values: []float64{3600, 7200}}
		return v
	}

	t.Run("drops derived coordinate", func(t *testing.T) {
		v := newVar()

		require.NoError(t, Reconcile(v, DefaultReconcileRules))
		assert.NotContains(t, v.Coords, "valid_time")
		assert.Contains(t, v.Coords, DimBaseTime, "primary coordinates survive")
	})

	t.Run("absent coordinate is a no-op", func(t *testing.T) {
		v := tempVariable("K", 280.0)

		require.NoError(t, Reconcile(v, DefaultReconcileRules))
		assert.Contains(t, v.Coords, DimBaseTime)
	})

	t.Run("rule naming a primary coordinate fails", func(t *testing.T) {
		v := newVar()

		err := Reconcile(v, ReconcileRules{DimBaseTime: "nope"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), DimBaseTime)
	})

	t.Run("rule naming a dimension fails", func(t *testing.T) {
		v := newVar()
		v.Dims = []string{"valid_time"}
		v.Coords["valid_time"] = Coordinate{Name: "valid_time", Values: []float64{0, 1}}

		err := Reconcile(v, DefaultReconcileRules)
		require.Error(t, err)
	})

	t.Run("two independently loaded streams merge after reconciliation", func(t *testing.T) {
		a := newVar()
		b := newVar()
		b.Name = "tp"
		// Same instants, different encoding: the construction artifact the
		// reconciler exists for.
		b.Coords["valid_time"] = Coordinate{Name: "valid_time", Values: []float64{3600.0000001, 7200}}

		_, err := Merge(a, b)
		require.ErrorIs(t, err, ErrCoordinateMismatch, "without reconciliation the artifact is a false conflict")

		require.NoError(t, Reconcile(a, DefaultReconcileRules))
		require.NoError(t, Reconcile(b, DefaultReconcileRules))

		_, err = Merge(a, b)
		require.NoError(t, err)
	})
}

func TestVariableValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		require.NoError(t, tempVariable("K", 1, 2, 3).Validate())
	})

	t.Run("data shape mismatch", func(t *testing.T) {
		v := tempVariable("K", 1, 2, 3)
		v.Data = v.Data[:2]
		require.Error(t, v.Validate())
	})

	t.Run("coordinate length mismatch", func(t *testing.T) {
		v := tempVariable("K", 1, 2, 3)
		v.Coords[DimBaseTime] = Coordinate{Name: DimBaseTime, Values: []float64{0}}
		require.Error(t, v.Validate())
	})

	t.Run("dims shape mismatch", func(t *testing.T) {
		v := tempVariable("K", 1, 2)
		v.Dims = append(v.Dims, DimLatitude)
		require.Error(t, v.Validate())
	})
}

func TestLookupVariable(t *testing.T) {
	info, err := LookupVariable("t2m")
	require.NoError(t, err)
	assert.Equal(t, "2 metre temperature", info.LongName)
	assert.Equal(t, "°C", info.Units.Target)

	_, err = LookupVariable("z500")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}
