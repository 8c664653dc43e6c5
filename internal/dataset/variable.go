package dataset

import (
	"fmt"
	"math"
	"sort"
)

// Canonical dimension names. Adapters translate archive-native names
// (e.g. "time", "step" in cfgrib output) to these on load.
const (
	DimBaseTime  = "base_time"
	DimLeadStep  = "lead_step"
	DimLatitude  = "latitude"
	DimLongitude = "longitude"
)

// Well-known attribute keys.
const (
	AttrUnits    = "units"
	AttrLongName = "long_name"
	AttrHistory  = "history"
)

// Coordinate is a named 1-D index array along one dimension.
type Coordinate struct {
	Name   string
	Values []float64
}

// Equal reports whether two coordinates have identical values. Equality is
// exact: a construction artifact that shifts a value by one ULP is exactly
// the kind of conflict the merge must refuse to paper over.
func (c Coordinate) Equal(other Coordinate) bool {
	if len(c.Values) != len(other.Values) {
		return false
	}
	for i, v := range c.Values {
		if v != other.Values[i] {
			return false
		}
	}
	return true
}

// Variable is one physical quantity: a flat row-major float64 array indexed
// by ordered named dimensions, plus its coordinate arrays and attributes.
// NaN marks a missing data point.
type Variable struct {
	Name   string
	Dims   []string
	Shape  []int
	Data   []float64
	Attrs  map[string]string
	Coords map[string]Coordinate
}

// Size returns the number of elements implied by the shape.
func (v *Variable) Size() int {
	n := 1
	for _, s := range v.Shape {
		n *= s
	}
	return n
}

// Unit returns the variable's unit tag, or "" if absent.
func (v *Variable) Unit() string {
	return v.Attrs[AttrUnits]
}

// DimIndex returns the axis position of the named dimension, or -1.
func (v *Variable) DimIndex(dim string) int {
	for i, d := range v.Dims {
		if d == dim {
			return i
		}
	}
	return -1
}

// At returns the value at the given index tuple, one index per dimension.
func (v *Variable) At(idx ...int) float64 {
	if len(idx) != len(v.Shape) {
		panic(fmt.Sprintf("dataset: variable %q: got %d indices for %d dims", v.Name, len(idx), len(v.Shape)))
	}
	flat := 0
	for i, x := range idx {
		flat = flat*v.Shape[i] + x
	}
	return v.Data[flat]
}

// Validate checks the internal consistency of the variable: dims and shape
// agree, the data length matches the shape, and every coordinate array has
// the length of its dimension.
func (v *Variable) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("dataset: variable has no name")
	}
	if len(v.Dims) != len(v.Shape) {
		return fmt.Errorf("dataset: variable %q: %d dims but %d shape entries", v.Name, len(v.Dims), len(v.Shape))
	}
	if len(v.Data) != v.Size() {
		return fmt.Errorf("dataset: variable %q: data length %d does not match shape %v", v.Name, len(v.Data), v.Shape)
	}
	for i, d := range v.Dims {
		c, ok := v.Coords[d]
		if !ok {
			continue
		}
		if len(c.Values) != v.Shape[i] {
			return fmt.Errorf("dataset: variable %q: coordinate %q has %d values, dimension has %d", v.Name, d, len(c.Values), v.Shape[i])
		}
	}
	return nil
}

// Clone returns a deep copy of the variable. Transformations that rewrite
// data operate on copies so a failed pipeline run never leaves a
// half-converted stream behind.
func (v *Variable) Clone() *Variable {
	out := &Variable{
		Name:   v.Name,
		Dims:   append([]string(nil), v.Dims...),
		Shape:  append([]int(nil), v.Shape...),
		Data:   append([]float64(nil), v.Data...),
		Attrs:  make(map[string]string, len(v.Attrs)),
		Coords: make(map[string]Coordinate, len(v.Coords)),
	}
	for k, val := range v.Attrs {
		out.Attrs[k] = val
	}
	for k, c := range v.Coords {
		out.Coords[k] = Coordinate{Name: c.Name, Values: append([]float64(nil), c.Values...)}
	}
	return out
}

// IsMissing reports whether x marks a missing data point.
func IsMissing(x float64) bool {
	return math.IsNaN(x)
}

// Dataset is the union of merged variables over one shared coordinate
// system, plus dataset-level attributes.
type Dataset struct {
	Vars   map[string]*Variable
	Coords map[string]Coordinate
	Attrs  map[string]string
}

// VarNames returns the variable names in sorted order for deterministic
// iteration.
func (d *Dataset) VarNames() []string {
	names := make([]string, 0, len(d.Vars))
	for name := range d.Vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CoordNames returns the coordinate names in sorted order.
func (d *Dataset) CoordNames() []string {
	names := make([]string, 0, len(d.Coords))
	for name := range d.Coords {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
