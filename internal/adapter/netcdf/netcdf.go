// Package netcdf loads ERA5 variables from NetCDF downloads as an alternate
// archive backend. The Copernicus climate data store serves ERA5 either as
// GRIB-derived extract archives or as NetCDF; this adapter makes both
// interchangeable behind the pipeline's VariableOpener.
//
// CF packing (scale_factor/add_offset) and fill values are resolved on load:
// the returned variable always carries unpacked float64 data with NaN for
// missing points, matching what the extract archive reader produces.
package netcdf

import (
	"context"
	"fmt"
	"math"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/sayantanonfire/era5-export/internal/dataset"
)

// dimRenames maps NetCDF dimension names to the canonical names the dataset
// package uses. Unlisted names pass through unchanged.
var dimRenames = map[string]string{
	"time": dataset.DimBaseTime,
	"step": dataset.DimLeadStep,
}

// packingAttrs are consumed during unpacking and not carried onto the
// variable: the data they describe no longer exists after load.
var packingAttrs = map[string]bool{
	"scale_factor":  true,
	"add_offset":    true,
	"_FillValue":    true,
	"missing_value": true,
}

// Reader opens NetCDF archives filtered to one variable at a time.
// It implements the pipeline's VariableOpener.
type Reader struct {
	path string
}

// NewReader creates a Reader over the NetCDF file at path.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// OpenVariable reads exactly the named variable plus the coordinate arrays of
// its dimensions. Other variables in the file are never materialized.
func (r *Reader) OpenVariable(ctx context.Context, selector string) (*dataset.Variable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nc, err := netcdf.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("netcdf %s: %w: %w", r.path, dataset.ErrUnreadableArchive, err)
	}
	defer nc.Close()

	vg, err := nc.GetVarGetter(selector)
	if err != nil {
		return nil, fmt.Errorf("netcdf %s: variable %q: %w: %w", r.path, selector, dataset.ErrVariableNotFound, err)
	}

	raw, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("netcdf %s: variable %q: %w: %w", r.path, selector, dataset.ErrUnreadableArchive, err)
	}
	data, shape, err := flatten(raw)
	if err != nil {
		return nil, fmt.Errorf("netcdf %s: variable %q: %w", r.path, selector, err)
	}

	var attrs attrMap = vg.Attributes()
	unpack(data, attrs)

	v := &dataset.Variable{
		Name:   selector,
		Dims:   renameDims(vg.Dimensions()),
		Shape:  shape,
		Data:   data,
		Attrs:  stringAttrs(attrs),
		Coords: make(map[string]dataset.Coordinate, len(shape)),
	}

	for _, dim := range v.Dims {
		coord, ok, err := r.readCoord(nc, dim)
		if err != nil {
			return nil, fmt.Errorf("netcdf %s: coordinate %q: %w", r.path, dim, err)
		}
		if ok {
			v.Coords[dim] = coord
		}
	}

	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("netcdf %s: %w: %w", r.path, dataset.ErrUnreadableArchive, err)
	}
	return v, nil
}

// readCoord loads the 1-D coordinate variable for a (canonical) dimension
// name, if the file has one.
func (r *Reader) readCoord(nc api.Group, dim string) (dataset.Coordinate, bool, error) {
	// Coordinate variables keep the file-native name.
	native := dim
	for from, to := range dimRenames {
		if to == dim {
			native = from
		}
	}

	vg, err := nc.GetVarGetter(native)
	if err != nil {
		return dataset.Coordinate{}, false, nil // dimension without coordinate array
	}
	raw, err := vg.Values()
	if err != nil {
		return dataset.Coordinate{}, false, err
	}
	values, shape, err := flatten(raw)
	if err != nil {
		return dataset.Coordinate{}, false, err
	}
	if len(shape) != 1 {
		return dataset.Coordinate{}, false, fmt.Errorf("expected 1-D coordinate, got shape %v", shape)
	}
	return dataset.Coordinate{Name: dim, Values: values}, true, nil
}

func renameDims(dims []string) []string {
	out := make([]string, len(dims))
	for i, d := range dims {
		if canonical, ok := dimRenames[d]; ok {
			out[i] = canonical
			continue
		}
		out[i] = d
	}
	return out
}

// unpack applies CF scale_factor/add_offset and replaces fill values with NaN
// in place. Fill comparison happens on the raw value, before scaling.
func unpack(data []float64, attrs attrMap) {
	scale, hasScale := attrFloat(attrs, "scale_factor")
	offset, hasOffset := attrFloat(attrs, "add_offset")
	fill, hasFill := attrFloat(attrs, "_FillValue")
	if !hasFill {
		fill, hasFill = attrFloat(attrs, "missing_value")
	}
	if !hasScale && !hasOffset && !hasFill {
		return
	}
	if !hasScale {
		scale = 1
	}

	for i, x := range data {
		if hasFill && x == fill {
			data[i] = math.NaN()
			continue
		}
		data[i] = x*scale + offset
	}
}

// attrMap is the subset of api.AttributeMap this package needs; tests fake it.
type attrMap interface {
	Keys() []string
	Get(key string) (any, bool)
}

// attrFloat fetches a numeric attribute, tolerating the scalar integer and
// float widths NetCDF files actually use.
func attrFloat(attrs attrMap, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	raw, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	rv := reflect.ValueOf(raw)
	for rv.Kind() == reflect.Slice && rv.Len() == 1 {
		rv = rv.Index(0)
	}
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	default:
		return 0, false
	}
}

// stringAttrs converts the NetCDF attribute map to the dataset's flat string
// attributes, dropping packing attributes that unpack already consumed.
func stringAttrs(attrs attrMap) map[string]string {
	out := make(map[string]string)
	if attrs == nil {
		return out
	}
	for _, key := range attrs.Keys() {
		if packingAttrs[key] {
			continue
		}
		if raw, ok := attrs.Get(key); ok {
			out[key] = fmt.Sprint(raw)
		}
	}
	return out
}

// flatten converts the arbitrarily nested numeric slices the NetCDF library
// returns into a flat row-major float64 array plus its shape.
func flatten(raw any) ([]float64, []int, error) {
	shape, err := shapeOf(reflect.ValueOf(raw))
	if err != nil {
		return nil, nil, err
	}
	size := 1
	for _, s := range shape {
		size *= s
	}
	out := make([]float64, 0, size)
	out, err = appendFlat(out, reflect.ValueOf(raw))
	if err != nil {
		return nil, nil, err
	}
	if len(out) != size {
		return nil, nil, fmt.Errorf("ragged array: got %d values for shape %v", len(out), shape)
	}
	return out, shape, nil
}

func shapeOf(rv reflect.Value) ([]int, error) {
	var shape []int
	for rv.Kind() == reflect.Slice {
		shape = append(shape, rv.Len())
		if rv.Len() == 0 {
			return nil, fmt.Errorf("empty dimension in array of type %s", rv.Type())
		}
		rv = rv.Index(0)
	}
	if !isNumericKind(rv.Kind()) {
		return nil, fmt.Errorf("unsupported element type %s", rv.Type())
	}
	if shape == nil {
		shape = []int{} // scalar
	}
	return shape, nil
}

func appendFlat(out []float64, rv reflect.Value) ([]float64, error) {
	if rv.Kind() != reflect.Slice {
		x, err := numericValue(rv)
		if err != nil {
			return nil, err
		}
		return append(out, x), nil
	}
	var err error
	for i := 0; i < rv.Len(); i++ {
		out, err = appendFlat(out, rv.Index(i))
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func numericValue(rv reflect.Value) (float64, error) {
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	default:
		return 0, fmt.Errorf("unsupported element type %s", rv.Type())
	}
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Float32, reflect.Float64,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}
