package dataset

import (
	"fmt"
	"math"
)

// AggFunc names a reduction applied along the collapsed dimension. Which
// aggregation is physically meaningful depends on the variable (precipitation
// totals sum, temperatures do not), so it is configuration, not a constant.
type AggFunc string

const (
	AggSum  AggFunc = "sum"
	AggMean AggFunc = "mean"
	AggMax  AggFunc = "max"
)

// ParseAggFunc validates an aggregation name from configuration.
func ParseAggFunc(s string) (AggFunc, error) {
	switch AggFunc(s) {
	case AggSum, AggMean, AggMax:
		return AggFunc(s), nil
	default:
		return "", fmt.Errorf("dataset: unknown aggregation %q", s)
	}
}

// Collapse reduces one dimension of the named variable with the given
// aggregation and adds the result to the dataset as a new derived variable
// named "<variable>_<agg>". The source variable is retained; dropping it is
// an export-selection decision, not a collapse side effect.
//
// Missing values are excluded from the reduction. A point whose values along
// the collapsed dimension are all missing stays missing, not coerced
// to zero.
func Collapse(ds *Dataset, variable, dim string, agg AggFunc) (*Variable, error) {
	src, ok := ds.Vars[variable]
	if !ok {
		return nil, fmt.Errorf("dataset: collapse target %q: %w", variable, ErrVariableNotFound)
	}
	axis := src.DimIndex(dim)
	if axis < 0 {
		return nil, fmt.Errorf("dataset: variable %q has no dimension %q", variable, dim)
	}

	outer, n, inner := 1, src.Shape[axis], 1
	for _, s := range src.Shape[:axis] {
		outer *= s
	}
	for _, s := range src.Shape[axis+1:] {
		inner *= s
	}

	out := make([]float64, outer*inner)
	counts := make([]int, outer*inner)
	for i := range out {
		if agg == AggMax {
			out[i] = math.Inf(-1)
		}
	}

	for o := 0; o < outer; o++ {
		for k := 0; k < n; k++ {
			base := (o*n + k) * inner
			for j := 0; j < inner; j++ {
				x := src.Data[base+j]
				if IsMissing(x) {
					continue
				}
				oi := o*inner + j
				counts[oi]++
				switch agg {
				case AggSum, AggMean:
					out[oi] += x
				case AggMax:
					if x > out[oi] {
						out[oi] = x
					}
				}
			}
		}
	}

	for i := range out {
		if counts[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		if agg == AggMean {
			out[i] /= float64(counts[i])
		}
	}

	derived := &Variable{
		Name:  fmt.Sprintf("%s_%s", src.Name, agg),
		Dims:  removeAt(src.Dims, axis),
		Shape: removeAt(src.Shape, axis),
		Data:  out,
		Attrs: map[string]string{
			AttrUnits:    src.Unit(),
			AttrLongName: fmt.Sprintf("%s of %s over %s", agg, longNameOr(src), dim),
		},
		Coords: make(map[string]Coordinate, len(src.Coords)),
	}
	for name, c := range src.Coords {
		if name == dim {
			continue
		}
		derived.Coords[name] = c
	}
	appendHistory(derived.Attrs, fmt.Sprintf("collapsed %s over %s (%s)", src.Name, dim, agg))

	if _, dup := ds.Vars[derived.Name]; dup {
		return nil, fmt.Errorf("dataset: derived variable %q already exists", derived.Name)
	}
	ds.Vars[derived.Name] = derived
	return derived, nil
}

func removeAt[T any](s []T, i int) []T {
	out := make([]T, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

func longNameOr(v *Variable) string {
	if ln := v.Attrs[AttrLongName]; ln != "" {
		return ln
	}
	return v.Name
}
