package dataset

import "fmt"

// Merge combines reconciled, normalized variable streams into one dataset
// over a shared coordinate system.
//
// Conflict policy, deliberately asymmetric:
//
//   - Attributes are metadata. When two streams disagree on a dataset-level
//     attribute key, the later stream in merge order wins. Lossy, tolerable.
//   - Coordinates are structural. When two streams disagree on the values (or
//     length) of a shared dimension, they do not describe the same grid and
//     the merge fails with ErrCoordinateMismatch wrapped in ErrNonMergeable.
//
// Merge never mutates its inputs; the returned dataset shares the variables'
// backing arrays.
func Merge(streams ...*Variable) (*Dataset, error) {
	if len(streams) == 0 {
		return nil, fmt.Errorf("dataset: no streams to merge: %w", ErrNonMergeable)
	}

	ds := &Dataset{
		Vars:   make(map[string]*Variable, len(streams)),
		Coords: make(map[string]Coordinate),
		Attrs:  make(map[string]string),
	}

	for _, v := range streams {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNonMergeable, err)
		}
		if _, dup := ds.Vars[v.Name]; dup {
			return nil, fmt.Errorf("dataset: duplicate variable %q: %w", v.Name, ErrNonMergeable)
		}

		for name, c := range v.Coords {
			existing, seen := ds.Coords[name]
			if !seen {
				// A newly introduced coordinate still has to fit the shapes of
				// streams merged before it, which may use the dimension without
				// carrying its coordinate array.
				for _, prev := range ds.Vars {
					j := prev.DimIndex(name)
					if j >= 0 && prev.Shape[j] != len(c.Values) {
						return nil, fmt.Errorf("dataset: variable %q: coordinate %q length %d conflicts with %q dimension length %d: %w: %w",
							v.Name, name, len(c.Values), prev.Name, prev.Shape[j], ErrCoordinateMismatch, ErrNonMergeable)
					}
				}
				ds.Coords[name] = c
				continue
			}
			if !existing.Equal(c) {
				return nil, fmt.Errorf("dataset: variable %q: coordinate %q disagrees with previously merged streams: %w: %w",
					v.Name, name, ErrCoordinateMismatch, ErrNonMergeable)
			}
		}

		// Dimensions without a coordinate array still must agree in length,
		// against both earlier streams and any adopted coordinate.
		for i, d := range v.Dims {
			if _, hasCoord := v.Coords[d]; hasCoord {
				continue
			}
			if c, ok := ds.Coords[d]; ok && len(c.Values) != v.Shape[i] {
				return nil, fmt.Errorf("dataset: variable %q: dimension %q length %d conflicts with coordinate length %d: %w: %w",
					v.Name, d, v.Shape[i], len(c.Values), ErrCoordinateMismatch, ErrNonMergeable)
			}
			for _, prev := range ds.Vars {
				j := prev.DimIndex(d)
				if j >= 0 && prev.Shape[j] != v.Shape[i] {
					return nil, fmt.Errorf("dataset: variable %q: dimension %q length %d conflicts with %q length %d: %w: %w",
						v.Name, d, v.Shape[i], prev.Name, prev.Shape[j], ErrCoordinateMismatch, ErrNonMergeable)
				}
			}
		}

		// Later streams override on attribute conflicts.
		for k, val := range v.Attrs {
			if k == AttrUnits || k == AttrLongName || k == AttrHistory {
				continue // per-variable metadata, never promoted
			}
			ds.Attrs[k] = val
		}

		ds.Vars[v.Name] = v
	}

	return ds, nil
}
