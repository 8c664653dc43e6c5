package dataset

import (
	"fmt"
	"time"
)

// Affine is a linear unit transform: x' = x*Scale + Offset.
type Affine struct {
	Scale  float64
	Offset float64
}

// apply transforms one value. NaN stays NaN, so missing points survive
// conversion unchanged.
func (a Affine) apply(x float64) float64 {
	return x*a.Scale + a.Offset
}

// UnitSpec declares a variable's target unit and the affine transform from
// each accepted source unit.
type UnitSpec struct {
	// Target is the unit tag the variable carries after normalization.
	Target string
	// Convert maps a source unit tag to its transform into Target.
	Convert map[string]Affine
}

// Normalize converts the variable's data to the spec's target unit in place
// and rewrites the unit tag.
//
// The current tag is checked first: a variable already tagged with the target
// unit is left untouched, so normalization is idempotent and a re-run can
// never double-apply a conversion. A missing tag, or a tag with no conversion
// rule, is ErrAmbiguousUnit. Silently assuming a unit mis-converts data in a
// way nothing downstream can detect.
func Normalize(v *Variable, spec UnitSpec) error {
	unit := v.Unit()
	if unit == "" {
		return fmt.Errorf("dataset: variable %q: no unit tag: %w", v.Name, ErrAmbiguousUnit)
	}
	if unit == spec.Target {
		return nil
	}
	aff, ok := spec.Convert[unit]
	if !ok {
		return fmt.Errorf("dataset: variable %q: no conversion from %q to %q: %w", v.Name, unit, spec.Target, ErrAmbiguousUnit)
	}

	for i, x := range v.Data {
		v.Data[i] = aff.apply(x)
	}
	v.Attrs[AttrUnits] = spec.Target
	appendHistory(v.Attrs, fmt.Sprintf("converted %s -> %s", unit, spec.Target))
	return nil
}

// appendHistory records a provenance line on the attribute map, stamped with
// the package clock so tests stay deterministic.
func appendHistory(attrs map[string]string, entry string) {
	line := fmt.Sprintf("%s: %s", clock.Now().UTC().Format(time.RFC3339), entry)
	if prev := attrs[AttrHistory]; prev != "" {
		line = prev + "\n" + line
	}
	attrs[AttrHistory] = line
}
