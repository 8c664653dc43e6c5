package dataset

import "fmt"

// primaryCoords are the structural axes of the grid. They are never eligible
// for removal, no matter what a rule set says.
var primaryCoords = map[string]bool{
	DimBaseTime:  true,
	DimLeadStep:  true,
	DimLatitude:  true,
	DimLongitude: true,
}

// ReconcileRules declares which auxiliary coordinates may be dropped before a
// merge, keyed by coordinate name with a human-readable reason. New variable
// types are onboarded by extending the rule set, not by adding conditionals.
type ReconcileRules map[string]string

// DefaultReconcileRules covers the derived coordinates the ERA5 GRIB decoder
// attaches to every variable it emits.
var DefaultReconcileRules = ReconcileRules{
	// valid_time restates base_time + lead_step per variable. Decoders
	// reconstruct it independently on each filtered load, so its encoding can
	// differ between variables that describe the same instants.
	"valid_time": "derived from base_time + lead_step",
}

// Reconcile removes every coordinate named by the rules from the variable.
// A named coordinate that is absent is a no-op, not an error. A rule that
// names a primary coordinate is a configuration bug and fails loudly.
//
// Only non-dimensional (auxiliary) coordinates may be dropped: a coordinate
// that is also one of the variable's dimensions is structural even if a rule
// names it.
func Reconcile(v *Variable, rules ReconcileRules) error {
	for name := range rules {
		if primaryCoords[name] {
			return fmt.Errorf("dataset: reconcile rule names primary coordinate %q", name)
		}
		if _, ok := v.Coords[name]; !ok {
			continue
		}
		if v.DimIndex(name) >= 0 {
			return fmt.Errorf("dataset: variable %q: coordinate %q is a dimension and cannot be dropped", v.Name, name)
		}
		delete(v.Coords, name)
	}
	return nil
}
