package dataset

import (
	"fmt"
	"sort"
)

// VariableInfo is the onboarding record for one ERA5 quantity: the short
// selector used to filter the archive, display metadata, unit normalization
// rules, and the aggregation used if its lead-step dimension is collapsed.
type VariableInfo struct {
	Selector string
	LongName string
	Units    UnitSpec
	// Collapse is the aggregation applied over lead_step when the variable is
	// configured for collapsing. Zero value means the variable has no
	// meaningful lead-step total.
	Collapse AggFunc
}

// KnownVariables registers the ERA5 single-level quantities the pipeline
// understands. ERA5 publishes temperatures in Kelvin and water quantities as
// metre-equivalent depths; downstream consumers want Celsius and millimetres.
var KnownVariables = map[string]VariableInfo{
	"t2m": {
		Selector: "t2m",
		LongName: "2 metre temperature",
		Units: UnitSpec{
			Target:  "°C",
			Convert: map[string]Affine{"K": {Scale: 1, Offset: -273.15}},
		},
	},
	"tp": {
		Selector: "tp",
		LongName: "Total precipitation",
		Units: UnitSpec{
			Target:  "mm",
			Convert: map[string]Affine{"m": {Scale: 1000}},
		},
		Collapse: AggSum,
	},
	"sf": {
		Selector: "sf",
		LongName: "Snowfall",
		Units: UnitSpec{
			Target:  "mm",
			Convert: map[string]Affine{"m": {Scale: 1000}},
		},
		Collapse: AggSum,
	},
	"u10": {
		Selector: "u10",
		LongName: "10 metre U wind component",
		Units:    UnitSpec{Target: "m s**-1"},
	},
	"v10": {
		Selector: "v10",
		LongName: "10 metre V wind component",
		Units:    UnitSpec{Target: "m s**-1"},
	},
	"tcc": {
		Selector: "tcc",
		LongName: "Total cloud cover",
		Units: UnitSpec{
			Target:  "%",
			Convert: map[string]Affine{"(0 - 1)": {Scale: 100}},
		},
	},
}

// LookupVariable resolves a selector against the registry.
func LookupVariable(selector string) (VariableInfo, error) {
	info, ok := KnownVariables[selector]
	if !ok {
		return VariableInfo{}, fmt.Errorf("dataset: selector %q not registered (known: %v)", selector, knownSelectors())
	}
	return info, nil
}

func knownSelectors() []string {
	names := make([]string, 0, len(KnownVariables))
	for name := range KnownVariables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
