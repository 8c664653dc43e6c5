// Package dataset models gridded ERA5 reanalysis data as labeled
// multi-dimensional arrays and implements the pure transformations of the
// export pipeline: coordinate reconciliation, unit normalization, merging,
// and lead-step collapsing.
//
// # Data shape
//
// A [Variable] is one physical quantity (2 metre temperature, total
// precipitation, ...) stored as a flat row-major float64 slice indexed by an
// ordered list of named dimensions, typically some subset of
//
//	base_time   forecast issue time, seconds since the Unix epoch
//	lead_step   forecast offset from base_time, hours
//	latitude    degrees north
//	longitude   degrees east
//
// Each dimension carries a coordinate array describing the index values along
// it. NaN marks a missing data point; there is no separate mask.
//
// # Coordinate conflicts
//
// Variables are loaded from the archive independently, one filtered pass per
// quantity. Derived coordinates such as valid_time (base_time + lead_step)
// are reconstructed per variable by the decoder and can differ between loads
// by representation alone: same instant, different encoding. Left in place
// they poison the merge with false conflicts, so [Reconcile] drops them
// according to a declarative rule set before any merge is attempted. Primary
// coordinates are never eligible for removal.
//
// # Merge policy
//
// [Merge] unions variables over a shared coordinate system. Attribute
// conflicts are metadata and resolve by merge order (later stream wins).
// Coordinate-value conflicts on a shared dimension are structural: the
// streams do not describe the same grid, and the merge fails with
// [ErrCoordinateMismatch].
//
// # Units
//
// Conversions are affine (scale and offset) and keyed on the current unit
// tag, so applying [Normalize] to an already-converted variable is a no-op
// rather than a double conversion. A missing or unrecognized tag is
// [ErrAmbiguousUnit]: guessing units corrupts data silently, aborting does not.
package dataset
