package dataset

import "errors"

// Sentinel errors for the transformation stages. Callers match with
// errors.Is; every error carries the variable or coordinate that triggered it
// via wrapping.
var (
	// ErrVariableNotFound indicates the archive contains no message matching
	// the requested selector.
	ErrVariableNotFound = errors.New("variable not found")

	// ErrUnreadableArchive indicates the archive could not be opened or
	// decoded at all.
	ErrUnreadableArchive = errors.New("unreadable archive")

	// ErrAmbiguousUnit indicates a variable's unit tag is missing or not
	// covered by its conversion rules. Converting on a guess is worse than
	// aborting.
	ErrAmbiguousUnit = errors.New("ambiguous unit")

	// ErrCoordinateMismatch indicates two streams disagree on the values of a
	// shared dimension. This is a structural conflict, never resolved by
	// precedence.
	ErrCoordinateMismatch = errors.New("coordinate mismatch")

	// ErrNonMergeable indicates Merge cannot combine the given streams into
	// one dataset.
	ErrNonMergeable = errors.New("non-mergeable streams")
)
