package types

import "errors"

var (
	// ErrNotFound indicates that a referenced entity or edge is absent from
	// the store. Surfaced to the caller with no mutation performed.
	ErrNotFound = errors.New("resource not found")

	// ErrValidation indicates a malformed event or request (out-of-range
	// values, wrong participant counts, weight sums not normalized).
	// Always rejected before any mutation; fully recoverable by the caller
	// correcting its input.
	ErrValidation = errors.New("validation failed")

	// ErrInvariant indicates that a computed trait or edge value would fall
	// outside its defined range after all clamping - a configuration bug
	// such as an uncompensatable sensitivity multiplier. The operation
	// aborts without partial mutation.
	ErrInvariant = errors.New("invariant violation")
)
