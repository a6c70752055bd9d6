package patients

import "errors"

var (
	// ErrNotFound is returned when a patient id does not resolve.
	ErrNotFound = errors.New("patient not found")

	// ErrSameStatus is returned when a transition targets the current status.
	ErrSameStatus = errors.New("target status equals current status")

	// ErrUnknownStatus is returned for a target status outside the enum.
	ErrUnknownStatus = errors.New("unknown target status")

	// ErrUnknownReason is returned when closing with an unrecognized reason.
	ErrUnknownReason = errors.New("unknown closed reason")

	// ErrVersionConflict is returned when a concurrent transition won the write.
	ErrVersionConflict = errors.New("patient was modified concurrently")
)
