package flowmon

import "errors"

var (
	// ErrUnknownFlow is returned when querying a flow that has never been
	// observed.
	ErrUnknownFlow = errors.New("flowmon: unknown flow")

	// ErrDivisionUndefined is returned when an average has no samples.
	ErrDivisionUndefined = errors.New("flowmon: division undefined")
)
