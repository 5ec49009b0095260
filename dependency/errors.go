package dependency

import "errors"

// Sentinel errors for graph mutations.
var (
	// ErrInvalidType is returned for an unrecognized dependency type.
	ErrInvalidType = errors.New("invalid dependency type")

	// ErrDuplicate is returned when an edge with the same
	// (source, target, type) triple already exists.
	ErrDuplicate = errors.New("dependency already exists")

	// ErrCycle is returned when inserting an edge would close a
	// directed cycle within its acyclicity family.
	ErrCycle = errors.New("dependency would create a cycle")

	// ErrEdgeNotFound is returned when removing an edge that does not exist.
	ErrEdgeNotFound = errors.New("dependency not found")

	// ErrElementNotFound is returned when an endpoint element cannot be
	// resolved.
	ErrElementNotFound = errors.New("element not found")

	// ErrElementDeleted is returned when an endpoint element is
	// soft-deleted.
	ErrElementDeleted = errors.New("element is deleted")

	// ErrAlreadyContained is returned when a task already belongs to
	// another plan or workflow container.
	ErrAlreadyContained = errors.New("element already belongs to a container")
)
