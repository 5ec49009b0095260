package engine

import "errors"

var (
	// ErrInitialTaskRequired rejects creating a plan with no tasks:
	// containers are never empty.
	ErrInitialTaskRequired = errors.New("plan requires at least one initial task")

	// ErrLastTask rejects removing the sole live task of a container.
	ErrLastTask = errors.New("cannot remove the last task of a container")

	// ErrInvalidTransition rejects a status change the task lifecycle
	// does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDurableWorkflow rejects burning a durable workflow without
	// force.
	ErrDurableWorkflow = errors.New("workflow is durable; burn requires force")

	// ErrAlreadyDurable rejects squashing a workflow twice.
	ErrAlreadyDurable = errors.New("workflow is already durable")

	// ErrSelfManagement rejects an entity managing itself.
	ErrSelfManagement = errors.New("entity cannot manage itself")

	// ErrReportingCycle rejects a manager assignment that would close a
	// reporting loop.
	ErrReportingCycle = errors.New("assignment would create a reporting cycle")
)
