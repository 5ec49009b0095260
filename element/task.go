package element

// TaskStatus represents the stored lifecycle state of a task.
//
// "blocked" is advisory: readiness is derived from the dependency graph
// on demand, and the stored status may lag behind the derived value.
type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "open"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusClosed     TaskStatus = "closed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// IsValid reports whether the status is one of the recognized values.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusOpen, TaskStatusInProgress, TaskStatusBlocked,
		TaskStatusClosed, TaskStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the status resolves the task. A terminal
// blocker no longer gates its dependents.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusClosed || s == TaskStatusCancelled
}

// CanTransitionTo reports whether a transition from s to next is allowed.
// Closed tasks may be reopened; cancelled is final.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if !next.IsValid() || s == next {
		return false
	}
	switch s {
	case TaskStatusOpen, TaskStatusInProgress, TaskStatusBlocked:
		return true
	case TaskStatusClosed:
		return next == TaskStatusOpen
	case TaskStatusCancelled:
		return false
	}
	return false
}

// Task is a unit of work tracked in the dependency graph.
type Task struct {
	Element `yaml:",inline"`

	Title       string            `json:"title" yaml:"title"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Status      TaskStatus        `json:"status" yaml:"status"`
	Fields      map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// NewTask creates an open task with a fresh type-prefixed ID.
func NewTask(title, createdBy string) *Task {
	return &Task{
		Element: newElement(TypeTask, createdBy),
		Title:   title,
		Status:  TaskStatusOpen,
	}
}

// Resolved reports whether the task no longer gates dependents.
// Soft-deleted tasks are excluded from derived computation entirely,
// so they count as resolved as well.
func (t *Task) Resolved() bool {
	return t.Deleted() || t.Status.IsTerminal()
}
