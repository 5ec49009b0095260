package element

// WorkflowStatus represents the lifecycle state of a workflow instance.
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// IsValid reports whether the status is one of the recognized values.
func (s WorkflowStatus) IsValid() bool {
	switch s {
	case WorkflowStatusPending, WorkflowStatusRunning, WorkflowStatusCompleted,
		WorkflowStatusFailed, WorkflowStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether a transition from s to next is allowed.
func (s WorkflowStatus) CanTransitionTo(next WorkflowStatus) bool {
	if !next.IsValid() || s == next {
		return false
	}
	switch s {
	case WorkflowStatusPending:
		return next == WorkflowStatusRunning || next == WorkflowStatusCancelled
	case WorkflowStatusRunning:
		return next == WorkflowStatusCompleted || next == WorkflowStatusFailed ||
			next == WorkflowStatusCancelled
	case WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled:
		return false
	}
	return false
}

// Workflow is a plan-like container instantiated from a playbook.
//
// Ephemeral workflows are disposable: they can be burned (hard-deleted
// along with their tasks) without an override. A squash promotes an
// ephemeral workflow to durable; the promotion is one-way.
type Workflow struct {
	Element `yaml:",inline"`

	Title      string            `json:"title" yaml:"title"`
	Status     WorkflowStatus    `json:"status" yaml:"status"`
	Ephemeral  bool              `json:"ephemeral" yaml:"ephemeral"`
	Variables  map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`
	PlaybookID string            `json:"playbook_id,omitempty" yaml:"playbook_id,omitempty"`
}

// NewWorkflow creates a pending workflow with a fresh type-prefixed ID.
func NewWorkflow(title, createdBy string, ephemeral bool) *Workflow {
	return &Workflow{
		Element:   newElement(TypeWorkflow, createdBy),
		Title:     title,
		Status:    WorkflowStatusPending,
		Ephemeral: ephemeral,
	}
}
