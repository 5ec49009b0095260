package element

// PlanStatus represents the lifecycle state of a plan.
type PlanStatus string

const (
	PlanStatusDraft     PlanStatus = "draft"
	PlanStatusActive    PlanStatus = "active"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusCancelled PlanStatus = "cancelled"
)

// IsValid reports whether the status is one of the recognized values.
func (s PlanStatus) IsValid() bool {
	switch s {
	case PlanStatusDraft, PlanStatusActive, PlanStatusCompleted, PlanStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether a transition from s to next is allowed.
func (s PlanStatus) CanTransitionTo(next PlanStatus) bool {
	if !next.IsValid() || s == next {
		return false
	}
	switch s {
	case PlanStatusDraft:
		return next == PlanStatusActive || next == PlanStatusCancelled
	case PlanStatusActive:
		return next == PlanStatusCompleted || next == PlanStatusCancelled
	case PlanStatusCompleted, PlanStatusCancelled:
		return false
	}
	return false
}

// Plan is an ordered collection of tasks, connected to its members via
// parent-child containment edges (child task -> plan). A plan contains
// at least one non-deleted task at all times; the engine enforces that
// invariant at creation and at task removal.
type Plan struct {
	Element `yaml:",inline"`

	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Status      PlanStatus `json:"status" yaml:"status"`
}

// NewPlan creates a draft plan with a fresh type-prefixed ID.
func NewPlan(title, createdBy string) *Plan {
	return &Plan{
		Element: newElement(TypePlan, createdBy),
		Title:   title,
		Status:  PlanStatusDraft,
	}
}
