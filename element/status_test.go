package element

import "testing"

func TestTaskStatus_IsValid(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{TaskStatusOpen, true},
		{TaskStatusInProgress, true},
		{TaskStatusBlocked, true},
		{TaskStatusClosed, true},
		{TaskStatusCancelled, true},
		{TaskStatus("done"), false},
		{TaskStatus(""), false},
	}

	for _, tt := range tests {
		name := string(tt.status)
		if name == "" {
			name = "empty_status"
		}
		t.Run(name, func(t *testing.T) {
			if got := tt.status.IsValid(); got != tt.want {
				t.Errorf("TaskStatus(%q).IsValid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestTaskStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{TaskStatusOpen, false},
		{TaskStatusInProgress, false},
		{TaskStatusBlocked, false},
		{TaskStatusClosed, true},
		{TaskStatusCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("TaskStatus(%q).IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestTaskStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		// From open
		{TaskStatusOpen, TaskStatusInProgress, true},
		{TaskStatusOpen, TaskStatusClosed, true},
		{TaskStatusOpen, TaskStatusCancelled, true},
		{TaskStatusOpen, TaskStatusOpen, false},

		// From in_progress
		{TaskStatusInProgress, TaskStatusClosed, true},
		{TaskStatusInProgress, TaskStatusBlocked, true},
		{TaskStatusInProgress, TaskStatusOpen, true},

		// Closed tasks may only reopen
		{TaskStatusClosed, TaskStatusOpen, true},
		{TaskStatusClosed, TaskStatusInProgress, false},
		{TaskStatusClosed, TaskStatusCancelled, false},

		// Cancelled is final
		{TaskStatusCancelled, TaskStatusOpen, false},
		{TaskStatusCancelled, TaskStatusClosed, false},

		// Invalid target
		{TaskStatusOpen, TaskStatus("done"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%q -> %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestPlanStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from PlanStatus
		to   PlanStatus
		want bool
	}{
		{PlanStatusDraft, PlanStatusActive, true},
		{PlanStatusDraft, PlanStatusCompleted, false},
		{PlanStatusActive, PlanStatusCompleted, true},
		{PlanStatusActive, PlanStatusCancelled, true},
		{PlanStatusCompleted, PlanStatusActive, false},
		{PlanStatusCancelled, PlanStatusDraft, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("PlanStatus CanTransitionTo(%q -> %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestWorkflowStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from WorkflowStatus
		to   WorkflowStatus
		want bool
	}{
		{WorkflowStatusPending, WorkflowStatusRunning, true},
		{WorkflowStatusPending, WorkflowStatusCompleted, false},
		{WorkflowStatusRunning, WorkflowStatusCompleted, true},
		{WorkflowStatusRunning, WorkflowStatusFailed, true},
		{WorkflowStatusCompleted, WorkflowStatusRunning, false},
		{WorkflowStatusFailed, WorkflowStatusRunning, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("WorkflowStatus CanTransitionTo(%q -> %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
