// Package engine coordinates lifecycle mutations across the store, the
// dependency graph, and the derived-state calculator. The graph owns
// edge validation; the engine owns element lifecycles and the
// invariants that span both, like non-empty containers and reporting
// hierarchies.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loomworks/loom/audit"
	"github.com/loomworks/loom/dependency"
	"github.com/loomworks/loom/derive"
	"github.com/loomworks/loom/element"
	"github.com/loomworks/loom/playbook"
	"github.com/loomworks/loom/pour"
	"github.com/loomworks/loom/store"
)

// TaskSpec describes a task to create inside a container.
type TaskSpec struct {
	Title       string
	Description string
	Fields      map[string]string
	Tags        []string
}

// Manager is the mutation front door.
type Manager struct {
	store    store.Store
	graph    *dependency.Graph
	calc     *derive.Calculator
	recorder audit.Recorder
	logger   *slog.Logger
}

// New wires a manager. Pass nil for recorder or logger to get
// audit.Discard and slog.Default.
func New(st store.Store, graph *dependency.Graph, calc *derive.Calculator, recorder audit.Recorder, logger *slog.Logger) *Manager {
	if recorder == nil {
		recorder = audit.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: st, graph: graph, calc: calc, recorder: recorder, logger: logger}
}

// CreatePlan creates a plan with its initial tasks and the containment
// edges that tie them together. At least one task is required so the
// plan never exists empty.
func (m *Manager) CreatePlan(ctx context.Context, title, createdBy string, initial []TaskSpec) (*element.Plan, []*element.Task, error) {
	if len(initial) == 0 {
		return nil, nil, ErrInitialTaskRequired
	}

	plan := element.NewPlan(title, createdBy)
	if err := m.store.PutPlan(ctx, plan); err != nil {
		return nil, nil, fmt.Errorf("put plan: %w", err)
	}
	m.emit(ctx, audit.NewEvent(audit.KindElementCreated, plan.ID, createdBy))

	tasks := make([]*element.Task, 0, len(initial))
	for _, spec := range initial {
		task, err := m.createTask(ctx, plan.ID, spec, createdBy)
		if err != nil {
			return nil, nil, err
		}
		tasks = append(tasks, task)
	}
	return plan, tasks, nil
}

// AddTask creates a task inside an existing plan or workflow.
func (m *Manager) AddTask(ctx context.Context, containerID string, spec TaskSpec, actor string) (*element.Task, error) {
	container, err := m.store.GetElement(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("container %s: %w", containerID, err)
	}
	if container.Deleted() {
		return nil, fmt.Errorf("container %s: %w", containerID, dependency.ErrElementDeleted)
	}
	return m.createTask(ctx, containerID, spec, actor)
}

func (m *Manager) createTask(ctx context.Context, containerID string, spec TaskSpec, actor string) (*element.Task, error) {
	task := element.NewTask(spec.Title, actor)
	task.Description = spec.Description
	task.Fields = spec.Fields
	for _, tag := range spec.Tags {
		task.AddTag(tag)
	}

	if err := m.store.PutTask(ctx, task); err != nil {
		return nil, fmt.Errorf("put task: %w", err)
	}
	if _, err := m.graph.Add(ctx, task.ID, containerID, dependency.TypeParentChild, nil, actor); err != nil {
		// Keep the store consistent with the graph.
		if delErr := m.store.Delete(ctx, task.ID); delErr != nil {
			m.logger.Error("orphaned task after failed containment", "task", task.ID, "error", delErr)
		}
		return nil, err
	}
	m.emit(ctx, audit.NewEvent(audit.KindElementCreated, task.ID, actor))
	return task, nil
}

// RemoveTask soft-deletes a member task and drops its containment edge.
// The container must retain at least one live task.
func (m *Manager) RemoveTask(ctx context.Context, containerID, taskID, actor string) error {
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("task %s: %w", taskID, err)
	}
	if task.Deleted() {
		return fmt.Errorf("task %s: %w", taskID, dependency.ErrElementDeleted)
	}

	live := 0
	for _, edge := range m.graph.GetIncoming(containerID, dependency.TypeParentChild) {
		member, err := m.store.GetTask(ctx, edge.SourceID)
		if err != nil || member.Deleted() {
			continue
		}
		live++
	}
	if live <= 1 {
		return fmt.Errorf("container %s: %w", containerID, ErrLastTask)
	}

	if err := m.graph.Remove(ctx, taskID, containerID, dependency.TypeParentChild, actor); err != nil {
		return err
	}
	if err := m.store.SoftDelete(ctx, taskID, time.Now().UTC()); err != nil {
		return fmt.Errorf("soft delete task %s: %w", taskID, err)
	}
	m.emit(ctx, audit.NewEvent(audit.KindElementDeleted, taskID, actor))
	return nil
}

// SetTaskStatus applies a lifecycle transition and emits auto_blocked /
// auto_unblocked events for downstream tasks whose readiness flipped.
func (m *Manager) SetTaskStatus(ctx context.Context, taskID string, next element.TaskStatus, actor string) error {
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("task %s: %w", taskID, err)
	}
	if task.Status == next {
		return nil
	}
	if !task.Status.CanTransitionTo(next) {
		return fmt.Errorf("%s -> %s: %w", task.Status, next, ErrInvalidTransition)
	}

	downstream := m.graph.GetOutgoing(taskID, dependency.TypeBlocks, dependency.TypeAwaits)
	before := make(map[string]bool, len(downstream))
	for _, edge := range downstream {
		blocked, err := m.calc.IsBlocked(ctx, edge.TargetID)
		if err != nil {
			return err
		}
		before[edge.TargetID] = blocked
	}

	prev := task.Status
	task.Status = next
	task.Touch()
	if err := m.store.PutTask(ctx, task); err != nil {
		return fmt.Errorf("put task %s: %w", taskID, err)
	}
	m.emit(ctx, audit.NewEvent(audit.KindStatusChanged, taskID, actor).
		WithDetail("from", string(prev)).
		WithDetail("to", string(next)))

	for targetID, wasBlocked := range before {
		nowBlocked, err := m.calc.IsBlocked(ctx, targetID)
		if err != nil {
			return err
		}
		switch {
		case wasBlocked && !nowBlocked:
			m.emit(ctx, audit.NewEvent(audit.KindAutoUnblocked, targetID, actor).
				WithDetail("cause", taskID))
		case !wasBlocked && nowBlocked:
			m.emit(ctx, audit.NewEvent(audit.KindAutoBlocked, targetID, actor).
				WithDetail("cause", taskID))
		}
	}
	return nil
}

// Burn hard-deletes a workflow and every member task, edges included.
// Durable workflows require force.
func (m *Manager) Burn(ctx context.Context, workflowID string, force bool, actor string) error {
	workflow, err := m.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("workflow %s: %w", workflowID, err)
	}
	if !workflow.Ephemeral && !force {
		return fmt.Errorf("workflow %s: %w", workflowID, ErrDurableWorkflow)
	}

	members := m.graph.GetIncoming(workflowID, dependency.TypeParentChild)
	for _, edge := range members {
		if err := m.graph.Detach(ctx, edge.SourceID, actor); err != nil {
			return fmt.Errorf("detach %s: %w", edge.SourceID, err)
		}
		if err := m.store.Delete(ctx, edge.SourceID); err != nil {
			return fmt.Errorf("delete %s: %w", edge.SourceID, err)
		}
	}
	if err := m.graph.Detach(ctx, workflowID, actor); err != nil {
		return fmt.Errorf("detach %s: %w", workflowID, err)
	}
	if err := m.store.Delete(ctx, workflowID); err != nil {
		return fmt.Errorf("delete %s: %w", workflowID, err)
	}

	m.emit(ctx, audit.NewEvent(audit.KindWorkflowBurned, workflowID, actor).
		WithDetail("tasks", fmt.Sprintf("%d", len(members))))
	m.logger.Info("workflow burned", "workflow", workflowID, "tasks", len(members), "forced", force)
	return nil
}

// Squash promotes an ephemeral workflow to durable so it survives
// routine burns.
func (m *Manager) Squash(ctx context.Context, workflowID, actor string) error {
	workflow, err := m.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("workflow %s: %w", workflowID, err)
	}
	if !workflow.Ephemeral {
		return fmt.Errorf("workflow %s: %w", workflowID, ErrAlreadyDurable)
	}

	workflow.Ephemeral = false
	workflow.Touch()
	if err := m.store.PutWorkflow(ctx, workflow); err != nil {
		return fmt.Errorf("put workflow %s: %w", workflowID, err)
	}
	m.emit(ctx, audit.NewEvent(audit.KindWorkflowSquashed, workflowID, actor))
	return nil
}

// SetManager points an entity's reportsTo at a manager after verifying
// the assignment does not close a reporting cycle.
func (m *Manager) SetManager(ctx context.Context, entityID, managerID, actor string) error {
	if entityID == managerID {
		return ErrSelfManagement
	}

	entity, err := m.store.GetEntity(ctx, entityID)
	if err != nil {
		return fmt.Errorf("entity %s: %w", entityID, err)
	}
	if _, err := m.store.GetEntity(ctx, managerID); err != nil {
		return fmt.Errorf("manager %s: %w", managerID, err)
	}

	cycle, err := m.calc.DetectReportingCycle(ctx, entityID, managerID)
	if err != nil {
		return err
	}
	if cycle {
		return fmt.Errorf("%s reporting to %s: %w", entityID, managerID, ErrReportingCycle)
	}

	entity.ReportsTo = managerID
	entity.Touch()
	if err := m.store.PutEntity(ctx, entity); err != nil {
		return fmt.Errorf("put entity %s: %w", entityID, err)
	}
	m.emit(ctx, audit.NewEvent(audit.KindManagerAssigned, entityID, actor).
		WithDetail("manager", managerID))
	return nil
}

// PourPlaybook instantiates a playbook and commits the result: the
// workflow and tasks go into the store, and every generated edge passes
// through normal graph validation. On any failure the partially
// committed elements are rolled back.
func (m *Manager) PourPlaybook(ctx context.Context, pb *playbook.Playbook, variables map[string]string, createdBy string, opts pour.Options) (*pour.Result, error) {
	result, err := pour.Pour(pb, variables, createdBy, opts)
	if err != nil {
		return nil, err
	}

	var created []string
	rollback := func() {
		for i := len(created) - 1; i >= 0; i-- {
			id := created[i]
			if err := m.graph.Detach(ctx, id, createdBy); err != nil {
				m.logger.Error("pour rollback detach failed", "element", id, "error", err)
			}
			if err := m.store.Delete(ctx, id); err != nil {
				m.logger.Error("pour rollback delete failed", "element", id, "error", err)
			}
		}
	}

	if err := m.store.PutWorkflow(ctx, result.Workflow); err != nil {
		return nil, fmt.Errorf("put workflow: %w", err)
	}
	created = append(created, result.Workflow.ID)

	for _, task := range result.Tasks {
		if err := m.store.PutTask(ctx, task); err != nil {
			rollback()
			return nil, fmt.Errorf("put task: %w", err)
		}
		created = append(created, task.ID)
	}

	for _, edge := range append(result.ParentChild, result.Blocks...) {
		if _, err := m.graph.Add(ctx, edge.SourceID, edge.TargetID, edge.Type, edge.Metadata, createdBy); err != nil {
			rollback()
			return nil, fmt.Errorf("add %s edge: %w", edge.Type, err)
		}
	}

	m.emit(ctx, audit.NewEvent(audit.KindWorkflowPoured, result.Workflow.ID, createdBy).
		WithDetail("playbook", pb.ID).
		WithDetail("tasks", fmt.Sprintf("%d", len(result.Tasks))))
	m.logger.Info("workflow poured",
		"workflow", result.Workflow.ID,
		"playbook", pb.ID,
		"tasks", len(result.Tasks),
		"skipped", len(result.SkippedSteps))
	return result, nil
}

func (m *Manager) emit(ctx context.Context, event audit.Event) {
	if err := m.recorder.Record(ctx, event); err != nil {
		m.logger.Warn("audit record failed", "kind", event.Kind, "error", err)
	}
}
