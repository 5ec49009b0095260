// Package derive computes graph-derived state: task readiness, plan and
// workflow progress roll-ups, and entity management chains. All queries
// are read-only; they are recomputed from the graph on every call
// rather than trusting stored status fields.
package derive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loomworks/loom/dependency"
	"github.com/loomworks/loom/element"
)

// chainCap bounds reportsTo walks so a cycle that slipped into stored
// data terminates instead of looping. The write path rejects cycles;
// this is the read-path guard.
const chainCap = 100

// ErrChainTooDeep is logged (not returned) when a reporting chain walk
// hits the cap; the walk stops and returns what it has.
var ErrChainTooDeep = errors.New("reporting chain exceeds depth cap")

// TaskReader supplies task state.
type TaskReader interface {
	GetTask(ctx context.Context, id string) (*element.Task, error)
	ListTasks(ctx context.Context) ([]*element.Task, error)
}

// EntityReader resolves entities for chain walks.
type EntityReader interface {
	GetEntity(ctx context.Context, id string) (*element.Entity, error)
}

// PlanReader resolves plans and workflows for progress queries.
type PlanReader interface {
	GetPlan(ctx context.Context, id string) (*element.Plan, error)
	GetWorkflow(ctx context.Context, id string) (*element.Workflow, error)
}

// GraphReader is the edge query surface the calculator needs.
type GraphReader interface {
	GetOutgoing(id string, types ...dependency.Type) []dependency.Dependency
	GetIncoming(id string, types ...dependency.Type) []dependency.Dependency
}

// Calculator answers derived-state queries over a store and a graph.
type Calculator struct {
	tasks    TaskReader
	entities EntityReader
	plans    PlanReader
	graph    GraphReader
	logger   *slog.Logger
}

// New creates a calculator. Pass a nil logger to use slog.Default.
func New(tasks TaskReader, entities EntityReader, plans PlanReader, graph GraphReader, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{tasks: tasks, entities: entities, plans: plans, graph: graph, logger: logger}
}

// IsBlocked reports whether the task has at least one unresolved
// blocker: an incoming blocks/awaits edge whose source task is neither
// closed, cancelled, nor soft-deleted.
func (c *Calculator) IsBlocked(ctx context.Context, taskID string) (bool, error) {
	incoming := c.graph.GetIncoming(taskID, dependency.TypeBlocks, dependency.TypeAwaits)
	for _, edge := range incoming {
		blocker, err := c.tasks.GetTask(ctx, edge.SourceID)
		if err != nil {
			// A blocker that is not a task (or no longer exists) does
			// not gate readiness.
			continue
		}
		if !blocker.Resolved() {
			return true, nil
		}
	}
	return false, nil
}

// Ready returns the tasks that can start now: not terminal, not
// soft-deleted, and with no unresolved blocker.
func (c *Calculator) Ready(ctx context.Context) ([]*element.Task, error) {
	return c.partition(ctx, false)
}

// Blocked returns the complement of Ready among live tasks: not
// terminal, with at least one unresolved blocker.
func (c *Calculator) Blocked(ctx context.Context) ([]*element.Task, error) {
	return c.partition(ctx, true)
}

func (c *Calculator) partition(ctx context.Context, wantBlocked bool) ([]*element.Task, error) {
	all, err := c.tasks.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	out := make([]*element.Task, 0, len(all))
	for _, task := range all {
		if task.Deleted() || task.Status.IsTerminal() {
			continue
		}
		blocked, err := c.IsBlocked(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		if blocked == wantBlocked {
			out = append(out, task)
		}
	}
	return out, nil
}

// Progress is a hierarchical roll-up over a container's member tasks.
// Cancelled tasks are excluded from the completion denominator; a
// container whose live work is entirely cancelled reports 0%.
type Progress struct {
	Total           int     `json:"total"`
	Closed          int     `json:"closed"`
	Cancelled       int     `json:"cancelled"`
	Open            int     `json:"open"`
	InProgress      int     `json:"in_progress"`
	Blocked         int     `json:"blocked"`
	PercentComplete float64 `json:"percent_complete"`
}

// PlanProgress rolls up the member tasks of a plan.
func (c *Calculator) PlanProgress(ctx context.Context, planID string) (*Progress, error) {
	if _, err := c.plans.GetPlan(ctx, planID); err != nil {
		return nil, fmt.Errorf("plan %s: %w", planID, err)
	}
	return c.containerProgress(ctx, planID)
}

// WorkflowProgress rolls up the member tasks of a workflow.
func (c *Calculator) WorkflowProgress(ctx context.Context, workflowID string) (*Progress, error) {
	if _, err := c.plans.GetWorkflow(ctx, workflowID); err != nil {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, err)
	}
	return c.containerProgress(ctx, workflowID)
}

func (c *Calculator) containerProgress(ctx context.Context, containerID string) (*Progress, error) {
	members := c.graph.GetIncoming(containerID, dependency.TypeParentChild)

	p := &Progress{}
	for _, edge := range members {
		task, err := c.tasks.GetTask(ctx, edge.SourceID)
		if err != nil {
			continue // non-task members do not count toward progress
		}
		if task.Deleted() {
			continue
		}

		p.Total++
		switch {
		case task.Status == element.TaskStatusClosed:
			p.Closed++
		case task.Status == element.TaskStatusCancelled:
			p.Cancelled++
		default:
			blocked, err := c.IsBlocked(ctx, task.ID)
			if err != nil {
				return nil, err
			}
			switch {
			case blocked:
				p.Blocked++
			case task.Status == element.TaskStatusInProgress:
				p.InProgress++
			default:
				p.Open++
			}
		}
	}

	if denom := p.Total - p.Cancelled; denom > 0 {
		p.PercentComplete = float64(p.Closed) / float64(denom)
	}
	return p, nil
}

// ManagementChain follows the entity's reportsTo pointer upward and
// returns the ordered ancestor chain, nearest manager first. The walk
// terminates at the cap even if stored data contains a cycle.
func (c *Calculator) ManagementChain(ctx context.Context, entityID string) ([]*element.Entity, error) {
	current, err := c.entities.GetEntity(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("entity %s: %w", entityID, err)
	}

	var chain []*element.Entity
	seen := map[string]bool{current.ID: true}

	for current.ReportsTo != "" {
		if len(chain) >= chainCap {
			c.logger.Warn("management chain walk stopped at cap",
				"entity", entityID, "cap", chainCap, "error", ErrChainTooDeep)
			break
		}
		next, err := c.entities.GetEntity(ctx, current.ReportsTo)
		if err != nil {
			// Dangling pointer: chain ends at the last resolvable entity.
			break
		}
		if seen[next.ID] {
			c.logger.Warn("management chain contains a stored cycle",
				"entity", entityID, "repeat", next.ID)
			break
		}
		seen[next.ID] = true
		chain = append(chain, next)
		current = next
	}
	return chain, nil
}

// DetectReportingCycle reports whether assigning proposedManagerID as
// the manager of entityID would close a reporting cycle. It walks
// upward from the proposed manager looking for the entity, with the
// same defensive cap as ManagementChain.
func (c *Calculator) DetectReportingCycle(ctx context.Context, entityID, proposedManagerID string) (bool, error) {
	if entityID == proposedManagerID {
		return true, nil
	}

	currentID := proposedManagerID
	seen := map[string]bool{}
	for steps := 0; steps < chainCap && currentID != ""; steps++ {
		if currentID == entityID {
			return true, nil
		}
		if seen[currentID] {
			// Pre-existing stored cycle above the proposed manager;
			// the entity is not part of it.
			return false, nil
		}
		seen[currentID] = true

		manager, err := c.entities.GetEntity(ctx, currentID)
		if err != nil {
			return false, nil
		}
		currentID = manager.ReportsTo
	}
	return false, nil
}
