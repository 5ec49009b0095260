package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loomworks/loom/dependency"
	"github.com/loomworks/loom/element"
)

// Memory is an in-memory Store. Values are copied on the way in and
// out so callers cannot mutate stored state through aliases.
type Memory struct {
	mu         sync.RWMutex
	tasks      map[string]*element.Task
	plans      map[string]*element.Plan
	workflows  map[string]*element.Workflow
	entities   map[string]*element.Entity
	edges      map[string]dependency.Dependency // live edges by triple key
	tombstones []dependency.Dependency
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tasks:     make(map[string]*element.Task),
		plans:     make(map[string]*element.Plan),
		workflows: make(map[string]*element.Workflow),
		entities:  make(map[string]*element.Entity),
		edges:     make(map[string]dependency.Dependency),
	}
}

// GetElement returns the envelope of any stored element.
func (m *Memory) GetElement(_ context.Context, id string) (*element.Element, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if el := m.headerLocked(id); el != nil {
		copied := *el
		return &copied, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (m *Memory) headerLocked(id string) *element.Element {
	if t, ok := m.tasks[id]; ok {
		return &t.Element
	}
	if p, ok := m.plans[id]; ok {
		return &p.Element
	}
	if w, ok := m.workflows[id]; ok {
		return &w.Element
	}
	if e, ok := m.entities[id]; ok {
		return &e.Element
	}
	return nil
}

// PutTask inserts or replaces a task.
func (m *Memory) PutTask(_ context.Context, task *element.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

// GetTask returns a task by ID.
func (m *Memory) GetTask(_ context.Context, id string) (*element.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	return cloneTask(task), nil
}

// ListTasks returns all tasks, soft-deleted ones included.
func (m *Memory) ListTasks(_ context.Context) ([]*element.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*element.Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		out = append(out, cloneTask(task))
	}
	return out, nil
}

// PutPlan inserts or replaces a plan.
func (m *Memory) PutPlan(_ context.Context, plan *element.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.ID] = clonePlan(plan)
	return nil
}

// GetPlan returns a plan by ID.
func (m *Memory) GetPlan(_ context.Context, id string) (*element.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	plan, ok := m.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: plan %s", ErrNotFound, id)
	}
	return clonePlan(plan), nil
}

// PutWorkflow inserts or replaces a workflow.
func (m *Memory) PutWorkflow(_ context.Context, workflow *element.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[workflow.ID] = cloneWorkflow(workflow)
	return nil
}

// GetWorkflow returns a workflow by ID.
func (m *Memory) GetWorkflow(_ context.Context, id string) (*element.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	workflow, ok := m.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: workflow %s", ErrNotFound, id)
	}
	return cloneWorkflow(workflow), nil
}

// PutEntity inserts or replaces an entity.
func (m *Memory) PutEntity(_ context.Context, entity *element.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[entity.ID] = cloneEntity(entity)
	return nil
}

// GetEntity returns an entity by ID.
func (m *Memory) GetEntity(_ context.Context, id string) (*element.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entity, ok := m.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: entity %s", ErrNotFound, id)
	}
	return cloneEntity(entity), nil
}

// SoftDelete marks any element deleted.
func (m *Memory) SoftDelete(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	el := m.headerLocked(id)
	if el == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	el.MarkDeleted(at)
	return nil
}

// Delete removes the element entirely.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.headerLocked(id) == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.tasks, id)
	delete(m.plans, id)
	delete(m.workflows, id)
	delete(m.entities, id)
	return nil
}

// InsertEdge stores a live edge, reviving any tombstone for the triple.
func (m *Memory) InsertEdge(_ context.Context, dep dependency.Dependency) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[dep.Key()] = dep
	return nil
}

// RemoveEdge tombstones the edge for the exact triple.
func (m *Memory) RemoveEdge(_ context.Context, sourceID, targetID string, typ dependency.Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dependency.Dependency{SourceID: sourceID, TargetID: targetID, Type: typ}.Key()
	dep, ok := m.edges[key]
	if !ok {
		return fmt.Errorf("%w: edge %s", ErrNotFound, key)
	}
	delete(m.edges, key)
	m.tombstones = append(m.tombstones, dep)
	return nil
}

// ListEdges returns all live edges.
func (m *Memory) ListEdges(_ context.Context) ([]dependency.Dependency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]dependency.Dependency, 0, len(m.edges))
	for _, dep := range m.edges {
		out = append(out, dep)
	}
	return out, nil
}

func cloneTask(t *element.Task) *element.Task {
	copied := *t
	copied.Tags = append([]string(nil), t.Tags...)
	copied.Fields = cloneMap(t.Fields)
	return &copied
}

func clonePlan(p *element.Plan) *element.Plan {
	copied := *p
	copied.Tags = append([]string(nil), p.Tags...)
	return &copied
}

func cloneWorkflow(w *element.Workflow) *element.Workflow {
	copied := *w
	copied.Tags = append([]string(nil), w.Tags...)
	copied.Variables = cloneMap(w.Variables)
	return &copied
}

func cloneEntity(e *element.Entity) *element.Entity {
	copied := *e
	copied.Tags = append([]string(nil), e.Tags...)
	return &copied
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
