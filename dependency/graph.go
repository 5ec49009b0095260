package dependency

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loomworks/loom/audit"
	"github.com/loomworks/loom/element"
	"github.com/loomworks/loom/metrics"
)

// ElementResolver looks up element envelopes, including soft-deleted
// ones. Implemented by the store package.
type ElementResolver interface {
	GetElement(ctx context.Context, id string) (*element.Element, error)
}

// EdgeLog is the durable record of edges. Implemented by the store
// package; a nil EdgeLog keeps the graph purely in memory.
type EdgeLog interface {
	InsertEdge(ctx context.Context, dep Dependency) error
	RemoveEdge(ctx context.Context, sourceID, targetID string, typ Type) error
	ListEdges(ctx context.Context) ([]Dependency, error)
}

// Graph is the dependency graph store. It owns an adjacency index
// (element id -> outgoing/incoming edge lists) and forces every
// mutation through the same validation sequence: endpoint resolution,
// duplicate check, containment exclusivity, family cycle check, then
// the durable insert. The sequence runs under one lock so concurrent
// writers cannot race a duplicate or a would-be cycle past each other.
type Graph struct {
	mu       sync.RWMutex
	elements ElementResolver
	log      EdgeLog
	recorder audit.Recorder
	logger   *slog.Logger

	out map[string][]Dependency
	in  map[string][]Dependency
}

// New creates a graph over the given element resolver. The edge log
// and recorder may be nil; pass a nil logger to use slog.Default.
func New(elements ElementResolver, log EdgeLog, recorder audit.Recorder, logger *slog.Logger) *Graph {
	if recorder == nil {
		recorder = audit.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		elements: elements,
		log:      log,
		recorder: recorder,
		logger:   logger,
		out:      make(map[string][]Dependency),
		in:       make(map[string][]Dependency),
	}
}

// Load hydrates the adjacency index from the edge log. Call once at
// startup, before the graph serves traffic.
func (g *Graph) Load(ctx context.Context) error {
	if g.log == nil {
		return nil
	}
	edges, err := g.log.ListEdges(ctx)
	if err != nil {
		return fmt.Errorf("load edges: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.out = make(map[string][]Dependency, len(edges))
	g.in = make(map[string][]Dependency, len(edges))
	for _, e := range edges {
		g.index(e)
	}
	g.logger.Debug("dependency graph loaded", "edges", len(edges))
	return nil
}

// Add inserts a new edge after validating it. It fails with
// ErrDuplicate if the triple exists, ErrCycle if the edge would close
// a cycle in its family, ErrAlreadyContained if a task is already
// nested in another plan/workflow container, and ErrElementNotFound /
// ErrElementDeleted for unusable endpoints.
func (g *Graph) Add(ctx context.Context, sourceID, targetID string, typ Type, metadata map[string]string, actor string) (*Dependency, error) {
	if !typ.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, typ)
	}

	source, err := g.resolve(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	target, err := g.resolve(ctx, targetID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, existing := range g.out[sourceID] {
		if existing.TargetID == targetID && existing.Type == typ {
			metrics.DependencyAdds.WithLabelValues(string(typ), metrics.ResultDuplicate).Inc()
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, existing)
		}
	}

	if typ == TypeParentChild && source.Type == element.TypeTask && isContainer(target.Type) {
		if err := g.checkContainmentLocked(ctx, sourceID, targetID); err != nil {
			metrics.DependencyAdds.WithLabelValues(string(typ), metrics.ResultRejected).Inc()
			return nil, err
		}
	}

	if family := typ.Family(); family != FamilyNone {
		metrics.CycleChecks.Inc()
		if WouldCreateCycle(g.outgoingLocked, family, sourceID, targetID) {
			metrics.DependencyAdds.WithLabelValues(string(typ), metrics.ResultCycle).Inc()
			return nil, fmt.Errorf("%w: %s -> %s in %s family", ErrCycle, sourceID, targetID, family)
		}
	}

	dep := Dependency{
		SourceID:  sourceID,
		TargetID:  targetID,
		Type:      typ,
		Metadata:  metadata,
		Actor:     actor,
		CreatedAt: time.Now().UTC(),
	}

	if g.log != nil {
		if err := g.log.InsertEdge(ctx, dep); err != nil {
			metrics.DependencyAdds.WithLabelValues(string(typ), metrics.ResultError).Inc()
			return nil, fmt.Errorf("persist edge: %w", err)
		}
	}
	g.index(dep)
	metrics.DependencyAdds.WithLabelValues(string(typ), metrics.ResultOK).Inc()
	g.logger.Debug("dependency added", "source", sourceID, "target", targetID, "type", typ)

	g.emit(ctx, audit.NewEvent(audit.KindDependencyAdded, targetID, actor).
		WithDetail("source", sourceID).WithDetail("type", string(typ)))
	return &dep, nil
}

// Remove deletes the edge identified by the exact triple. It fails
// with ErrEdgeNotFound if no such edge exists.
func (g *Graph) Remove(ctx context.Context, sourceID, targetID string, typ Type, actor string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	found := false
	for _, existing := range g.out[sourceID] {
		if existing.TargetID == targetID && existing.Type == typ {
			found = true
			break
		}
	}
	if !found {
		metrics.DependencyRemoves.WithLabelValues(string(typ), metrics.ResultRejected).Inc()
		return fmt.Errorf("%w: %s -[%s]-> %s", ErrEdgeNotFound, sourceID, typ, targetID)
	}

	if g.log != nil {
		if err := g.log.RemoveEdge(ctx, sourceID, targetID, typ); err != nil {
			metrics.DependencyRemoves.WithLabelValues(string(typ), metrics.ResultError).Inc()
			return fmt.Errorf("remove edge: %w", err)
		}
	}
	g.unindex(sourceID, targetID, typ)
	metrics.DependencyRemoves.WithLabelValues(string(typ), metrics.ResultOK).Inc()
	g.logger.Debug("dependency removed", "source", sourceID, "target", targetID, "type", typ)

	g.emit(ctx, audit.NewEvent(audit.KindDependencyRemoved, targetID, actor).
		WithDetail("source", sourceID).WithDetail("type", string(typ)))
	return nil
}

// Detach removes every edge touching the element, in both directions.
// Used when an element is hard-deleted (workflow burn).
func (g *Graph) Detach(ctx context.Context, id, actor string) error {
	g.mu.Lock()
	edges := make([]Dependency, 0, len(g.out[id])+len(g.in[id]))
	edges = append(edges, g.out[id]...)
	edges = append(edges, g.in[id]...)
	g.mu.Unlock()

	for _, e := range edges {
		if err := g.Remove(ctx, e.SourceID, e.TargetID, e.Type, actor); err != nil {
			return err
		}
	}
	return nil
}

// GetOutgoing returns the edges where the element is the source,
// optionally filtered by type.
func (g *Graph) GetOutgoing(id string, types ...Type) []Dependency {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return filterEdges(g.out[id], types)
}

// GetIncoming returns the edges where the element is the target,
// optionally filtered by type.
func (g *Graph) GetIncoming(id string, types ...Type) []Dependency {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return filterEdges(g.in[id], types)
}

// outgoingLocked is the OutgoingFunc over the live index. Callers hold g.mu.
func (g *Graph) outgoingLocked(id string) []Dependency {
	return g.out[id]
}

// checkContainmentLocked enforces exclusive plan/workflow containment:
// a task nests in at most one such container at a time.
func (g *Graph) checkContainmentLocked(ctx context.Context, sourceID, targetID string) error {
	for _, existing := range g.out[sourceID] {
		if existing.Type != TypeParentChild || existing.TargetID == targetID {
			continue
		}
		container, err := g.elements.GetElement(ctx, existing.TargetID)
		if err != nil {
			continue // dangling containment edge does not bind
		}
		if isContainer(container.Type) && !container.Deleted() {
			return fmt.Errorf("%w: %s is in %s", ErrAlreadyContained, sourceID, existing.TargetID)
		}
	}
	return nil
}

func (g *Graph) resolve(ctx context.Context, id string) (*element.Element, error) {
	el, err := g.elements.GetElement(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, id)
	}
	if el.Deleted() {
		return nil, fmt.Errorf("%w: %s", ErrElementDeleted, id)
	}
	return el, nil
}

func (g *Graph) index(dep Dependency) {
	g.out[dep.SourceID] = append(g.out[dep.SourceID], dep)
	g.in[dep.TargetID] = append(g.in[dep.TargetID], dep)
}

func (g *Graph) unindex(sourceID, targetID string, typ Type) {
	g.out[sourceID] = removeEdge(g.out[sourceID], sourceID, targetID, typ)
	g.in[targetID] = removeEdge(g.in[targetID], sourceID, targetID, typ)
}

func (g *Graph) emit(ctx context.Context, event audit.Event) {
	if err := g.recorder.Record(ctx, event); err != nil {
		g.logger.Warn("audit record failed", "kind", event.Kind, "error", err)
	}
}

func isContainer(t element.Type) bool {
	return t == element.TypePlan || t == element.TypeWorkflow
}

func filterEdges(edges []Dependency, types []Type) []Dependency {
	out := make([]Dependency, 0, len(edges))
	for _, e := range edges {
		if len(types) == 0 {
			out = append(out, e)
			continue
		}
		for _, t := range types {
			if e.Type == t {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

func removeEdge(edges []Dependency, sourceID, targetID string, typ Type) []Dependency {
	out := edges[:0]
	for _, e := range edges {
		if e.SourceID == sourceID && e.TargetID == targetID && e.Type == typ {
			continue
		}
		out = append(out, e)
	}
	return out
}
