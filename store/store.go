// Package store persists elements and dependency edges. Three
// implementations are provided: Memory for tests and embedded use,
// SQLite for a local durable store, and KV backed by NATS JetStream
// for deployments already running NATS.
//
// Edges are soft-removed: removal tombstones the row so audit tooling
// can still see it, and listing only returns live edges.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/loomworks/loom/dependency"
	"github.com/loomworks/loom/element"
)

// ErrNotFound is returned when a requested element does not exist.
var ErrNotFound = errors.New("not found")

// ElementStore persists typed elements. Get methods return soft-deleted
// elements too; callers check Deleted() where it matters.
type ElementStore interface {
	GetElement(ctx context.Context, id string) (*element.Element, error)

	PutTask(ctx context.Context, task *element.Task) error
	GetTask(ctx context.Context, id string) (*element.Task, error)
	ListTasks(ctx context.Context) ([]*element.Task, error)

	PutPlan(ctx context.Context, plan *element.Plan) error
	GetPlan(ctx context.Context, id string) (*element.Plan, error)

	PutWorkflow(ctx context.Context, workflow *element.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*element.Workflow, error)

	PutEntity(ctx context.Context, entity *element.Entity) error
	GetEntity(ctx context.Context, id string) (*element.Entity, error)

	// SoftDelete marks the element deleted; it stays addressable.
	SoftDelete(ctx context.Context, id string, at time.Time) error

	// Delete removes the element entirely (workflow burn).
	Delete(ctx context.Context, id string) error
}

// EdgeStore is the durable edge log consumed by dependency.Graph.
type EdgeStore interface {
	InsertEdge(ctx context.Context, dep dependency.Dependency) error
	RemoveEdge(ctx context.Context, sourceID, targetID string, typ dependency.Type) error
	ListEdges(ctx context.Context) ([]dependency.Dependency, error)
}

// Store is the full storage collaborator.
type Store interface {
	ElementStore
	EdgeStore
}
