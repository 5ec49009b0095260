package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/loomworks/loom/dependency"
	"github.com/loomworks/loom/element"
)

// Bucket names for NATS KV storage.
const (
	BucketElements = "LOOM_ELEMENTS"
	BucketEdges    = "LOOM_EDGES"
)

// record is the KV envelope around an element payload. Keeping type and
// deletion out-of-band lets GetElement and SoftDelete work without
// knowing the concrete payload shape.
type record struct {
	Type      element.Type    `json:"type"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// edgeRecord wraps an edge with its tombstone.
type edgeRecord struct {
	Edge      dependency.Dependency `json:"edge"`
	DeletedAt *time.Time            `json:"deleted_at,omitempty"`
}

// KV is a Store backed by NATS JetStream key-value buckets.
type KV struct {
	elements jetstream.KeyValue
	edges    jetstream.KeyValue
}

var _ Store = (*KV)(nil)

// NewKV creates a KV store on the given JetStream context, creating the
// buckets if they don't exist.
func NewKV(ctx context.Context, js jetstream.JetStream) (*KV, error) {
	elements, err := getOrCreateBucket(ctx, js, BucketElements)
	if err != nil {
		return nil, fmt.Errorf("create elements bucket: %w", err)
	}
	edges, err := getOrCreateBucket(ctx, js, BucketEdges)
	if err != nil {
		return nil, fmt.Errorf("create edges bucket: %w", err)
	}
	return &KV{elements: elements, edges: edges}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Loom %s storage", strings.ToLower(name)),
		History:     5, // keep recent revisions for audit tooling
	})
}

// EdgeKey returns the KV key for an edge triple. Element IDs and
// dependency types only use characters valid in KV keys, joined with
// dots so the triple stays one token per segment group.
func EdgeKey(sourceID, targetID string, typ dependency.Type) string {
	return fmt.Sprintf("%s.%s.%s", sourceID, typ, targetID)
}

func (s *KV) putRecord(ctx context.Context, id string, typ element.Type, deletedAt *time.Time, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal element: %w", err)
	}
	rec, err := json.Marshal(record{Type: typ, DeletedAt: deletedAt, Payload: data})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := s.elements.Put(ctx, id, rec); err != nil {
		return fmt.Errorf("store element: %w", err)
	}
	return nil
}

func (s *KV) getRecord(ctx context.Context, id string) (*record, error) {
	entry, err := s.elements.Get(ctx, id)
	if err != nil {
		if isKVNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get element: %w", err)
	}
	var rec record
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}

func (s *KV) getTyped(ctx context.Context, id string, typ element.Type, dst any, header *element.Element) error {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	if typ != "" && rec.Type != typ {
		return fmt.Errorf("%w: %s is a %s, not a %s", ErrNotFound, id, rec.Type, typ)
	}
	if err := json.Unmarshal(rec.Payload, dst); err != nil {
		return fmt.Errorf("unmarshal element: %w", err)
	}
	header.DeletedAt = rec.DeletedAt
	return nil
}

// GetElement returns the envelope of any stored element.
func (s *KV) GetElement(ctx context.Context, id string) (*element.Element, error) {
	var el element.Element
	if err := s.getTyped(ctx, id, "", &el, &el); err != nil {
		return nil, err
	}
	return &el, nil
}

// PutTask inserts or replaces a task.
func (s *KV) PutTask(ctx context.Context, task *element.Task) error {
	return s.putRecord(ctx, task.ID, element.TypeTask, task.DeletedAt, task)
}

// GetTask returns a task by ID.
func (s *KV) GetTask(ctx context.Context, id string) (*element.Task, error) {
	var task element.Task
	if err := s.getTyped(ctx, id, element.TypeTask, &task, &task.Element); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks returns all tasks, soft-deleted ones included.
func (s *KV) ListTasks(ctx context.Context) ([]*element.Task, error) {
	keys, err := s.elements.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list element keys: %w", err)
	}

	tasks := make([]*element.Task, 0, len(keys))
	for _, key := range keys {
		rec, err := s.getRecord(ctx, key)
		if err != nil || rec.Type != element.TypeTask {
			continue // skip entries that fail to load
		}
		var task element.Task
		if err := json.Unmarshal(rec.Payload, &task); err != nil {
			continue
		}
		task.DeletedAt = rec.DeletedAt
		tasks = append(tasks, &task)
	}
	return tasks, nil
}

// PutPlan inserts or replaces a plan.
func (s *KV) PutPlan(ctx context.Context, plan *element.Plan) error {
	return s.putRecord(ctx, plan.ID, element.TypePlan, plan.DeletedAt, plan)
}

// GetPlan returns a plan by ID.
func (s *KV) GetPlan(ctx context.Context, id string) (*element.Plan, error) {
	var plan element.Plan
	if err := s.getTyped(ctx, id, element.TypePlan, &plan, &plan.Element); err != nil {
		return nil, err
	}
	return &plan, nil
}

// PutWorkflow inserts or replaces a workflow.
func (s *KV) PutWorkflow(ctx context.Context, workflow *element.Workflow) error {
	return s.putRecord(ctx, workflow.ID, element.TypeWorkflow, workflow.DeletedAt, workflow)
}

// GetWorkflow returns a workflow by ID.
func (s *KV) GetWorkflow(ctx context.Context, id string) (*element.Workflow, error) {
	var workflow element.Workflow
	if err := s.getTyped(ctx, id, element.TypeWorkflow, &workflow, &workflow.Element); err != nil {
		return nil, err
	}
	return &workflow, nil
}

// PutEntity inserts or replaces an entity.
func (s *KV) PutEntity(ctx context.Context, entity *element.Entity) error {
	return s.putRecord(ctx, entity.ID, element.TypeEntity, entity.DeletedAt, entity)
}

// GetEntity returns an entity by ID.
func (s *KV) GetEntity(ctx context.Context, id string) (*element.Entity, error) {
	var entity element.Entity
	if err := s.getTyped(ctx, id, element.TypeEntity, &entity, &entity.Element); err != nil {
		return nil, err
	}
	return &entity, nil
}

// SoftDelete marks any element deleted.
func (s *KV) SoftDelete(ctx context.Context, id string, at time.Time) error {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	t := at.UTC()
	rec.DeletedAt = &t
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := s.elements.Put(ctx, id, data); err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}
	return nil
}

// Delete removes the element key entirely.
func (s *KV) Delete(ctx context.Context, id string) error {
	if _, err := s.getRecord(ctx, id); err != nil {
		return err
	}
	if err := s.elements.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// InsertEdge stores a live edge, reviving any tombstone for the triple.
func (s *KV) InsertEdge(ctx context.Context, dep dependency.Dependency) error {
	data, err := json.Marshal(edgeRecord{Edge: dep})
	if err != nil {
		return fmt.Errorf("marshal edge: %w", err)
	}
	if _, err := s.edges.Put(ctx, EdgeKey(dep.SourceID, dep.TargetID, dep.Type), data); err != nil {
		return fmt.Errorf("store edge: %w", err)
	}
	return nil
}

// RemoveEdge tombstones the edge for the exact triple.
func (s *KV) RemoveEdge(ctx context.Context, sourceID, targetID string, typ dependency.Type) error {
	key := EdgeKey(sourceID, targetID, typ)
	entry, err := s.edges.Get(ctx, key)
	if err != nil {
		if isKVNotFound(err) {
			return fmt.Errorf("%w: edge %s", ErrNotFound, key)
		}
		return fmt.Errorf("get edge: %w", err)
	}

	var rec edgeRecord
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		return fmt.Errorf("unmarshal edge: %w", err)
	}
	if rec.DeletedAt != nil {
		return fmt.Errorf("%w: edge %s", ErrNotFound, key)
	}

	now := time.Now().UTC()
	rec.DeletedAt = &now
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal edge: %w", err)
	}
	if _, err := s.edges.Put(ctx, key, data); err != nil {
		return fmt.Errorf("remove edge: %w", err)
	}
	return nil
}

// ListEdges returns all live edges.
func (s *KV) ListEdges(ctx context.Context) ([]dependency.Dependency, error) {
	keys, err := s.edges.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list edge keys: %w", err)
	}

	out := make([]dependency.Dependency, 0, len(keys))
	for _, key := range keys {
		entry, err := s.edges.Get(ctx, key)
		if err != nil {
			continue
		}
		var rec edgeRecord
		if err := json.Unmarshal(entry.Value(), &rec); err != nil {
			continue
		}
		if rec.DeletedAt != nil {
			continue
		}
		out = append(out, rec.Edge)
	}
	return out, nil
}

func isKVNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound)
}
