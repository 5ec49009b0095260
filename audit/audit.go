// Package audit defines the event stream emitted after successful graph
// and lifecycle mutations. Recording is fire-and-forget from the
// engine's perspective: a failed record never rolls back the mutation
// that produced it.
package audit

import (
	"context"
	"time"
)

// Event kinds emitted by the engine.
const (
	KindDependencyAdded   = "dependency_added"
	KindDependencyRemoved = "dependency_removed"
	KindElementCreated    = "element_created"
	KindElementDeleted    = "element_deleted"
	KindStatusChanged     = "status_changed"
	KindAutoBlocked       = "auto_blocked"
	KindAutoUnblocked     = "auto_unblocked"
	KindManagerAssigned   = "manager_assigned"
	KindWorkflowPoured    = "workflow_poured"
	KindWorkflowBurned    = "workflow_burned"
	KindWorkflowSquashed  = "workflow_squashed"
)

// Event describes one observed mutation.
type Event struct {
	Kind      string            `json:"kind"`
	ElementID string            `json:"element_id,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
	At        time.Time         `json:"at"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(kind, elementID, actor string) Event {
	return Event{
		Kind:      kind,
		ElementID: elementID,
		Actor:     actor,
		At:        time.Now().UTC(),
	}
}

// WithDetail returns a copy of the event with one detail key set.
func (e Event) WithDetail(key, value string) Event {
	detail := make(map[string]string, len(e.Detail)+1)
	for k, v := range e.Detail {
		detail[k] = v
	}
	detail[key] = value
	e.Detail = detail
	return e
}

// Recorder receives events after successful mutations.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Discard is a Recorder that drops every event.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(context.Context, Event) error { return nil }
