// Package element defines the addressable work items of the Loom graph:
// tasks, plans, workflows, entities, and the shared envelope they embed.
package element

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type identifies what kind of work item an element is.
type Type string

// Recognized element types.
const (
	TypeTask     Type = "task"
	TypePlan     Type = "plan"
	TypeWorkflow Type = "workflow"
	TypeEntity   Type = "entity"
	TypeDocument Type = "document"
	TypeChannel  Type = "channel"
	TypeMessage  Type = "message"
	TypeTeam     Type = "team"
	TypeLibrary  Type = "library"
)

// IsValid reports whether t is a recognized element type.
func (t Type) IsValid() bool {
	switch t {
	case TypeTask, TypePlan, TypeWorkflow, TypeEntity, TypeDocument,
		TypeChannel, TypeMessage, TypeTeam, TypeLibrary:
		return true
	}
	return false
}

// ErrInvalidID is returned when an element ID does not carry a
// recognized type prefix.
var ErrInvalidID = errors.New("invalid element id")

// NewID generates a globally unique, type-prefixed element ID,
// e.g. "task-4f8b2c1e-...".
func NewID(t Type) string {
	return fmt.Sprintf("%s-%s", t, uuid.New())
}

// ParseID extracts the element type from a type-prefixed ID.
func ParseID(id string) (Type, error) {
	idx := strings.IndexByte(id, '-')
	if idx <= 0 || idx == len(id)-1 {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	t := Type(id[:idx])
	if !t.IsValid() {
		return "", fmt.Errorf("%w: unknown type prefix %q", ErrInvalidID, id[:idx])
	}
	return t, nil
}

// Element is the envelope every addressable work item carries.
// Elements outside task/plan/workflow/entity are treated as opaque
// payloads by this engine; only the envelope matters to the graph.
type Element struct {
	ID        string     `json:"id" yaml:"id"`
	Type      Type       `json:"type" yaml:"type"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"updated_at"`
	CreatedBy string     `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	Tags      []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" yaml:"deleted_at,omitempty"`
}

// newElement builds an envelope with a fresh ID and timestamps.
func newElement(t Type, createdBy string) Element {
	now := time.Now().UTC()
	return Element{
		ID:        NewID(t),
		Type:      t,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: createdBy,
	}
}

// Deleted reports whether the element is soft-deleted.
func (e *Element) Deleted() bool {
	return e.DeletedAt != nil
}

// Touch updates the modification timestamp.
func (e *Element) Touch() {
	e.UpdatedAt = time.Now().UTC()
}

// MarkDeleted soft-deletes the element at the given time.
func (e *Element) MarkDeleted(at time.Time) {
	t := at.UTC()
	e.DeletedAt = &t
	e.UpdatedAt = t
}

// HasTag reports whether the element carries the given tag.
func (e *Element) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag adds a tag if not already present.
func (e *Element) AddTag(tag string) {
	if tag == "" || e.HasTag(tag) {
		return
	}
	e.Tags = append(e.Tags, tag)
}
