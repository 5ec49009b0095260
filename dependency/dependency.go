// Package dependency owns the typed, directed edges between elements
// and the acyclicity rules that keep them sound. Every mutation path
// goes through Graph, which runs the duplicate check, the family cycle
// check, and the durable insert as one atomic sequence.
package dependency

import (
	"fmt"
	"time"
)

// Dependency is a directed, typed edge between two elements.
//
// For blocks/awaits the source is the blocker and the target the
// blocked item; for parent-child the source is the child and the
// target the container.
type Dependency struct {
	SourceID  string            `json:"source_id"`
	TargetID  string            `json:"target_id"`
	Type      Type              `json:"type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Key returns the identity triple of the edge. At most one edge exists
// per key.
func (d Dependency) Key() string {
	return fmt.Sprintf("%s|%s|%s", d.SourceID, d.Type, d.TargetID)
}

// String renders the edge for logs.
func (d Dependency) String() string {
	return fmt.Sprintf("%s -[%s]-> %s", d.SourceID, d.Type, d.TargetID)
}
