package element

// EntityKind distinguishes the kinds of actors that can own or perform work.
type EntityKind string

const (
	EntityKindAgent  EntityKind = "agent"
	EntityKindHuman  EntityKind = "human"
	EntityKindSystem EntityKind = "system"
)

// IsValid reports whether the kind is one of the recognized values.
func (k EntityKind) IsValid() bool {
	switch k {
	case EntityKindAgent, EntityKindHuman, EntityKindSystem:
		return true
	}
	return false
}

// Entity is an actor (agent, human, or system). Its optional ReportsTo
// pointer forms a management tree; reassignments that would close a
// reporting cycle are rejected on the write path, and chain walks are
// capped on the read path in case bad data slips in anyway.
type Entity struct {
	Element `yaml:",inline"`

	Name      string     `json:"name" yaml:"name"`
	Kind      EntityKind `json:"kind" yaml:"kind"`
	ReportsTo string     `json:"reports_to,omitempty" yaml:"reports_to,omitempty"`
}

// NewEntity creates an entity with a fresh type-prefixed ID.
func NewEntity(name string, kind EntityKind, createdBy string) *Entity {
	return &Entity{
		Element: newElement(TypeEntity, createdBy),
		Name:    name,
		Kind:    kind,
	}
}
