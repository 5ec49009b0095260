package dependency

// Type categorizes the relationship between two elements. The set is
// closed: every type is declared here together with the acyclicity
// family it belongs to, so adding a type is a single declaration
// rather than scattered string checks.
type Type string

const (
	// TypeBlocks and TypeAwaits order work: the source must resolve
	// before the target is ready.
	TypeBlocks Type = "blocks"
	TypeAwaits Type = "awaits"

	// TypeParentChild nests elements in containers: source is the
	// child, target the container (task -> plan, document -> library).
	TypeParentChild Type = "parent-child"

	TypeRelatesTo  Type = "relates-to"
	TypeReferences Type = "references"
	TypeSupersedes Type = "supersedes"
	TypeDuplicates Type = "duplicates"
	TypeCausedBy   Type = "caused-by"
	TypeValidates  Type = "validates"
	TypeAuthoredBy Type = "authored-by"
	TypeAssignedTo Type = "assigned-to"
	TypeApprovedBy Type = "approved-by"
	TypeRepliesTo  Type = "replies-to"
)

// Family is the subset of dependency types that share an acyclicity
// constraint. Cycle checks run within a family, never across families.
type Family int

const (
	// FamilyNone marks types with no cycle constraint.
	FamilyNone Family = iota
	// FamilyScheduling covers blocks and awaits.
	FamilyScheduling
	// FamilyContainment covers parent-child nesting.
	FamilyContainment
)

// String returns the family name for logs and errors.
func (f Family) String() string {
	switch f {
	case FamilyScheduling:
		return "scheduling"
	case FamilyContainment:
		return "containment"
	default:
		return "none"
	}
}

// families is the single declaration point mapping each type to its
// acyclicity family. Types absent from this map are invalid.
var families = map[Type]Family{
	TypeBlocks:      FamilyScheduling,
	TypeAwaits:      FamilyScheduling,
	TypeParentChild: FamilyContainment,
	TypeRelatesTo:   FamilyNone,
	TypeReferences:  FamilyNone,
	TypeSupersedes:  FamilyNone,
	TypeDuplicates:  FamilyNone,
	TypeCausedBy:    FamilyNone,
	TypeValidates:   FamilyNone,
	TypeAuthoredBy:  FamilyNone,
	TypeAssignedTo:  FamilyNone,
	TypeApprovedBy:  FamilyNone,
	TypeRepliesTo:   FamilyNone,
}

// IsValid reports whether t is a recognized dependency type.
func (t Type) IsValid() bool {
	_, ok := families[t]
	return ok
}

// Family returns the acyclicity family of the type. Unrecognized types
// report FamilyNone; callers validate with IsValid first.
func (t Type) Family() Family {
	return families[t]
}

// Types lists all recognized dependency types.
func Types() []Type {
	out := make([]Type, 0, len(families))
	for t := range families {
		out = append(out, t)
	}
	return out
}
