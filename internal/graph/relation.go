package graph

// RelationKind enumerates edge semantics (§3 Relation).
type RelationKind int

const (
	// RelationSection is structural containment: parent document/heading to
	// the headings/assets it directly contains.
	RelationSection RelationKind = iota
	// RelationPragmatic, RelationEpistemic and RelationExpressive carry
	// domain semantics interpreted by layers above this core.
	RelationPragmatic
	RelationEpistemic
	RelationExpressive
)

// WEIGHT_DOC_PATHS is the well-known weight key under which asset relations
// accumulate every semantic path that references a given asset (§4.5.4).
const WeightDocPaths = "doc_paths"

// Relation is a directed edge source Bid -> sink Bid (§3 Relation).
type Relation struct {
	Source Bid
	Sink   Bid
	Kind   RelationKind
	Weight map[string]any

	// SortKey positions a structural child within its sibling order and the
	// document's depth path. Only meaningful for RelationSection edges from
	// a parent to its directly contained headings.
	SortKey []int
}

// Key identifies a relation uniquely enough for diffing/removal: same
// (source, sink, kind) is considered the same logical edge even as its
// weight/sort key change.
type RelationKey struct {
	Source Bid
	Sink   Bid
	Kind   RelationKind
}

func (r Relation) Key() RelationKey {
	return RelationKey{Source: r.Source, Sink: r.Sink, Kind: r.Kind}
}
