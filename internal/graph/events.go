package graph

// Event is the typed union applied to derive every index (§3 Event log).
// Modelled as a flat interface with concrete event structs rather than a
// class hierarchy (§9 Design Notes: "no inheritance hierarchy is required").
type Event interface {
	isEvent()
}

// NodeUpdate records a node's full current state after a mutation. Applying
// it inserts the node if new, or merges non-destructively if it already
// exists.
type NodeUpdate struct {
	Node BeliefNode
}

func (NodeUpdate) isEvent() {}

// NodeRenamed signals that a node's Bid changed (an identity change, never
// a mere field edit). OldKeys/NewKeys carry the full key sets either side
// of the rename so dependent indices (path, anchor, title) can be
// reconciled without a second lookup.
type NodeRenamed struct {
	OldBid  Bid
	NewBid  Bid
	OldKeys []NodeKey
	NewKeys []NodeKey
}

func (NodeRenamed) isEvent() {}

// RelationChange upserts an edge (insert, or update weight/sort key).
type RelationChange struct {
	Relation Relation
}

func (RelationChange) isEvent() {}

// RelationRemoved deletes an edge. Applying it triggers sibling reindexing
// when the edge was a RelationSection edge (§4.2 process_event).
type RelationRemoved struct {
	Relation Relation
}

func (RelationRemoved) isEvent() {}

// PathAdded/PathRemoved maintain a network's PathMap.
type PathAdded struct {
	Net    Bid
	Path   string
	Target Bid
	Parent Bid // zero Bid if the target has no structural parent (network/document roots)
	Sort   []int
}

func (PathAdded) isEvent() {}

type PathRemoved struct {
	Net  Bid
	Path string
}

func (PathRemoved) isEvent() {}

// FileParsed marks the successful completion of one document's parse; the
// persistent-store driver turns this into a file_mtimes upsert (§4.5).
type FileParsed struct {
	Path  string
	Mtime int64
}

func (FileParsed) isEvent() {}
