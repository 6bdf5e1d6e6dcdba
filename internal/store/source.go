package store

import (
	"noet-core/internal/graph"
	"noet-core/internal/identity"
)

// FileMtime is one row of §6's file_mtimes cache-invalidation table.
type FileMtime struct {
	Path  string
	Mtime int64
}

// NetPathEntry is one row returned by GetNetworkPaths.
type NetPathEntry struct {
	Path string
	Bid  identity.Bid
}

// BeliefContext is the primary consumer-facing read interface (§4.3
// get_context): a node, its resolved home path, and its neighbours grouped
// by relation kind and sorted by sort-key.
type BeliefContext struct {
	Node      graph.BeliefNode
	HomePath  string
	Neighbors map[graph.RelationKind][]graph.BeliefNode
}

// BeliefSource abstracts over in-memory and persistent belief stores
// (§2 "A BeliefSource trait abstracts over in-memory and persistent
// stores").
type BeliefSource interface {
	States() []graph.BeliefNode
	Relations() []graph.Relation

	// Eval runs a query expression and returns the matching subgraph.
	Eval(expr Expr) graph.BeliefGraph

	// GetContext resolves bid's full consumer-facing view, or false if bid
	// is unknown.
	GetContext(bid identity.Bid) (BeliefContext, bool)

	// GetFileMtimes supports cache invalidation (§6).
	GetFileMtimes() []FileMtime

	// GetNetworkPaths recursively includes subnets (§4.3).
	GetNetworkPaths(net identity.Bid) []NetPathEntry

	// ProcessEvent applies ev and returns any derivative events the base
	// itself emits to keep indices consistent (§4.3 Process_event
	// semantics).
	ProcessEvent(ev graph.Event) ([]graph.Event, error)
}
