package store

import (
	"fmt"
	"sync"

	"noet-core/internal/graph"
	"noet-core/internal/identity"
	"noet-core/internal/pathmap"
)

// BeliefBase is the in-memory BeliefSource implementation shared by
// doc_bb, session_bb and global_bb (§3 Three-tier belief store). It keeps a
// content-addressed map from Bid to node plus companion indices by Bref,
// anchor, path and title (§2 Graph store).
type BeliefBase struct {
	mu sync.RWMutex

	nodes map[identity.Bid]graph.BeliefNode
	bref  map[identity.Bref]identity.Bid
	// anchor and title indices are scoped per network.
	anchor map[identity.Bid]map[string]identity.Bid
	title  map[identity.Bid]map[string][]identity.Bid

	relations map[graph.RelationKey]graph.Relation

	paths *pathmap.PathMapMap

	fileMtimes map[string]int64

	// apiNode is the well-known API node Bid for this process (§2).
	apiNode identity.Bid
}

// New creates an empty BeliefBase.
func New() *BeliefBase {
	return &BeliefBase{
		nodes:      map[identity.Bid]graph.BeliefNode{},
		bref:       map[identity.Bref]identity.Bid{},
		anchor:     map[identity.Bid]map[string]identity.Bid{},
		title:      map[identity.Bid]map[string][]identity.Bid{},
		relations:  map[graph.RelationKey]graph.Relation{},
		paths:      pathmap.NewPathMapMap(),
		fileMtimes: map[string]int64{},
	}
}

// SetAPINode records the well-known API node Bid for this process.
func (b *BeliefBase) SetAPINode(bid identity.Bid) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.apiNode = bid
}

// APINode returns the well-known API node Bid for this process.
func (b *BeliefBase) APINode() identity.Bid {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.apiNode
}

// Paths exposes the underlying PathMapMap (§2: "a handle to ... PathMap").
func (b *BeliefBase) Paths() *pathmap.PathMapMap {
	return b.paths
}

// States returns every node currently held (§2.2 BeliefSource.states()).
func (b *BeliefBase) States() []graph.BeliefNode {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]graph.BeliefNode, 0, len(b.nodes))
	for _, n := range b.nodes {
		out = append(out, n)
	}
	return out
}

// Relations returns every edge currently held.
func (b *BeliefBase) Relations() []graph.Relation {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]graph.Relation, 0, len(b.relations))
	for _, r := range b.relations {
		out = append(out, r)
	}
	return out
}

// GetFileMtimes returns the cache-invalidation table (§6).
func (b *BeliefBase) GetFileMtimes() []FileMtime {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]FileMtime, 0, len(b.fileMtimes))
	for p, m := range b.fileMtimes {
		out = append(out, FileMtime{Path: p, Mtime: m})
	}
	return out
}

// GetNetworkPaths recursively includes subnets (§4.3). Return order under
// multi-path conditions is intentionally left unspecified per §9's Open
// Questions.
func (b *BeliefBase) GetNetworkPaths(net identity.Bid) []NetPathEntry {
	entries := b.paths.RecursiveMap(net, nil)
	out := make([]NetPathEntry, len(entries))
	for i, e := range entries {
		out[i] = NetPathEntry{Path: e.FullPath, Bid: e.Bid}
	}
	return out
}

// NodeByBid looks up a node directly, bypassing Eval — used internally by
// GetContext and by the Graph Builder's three-tier cache-fetch (§4.4).
func (b *BeliefBase) NodeByBid(bid identity.Bid) (graph.BeliefNode, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.nodes[bid]
	return n, ok
}

// NodeByBref resolves a Bref to its node.
func (b *BeliefBase) NodeByBref(r identity.Bref) (graph.BeliefNode, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bid, ok := b.bref[r]
	if !ok {
		return graph.BeliefNode{}, false
	}
	return b.nodes[bid], true
}

// NodeByAnchor resolves an (net, anchor) pair.
func (b *BeliefBase) NodeByAnchor(net identity.Bid, anchor string) (graph.BeliefNode, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bid, ok := b.anchor[net][anchor]
	if !ok {
		return graph.BeliefNode{}, false
	}
	return b.nodes[bid], true
}

// NodesByTitle resolves an (net, title) pair to every matching node — titles
// are not an identity key, so more than one match is possible (§3 Title).
func (b *BeliefBase) NodesByTitle(net identity.Bid, title string) []graph.BeliefNode {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []graph.BeliefNode
	for _, bid := range b.title[net][title] {
		out = append(out, b.nodes[bid])
	}
	return out
}

// NodeByPath resolves a (net, path) pair via the PathMap.
func (b *BeliefBase) NodeByPath(net identity.Bid, path string) (graph.BeliefNode, bool) {
	bid, ok := b.paths.ForNetwork(net).GetFromPath(path)
	if !ok {
		return graph.BeliefNode{}, false
	}
	return b.NodeByBid(bid)
}

// NodeByKey resolves one candidate NodeKey against the base's indices. For
// Title keys, which are not unique, the first match wins (§7.4).
func (b *BeliefBase) NodeByKey(k graph.NodeKey) (graph.BeliefNode, bool) {
	switch k.Kind {
	case graph.KeyKindBid:
		return b.NodeByBid(k.BidVal)
	case graph.KeyKindBref:
		return b.NodeByBref(k.BrefVal)
	case graph.KeyKindID:
		return b.NodeByAnchor(k.Net, k.Value)
	case graph.KeyKindPath:
		return b.NodeByPath(k.Net, k.Value)
	case graph.KeyKindTitle:
		if ns := b.NodesByTitle(k.Net, k.Value); len(ns) > 0 {
			return ns[0], true
		}
	}
	return graph.BeliefNode{}, false
}

// invariantViolation panics with a crash diagnostic, matching §7.7: index-
// breaking events inside BeliefBase are a programming error, not a
// recoverable parse condition.
func invariantViolation(format string, args ...any) {
	panic(fmt.Sprintf("belief base invariant violation: "+format, args...))
}
