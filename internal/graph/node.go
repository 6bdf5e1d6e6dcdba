// Package graph defines the data model of the belief graph: nodes, edges,
// node keys, and the typed event log that derives every index (§3, §4.3).
//
// Grounded on the "universal primitive" Node shape in
// other_examples/372d2b5b_agentic-research-mache__internal-graph-graph.go.go
// (a single struct carrying identity, metadata and children, with a
// lazily-resolved content model) generalised to the belief graph's richer,
// multi-key identity.
package graph

import "noet-core/internal/identity"

// Kind is a bit-set of node roles. A node may be more than one kind at once
// (e.g. a network root is also a Document).
type Kind uint8

const (
	KindDocument Kind = 1 << iota
	KindSection
	KindNetwork
	KindExternal
	KindTrace
	KindAPI
)

// Has reports whether k includes every bit set in flag.
func (k Kind) Has(flag Kind) bool { return k&flag == flag }

// BeliefNode is the belief graph's node type (§3 BeliefNode).
type BeliefNode struct {
	Bid Bid
	Kind Kind

	// Title is a human display string; NOT an identity key for heading
	// nodes (duplicate titles are permitted within a document).
	Title string

	// HomePath is the node's network-relative path, e.g. "doc.md#anchor".
	HomePath string

	// Payload is an arbitrary free-form map of domain metadata, including
	// content_hash for assets.
	Payload map[string]any

	// Anchor is the node's resolved heading-id, empty for non-section
	// nodes.
	Anchor string

	// Net is the Bid of the network this node belongs to. Required for
	// Id/Path/Title key lookups, which are always scoped per-network.
	Net Bid
}

// Bid is a local alias so this package reads cleanly; identical
// representation to identity.Bid.
type Bid = identity.Bid

// Clone returns a deep-enough copy of n suitable for storing as a prior
// image for diffing (payload map is copied one level deep).
func (n BeliefNode) Clone() BeliefNode {
	out := n
	if n.Payload != nil {
		out.Payload = make(map[string]any, len(n.Payload))
		for k, v := range n.Payload {
			out.Payload[k] = v
		}
	}
	return out
}

// MergeNonDestructive merges src's fields into n, preserving any field
// already set on n (§4.4.c: "merge proto metadata into the cached node
// (non-destructive — existing fields preserved)"). Payload keys from src
// fill gaps only; a key present in both keeps n's value.
func (n *BeliefNode) MergeNonDestructive(src BeliefNode) {
	if n.Title == "" {
		n.Title = src.Title
	}
	if n.HomePath == "" {
		n.HomePath = src.HomePath
	}
	if n.Anchor == "" {
		n.Anchor = src.Anchor
	}
	n.Kind |= src.Kind
	if n.Payload == nil {
		n.Payload = map[string]any{}
	}
	for k, v := range src.Payload {
		if _, exists := n.Payload[k]; !exists {
			n.Payload[k] = v
		}
	}
}

// KeySet returns this node's lookup keys: {Bid, Bref, Id(net,anchor),
// Path(net,path), Title(net,title)} — each included only where applicable
// (§3 BeliefNode).
func (n BeliefNode) KeySet() []NodeKey {
	keys := []NodeKey{KeyBid(n.Bid), KeyBref(n.Bid.Bref())}
	if n.Anchor != "" {
		keys = append(keys, KeyID(n.Net, n.Anchor))
	}
	if n.HomePath != "" {
		keys = append(keys, KeyPath(n.Net, n.HomePath))
	}
	if n.Title != "" {
		keys = append(keys, KeyTitle(n.Net, n.Title))
	}
	return keys
}
