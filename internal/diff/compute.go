// Package diff computes the minimal event sequence between two parsed
// images of the same document (§4.3 compute_diff): a structural comparison
// of nodes and relations, not a text diff.
//
// Grounded on the teacher's internal/diff package shape (an Engine wrapping
// a third-party diff library behind a small result type) but reworked
// around github.com/google/go-cmp for structural equality rather than
// sergi/go-diff's line algorithm, which belongs to internal/textdiff
// instead.
package diff

import (
	"github.com/google/go-cmp/cmp"
	"noet-core/internal/graph"
	"noet-core/internal/identity"
)

// Image is one document's fully parsed state at a point in time: every node
// it owns, keyed by Bid, and every relation it owns, keyed by (source,
// sink, kind).
type Image struct {
	Nodes     map[identity.Bid]graph.BeliefNode
	Relations map[graph.RelationKey]graph.Relation
}

// NewImage builds an Image from flat slices, as produced by terminate_stack.
func NewImage(nodes []graph.BeliefNode, relations []graph.Relation) Image {
	img := Image{
		Nodes:     make(map[identity.Bid]graph.BeliefNode, len(nodes)),
		Relations: make(map[graph.RelationKey]graph.Relation, len(relations)),
	}
	for _, n := range nodes {
		img.Nodes[n.Bid] = n
	}
	for _, r := range relations {
		img.Relations[r.Key()] = r
	}
	return img
}

// Compute returns the minimal events that turn old into new. Renames are
// detected by matching an old node no longer present by Bid against a new
// node sharing its (net, anchor) or (net, path) slot — the stable identity
// a reader recognises across a heading-id edit even though the Bid itself
// changed (§4.4.e "distinguish a renamed node from an unrelated deletion
// plus insertion").
func Compute(old, next Image) []graph.Event {
	var events []graph.Event

	renamedFrom := map[identity.Bid]identity.Bid{} // next bid -> old bid
	renamedTo := map[identity.Bid]bool{}           // old bid already claimed

	for nextBid, n := range next.Nodes {
		if _, stillPresent := old.Nodes[nextBid]; stillPresent {
			continue
		}
		if oldBid, ok := matchBySlot(old, next, n); ok && !renamedTo[oldBid] {
			renamedFrom[nextBid] = oldBid
			renamedTo[oldBid] = true
		}
	}

	for nextBid, n := range next.Nodes {
		if oldBid, renamed := renamedFrom[nextBid]; renamed {
			events = append(events, graph.NodeRenamed{
				OldBid:  oldBid,
				NewBid:  nextBid,
				OldKeys: old.Nodes[oldBid].KeySet(),
				NewKeys: n.KeySet(),
			})
			// NodeRenamed re-keys the node; any field change riding along
			// with the rename (new title, new anchor) still needs its own
			// NodeUpdate (§3 Lifecycle: mutation is always a NodeUpdate).
			carried := old.Nodes[oldBid]
			carried.Bid = nextBid
			if !cmp.Equal(carried, n) {
				events = append(events, graph.NodeUpdate{Node: n})
			}
			continue
		}
		prior, had := old.Nodes[nextBid]
		if had && cmp.Equal(prior, n) {
			continue
		}
		events = append(events, graph.NodeUpdate{Node: n})
	}

	for key, r := range next.Relations {
		prior, had := old.Relations[key]
		if had && cmp.Equal(prior, r) {
			continue
		}
		events = append(events, graph.RelationChange{Relation: r})
	}
	for key, r := range old.Relations {
		if _, stillPresent := next.Relations[key]; !stillPresent {
			events = append(events, graph.RelationRemoved{Relation: r})
		}
	}

	return events
}

// matchBySlot looks for the one old node that vacated the anchor or path
// slot n now occupies, without itself surviving under its own Bid in next.
// When neither anchor nor path survives the edit (a heading renamed in
// place, its derived anchor changing with it), the containment edge's sort
// position is the remaining stable slot.
func matchBySlot(old, next Image, n graph.BeliefNode) (identity.Bid, bool) {
	for oldBid, o := range old.Nodes {
		if _, stillPresent := next.Nodes[oldBid]; stillPresent {
			continue
		}
		if o.Net != n.Net {
			continue
		}
		if n.Anchor != "" && o.Anchor == n.Anchor {
			return oldBid, true
		}
		if n.HomePath != "" && o.HomePath == n.HomePath {
			return oldBid, true
		}
	}

	parent, sk, ok := containmentSlot(next, n.Bid)
	if !ok {
		return identity.Nil, false
	}
	for oldBid, o := range old.Nodes {
		if _, stillPresent := next.Nodes[oldBid]; stillPresent {
			continue
		}
		if o.Net != n.Net {
			continue
		}
		if op, osk, ok := containmentSlot(old, oldBid); ok && op == parent && sameSort(osk, sk) {
			return oldBid, true
		}
	}
	return identity.Nil, false
}

// containmentSlot returns the source and sort key of the Section edge
// pointing at bid: the node's structural position under its parent.
func containmentSlot(img Image, bid identity.Bid) (identity.Bid, []int, bool) {
	for _, r := range img.Relations {
		if r.Sink == bid && r.Kind == graph.RelationSection {
			return r.Source, r.SortKey, true
		}
	}
	return identity.Nil, nil, false
}

func sameSort(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
