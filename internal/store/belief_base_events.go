package store

import (
	"sort"

	"noet-core/internal/graph"
	"noet-core/internal/identity"
)

// ProcessEvent applies ev to the base and returns any derivative events the
// base itself emits to keep indices consistent (§4.3). Derivative events
// are applied as part of the same call, so the base is fully consistent
// once ProcessEvent returns; the returned slice is for forwarding to a
// downstream persistent store or event channel.
func (b *BeliefBase) ProcessEvent(ev graph.Event) ([]graph.Event, error) {
	switch e := ev.(type) {
	case graph.NodeUpdate:
		return b.applyNodeUpdate(e)
	case graph.NodeRenamed:
		return b.applyNodeRenamed(e)
	case graph.RelationChange:
		return b.applyRelationChange(e)
	case graph.RelationRemoved:
		return b.applyRelationRemoved(e)
	case graph.PathAdded:
		b.paths.ForNetwork(e.Net).ProcessEvent(e)
		return nil, nil
	case graph.PathRemoved:
		b.paths.ForNetwork(e.Net).ProcessEvent(e)
		return nil, nil
	case graph.FileParsed:
		b.mu.Lock()
		b.fileMtimes[e.Path] = e.Mtime
		b.mu.Unlock()
		return nil, nil
	default:
		return nil, nil
	}
}

func (b *BeliefBase) applyNodeUpdate(e graph.NodeUpdate) ([]graph.Event, error) {
	n := e.Node

	b.mu.Lock()
	existing, had := b.nodes[n.Bid]
	if had {
		merged := existing
		merged.MergeNonDestructive(n)
		// A NodeUpdate carries the authoritative new path/title/anchor even
		// when merge-non-destructive would otherwise keep the old value, so
		// apply those fields from the incoming proto directly rather than
		// treating them as "fill gaps only" (that rule is for arbitrary
		// payload keys, not the structural identity fields).
		oldPath := existing.HomePath
		oldAnchor := existing.Anchor
		merged.HomePath = n.HomePath
		merged.Anchor = n.Anchor
		merged.Title = n.Title
		merged.Net = n.Net
		merged.Kind = existing.Kind | n.Kind
		// content_hash is authoritative too: an asset NodeUpdate exists to
		// carry a changed hash, which fill-gaps-only merging would drop.
		if h, ok := n.Payload["content_hash"]; ok {
			merged.Payload["content_hash"] = h
		}
		b.indexNodeLocked(merged)
		b.nodes[n.Bid] = merged
		b.mu.Unlock()

		var derived []graph.Event
		if oldPath != "" && oldPath != merged.HomePath {
			derived = append(derived,
				graph.PathRemoved{Net: merged.Net, Path: oldPath},
				graph.PathAdded{Net: merged.Net, Path: merged.HomePath, Target: merged.Bid},
			)
		}
		if oldAnchor != merged.Anchor {
			b.reindexAnchor(merged.Net, oldAnchor, merged.Anchor, merged.Bid)
		}
		for _, d := range derived {
			if pe, ok := d.(graph.PathAdded); ok {
				b.paths.ForNetwork(pe.Net).ProcessEvent(pe)
			} else if pr, ok := d.(graph.PathRemoved); ok {
				b.paths.ForNetwork(pr.Net).ProcessEvent(pr)
			}
		}
		return derived, nil
	}

	if _, brefTaken := b.bref[n.Bid.Bref()]; brefTaken {
		b.mu.Unlock()
		invariantViolation("bref collision inserting new node %s", n.Bid)
		return nil, nil
	}
	b.indexNodeLocked(n)
	b.nodes[n.Bid] = n
	b.mu.Unlock()

	var derived []graph.Event
	if n.HomePath != "" {
		pa := graph.PathAdded{Net: n.Net, Path: n.HomePath, Target: n.Bid}
		derived = append(derived, pa)
		b.paths.ForNetwork(n.Net).ProcessEvent(pa)
	}
	return derived, nil
}

// indexNodeLocked updates the bref/anchor/title indices for n. Caller must
// hold b.mu.
func (b *BeliefBase) indexNodeLocked(n graph.BeliefNode) {
	b.bref[n.Bid.Bref()] = n.Bid
	if n.Anchor != "" {
		if b.anchor[n.Net] == nil {
			b.anchor[n.Net] = map[string]identity.Bid{}
		}
		b.anchor[n.Net][n.Anchor] = n.Bid
	}
	if n.Title != "" {
		if b.title[n.Net] == nil {
			b.title[n.Net] = map[string][]identity.Bid{}
		}
		b.title[n.Net][n.Title] = appendUniqueBid(b.title[n.Net][n.Title], n.Bid)
	}
}

func appendUniqueBid(s []identity.Bid, b identity.Bid) []identity.Bid {
	for _, x := range s {
		if x == b {
			return s
		}
	}
	return append(s, b)
}

func (b *BeliefBase) reindexAnchor(net identity.Bid, oldAnchor, newAnchor string, bid identity.Bid) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if oldAnchor != "" && b.anchor[net] != nil {
		if cur, ok := b.anchor[net][oldAnchor]; ok && cur == bid {
			delete(b.anchor[net], oldAnchor)
		}
	}
	if newAnchor != "" {
		if b.anchor[net] == nil {
			b.anchor[net] = map[string]identity.Bid{}
		}
		b.anchor[net][newAnchor] = bid
	}
}

func (b *BeliefBase) applyNodeRenamed(e graph.NodeRenamed) ([]graph.Event, error) {
	b.mu.Lock()
	old, had := b.nodes[e.OldBid]
	if !had {
		b.mu.Unlock()
		return nil, nil
	}
	delete(b.nodes, e.OldBid)
	delete(b.bref, e.OldBid.Bref())
	if old.Anchor != "" && b.anchor[old.Net] != nil {
		delete(b.anchor[old.Net], old.Anchor)
	}
	if old.Title != "" && b.title[old.Net] != nil {
		b.title[old.Net][old.Title] = removeBid(b.title[old.Net][old.Title], e.OldBid)
	}

	renamed := old
	renamed.Bid = e.NewBid
	if _, brefTaken := b.bref[renamed.Bid.Bref()]; brefTaken {
		b.mu.Unlock()
		invariantViolation("bref collision renaming %s -> %s", e.OldBid, e.NewBid)
		return nil, nil
	}
	b.indexNodeLocked(renamed)
	b.nodes[renamed.Bid] = renamed
	b.mu.Unlock()

	// Relations referencing the old Bid move to the new one.
	b.mu.Lock()
	for k, r := range b.relations {
		changed := false
		if r.Source == e.OldBid {
			r.Source = e.NewBid
			changed = true
		}
		if r.Sink == e.OldBid {
			r.Sink = e.NewBid
			changed = true
		}
		if changed {
			delete(b.relations, k)
			b.relations[r.Key()] = r
		}
	}
	b.mu.Unlock()

	if old.HomePath != "" {
		b.paths.ForNetwork(old.Net).ProcessEvent(graph.PathRemoved{Net: old.Net, Path: old.HomePath})
		b.paths.ForNetwork(renamed.Net).ProcessEvent(graph.PathAdded{Net: renamed.Net, Path: renamed.HomePath, Target: renamed.Bid})
	}
	return nil, nil
}

func removeBid(s []identity.Bid, b identity.Bid) []identity.Bid {
	out := s[:0]
	for _, x := range s {
		if x != b {
			out = append(out, x)
		}
	}
	return out
}

func (b *BeliefBase) applyRelationChange(e graph.RelationChange) ([]graph.Event, error) {
	b.mu.Lock()
	b.relations[e.Relation.Key()] = e.Relation
	sinkNet, haveSink := identity.Nil, false
	if n, ok := b.nodes[e.Relation.Sink]; ok {
		sinkNet, haveSink = n.Net, true
	}
	b.mu.Unlock()

	// Keep the sink's cached PathMap sort key in step (§4.2 process_event).
	if haveSink {
		b.paths.ForNetwork(sinkNet).ProcessEvent(e)
	}
	return nil, nil
}

func (b *BeliefBase) applyRelationRemoved(e graph.RelationRemoved) ([]graph.Event, error) {
	b.mu.Lock()
	delete(b.relations, e.Relation.Key())

	var siblings []graph.Relation
	if e.Relation.Kind == graph.RelationSection {
		for _, r := range b.relations {
			if r.Source == e.Relation.Source && r.Kind == graph.RelationSection {
				siblings = append(siblings, r)
			}
		}
	}
	b.mu.Unlock()

	if len(siblings) == 0 {
		return nil, nil
	}

	sort.Slice(siblings, func(i, j int) bool {
		return lessSortKey(siblings[i].SortKey, siblings[j].SortKey)
	})

	var derived []graph.Event
	for i, r := range siblings {
		newKey := append([]int{i}, r.SortKey[minInt(1, len(r.SortKey)):]...)
		if !sameInts(r.SortKey, newKey) {
			r.SortKey = newKey
			change := graph.RelationChange{Relation: r}
			b.mu.Lock()
			b.relations[r.Key()] = r
			sink, haveSink := b.nodes[r.Sink]
			b.mu.Unlock()
			if haveSink {
				b.paths.ForNetwork(sink.Net).ProcessEvent(change)
			}
			derived = append(derived, change)
		}
	}
	return derived, nil
}

func lessSortKey(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func sameInts(a, b []int) bool {
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

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
