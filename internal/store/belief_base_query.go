package store

import (
	"sort"

	"noet-core/internal/graph"
	"noet-core/internal/identity"
)

// Eval runs a query expression over the base's current state (§4.3
// BeliefSource.eval).
func (b *BeliefBase) Eval(expr Expr) graph.BeliefGraph {
	matches := b.evalBids(expr)
	out := graph.BeliefGraph{}
	b.mu.RLock()
	for bid := range matches {
		if n, ok := b.nodes[bid]; ok {
			out.States = append(out.States, n)
		}
	}
	for _, r := range b.relations {
		if _, ok := matches[r.Source]; ok {
			out.Relations = append(out.Relations, r)
		} else if _, ok := matches[r.Sink]; ok {
			out.Relations = append(out.Relations, r)
		}
	}
	b.mu.RUnlock()
	return out
}

func (b *BeliefBase) evalBids(expr Expr) map[identity.Bid]struct{} {
	switch e := expr.(type) {
	case StateIn:
		return b.evalPred(e.Pred)
	case NetPath:
		out := map[identity.Bid]struct{}{}
		if n, ok := b.NodeByPath(e.Net, e.Path); ok {
			out[n.Bid] = struct{}{}
		}
		return out
	case NetPathIn:
		out := map[identity.Bid]struct{}{}
		for _, entry := range b.paths.ForNetwork(e.Net).Iterate() {
			out[entry.Bid] = struct{}{}
		}
		return out
	case And:
		var acc map[identity.Bid]struct{}
		for i, sub := range e.Exprs {
			m := b.evalBids(sub)
			if i == 0 {
				acc = m
				continue
			}
			acc = intersect(acc, m)
		}
		if acc == nil {
			acc = map[identity.Bid]struct{}{}
		}
		return acc
	case Or:
		acc := map[identity.Bid]struct{}{}
		for _, sub := range e.Exprs {
			for bid := range b.evalBids(sub) {
				acc[bid] = struct{}{}
			}
		}
		return acc
	case Not:
		excluded := b.evalBids(e.Expr)
		out := map[identity.Bid]struct{}{}
		b.mu.RLock()
		for bid := range b.nodes {
			if _, ok := excluded[bid]; !ok {
				out[bid] = struct{}{}
			}
		}
		b.mu.RUnlock()
		return out
	default:
		return map[identity.Bid]struct{}{}
	}
}

func (b *BeliefBase) evalPred(p StatePred) map[identity.Bid]struct{} {
	out := map[identity.Bid]struct{}{}
	switch p.Kind {
	case PredBid:
		if _, ok := b.NodeByBid(p.Bid); ok {
			out[p.Bid] = struct{}{}
		}
	case PredBref:
		if n, ok := b.NodeByBref(p.Bref); ok {
			out[n.Bid] = struct{}{}
		}
	case PredAnchor:
		if n, ok := b.NodeByAnchor(p.Net, p.Text); ok {
			out[n.Bid] = struct{}{}
		}
	case PredTitle:
		for _, n := range b.NodesByTitle(p.Net, p.Text) {
			out[n.Bid] = struct{}{}
		}
	}
	return out
}

func intersect(a, b map[identity.Bid]struct{}) map[identity.Bid]struct{} {
	out := map[identity.Bid]struct{}{}
	for k := range a {
		if _, ok := b[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

// GetContext resolves bid's full consumer-facing view: the node, its home
// path, and its neighbours grouped by relation kind, sorted by sort-key
// (§4.3 get_context).
func (b *BeliefBase) GetContext(bid identity.Bid) (BeliefContext, bool) {
	n, ok := b.NodeByBid(bid)
	if !ok {
		return BeliefContext{}, false
	}

	neighbors := map[graph.RelationKind][]graph.BeliefNode{}
	type scored struct {
		node graph.BeliefNode
		sort []int
	}
	grouped := map[graph.RelationKind][]scored{}

	b.mu.RLock()
	for _, r := range b.relations {
		if r.Source != bid {
			continue
		}
		if target, ok := b.nodes[r.Sink]; ok {
			grouped[r.Kind] = append(grouped[r.Kind], scored{node: target, sort: r.SortKey})
		}
	}
	b.mu.RUnlock()

	for kind, list := range grouped {
		sort.SliceStable(list, func(i, j int) bool { return lessSortKey(list[i].sort, list[j].sort) })
		nodes := make([]graph.BeliefNode, len(list))
		for i, s := range list {
			nodes[i] = s.node
		}
		neighbors[kind] = nodes
	}

	return BeliefContext{Node: n, HomePath: n.HomePath, Neighbors: neighbors}, true
}
