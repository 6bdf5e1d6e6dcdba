package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"noet-core/internal/graph"
	"noet-core/internal/identity"
)

func TestProcessEventNodeUpdateInsertsNewNode(t *testing.T) {
	b := New()
	net := identity.NowV6()
	bid := identity.New(net)

	derived, err := b.ProcessEvent(graph.NodeUpdate{Node: graph.BeliefNode{
		Bid: bid, Net: net, Title: "Intro", HomePath: "doc.md#intro", Anchor: "intro",
	}})
	require.NoError(t, err)
	require.Len(t, derived, 1)
	assert.IsType(t, graph.PathAdded{}, derived[0])

	got, ok := b.NodeByBid(bid)
	require.True(t, ok)
	assert.Equal(t, "Intro", got.Title)

	byPath, ok := b.NodeByPath(net, "doc.md#intro")
	require.True(t, ok)
	assert.Equal(t, bid, byPath.Bid)

	byAnchor, ok := b.NodeByAnchor(net, "intro")
	require.True(t, ok)
	assert.Equal(t, bid, byAnchor.Bid)
}

func TestProcessEventNodeUpdateMergesNonDestructively(t *testing.T) {
	b := New()
	net := identity.NowV6()
	bid := identity.New(net)

	_, err := b.ProcessEvent(graph.NodeUpdate{Node: graph.BeliefNode{
		Bid: bid, Net: net, Payload: map[string]any{"a": 1},
	}})
	require.NoError(t, err)

	_, err = b.ProcessEvent(graph.NodeUpdate{Node: graph.BeliefNode{
		Bid: bid, Net: net, Payload: map[string]any{"a": 2, "b": 3},
	}})
	require.NoError(t, err)

	got, ok := b.NodeByBid(bid)
	require.True(t, ok)
	assert.Equal(t, 1, got.Payload["a"])
	assert.Equal(t, 3, got.Payload["b"])
}

func TestProcessEventNodeUpdatePathChangeEmitsPathEvents(t *testing.T) {
	b := New()
	net := identity.NowV6()
	bid := identity.New(net)

	_, err := b.ProcessEvent(graph.NodeUpdate{Node: graph.BeliefNode{
		Bid: bid, Net: net, HomePath: "a.md",
	}})
	require.NoError(t, err)

	derived, err := b.ProcessEvent(graph.NodeUpdate{Node: graph.BeliefNode{
		Bid: bid, Net: net, HomePath: "b.md",
	}})
	require.NoError(t, err)
	require.Len(t, derived, 2)

	_, ok := b.NodeByPath(net, "a.md")
	assert.False(t, ok)
	byPath, ok := b.NodeByPath(net, "b.md")
	require.True(t, ok)
	assert.Equal(t, bid, byPath.Bid)
}

func TestProcessEventBrefCollisionPanics(t *testing.T) {
	b := New()
	net := identity.NowV6()
	bid := identity.New(net)

	_, err := b.ProcessEvent(graph.NodeUpdate{Node: graph.BeliefNode{Bid: bid, Net: net}})
	require.NoError(t, err)

	// Renaming a second node onto bid's identity is the reachable bref-
	// collision path.
	other := identity.New(net)
	_, err = b.ProcessEvent(graph.NodeUpdate{Node: graph.BeliefNode{Bid: other, Net: net}})
	require.NoError(t, err)

	assert.Panics(t, func() {
		b.ProcessEvent(graph.NodeRenamed{OldBid: other, NewBid: bid})
	})
}

func TestProcessEventRelationChangeAndRemovedReindexesSiblings(t *testing.T) {
	b := New()
	net := identity.NowV6()
	parent := identity.New(net)
	c0 := identity.New(net)
	c1 := identity.New(net)
	c2 := identity.New(net)

	for _, n := range []graph.BeliefNode{
		{Bid: parent, Net: net}, {Bid: c0, Net: net}, {Bid: c1, Net: net}, {Bid: c2, Net: net},
	} {
		_, err := b.ProcessEvent(graph.NodeUpdate{Node: n})
		require.NoError(t, err)
	}

	rel := func(sink identity.Bid, key int) graph.Relation {
		return graph.Relation{Source: parent, Sink: sink, Kind: graph.RelationSection, SortKey: []int{key}}
	}
	for i, sink := range []identity.Bid{c0, c1, c2} {
		_, err := b.ProcessEvent(graph.RelationChange{Relation: rel(sink, i)})
		require.NoError(t, err)
	}

	derived, err := b.ProcessEvent(graph.RelationRemoved{Relation: rel(c0, 0)})
	require.NoError(t, err)
	require.Len(t, derived, 2)

	rels := b.Relations()
	found := map[identity.Bid][]int{}
	for _, r := range rels {
		found[r.Sink] = r.SortKey
	}
	assert.Equal(t, []int{0}, found[c1])
	assert.Equal(t, []int{1}, found[c2])
}

func TestEvalByBidAndAnd(t *testing.T) {
	b := New()
	net := identity.NowV6()
	bid := identity.New(net)
	_, err := b.ProcessEvent(graph.NodeUpdate{Node: graph.BeliefNode{
		Bid: bid, Net: net, Title: "Intro", Anchor: "intro",
	}})
	require.NoError(t, err)

	g := b.Eval(StateIn{Pred: ByBid(bid)})
	require.Len(t, g.States, 1)
	assert.Equal(t, bid, g.States[0].Bid)

	g = b.Eval(And{Exprs: []Expr{
		StateIn{Pred: ByAnchor(net, "intro")},
		StateIn{Pred: ByTitle(net, "Intro")},
	}})
	require.Len(t, g.States, 1)

	g = b.Eval(And{Exprs: []Expr{
		StateIn{Pred: ByAnchor(net, "intro")},
		StateIn{Pred: ByTitle(net, "nope")},
	}})
	assert.Empty(t, g.States)
}

func TestEvalNot(t *testing.T) {
	b := New()
	net := identity.NowV6()
	a := identity.New(net)
	other := identity.New(net)
	_, err := b.ProcessEvent(graph.NodeUpdate{Node: graph.BeliefNode{Bid: a, Net: net, Anchor: "a"}})
	require.NoError(t, err)
	_, err = b.ProcessEvent(graph.NodeUpdate{Node: graph.BeliefNode{Bid: other, Net: net}})
	require.NoError(t, err)

	g := b.Eval(Not{Expr: StateIn{Pred: ByAnchor(net, "a")}})
	var bids []identity.Bid
	for _, n := range g.States {
		bids = append(bids, n.Bid)
	}
	assert.Contains(t, bids, other)
	assert.NotContains(t, bids, a)
}

func TestGetContextGroupsAndSortsNeighbors(t *testing.T) {
	b := New()
	net := identity.NowV6()
	parent := identity.New(net)
	c0 := identity.New(net)
	c1 := identity.New(net)

	for _, n := range []graph.BeliefNode{{Bid: parent, Net: net}, {Bid: c0, Net: net}, {Bid: c1, Net: net}} {
		_, err := b.ProcessEvent(graph.NodeUpdate{Node: n})
		require.NoError(t, err)
	}
	_, err := b.ProcessEvent(graph.RelationChange{Relation: graph.Relation{
		Source: parent, Sink: c1, Kind: graph.RelationSection, SortKey: []int{1},
	}})
	require.NoError(t, err)
	_, err = b.ProcessEvent(graph.RelationChange{Relation: graph.Relation{
		Source: parent, Sink: c0, Kind: graph.RelationSection, SortKey: []int{0},
	}})
	require.NoError(t, err)

	ctx, ok := b.GetContext(parent)
	require.True(t, ok)
	neighbors := ctx.Neighbors[graph.RelationSection]
	require.Len(t, neighbors, 2)
	assert.Equal(t, c0, neighbors[0].Bid)
	assert.Equal(t, c1, neighbors[1].Bid)
}

func TestGetContextUnknownBidReturnsFalse(t *testing.T) {
	b := New()
	_, ok := b.GetContext(identity.NowV6())
	assert.False(t, ok)
}
