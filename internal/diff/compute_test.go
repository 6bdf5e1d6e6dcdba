package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"noet-core/internal/graph"
	"noet-core/internal/identity"
)

func TestComputeEmitsNodeUpdateForNewNode(t *testing.T) {
	net := identity.NowV6()
	bid := identity.New(net)
	old := NewImage(nil, nil)
	next := NewImage([]graph.BeliefNode{{Bid: bid, Net: net, Title: "Intro"}}, nil)

	events := Compute(old, next)
	require.Len(t, events, 1)
	upd, ok := events[0].(graph.NodeUpdate)
	require.True(t, ok)
	assert.Equal(t, bid, upd.Node.Bid)
}

func TestComputeSkipsUnchangedNode(t *testing.T) {
	net := identity.NowV6()
	bid := identity.New(net)
	n := graph.BeliefNode{Bid: bid, Net: net, Title: "Same"}
	old := NewImage([]graph.BeliefNode{n}, nil)
	next := NewImage([]graph.BeliefNode{n}, nil)

	assert.Empty(t, Compute(old, next))
}

func TestComputeDetectsRenameByAnchor(t *testing.T) {
	net := identity.NowV6()
	oldBid := identity.New(net)
	newBid := identity.New(net)
	old := NewImage([]graph.BeliefNode{{Bid: oldBid, Net: net, Anchor: "intro", Title: "Intro"}}, nil)
	next := NewImage([]graph.BeliefNode{{Bid: newBid, Net: net, Anchor: "intro", Title: "Intro"}}, nil)

	events := Compute(old, next)
	require.Len(t, events, 1)
	renamed, ok := events[0].(graph.NodeRenamed)
	require.True(t, ok)
	assert.Equal(t, oldBid, renamed.OldBid)
	assert.Equal(t, newBid, renamed.NewBid)
}

func TestComputeDetectsRenameByStructuralPosition(t *testing.T) {
	net := identity.NowV6()
	doc := identity.New(net)
	oldBid := identity.New(net)
	newBid := identity.New(net)

	// A heading renamed in place: title and derived anchor both change, so
	// only its position under the document survives as a slot.
	old := NewImage(
		[]graph.BeliefNode{{Bid: oldBid, Net: net, Anchor: "getting-started", Title: "Getting Started", HomePath: "guide.md#getting-started"}},
		[]graph.Relation{{Source: doc, Sink: oldBid, Kind: graph.RelationSection, SortKey: []int{0}}},
	)
	next := NewImage(
		[]graph.BeliefNode{{Bid: newBid, Net: net, Anchor: "quick-start", Title: "Quick Start", HomePath: "guide.md#quick-start"}},
		[]graph.Relation{{Source: doc, Sink: newBid, Kind: graph.RelationSection, SortKey: []int{0}}},
	)

	events := Compute(old, next)
	var renamed *graph.NodeRenamed
	var updated *graph.NodeUpdate
	for _, ev := range events {
		switch e := ev.(type) {
		case graph.NodeRenamed:
			renamed = &e
		case graph.NodeUpdate:
			updated = &e
		}
	}
	require.NotNil(t, renamed)
	assert.Equal(t, oldBid, renamed.OldBid)
	assert.Equal(t, newBid, renamed.NewBid)

	// The title/anchor change riding along with the rename arrives as its
	// own NodeUpdate under the new Bid.
	require.NotNil(t, updated)
	assert.Equal(t, newBid, updated.Node.Bid)
	assert.Equal(t, "Quick Start", updated.Node.Title)
}

func TestComputeDetectsRelationChangeAndRemoval(t *testing.T) {
	net := identity.NowV6()
	parent := identity.New(net)
	child := identity.New(net)
	kept := graph.Relation{Source: parent, Sink: child, Kind: graph.RelationSection, SortKey: []int{0}}

	oldOrphan := identity.New(net)
	orphanRel := graph.Relation{Source: parent, Sink: oldOrphan, Kind: graph.RelationSection, SortKey: []int{1}}

	old := NewImage(nil, []graph.Relation{kept, orphanRel})

	changed := kept
	changed.SortKey = []int{0, 1}
	next := NewImage(nil, []graph.Relation{changed})

	events := Compute(old, next)
	var sawChange, sawRemoved bool
	for _, e := range events {
		switch ev := e.(type) {
		case graph.RelationChange:
			assert.Equal(t, []int{0, 1}, ev.Relation.SortKey)
			sawChange = true
		case graph.RelationRemoved:
			assert.Equal(t, oldOrphan, ev.Relation.Sink)
			sawRemoved = true
		}
	}
	assert.True(t, sawChange)
	assert.True(t, sawRemoved)
}
