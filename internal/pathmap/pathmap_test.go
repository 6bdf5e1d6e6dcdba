package pathmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"noet-core/internal/graph"
	"noet-core/internal/identity"
)

func TestJoinPathStripsParentAnchor(t *testing.T) {
	assert.Equal(t, "doc.md#child", JoinPath("doc.md#parent", "child"))
	assert.Equal(t, "doc.md", JoinPath("doc.md#parent", ""))
}

func TestGetFromPathRoundTrip(t *testing.T) {
	net := identity.NowV6()
	pm := New(net)
	b := identity.NowV6()
	pm.ProcessEvent(graph.PathAdded{Net: net, Path: "doc.md#intro", Target: b, Sort: []int{0}})

	got, ok := pm.GetFromPath("doc.md#intro")
	require.True(t, ok)
	assert.Equal(t, b, got)

	path, ok := pm.GetFromBid(b)
	require.True(t, ok)
	assert.Equal(t, "doc.md#intro", path)
}

func TestPathRemovedDeletesEntry(t *testing.T) {
	net := identity.NowV6()
	pm := New(net)
	b := identity.NowV6()
	pm.ProcessEvent(graph.PathAdded{Net: net, Path: "doc.md#x", Target: b, Sort: []int{0}})
	pm.ProcessEvent(graph.PathRemoved{Net: net, Path: "doc.md#x"})

	_, ok := pm.GetFromPath("doc.md#x")
	assert.False(t, ok)
}

func TestCollisionFallsBackToBref(t *testing.T) {
	net := identity.NowV6()
	pm := New(net)
	first := identity.NowV6()
	second := identity.NowV6()

	pm.ProcessEvent(graph.PathAdded{Net: net, Path: "doc.md#details", Target: first, Sort: []int{0}})

	candidate := pm.GeneratePathWithCollisionCheck(second, "doc.md", "details")
	assert.Equal(t, "doc.md#"+string(second.Bref()), candidate)
}

func TestNoCollisionReturnsCandidate(t *testing.T) {
	net := identity.NowV6()
	pm := New(net)
	b := identity.NowV6()
	candidate := pm.GeneratePathWithCollisionCheck(b, "doc.md", "unique")
	assert.Equal(t, "doc.md#unique", candidate)
}

func TestSpeculativePathDoesNotMutate(t *testing.T) {
	net := identity.NowV6()
	pm := New(net)
	b := identity.NowV6()

	path, idx := pm.SpeculativePath(b, "doc.md", "", "intro")
	assert.Equal(t, "doc.md#intro", path)
	assert.Equal(t, 0, idx)

	_, ok := pm.GetFromPath("doc.md#intro")
	assert.False(t, ok, "SpeculativePath must not mutate state")
}

func TestIterateInDocumentOrder(t *testing.T) {
	net := identity.NowV6()
	pm := New(net)
	a, b, c := identity.NowV6(), identity.NowV6(), identity.NowV6()
	pm.ProcessEvent(graph.PathAdded{Net: net, Path: "doc.md#c", Target: c, Sort: []int{2}})
	pm.ProcessEvent(graph.PathAdded{Net: net, Path: "doc.md#a", Target: a, Sort: []int{0}})
	pm.ProcessEvent(graph.PathAdded{Net: net, Path: "doc.md#b", Target: b, Sort: []int{1}})

	entries := pm.Iterate()
	require.Len(t, entries, 3)
	assert.Equal(t, a, entries[0].Bid)
	assert.Equal(t, b, entries[1].Bid)
	assert.Equal(t, c, entries[2].Bid)
}

func TestNetGetFromPathScopedPerNetwork(t *testing.T) {
	m := NewPathMapMap()
	net := identity.NowV6()
	b := identity.NowV6()
	m.ForNetwork(net).ProcessEvent(graph.PathAdded{Net: net, Path: "doc.md#x", Target: b, Sort: []int{0}})

	gotNet, gotBid, ok := m.NetGetFromPath(net, "doc.md#x")
	require.True(t, ok)
	assert.Equal(t, net, gotNet)
	assert.Equal(t, b, gotBid)

	_, _, ok = m.NetGetFromPath(identity.NowV6(), "doc.md#x")
	assert.False(t, ok)
}

func TestRecursiveMapIsCycleSafe(t *testing.T) {
	m := NewPathMapMap()
	netA := identity.NowV6()
	netB := identity.NowV6()

	m.ForNetwork(netA).ProcessEvent(graph.PathAdded{Net: netA, Path: "sub/BeliefNetwork.toml", Target: netB, Sort: []int{0}})
	m.ForNetwork(netB).ProcessEvent(graph.PathAdded{Net: netB, Path: "BeliefNetwork.toml", Target: netA, Sort: []int{0}})

	entries := m.RecursiveMap(netA, nil)
	assert.NotEmpty(t, entries)
}
