package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"noet-core/internal/graph"
	"noet-core/internal/identity"
	"noet-core/internal/store"
)

// TestMain confirms hashAssets' bounded errgroup worker pool leaves no
// goroutines running once a test completes (SPEC DOMAIN STACK: goleak
// backs the driver's asset-hash worker-pool tests).
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingSource is a persistent-mirror stand-in: a full in-memory
// BeliefBase that also remembers every event it was handed.
type recordingSource struct {
	*store.BeliefBase
	events []graph.Event
}

func (r *recordingSource) ProcessEvent(ev graph.Event) ([]graph.Event, error) {
	r.events = append(r.events, ev)
	return r.BeliefBase.ProcessEvent(ev)
}

func TestHashAssetsDeduplicatesIdenticalContent(t *testing.T) {
	globalBB := store.New()
	net := identity.NowV6()
	tr := newAssetTracker(globalBB, nil)

	jobs := []assetJob{
		{net: net, path: "/ws/a/x.png", data: []byte("same-bytes")},
		{net: net, path: "/ws/b/y.png", data: []byte("same-bytes")},
	}
	tr.hashAssets(jobs)

	bidA := tr.byPath["/ws/a/x.png"]
	bidB := tr.byPath["/ws/b/y.png"]
	require.NotEqual(t, identity.Nil, bidA)
	assert.Equal(t, bidA, bidB, "identical content must collapse to one asset Bid (§8 property 7, Scenario 4)")
}

func TestHashAssetsKeepsIdentityStableAcrossContentChange(t *testing.T) {
	globalBB := store.New()
	net := identity.NowV6()
	tr := newAssetTracker(globalBB, nil)

	tr.discover(net, "/ws/a/x.png", []byte("v1"))
	bidBefore := tr.byPath["/ws/a/x.png"]

	tr.discover(net, "/ws/a/x.png", []byte("v2"))
	bidAfter := tr.byPath["/ws/a/x.png"]

	assert.Equal(t, bidBefore, bidAfter, "same path keeps its Bid across a content change (§8 property 7)")

	node, ok := globalBB.NodeByBid(bidAfter)
	require.True(t, ok)
	assert.Equal(t, hashBytes([]byte("v2")), node.Payload["content_hash"])
}

func TestAssetEventsReachThePersistentSource(t *testing.T) {
	globalBB := store.New()
	mirror := &recordingSource{BeliefBase: store.New()}
	net := identity.NowV6()

	tr := newAssetTracker(globalBB, mirror)
	tr.discover(net, "/ws/a/x.png", []byte("bytes"))

	var nodeUpdates, relationChanges int
	for _, ev := range mirror.events {
		switch ev.(type) {
		case graph.NodeUpdate:
			nodeUpdates++
		case graph.RelationChange:
			relationChanges++
		}
	}
	assert.Equal(t, 1, nodeUpdates, "asset node must be double-written to the mirror")
	assert.Equal(t, 1, relationChanges, "asset-namespace membership must be double-written to the mirror")
}

func TestAssetBidSurvivesRestartFromPersistedState(t *testing.T) {
	globalBB := store.New()
	mirror := &recordingSource{BeliefBase: store.New()}
	net := identity.NowV6()

	tr := newAssetTracker(globalBB, mirror)
	tr.discover(net, "/ws/a/x.png", []byte("bytes"))
	bidBefore := tr.byPath["/ws/a/x.png"]
	require.NotEqual(t, identity.Nil, bidBefore)

	// Next process start: global_bb is whatever the mirror persisted, and a
	// fresh tracker seeds itself from it.
	restarted := newAssetTracker(mirror.BeliefBase, nil)
	restarted.discover(net, "/ws/a/x.png", []byte("bytes"))
	assert.Equal(t, bidBefore, restarted.byPath["/ws/a/x.png"],
		"asset Bid must be stable across process restarts")
}
