package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noet-core/internal/graph"
	"noet-core/internal/identity"
)

func TestOpenCreatesSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.sqlite3")
	s, err := Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	assert.Empty(t, s.States())
	assert.Empty(t, s.Relations())
}

func TestProcessEventPersistsAndReloads(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.sqlite3")
	net := identity.NowV6()
	bid := identity.New(net)

	s, err := Open(dbPath)
	require.NoError(t, err)

	_, err = s.ProcessEvent(graph.NodeUpdate{Node: graph.BeliefNode{
		Bid: bid, Net: net, Title: "Intro", HomePath: "doc.md#intro", Anchor: "intro",
	}})
	require.NoError(t, err)
	_, err = s.ProcessEvent(graph.FileParsed{Path: "doc.md", Mtime: 1234})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok := reopened.GetContext(bid)
	require.True(t, ok)
	assert.Equal(t, "Intro", got.Node.Title)
	assert.Equal(t, "doc.md#intro", got.HomePath)

	mtimes := reopened.GetFileMtimes()
	require.Len(t, mtimes, 1)
	assert.Equal(t, "doc.md", mtimes[0].Path)
	assert.EqualValues(t, 1234, mtimes[0].Mtime)
}

func TestProcessEventRelationRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.sqlite3")
	net := identity.NowV6()
	src := identity.New(net)
	sink := identity.New(net)

	s, err := Open(dbPath)
	require.NoError(t, err)

	_, err = s.ProcessEvent(graph.NodeUpdate{Node: graph.BeliefNode{Bid: src, Net: net}})
	require.NoError(t, err)
	_, err = s.ProcessEvent(graph.NodeUpdate{Node: graph.BeliefNode{Bid: sink, Net: net}})
	require.NoError(t, err)
	_, err = s.ProcessEvent(graph.RelationChange{Relation: graph.Relation{
		Source: src, Sink: sink, Kind: graph.RelationSection, SortKey: []int{0},
	}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	rels := reopened.Relations()
	require.Len(t, rels, 1)
	assert.Equal(t, src, rels[0].Source)
	assert.Equal(t, sink, rels[0].Sink)
	assert.Equal(t, []int{0}, rels[0].SortKey)
}
