package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noet-core/internal/codec"
	"noet-core/internal/codec/markdown"
	"noet-core/internal/codec/metaformat"
	"noet-core/internal/graph"
	"noet-core/internal/identity"
	"noet-core/internal/store"
)

func factory() codec.Factory {
	return markdown.NewFactory("noet", metaformat.FormatJSON)
}

func countNodeUpdates(events []graph.Event) int {
	n := 0
	for _, ev := range events {
		if _, ok := ev.(graph.NodeUpdate); ok {
			n++
		}
	}
	return n
}

func lastEvent(events []graph.Event) graph.Event {
	return events[len(events)-1]
}

func TestParseContentInsertsDocumentAndHeadings(t *testing.T) {
	net := identity.New(identity.AssetNamespace)
	sessionBB, globalBB := store.New(), store.New()
	b := New(sessionBB, globalBB)

	source := []byte("# Doc\n\n## Details\n\n## Other\n")
	outcome := b.ParseContent(net, "doc.md", source, factory())
	require.False(t, outcome.Aborted)

	assert.Equal(t, 3, countNodeUpdates(outcome.Events))

	var sections int
	for _, ev := range outcome.Events {
		if rc, ok := ev.(graph.RelationChange); ok && rc.Relation.Kind == graph.RelationSection {
			sections++
		}
	}
	assert.Equal(t, 3, sections) // net->doc, doc->Details, doc->Other

	fp, ok := lastEvent(outcome.Events).(graph.FileParsed)
	require.True(t, ok)
	assert.Equal(t, "doc.md", fp.Path)
}

func TestParseContentSecondPassOfUnchangedDocumentProducesNoNodeUpdates(t *testing.T) {
	net := identity.New(identity.AssetNamespace)
	sessionBB, globalBB := store.New(), store.New()
	b := New(sessionBB, globalBB)

	source := []byte("# Doc\n\n## Details\n")
	first := b.ParseContent(net, "doc.md", source, factory())
	require.False(t, first.Aborted)
	require.NotZero(t, countNodeUpdates(first.Events))

	second := b.ParseContent(net, "doc.md", source, factory())
	require.False(t, second.Aborted)
	assert.Equal(t, 0, countNodeUpdates(second.Events))
}

func TestParseContentRejectsReservedBidWithoutPanicking(t *testing.T) {
	net := identity.New(identity.AssetNamespace)
	sessionBB, globalBB := store.New(), store.New()
	b := New(sessionBB, globalBB)

	source := []byte(`---
{"bid": "6b3d2154-c0a9-437b-9324-5f62adeb9a44", "title": "Doc"}
---
# Doc
`)
	outcome := b.ParseContent(net, "doc.md", source, factory())
	require.True(t, outcome.Aborted)
	require.NotEmpty(t, outcome.Diagnostics)
	assert.Equal(t, codec.DiagReservedIdentifier, outcome.Diagnostics[0].Kind)
}

func TestParseContentUnresolvedLinkRecordsDiagnosticWithoutAborting(t *testing.T) {
	net := identity.New(identity.AssetNamespace)
	sessionBB, globalBB := store.New(), store.New()
	b := New(sessionBB, globalBB)

	source := []byte("# Doc\n\n[missing](#nowhere)\n")
	outcome := b.ParseContent(net, "doc.md", source, factory())
	require.False(t, outcome.Aborted)

	var found bool
	for _, d := range outcome.Diagnostics {
		if d.Kind == codec.DiagUnresolvedReference {
			found = true
		}
	}
	assert.True(t, found)
}

func TestParseContentSameDocumentAnchorLinkResolves(t *testing.T) {
	net := identity.New(identity.AssetNamespace)
	sessionBB, globalBB := store.New(), store.New()
	b := New(sessionBB, globalBB)

	source := []byte("# Doc\n\n[see details](#details)\n\n## Details\n")
	outcome := b.ParseContent(net, "doc.md", source, factory())
	require.False(t, outcome.Aborted)

	var resolvedLink bool
	for _, ev := range outcome.Events {
		if rc, ok := ev.(graph.RelationChange); ok && rc.Relation.Kind == graph.RelationExpressive {
			resolvedLink = true
		}
	}
	assert.True(t, resolvedLink)

	for _, d := range outcome.Diagnostics {
		assert.NotEqual(t, codec.DiagUnresolvedReference, d.Kind)
	}
}

func TestParseContentHeadingsGetDistinctHomePaths(t *testing.T) {
	net := identity.New(identity.AssetNamespace)
	sessionBB, globalBB := store.New(), store.New()
	b := New(sessionBB, globalBB)

	source := []byte("# Doc\n\n## Details\n\n## Other\n")
	outcome := b.ParseContent(net, "doc.md", source, factory())
	require.False(t, outcome.Aborted)

	paths := map[string]bool{}
	for _, ev := range outcome.Events {
		if nu, ok := ev.(graph.NodeUpdate); ok {
			require.False(t, paths[nu.Node.HomePath] && nu.Node.HomePath != "")
			paths[nu.Node.HomePath] = true
		}
	}
	assert.True(t, paths["doc.md"])
	assert.True(t, paths["doc.md#details"])
	assert.True(t, paths["doc.md#other"])
}
