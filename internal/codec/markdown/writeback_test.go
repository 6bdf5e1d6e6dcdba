package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noet-core/internal/codec"
	"noet-core/internal/graph"
	"noet-core/internal/identity"
	"noet-core/internal/textdiff"
)

// driveResolve pushes every proto through InjectContext with a fresh (or
// carried) Bid and runs Finalize, the way the Graph Builder would.
func driveResolve(t *testing.T, c *Codec, net graph.Bid) map[int]graph.Bid {
	t.Helper()
	bids := map[int]graph.Bid{}
	for _, proto := range c.Nodes() {
		bid := proto.Bid
		if bid == identity.Nil {
			bid = identity.New(net)
		}
		_, ok := c.InjectContext(proto, codec.InjectedContext{Bid: bid, Net: net, ParentBid: net})
		require.True(t, ok)
		bids[proto.Index] = bid
	}
	c.Finalize()
	return bids
}

func parseAndResolve(t *testing.T, path string, source []byte, net graph.Bid) (*Codec, map[int]graph.Bid) {
	t.Helper()
	c := newCodec()
	res := c.Parse(net, path, source)
	require.Empty(t, res.Diagnostics)
	bids := driveResolve(t, c, net)
	return c, bids
}

func TestWriteSourceCanonicalisesCrossDocumentLink(t *testing.T) {
	net := identity.NowV6()
	source := []byte(`# Index

[Check the guide](./docs/guide.md#getting-started)
`)
	c, _ := parseAndResolve(t, "index.md", source, net)

	resolve := func(key graph.NodeKey) (codec.LinkTarget, bool) {
		return codec.LinkTarget{
			Bref:     "abcdef123456",
			HomePath: "docs/guide.md#quick-start",
			Title:    "Quick Start",
			OldTitle: "Getting Started",
		}, true
	}
	out, changed := c.WriteSource(resolve)
	require.True(t, changed)

	// User text differs from the old target title, so it is preserved; the
	// destination and the bref token are canonicalised.
	assert.Contains(t, string(out),
		`[Check the guide](docs/guide.md#quick-start "bref://abcdef123456")`)
}

func TestWriteSourceReplacesAutoGeneratedLinkText(t *testing.T) {
	net := identity.NowV6()
	source := []byte(`# Index

[Getting Started](docs/guide.md#getting-started)
`)
	c, _ := parseAndResolve(t, "index.md", source, net)

	resolve := func(key graph.NodeKey) (codec.LinkTarget, bool) {
		return codec.LinkTarget{
			Bref:     "abcdef123456",
			HomePath: "docs/guide.md#quick-start",
			Title:    "Quick Start",
			OldTitle: "Getting Started",
		}, true
	}
	out, changed := c.WriteSource(resolve)
	require.True(t, changed)
	assert.Contains(t, string(out),
		`[Quick Start](docs/guide.md#quick-start "bref://abcdef123456")`)
}

func TestWriteSourceSameDocumentAnchorIsAFixedPoint(t *testing.T) {
	net := identity.NowV6()
	source := []byte(`# Doc

## Alpha {#a}

[x](#a "user-note bref://abcdef123456")
`)
	c, _ := parseAndResolve(t, "doc.md", source, net)

	resolve := func(key graph.NodeKey) (codec.LinkTarget, bool) {
		require.Equal(t, graph.KeyKindID, key.Kind)
		require.Equal(t, "a", key.Value)
		return codec.LinkTarget{
			Bref:     "abcdef123456",
			HomePath: "doc.md#a",
			Title:    "Alpha",
			OldTitle: "Alpha",
		}, true
	}
	out, _ := c.WriteSource(resolve)
	assert.Contains(t, string(out), `[x](#a "user-note bref://abcdef123456")`)
}

func TestWriteSourceHeadingAttributeRules(t *testing.T) {
	net := identity.NowV6()
	source := []byte(`# Doc

## Setup {#setup}

## Intro {#intro-x}

## Details

## Details
`)
	c, bids := parseAndResolve(t, "doc.md", source, net)
	out, changed := c.WriteSource(nil)
	require.True(t, changed)
	text := string(out)

	// Explicit id equal to the natural slug is dropped.
	assert.Contains(t, text, "## Setup\n")
	assert.NotContains(t, text, "{#setup}")
	// Explicit id differing from the slug is kept.
	assert.Contains(t, text, "## Intro {#intro-x}")
	// First duplicate keeps the slug (no attribute); the second carries its
	// Bref fallback.
	assert.Contains(t, text, "## Details\n")
	secondDetails := bids[4]
	assert.Contains(t, text, "## Details {#"+string(secondDetails.Bref())+"}")
}

func TestWriteSourceFrontmatterBidFirstAndSectionsGC(t *testing.T) {
	net := identity.NowV6()
	source := []byte(`---
{"bid": "10000000-0000-0000-0000-000000000002", "zeta": 1, "sections": {"kept": {"note": "stays"}, "stale": {"note": "goes"}}}
---
# Doc

## Kept
`)
	c, _ := parseAndResolve(t, "doc.md", source, net)
	out, changed := c.WriteSource(nil)
	require.True(t, changed)
	text := string(out)

	// bid serialises first so re-parses are idempotent.
	fmStart := strings.Index(text, "{")
	require.Greater(t, fmStart, -1)
	assert.True(t, strings.HasPrefix(text[fmStart:], "{\n  \"bid\":"), "frontmatter should open with bid, got:\n%s", text)
	assert.Contains(t, text, `"kept"`)
	assert.NotContains(t, text, `"stale"`)
	assert.Contains(t, text, `"zeta"`)
}

func TestWriteSourceDocumentWithoutFrontmatterGainsBid(t *testing.T) {
	net := identity.NowV6()
	c, bids := parseAndResolve(t, "doc.md", []byte("# Doc\n"), net)
	out, changed := c.WriteSource(nil)
	require.True(t, changed)
	assert.Contains(t, string(out), `"bid": "`+bids[0].String()+`"`)
}

func TestWriteSourceRoundTripIsAFixedPoint(t *testing.T) {
	net := identity.NowV6()
	source := []byte(`---
{"bid": "10000000-0000-0000-0000-000000000002", "title": "Index"}
---
# Index

Some prose with a [Check the guide](docs/guide.md#quick-start "bref://abcdef123456") link.

## Local {#local-x}

[x](#local-x)
`)
	resolve := func(key graph.NodeKey) (codec.LinkTarget, bool) {
		if key.Kind == graph.KeyKindID && key.Value == "local-x" {
			return codec.LinkTarget{
				Bref:     "777777777777",
				HomePath: "index.md#local-x",
				Title:    "Local",
				OldTitle: "Local",
			}, true
		}
		return codec.LinkTarget{
			Bref:     "abcdef123456",
			HomePath: "docs/guide.md#quick-start",
			Title:    "Quick Start",
			OldTitle: "Quick Start",
		}, true
	}

	first, bids := parseAndResolve(t, "index.md", source, net)
	pass1, _ := first.WriteSource(resolve)
	require.NotNil(t, pass1)

	second := newCodec()
	res := second.Parse(net, "index.md", pass1)
	require.Empty(t, res.Diagnostics)
	for _, proto := range second.Nodes() {
		bid := proto.Bid
		if bid == identity.Nil {
			bid = bids[proto.Index]
		}
		_, ok := second.InjectContext(proto, codec.InjectedContext{Bid: bid, Net: net, ParentBid: net})
		require.True(t, ok)
	}
	second.Finalize()

	pass2, changed := second.WriteSource(resolve)
	assert.False(t, changed, "second write should be a no-op:\n%s", textdiff.Report(string(pass1), string(pass2)))
}

func TestScanInlineLinksSkipsCodeSpansAndFences(t *testing.T) {
	src := []byte("a [real](x.md) link\n\n```\n[fenced](y.md)\n```\n\nand `[coded](z.md)` too\n")
	spans := scanInlineLinks(src)
	require.Len(t, spans, 1)
	assert.Equal(t, "x.md", spans[0].dest)
	assert.Equal(t, "real", spans[0].text)
}

func TestScanHeadingsSkipsFencedBlocks(t *testing.T) {
	src := []byte("# One\n\n```\n# not a heading\n```\n\n## Two {#two-x}\n")
	spans := scanHeadings(src)
	require.Len(t, spans, 2)
	assert.Equal(t, 1, spans[0].level)
	assert.Equal(t, "## Two {#two-x}", spans[1].raw)
	assert.Equal(t, 2, spans[1].level)
}

func TestStripHeadingAttr(t *testing.T) {
	base, ok := stripHeadingAttr("## Title {#the-id}")
	assert.True(t, ok)
	assert.Equal(t, "## Title", base)

	// Attribute blocks with classes are left alone.
	_, ok = stripHeadingAttr("## Title {#id .cls}")
	assert.False(t, ok)

	base, ok = stripHeadingAttr("## Plain")
	assert.False(t, ok)
	assert.Equal(t, "## Plain", base)
}

func TestRelativePath(t *testing.T) {
	assert.Equal(t, "docs/guide.md", relativePath(".", "docs/guide.md"))
	assert.Equal(t, "guide.md", relativePath("docs", "docs/guide.md"))
	assert.Equal(t, "../other/x.md", relativePath("docs", "other/x.md"))
	assert.Equal(t, "../../x.md", relativePath("a/b", "x.md"))
}
