// Package codec defines the DocCodec contract (§4.6, §4.7): the small
// virtual interface the Graph Builder drives per file, plus the proto node
// and diagnostic types that cross the codec/builder boundary.
//
// Grounded on the teacher's extension-dispatch map in
// other_examples/372d2b5b_agentic-research-mache (a parser-per-file-kind
// registry) and on the "no inheritance hierarchy" design note (§9): this is
// a flat interface with a handful of optional methods given no-op defaults
// via embedding, not a class hierarchy.
package codec

import "noet-core/internal/graph"

// RelPath is a repo-relative output path, e.g. "pages/doc.html".
type RelPath string

// BodyHtml is a rendered HTML fragment body (no surrounding template).
type BodyHtml string

// NodeKeyRef is a candidate reference to another node, not yet resolved.
type NodeKeyRef struct {
	Key    graph.NodeKey
	Kind   graph.RelationKind
	Weight map[string]any
}

// ProtoBeliefNode is a codec's raw parsed output for one node, before the
// Graph Builder assigns or reuses a Bid (§4.4 parse_content step 1).
type ProtoBeliefNode struct {
	// Index is this node's position in the owning codec's Nodes() slice,
	// stamped by the codec so InjectContext/Finalize can find it back
	// without re-deriving identity from mutable fields like Title/Anchor.
	Index int

	// Bid is set only when the source carries an explicit bid (frontmatter,
	// or a prior write-back); zero otherwise.
	Bid identity_Bid

	Title     string
	Anchor    string
	HomePath  string
	Kind      graph.Kind
	Payload   map[string]any
	HeadingLv int // 1 = network/document root, 2 = top-level heading, ...

	// Links are candidate references discovered while parsing this node's
	// content (§4.4 step 1 "link references").
	Links []NodeKeyRef
}

// identity_Bid avoids an import cycle concern at the type-alias level: the
// codec package only needs the zero value and equality, both of which
// graph.Bid (itself an alias of identity.Bid) already provides.
type identity_Bid = graph.Bid

// DiagnosticKind classifies a ParseDiagnostic by effect, not by Go type
// (§7 "Taxonomy by effect").
type DiagnosticKind int

const (
	DiagUnresolvedReference DiagnosticKind = iota
	DiagReservedIdentifier
	DiagAmbiguousNodeKey
	DiagCodecFailure
)

// ParseDiagnostic reports a parse-local, non-fatal condition (§7).
type ParseDiagnostic struct {
	Kind    DiagnosticKind
	Path    string
	Message string

	// Proto/Key are populated for DiagUnresolvedReference and
	// DiagAmbiguousNodeKey.
	Proto ProtoBeliefNode
	Key   graph.NodeKey
}

// ParseResult is everything one parse_content invocation returns to the
// driver (§4.4, §4.5).
type ParseResult struct {
	Diagnostics []ParseDiagnostic
}

// DocCodec is the per-file contract a codec factory instantiates fresh for
// every parse (§4.6 "Codec lifecycle"). Required methods come first;
// optional methods (should_defer, generate_html, generate_deferred_html)
// are given no-op defaults by embedding Defaults in a concrete codec.
type DocCodec interface {
	// Nodes returns the parsed proto nodes in document order: one for the
	// document root, one per heading (§4.4 step 1).
	Nodes() []ProtoBeliefNode

	// InjectContext resolves links and normalises IDs against a fully
	// cache-fetched node, returning the finished BeliefNode. Returns false
	// if proto cannot be materialised (reserved-identifier violation).
	InjectContext(proto ProtoBeliefNode, ctx InjectedContext) (graph.BeliefNode, bool)

	// ShouldDefer reports whether GenerateHTML chose to defer rendering
	// until post-parse context is available (default false).
	ShouldDefer() bool

	// GenerateHTML renders immediate per-document fragments.
	GenerateHTML() []Fragment

	// GenerateDeferredHTML renders fragments that need the fully
	// synchronised store (e.g. a network index's child list).
	GenerateDeferredHTML(ctx DeferredContext) []Fragment

	// Finalize returns the (proto, resolved) pairs the builder must emit as
	// NodeUpdate events, after any GC of stale section metadata.
	Finalize() []FinalizedNode
}

// Parser is implemented by codecs that consume raw source bytes to produce
// their Nodes() (§4.4 step 1). Kept separate from DocCodec because
// InjectContext/Finalize never need the raw bytes again once Nodes() has
// been called, and the builder only needs this method once, right after
// construction.
type Parser interface {
	Parse(net graph.Bid, path string, source []byte) ParseResult
}

// InjectedContext is what the Graph Builder supplies InjectContext: the Bid
// assigned to (or reused for) this proto after the three-tier store lookup,
// its network's Bid, and its parent's Bid.
type InjectedContext struct {
	Bid       graph.Bid
	Net       graph.Bid
	ParentBid graph.Bid
}

// DeferredContext carries the BeliefContext a deferred codec needs,
// without importing internal/store directly (avoids a codec->store
// dependency edge; the driver supplies the projection it needs).
type DeferredContext struct {
	Node      graph.BeliefNode
	HomePath  string
	Neighbors map[graph.RelationKind][]graph.BeliefNode
}

// Fragment is one rendered HTML body destined for a RelPath (§4.6
// generate_html / generate_deferred_html).
type Fragment struct {
	Path RelPath
	Body BodyHtml
}

// FinalizedNode pairs a codec's proto with its resolved BeliefNode, as
// returned by Finalize (§4.6 finalize contract).
type FinalizedNode struct {
	Proto    ProtoBeliefNode
	Resolved graph.BeliefNode
}

// Defaults gives should_defer/generate_html/generate_deferred_html their
// spec-mandated no-op defaults (§4.6: "default false" / "default empty").
// Embed it in a concrete codec and override only what differs.
type Defaults struct{}

func (Defaults) ShouldDefer() bool                               { return false }
func (Defaults) GenerateHTML() []Fragment                        { return nil }
func (Defaults) GenerateDeferredHTML(DeferredContext) []Fragment { return nil }

// LinkTarget is the driver's answer when a SourceWriter asks what a
// candidate link key resolved to in the converged store.
type LinkTarget struct {
	Bref     string
	HomePath string // network-relative dir/file.ext#anchor of the target
	Title    string // current display title
	// OldTitle is the target's title before this run's events were applied,
	// empty when unknown or unchanged. WriteSource uses it to decide
	// whether a link's text was auto-generated from the target's title and
	// may be overwritten (§4.6 "Canonical link transformation").
	OldTitle string
}

// LinkResolver resolves a candidate key against the fully-converged store.
type LinkResolver func(key graph.NodeKey) (LinkTarget, bool)

// SourceWriter is implemented by codecs that can re-serialise their parsed
// document to canonical source text (§4.6 "Heading ID write-back", §6
// "Markdown output contract"). WriteSource returns the canonical bytes and
// whether they differ from the bytes originally parsed.
type SourceWriter interface {
	WriteSource(resolve LinkResolver) ([]byte, bool)
}

// Factory mints a fresh DocCodec instance per parse (§4.6 "Codec map is
// extension -> fn() -> Box<dyn DocCodec>"). Stale codec state between
// parses is impossible by construction because the driver never reuses an
// instance across files.
type Factory func() DocCodec

// Registry maps a file extension (without the leading dot) to its codec
// factory.
type Registry map[string]Factory

// Extensions returns the registered extensions, used by the markdown
// codec's link-rewrite pass (§4.6 "every <ext> extension registered in the
// codec factory").
func (r Registry) Extensions() []string {
	exts := make([]string, 0, len(r))
	for ext := range r {
		exts = append(exts, ext)
	}
	return exts
}
