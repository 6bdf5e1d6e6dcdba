// Package builder implements the Graph Builder (§4.4): the per-document
// assembly step that turns a codec's ProtoBeliefNodes into BeliefNode
// events, maintaining a heading-level frame stack and the three-tier
// (doc_bb -> session_bb -> global_bb) cache-fetch contract.
//
// Grounded on the teacher's stack-based scope tracking in
// other_examples/372d2b5b_agentic-research-mache's tree walkers,
// generalised from a single owning tree to the builder's doc/session/global
// store tiers.
package builder

import (
	"strings"

	"noet-core/internal/codec"
	"noet-core/internal/diff"
	"noet-core/internal/graph"
	"noet-core/internal/identity"
	"noet-core/internal/store"
)

// FetchStatus discriminates the three-tier cache-fetch outcome (§4.4
// "Cache-fetch contract").
type FetchStatus int

const (
	FetchUnresolved FetchStatus = iota
	FetchResolved
	// FetchMissingStructure means the target network's own node is absent
	// from every tier: the target network hasn't been discovered/walked
	// yet, not merely that this particular key is missing within it.
	FetchMissingStructure
)

// FetchResult is the three-tier cache-fetch outcome.
type FetchResult struct {
	Status  FetchStatus
	Node    graph.BeliefNode
	Network identity.Bid
}

// frame is one entry in the per-document assembly stack (§4.4 "stack of
// (bid, parent_bid, heading_level) frames").
type frame struct {
	bid      graph.Bid
	homePath string
	level    int
}

// Builder owns doc_bb and session_bb for the duration of one document's
// parse and references global_bb for cache fetches (§4.4 "State").
type Builder struct {
	docBB     *store.BeliefBase
	sessionBB *store.BeliefBase
	globalBB  *store.BeliefBase

	stack       []frame
	childCounts map[graph.Bid]int
	docRootBid  graph.Bid
}

// New creates a Builder sharing sessionBB and globalBB across documents; a
// fresh doc_bb is allocated per ParseContent call (§4.4 "Owns doc_bb and
// session_bb").
func New(sessionBB, globalBB *store.BeliefBase) *Builder {
	return &Builder{
		sessionBB: sessionBB,
		globalBB:  globalBB,
	}
}

// ParseOutcome is everything one parse_content invocation produces for the
// driver (§4.4, §4.5).
type ParseOutcome struct {
	Events      []graph.Event
	Diagnostics []codec.ParseDiagnostic
	Codec       codec.DocCodec
	Aborted     bool
}

// ParseContent runs one file through factory and assembles the resulting
// events (§4.4 "Parse flow").
func (b *Builder) ParseContent(net graph.Bid, path string, source []byte, factory codec.Factory) ParseOutcome {
	b.docBB = store.New()
	b.stack = nil
	b.childCounts = map[graph.Bid]int{}
	b.docRootBid = identity.Nil

	c := factory()
	parser, ok := c.(codec.Parser)
	if !ok {
		return ParseOutcome{Aborted: true, Diagnostics: []codec.ParseDiagnostic{{
			Kind: codec.DiagCodecFailure, Path: path,
			Message: "codec does not implement Parser",
		}}}
	}

	b.initializeStack(net)

	result := parser.Parse(net, path, source)
	if hasFailure(result.Diagnostics) {
		return ParseOutcome{Codec: c, Diagnostics: result.Diagnostics, Aborted: true}
	}

	var diagnostics []codec.ParseDiagnostic
	diagnostics = append(diagnostics, result.Diagnostics...)

	for _, proto := range c.Nodes() {
		resolvedBid, aborted := b.push(net, proto, c)
		if aborted {
			diagnostics = append(diagnostics, codec.ParseDiagnostic{
				Kind: codec.DiagReservedIdentifier, Path: path, Proto: proto,
				Message: "reserved identifier",
			})
			return ParseOutcome{Codec: c, Diagnostics: diagnostics, Aborted: true}
		}
		_ = resolvedBid
	}

	for _, finalized := range c.Finalize() {
		diagnostics = append(diagnostics, b.resolveLinks(net, finalized)...)
	}

	events := b.terminateStack(net, path)
	return ParseOutcome{Events: events, Diagnostics: diagnostics, Codec: c}
}

func hasFailure(diags []codec.ParseDiagnostic) bool {
	for _, d := range diags {
		if d.Kind == codec.DiagReservedIdentifier || d.Kind == codec.DiagCodecFailure {
			return true
		}
	}
	return false
}

// initializeStack seeds the frame stack at level 0 with the network's frame,
// taking its home path from global_bb when the network node is there. It
// does not copy the API node or the network node into doc_bb.
func (b *Builder) initializeStack(net graph.Bid) {
	homePath := ""
	if n, ok := b.globalBB.NodeByBid(net); ok {
		homePath = n.HomePath
	}
	b.stack = []frame{{bid: net, homePath: homePath, level: 0}}
}

// push implements one proto node's key generation, cache fetch and
// BID allocation (§4.4.3.a-e).
func (b *Builder) push(net graph.Bid, proto codec.ProtoBeliefNode, c codec.DocCodec) (graph.Bid, bool) {
	for len(b.stack) > 0 && b.stack[len(b.stack)-1].level >= proto.HeadingLv {
		b.stack = b.stack[:len(b.stack)-1]
	}
	parent := b.stack[len(b.stack)-1]

	keys := b.candidateKeys(net, proto, parent)
	fetched := b.cacheFetch(keys)

	var resolvedBid graph.Bid
	switch {
	case fetched.Status == FetchResolved && (proto.Bid == identity.Nil || proto.Bid == fetched.Node.Bid):
		resolvedBid = fetched.Node.Bid
	case fetched.Status == FetchResolved:
		// Proto carries an explicit Bid that disagrees with the cached
		// node occupying this slot: an identity change, not a field edit.
		b.docBB.ProcessEvent(graph.NodeRenamed{
			OldBid:  fetched.Node.Bid,
			NewBid:  proto.Bid,
			OldKeys: fetched.Node.KeySet(),
		})
		resolvedBid = proto.Bid
	default:
		if proto.Bid != identity.Nil {
			resolvedBid = proto.Bid
		} else {
			resolvedBid = identity.New(parent.bid)
		}
	}

	if identity.IsReservedBid(resolvedBid) {
		return identity.Nil, true
	}

	resolved, ok := c.InjectContext(proto, codec.InjectedContext{
		Bid: resolvedBid, Net: net, ParentBid: parent.bid,
	})
	if !ok {
		return identity.Nil, true
	}

	if proto.HeadingLv <= 1 {
		resolved.HomePath = proto.HomePath
		b.docRootBid = resolvedBid
	} else {
		pm := b.docBB.Paths().ForNetwork(net)
		resolved.HomePath = pm.GeneratePathWithCollisionCheck(resolvedBid, parent.homePath, resolved.Anchor)
	}

	b.docBB.ProcessEvent(graph.NodeUpdate{Node: resolved})

	idx := b.childCounts[parent.bid]
	b.childCounts[parent.bid] = idx + 1
	b.docBB.ProcessEvent(graph.RelationChange{Relation: graph.Relation{
		Source: parent.bid, Sink: resolvedBid, Kind: graph.RelationSection,
		SortKey: []int{idx},
	}})

	b.stack = append(b.stack, frame{bid: resolvedBid, homePath: resolved.HomePath, level: proto.HeadingLv})
	return resolvedBid, false
}

// candidateKeys implements §4.4.3.b: a Path-only speculative key for a
// first-pass section heading (no BID yet), the full key set otherwise.
func (b *Builder) candidateKeys(net graph.Bid, proto codec.ProtoBeliefNode, parent frame) []graph.NodeKey {
	if proto.HeadingLv <= 1 || proto.Bid != identity.Nil {
		n := graph.BeliefNode{
			Bid: proto.Bid, Net: net, Title: proto.Title,
			Anchor: proto.Anchor, HomePath: proto.HomePath,
		}
		return n.KeySet()
	}

	pm := b.docBB.Paths().ForNetwork(net)
	titleSlug := identity.ToAnchor(proto.Title)
	path, _ := pm.SpeculativePath(identity.Nil, parent.homePath, proto.Anchor, titleSlug)
	return []graph.NodeKey{graph.KeyPath(net, path)}
}

// cacheFetch implements the three-tier lookup, doc_bb -> session_bb ->
// global_bb (§4.4 "Cache-fetch contract").
func (b *Builder) cacheFetch(keys []graph.NodeKey) FetchResult {
	for _, bb := range []*store.BeliefBase{b.docBB, b.sessionBB, b.globalBB} {
		if bb == nil {
			continue
		}
		if n, ok := matchKeys(bb, keys); ok {
			return FetchResult{Status: FetchResolved, Node: n}
		}
	}

	for _, k := range keys {
		if k.Kind == graph.KeyKindID || k.Kind == graph.KeyKindPath || k.Kind == graph.KeyKindTitle {
			if !netKnown(b, k.Net) {
				return FetchResult{Status: FetchMissingStructure, Network: k.Net}
			}
		}
	}
	return FetchResult{Status: FetchUnresolved}
}

func netKnown(b *Builder, net identity.Bid) bool {
	for _, bb := range []*store.BeliefBase{b.docBB, b.sessionBB, b.globalBB} {
		if bb == nil {
			continue
		}
		if _, ok := bb.NodeByBid(net); ok {
			return true
		}
	}
	return false
}

func matchKeys(bb *store.BeliefBase, keys []graph.NodeKey) (graph.BeliefNode, bool) {
	for _, k := range keys {
		switch k.Kind {
		case graph.KeyKindBid:
			if n, ok := bb.NodeByBid(k.BidVal); ok {
				return n, true
			}
		case graph.KeyKindBref:
			if n, ok := bb.NodeByBref(k.BrefVal); ok {
				return n, true
			}
		case graph.KeyKindID:
			if n, ok := bb.NodeByAnchor(k.Net, k.Value); ok {
				return n, true
			}
		case graph.KeyKindPath:
			if n, ok := bb.NodeByPath(k.Net, k.Value); ok {
				return n, true
			}
		case graph.KeyKindTitle:
			if ns := bb.NodesByTitle(k.Net, k.Value); len(ns) > 0 {
				return ns[0], true
			}
		}
	}
	return graph.BeliefNode{}, false
}

// resolveLinks matches a finalized node's candidate link references against
// the three-tier store, emitting RelationChange for resolved links and an
// UnresolvedReference diagnostic for the rest (§4.4 step 4). Unresolved
// links never abort the parse.
func (b *Builder) resolveLinks(net graph.Bid, finalized codec.FinalizedNode) []codec.ParseDiagnostic {
	var diagnostics []codec.ParseDiagnostic
	for _, ref := range finalized.Proto.Links {
		fetched := b.cacheFetch([]graph.NodeKey{ref.Key})
		if fetched.Status == FetchResolved {
			b.docBB.ProcessEvent(graph.RelationChange{Relation: graph.Relation{
				Source: finalized.Resolved.Bid, Sink: fetched.Node.Bid,
				Kind: ref.Kind, Weight: ref.Weight,
			}})
			continue
		}
		diagnostics = append(diagnostics, codec.ParseDiagnostic{
			Kind: codec.DiagUnresolvedReference, Proto: finalized.Proto, Key: ref.Key,
		})
	}
	return diagnostics
}

// terminateStack diffs doc_bb against its prior image in session_bb and
// folds the resulting events into session_bb, returning them for the
// driver to forward onward to global_bb (§4.4 step 5).
func (b *Builder) terminateStack(net graph.Bid, path string) []graph.Event {
	prior := extractImage(b.sessionBB, net, path)
	if len(prior.Nodes) == 0 {
		// First parse of this file in this session: the prior image lives
		// in the durable cache, so a stale-file reparse in a later run
		// still diffs against what the last run knew — renames included.
		prior = extractImage(b.globalBB, net, path)
	}
	next := extractImage(b.docBB, net, path)

	events := diff.Compute(prior, next)
	for _, ev := range events {
		b.sessionBB.ProcessEvent(ev)
	}

	// The network -> document-root containment edge is sourced from the
	// network node, which this document's own image does not own (it owns
	// only the document root and its headings). Re-assert it directly on
	// every parse rather than folding it into the structural diff.
	for _, r := range b.docBB.Relations() {
		if r.Source == net && r.Sink == b.docRootBid {
			ev := graph.RelationChange{Relation: r}
			b.sessionBB.ProcessEvent(ev)
			events = append(events, ev)
		}
	}

	events = append(events, graph.FileParsed{Path: path})
	return events
}

// extractImage projects bb down to the subset of nodes/relations that
// belong to path: the document root itself plus every node whose HomePath
// lives under it, and every relation whose source is one of those nodes.
func extractImage(bb *store.BeliefBase, net graph.Bid, path string) diff.Image {
	if bb == nil {
		return diff.NewImage(nil, nil)
	}
	owned := map[graph.Bid]bool{}
	var nodes []graph.BeliefNode
	for _, n := range bb.States() {
		if n.Net != net {
			continue
		}
		if belongsTo(n.HomePath, path) {
			nodes = append(nodes, n)
			owned[n.Bid] = true
		}
	}
	var relations []graph.Relation
	for _, r := range bb.Relations() {
		if owned[r.Source] {
			relations = append(relations, r)
		}
	}
	return diff.NewImage(nodes, relations)
}

// belongsTo reports whether homePath is path itself or path#anchor.
func belongsTo(homePath, path string) bool {
	if homePath == path {
		return true
	}
	return strings.HasPrefix(homePath, path+"#")
}
