// Package markdown implements the CommonMark DocCodec (§4.6): a goldmark-
// based parser that preserves heading attributes and produces
// ProtoBeliefNodes plus candidate link references.
//
// Grounded on the teacher's indirect goldmark dependency (pulled in via
// glamour for terminal rendering) promoted here to a direct, AST-walking
// parser, the way the teacher's internal/core event-driven parsers walk a
// typed tree rather than regex-scanning source text.
package markdown

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"noet-core/internal/codec"
	"noet-core/internal/codec/metaformat"
	"noet-core/internal/graph"
	"noet-core/internal/identity"
)

// defaultRewriteExtensions lists the extensions rewritten to .html in link
// hrefs when a factory isn't given its own registry-derived list (§4.6
// "every <ext> extension registered in the codec factory").
var defaultRewriteExtensions = []string{"md", "toml", "json"}

var md = goldmark.New(
	goldmark.WithExtensions(emoji.Emoji),
	// No WithAutoHeadingID: auto-generated ids would be indistinguishable
	// from explicit {#id} attributes, and goldmark's -1 dedup suffix would
	// mask the duplicate-title collisions the Bref fallback handles.
	goldmark.WithParserOptions(
		parser.WithHeadingAttribute(),
	),
)

// NewFactory returns a codec.Factory minting a fresh *Codec per parse
// (§4.6 "Every call to parse_content instantiates a fresh codec"). exts, if
// given, overrides defaultRewriteExtensions for the HTML link rewrite pass
// (§4.6 "every <ext> extension registered in the codec factory").
func NewFactory(reservedIDPrefix string, defaultFormat metaformat.Format, exts ...string) codec.Factory {
	if len(exts) == 0 {
		exts = defaultRewriteExtensions
	}
	return func() codec.DocCodec {
		return &Codec{
			reservedIDPrefix: reservedIDPrefix,
			defaultFormat:    defaultFormat,
			extensions:       exts,
			seenIDs:          map[string]bool{},
			resolved:         map[int]graph.BeliefNode{},
			headingASTs:      map[int]*ast.Heading{},
		}
	}
}

// linkEntry correlates a parsed link back to its live AST node so
// GenerateHTML can rewrite its destination in place before rendering, and
// back to its source span so WriteSource can canonicalise it (§4.6).
type linkEntry struct {
	ast      *ast.Link
	key      graph.NodeKey
	origDest string
}

// Codec owns all parser state for one file (§4.6 codec lifecycle).
type Codec struct {
	codec.Defaults

	reservedIDPrefix string
	defaultFormat    metaformat.Format
	extensions       []string

	net  graph.Bid
	path string

	source     []byte // body bytes, retained for GenerateHTML's renderer
	origSource []byte // full file bytes as read, for WriteSource's change check
	format     metaformat.Format
	astRoot    ast.Node // retained so InjectContext can write back final heading ids

	// headingASTs/linkASTs correlate a proto's Index (or a document-root
	// link's position) back to the live AST node so final identity
	// (resolved anchor, rewritten href) can be written into the tree that
	// GenerateHTML renders (§4.6 "Heading ID write-back").
	headingASTs map[int]*ast.Heading
	linkNodes   []linkEntry

	frontmatter     metaformat.Table
	sections        map[string]map[string]any
	matchedSections map[string]bool

	seenIDs map[string]bool

	nodes       []codec.ProtoBeliefNode // nodes[0] is the document root
	pendingBref map[int]bool            // proto index -> needs Bref-fallback anchor
	resolved    map[int]graph.BeliefNode

	diagnostics []codec.ParseDiagnostic
	failed      bool
}

// Parse runs the codec over one file's bytes. Not part of the DocCodec
// interface: the builder calls this once, immediately after construction,
// before calling Nodes() (§4.4 step 1).
func (c *Codec) Parse(net graph.Bid, path string, source []byte) codec.ParseResult {
	c.net = net
	c.path = path

	body, frontmatterBytes, err := splitFrontmatter(source)
	if err != nil {
		c.failed = true
		c.diagnostics = append(c.diagnostics, codec.ParseDiagnostic{
			Kind: codec.DiagCodecFailure, Path: path, Message: err.Error(),
		})
		return codec.ParseResult{Diagnostics: c.diagnostics}
	}

	c.origSource = source
	c.format = c.defaultFormat

	table := metaformat.Table{}
	if len(frontmatterBytes) > 0 {
		parsedTable, parsedFormat, err := metaformat.Parse(frontmatterBytes, c.defaultFormat)
		if err != nil {
			c.failed = true
			c.diagnostics = append(c.diagnostics, codec.ParseDiagnostic{
				Kind: codec.DiagCodecFailure, Path: path, Message: err.Error(),
			})
			return codec.ParseResult{Diagnostics: c.diagnostics}
		}
		table = parsedTable
		c.format = parsedFormat
	}
	c.frontmatter = table

	docBid := graph.Bid{}
	if raw, ok := table["bid"].(string); ok && raw != "" {
		parsedBid, err := identity.ParseBid(raw)
		if err != nil {
			c.fail(path, "invalid bid: "+err.Error())
			return codec.ParseResult{Diagnostics: c.diagnostics}
		}
		if identity.IsReservedBid(parsedBid) {
			c.diagnostics = append(c.diagnostics, codec.ParseDiagnostic{
				Kind: codec.DiagReservedIdentifier, Path: path, Message: "reserved BID",
			})
			c.failed = true
			return codec.ParseResult{Diagnostics: c.diagnostics}
		}
		docBid = parsedBid
	}
	if raw, ok := table["id"].(string); ok && identity.IsReservedID(raw, c.reservedIDPrefix) {
		c.diagnostics = append(c.diagnostics, codec.ParseDiagnostic{
			Kind: codec.DiagReservedIdentifier, Path: path, Message: "reserved id prefix",
		})
		c.failed = true
		return codec.ParseResult{Diagnostics: c.diagnostics}
	}

	if raw, ok := table["sections"].(map[string]any); ok {
		c.sections = map[string]map[string]any{}
		for k, v := range raw {
			if sub, ok := v.(map[string]any); ok {
				c.sections[k] = sub
			}
		}
		c.matchedSections = map[string]bool{}
	}

	title, _ := table["title"].(string)
	root := codec.ProtoBeliefNode{
		Index:     0,
		Bid:       docBid,
		Title:     title,
		HomePath:  fileBase(path),
		Kind:      graph.KindDocument,
		Payload:   payloadWithoutReservedKeys(table),
		HeadingLv: 1,
	}
	c.nodes = append(c.nodes, root)
	c.pendingBref = map[int]bool{}

	c.source = body
	astRoot := md.Parser().Parse(text.NewReader(body))
	c.astRoot = astRoot
	walkErr := ast.Walk(astRoot, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch typed := n.(type) {
		case *ast.Heading:
			c.onHeading(typed, body)
		case *ast.Link:
			c.onLink(typed, body)
		}
		return ast.WalkContinue, nil
	})
	if walkErr != nil {
		c.fail(path, walkErr.Error())
	}

	return codec.ParseResult{Diagnostics: c.diagnostics}
}

func (c *Codec) fail(path, msg string) {
	c.failed = true
	c.diagnostics = append(c.diagnostics, codec.ParseDiagnostic{
		Kind: codec.DiagCodecFailure, Path: path, Message: msg,
	})
}

// onHeading appends a proto node for one heading (§4.6 steps 2-4). An H1
// that precedes every other heading is the document node itself: it adds no
// proto, is recorded as headingASTs[0], and supplies the root's title when
// the frontmatter has none.
func (c *Codec) onHeading(h *ast.Heading, src []byte) {
	title := strings.TrimSpace(headingText(h, src))
	if h.Level == 1 && len(c.nodes) == 1 {
		if _, absorbed := c.headingASTs[0]; !absorbed {
			c.headingASTs[0] = h
			if c.nodes[0].Title == "" {
				c.nodes[0].Title = title
			}
			return
		}
	}

	explicit, hasExplicit := h.AttributeString("id")
	var candidate string
	if hasExplicit {
		if b, ok := explicit.([]byte); ok {
			candidate = identity.ToAnchor(string(b))
		} else if s, ok := explicit.(string); ok {
			candidate = identity.ToAnchor(s)
		}
	}
	if candidate == "" {
		candidate = identity.ToAnchor(title)
	}

	collided := candidate != "" && c.seenIDs[candidate]
	anchor := candidate
	if collided || candidate == "" {
		anchor = "" // resolved in InjectContext once a Bid exists (§4.6 step 4)
	} else {
		c.seenIDs[candidate] = true
	}

	idx := len(c.nodes)
	proto := codec.ProtoBeliefNode{
		Index:     idx,
		Title:     title,
		Anchor:    anchor,
		Kind:      graph.KindSection,
		Payload:   map[string]any{},
		HeadingLv: h.Level + 1,
	}
	c.headingASTs[idx] = h

	if c.sections != nil {
		if meta, key, ok := c.lookupSection(candidate, title); ok {
			for k, v := range meta {
				if _, exists := proto.Payload[k]; !exists {
					proto.Payload[k] = v
				}
			}
			c.matchedSections[key] = true
		}
	}

	c.nodes = append(c.nodes, proto)
	if anchor == "" {
		c.pendingBref[idx] = true
	}
}

// lookupSection implements the "look up" pattern (§4.6): priority
// Bid > Anchor > Title against the document's sections table. The Bid tier
// of that priority never matches here — no Bid is assigned yet during the
// first pass that calls this — so it is just Anchor, then Title.
func (c *Codec) lookupSection(anchor, title string) (map[string]any, string, bool) {
	if anchor != "" {
		if meta, ok := c.sections[anchor]; ok {
			return meta, anchor, true
		}
	}
	if title != "" {
		if meta, ok := c.sections[title]; ok {
			return meta, title, true
		}
	}
	return nil, "", false
}

func (c *Codec) onLink(l *ast.Link, src []byte) {
	dest := string(l.Destination)
	if dest == "" {
		return
	}
	var key graph.NodeKey
	switch {
	case strings.HasPrefix(dest, "bref://"):
		key = graph.KeyBref(identity.Bref(strings.TrimPrefix(dest, "bref://")))
	case strings.HasPrefix(dest, "#"):
		key = graph.KeyID(c.net, strings.TrimPrefix(dest, "#"))
	default:
		path, anchor := splitAnchor(dest)
		if anchor != "" {
			key = graph.KeyID(c.net, anchor)
			_ = path
		} else {
			key = graph.KeyPath(c.net, dest)
		}
	}

	if len(c.nodes) == 0 {
		return
	}
	last := len(c.nodes) - 1
	c.nodes[last].Links = append(c.nodes[last].Links, codec.NodeKeyRef{
		Key:  key,
		Kind: graph.RelationExpressive,
	})
	c.linkNodes = append(c.linkNodes, linkEntry{ast: l, key: key, origDest: dest})
}

// Nodes implements codec.DocCodec.
func (c *Codec) Nodes() []codec.ProtoBeliefNode { return c.nodes }

// InjectContext implements codec.DocCodec: resolves the final anchor
// (Bref-fallback if this proto collided) and records the resolved node for
// Finalize (§4.6 step 4, §4.4 step 3.a-e).
func (c *Codec) InjectContext(proto codec.ProtoBeliefNode, ctx codec.InjectedContext) (graph.BeliefNode, bool) {
	idx := proto.Index
	anchor := proto.Anchor
	if c.pendingBref[idx] {
		anchor = string(ctx.Bid.Bref())
	}
	if h, ok := c.headingASTs[idx]; ok && anchor != "" {
		h.SetAttributeString("id", []byte(anchor))
	}

	homePath := proto.HomePath
	if proto.Kind.Has(graph.KindSection) {
		homePath = "" // path assignment is the builder/PathMap's responsibility
	}

	// Empty titles (after stripping) fall back to the Bref, same as the
	// anchor does.
	title := proto.Title
	if title == "" {
		title = string(ctx.Bid.Bref())
	}

	resolved := graph.BeliefNode{
		Bid:      ctx.Bid,
		Net:      ctx.Net,
		Kind:     proto.Kind,
		Title:    title,
		Anchor:   anchor,
		HomePath: homePath,
		Payload:  proto.Payload,
	}
	c.resolved[idx] = resolved
	return resolved, true
}

// Finalize implements codec.DocCodec: garbage-collects unmatched sections
// keys from the document proto's frontmatter and returns every resolved
// node (§4.6 "Keys not matched by any heading ... are deleted ... in
// finalize()").
func (c *Codec) Finalize() []codec.FinalizedNode {
	if c.sections != nil && len(c.nodes) > 0 {
		kept := map[string]any{}
		for key, meta := range c.sections {
			if c.matchedSections[key] {
				kept[key] = meta
			}
		}
		docPayload := c.nodes[0].Payload
		if docPayload == nil {
			docPayload = map[string]any{}
		}
		if len(kept) > 0 {
			docPayload["sections"] = kept
		} else {
			delete(docPayload, "sections")
		}
		c.nodes[0].Payload = docPayload
		if resolved, ok := c.resolved[0]; ok {
			if resolved.Payload == nil {
				resolved.Payload = map[string]any{}
			}
			if len(kept) > 0 {
				resolved.Payload["sections"] = kept
			} else {
				delete(resolved.Payload, "sections")
			}
			c.resolved[0] = resolved
		}
	}

	out := make([]codec.FinalizedNode, 0, len(c.resolved))
	for idx, resolved := range c.resolved {
		out = append(out, codec.FinalizedNode{Proto: c.nodes[idx], Resolved: resolved})
	}
	return out
}

// GenerateHTML implements codec.DocCodec: rewrites every link destination
// this codec saw to its rendered-HTML form (§4.6 "every <ext> extension
// registered in the codec factory ... rewritten to .html"), leaving
// same-document anchors and bref:// references untouched — resolving a
// bref:// reference to its canonical rendered path would need the link
// resolution that runs in the builder after Finalize, which is out of
// reach of a single codec instance; see DESIGN.md "markdown write-back
// scope" — then renders the full document through goldmark's HTML
// renderer so heading ids (written back in InjectContext) and emoji
// shortcodes land in the output.
func (c *Codec) GenerateHTML() []codec.Fragment {
	if c.failed {
		return nil
	}
	for _, entry := range c.linkNodes {
		dest := string(entry.ast.Destination)
		if rewritten := rewriteLinkDestForHTML(dest, c.extensions); rewritten != dest {
			entry.ast.Destination = []byte(rewritten)
		}
	}

	var buf bytes.Buffer
	if err := md.Renderer().Render(&buf, c.source, c.astRoot); err != nil {
		c.fail(c.path, err.Error())
		return nil
	}
	return []codec.Fragment{{Path: codec.RelPath(htmlPath(c.path)), Body: codec.BodyHtml(buf.String())}}
}

// rewriteLinkDestForHTML rewrites a link destination's file extension to
// .html when it matches one of exts, preserving any #anchor suffix.
// bref://, same-document #anchor, and external (scheme://) destinations
// pass through unchanged.
func rewriteLinkDestForHTML(dest string, exts []string) string {
	if dest == "" || strings.HasPrefix(dest, "bref://") || strings.HasPrefix(dest, "#") {
		return dest
	}
	if strings.Contains(dest, "://") {
		return dest
	}
	file, anchor := splitAnchor(dest)
	ext := path.Ext(file)
	if ext == "" {
		return dest
	}
	trimmed := strings.TrimPrefix(ext, ".")
	matched := false
	for _, e := range exts {
		if e == trimmed {
			matched = true
			break
		}
	}
	if !matched {
		return dest
	}
	file = strings.TrimSuffix(file, ext) + ".html"
	if anchor != "" {
		return file + "#" + anchor
	}
	return file
}

// htmlPath swaps a document path's own extension for .html (§6
// "pages/<net>/<path>.html").
func htmlPath(p string) string {
	ext := path.Ext(p)
	if ext == "" {
		return p
	}
	return strings.TrimSuffix(p, ext) + ".html"
}

// headingText accumulates every text-bearing child event into the title,
// including inline HTML and code spans (§4.6 step 2: "do not skip inline
// HTML — this was a known bug").
func headingText(n ast.Node, src []byte) string {
	var sb strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
		case *ast.String:
			sb.Write(t.Value)
		case *ast.CodeSpan:
			sb.WriteString(headingText(t, src))
		case *ast.RawHTML:
			segs := t.Segments
			for i := 0; i < segs.Len(); i++ {
				seg := segs.At(i)
				sb.Write(seg.Value(src))
			}
		default:
			if c.Type() == ast.TypeInline {
				sb.WriteString(headingText(c, src))
			}
		}
	}
	return sb.String()
}

func splitAnchor(path string) (string, string) {
	if i := strings.IndexByte(path, '#'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return path, ""
}

func fileBase(path string) string { return path }

// splitFrontmatter extracts the TOML/JSON block delimited by the first two
// "---" lines (§6 "optional TOML/JSON frontmatter delimited by the first
// two --- lines").
func splitFrontmatter(source []byte) (body, frontmatter []byte, err error) {
	trimmed := bytes.TrimLeft(source, "\uFEFF \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte("---")) {
		return source, nil, nil
	}
	rest := trimmed[3:]
	if i := bytes.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[i+1:]
	} else {
		return source, nil, nil
	}
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, nil, fmt.Errorf("unterminated frontmatter block")
	}
	frontmatter = rest[:end]
	afterDelim := rest[end+len("\n---"):]
	if i := bytes.IndexByte(afterDelim, '\n'); i >= 0 {
		body = afterDelim[i+1:]
	} else {
		body = nil
	}
	return body, frontmatter, nil
}

var reservedDocKeys = map[string]bool{
	"bid": true, "id": true, "title": true, "sections": true,
}

func payloadWithoutReservedKeys(table metaformat.Table) map[string]any {
	out := map[string]any{}
	for k, v := range table {
		if reservedDocKeys[k] {
			continue
		}
		out[k] = v
	}
	return out
}
