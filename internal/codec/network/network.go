// Package network implements the DocCodec for BeliefNetwork.toml and
// BeliefNetwork.json files (§4.7, §6): the configuration document whose
// presence marks a directory as a network. Its own node's identity is the
// network Bid the driver assigned when it discovered the directory, not a
// freshly-minted one, so later lookups of that network by Bid resolve
// cleanly (see DESIGN.md "network self-identity").
//
// Grounded on the same "look up preferred format, fall back" convention as
// internal/codec/metaformat, and on the teacher's config-as-document
// pattern (internal/config.Config loaded once per scope).
package network

import (
	"fmt"
	"html"
	"path"
	"strings"

	"noet-core/internal/codec"
	"noet-core/internal/codec/metaformat"
	"noet-core/internal/graph"
	"noet-core/internal/identity"
)

// NewFactory returns a codec.Factory minting a fresh *Codec per parse
// (§4.6 codec lifecycle).
func NewFactory(defaultFormat metaformat.Format) codec.Factory {
	return func() codec.DocCodec {
		return &Codec{defaultFormat: defaultFormat}
	}
}

// Codec owns all parser state for one BeliefNetwork.{toml,json} file.
type Codec struct {
	codec.Defaults

	defaultFormat metaformat.Format

	table    metaformat.Table
	netCfg   metaformat.NetworkConfig
	node     codec.ProtoBeliefNode
	resolved graph.BeliefNode

	diagnostics []codec.ParseDiagnostic
	failed      bool
}

// Parse implements codec.Parser. The node's Bid is always net — the
// network's identity is fixed at discovery time by the driver, not by this
// file's own frontmatter (DESIGN.md "network self-identity").
func (c *Codec) Parse(net graph.Bid, path string, source []byte) codec.ParseResult {
	format := c.defaultFormat
	if strings.HasSuffix(path, ".toml") {
		format = metaformat.FormatTOML
	} else if strings.HasSuffix(path, ".json") {
		format = metaformat.FormatJSON
	}

	table, _, err := metaformat.Parse(source, format)
	if err != nil {
		c.failed = true
		c.diagnostics = append(c.diagnostics, codec.ParseDiagnostic{
			Kind: codec.DiagCodecFailure, Path: path, Message: err.Error(),
		})
		return codec.ParseResult{Diagnostics: c.diagnostics}
	}
	c.table = table
	c.netCfg = metaformat.ParseNetworkConfig(table)

	if identity.IsReservedBid(net) {
		c.diagnostics = append(c.diagnostics, codec.ParseDiagnostic{
			Kind: codec.DiagReservedIdentifier, Path: path, Message: "reserved BID",
		})
		c.failed = true
		return codec.ParseResult{Diagnostics: c.diagnostics}
	}

	title := c.netCfg.Title
	if title == "" {
		title, _ = table["title"].(string)
	}

	c.node = codec.ProtoBeliefNode{
		Index:     0,
		Bid:       net,
		Title:     title,
		HomePath:  dirOf(path),
		Kind:      graph.KindNetwork | graph.KindDocument,
		Payload:   payloadWithoutReservedKeys(table),
		HeadingLv: 1,
	}
	return codec.ParseResult{Diagnostics: c.diagnostics}
}

// Nodes implements codec.DocCodec: a network file produces exactly one
// node, its own.
func (c *Codec) Nodes() []codec.ProtoBeliefNode {
	if c.failed {
		return nil
	}
	return []codec.ProtoBeliefNode{c.node}
}

// InjectContext implements codec.DocCodec.
func (c *Codec) InjectContext(proto codec.ProtoBeliefNode, ctx codec.InjectedContext) (graph.BeliefNode, bool) {
	c.resolved = graph.BeliefNode{
		Bid: ctx.Bid, Net: ctx.Net, Kind: proto.Kind,
		Title: proto.Title, HomePath: proto.HomePath, Payload: proto.Payload,
	}
	return c.resolved, true
}

// Finalize implements codec.DocCodec.
func (c *Codec) Finalize() []codec.FinalizedNode {
	if c.failed {
		return nil
	}
	return []codec.FinalizedNode{{Proto: c.node, Resolved: c.resolved}}
}

// ShouldDefer overrides Defaults: the network index page lists every child
// document, which only exists once the rest of the network has parsed
// (§4.5 "Deferred HTML... network index pages").
func (c *Codec) ShouldDefer() bool { return true }

// GenerateDeferredHTML renders the network index fragment: a flat list of
// links to each directly-contained document, in sort-key order (§4.5,
// §6 "pages/<net>/index.html").
func (c *Codec) GenerateDeferredHTML(ctx codec.DeferredContext) []codec.Fragment {
	var sb strings.Builder
	title := ctx.Node.Title
	if title == "" {
		title = "Network"
	}
	fmt.Fprintf(&sb, "<h1>%s</h1>\n<ul>\n", html.EscapeString(title))
	for _, child := range ctx.Neighbors[graph.RelationSection] {
		href := htmlHref(child.HomePath)
		label := child.Title
		if label == "" {
			label = child.HomePath
		}
		fmt.Fprintf(&sb, "  <li><a href=\"%s\">%s</a></li>\n", html.EscapeString(href), html.EscapeString(label))
	}
	sb.WriteString("</ul>\n")
	return []codec.Fragment{{Path: codec.RelPath("index.html"), Body: codec.BodyHtml(sb.String())}}
}

func htmlHref(homePath string) string {
	file, anchor := homePath, ""
	if i := strings.IndexByte(homePath, '#'); i >= 0 {
		file, anchor = homePath[:i], homePath[i+1:]
	}
	ext := path.Ext(file)
	if ext != "" {
		file = strings.TrimSuffix(file, ext) + ".html"
	}
	if anchor != "" {
		return file + "#" + anchor
	}
	return file
}

func dirOf(p string) string {
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}

var reservedNetworkKeys = map[string]bool{
	"bid": true, "id": true, "title": true, metaformat.ReservedNetworkConfigKey: true,
}

func payloadWithoutReservedKeys(table metaformat.Table) map[string]any {
	out := map[string]any{}
	for k, v := range table {
		if reservedNetworkKeys[k] {
			continue
		}
		out[k] = v
	}
	return out
}
