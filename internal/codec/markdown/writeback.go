package markdown

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"noet-core/internal/codec"
	"noet-core/internal/codec/metaformat"
	"noet-core/internal/identity"
)

// WriteSource implements codec.SourceWriter: re-serialises the parsed
// document to canonical markdown (§6 "Markdown output contract"). Heading
// lines carry {#final-id} iff the final ID differs from what the title
// would naturally slug to. Links are rewritten to their canonical relative
// form with a bref:// token in the title; same-document anchors stay as
// #anchor. Frontmatter serialises bid first and drops garbage-collected
// sections entries.
func (c *Codec) WriteSource(resolve codec.LinkResolver) ([]byte, bool) {
	if c.failed || len(c.nodes) == 0 {
		return nil, false
	}

	body := c.canonicalBody(resolve)
	fm, err := c.canonicalFrontmatter()
	if err != nil {
		c.fail(c.path, "encoding canonical frontmatter: "+err.Error())
		return nil, false
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	if !bytes.HasSuffix(fm, []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.WriteString("---\n")
	buf.Write(body)

	out := buf.Bytes()
	return out, !bytes.Equal(out, c.origSource)
}

// canonicalFrontmatter rebuilds the document's frontmatter table: resolved
// bid first, sections garbage-collected, every other key preserved
// verbatim (§6 "Canonical output serialises bid first").
func (c *Codec) canonicalFrontmatter() ([]byte, error) {
	table := metaformat.Table{}
	for k, v := range c.frontmatter {
		table[k] = v
	}
	if root, ok := c.resolved[0]; ok && root.Bid != identity.Nil {
		table["bid"] = root.Bid.String()
	}
	if c.sections != nil {
		kept := map[string]any{}
		for key, meta := range c.sections {
			if c.matchedSections[key] {
				kept[key] = meta
			}
		}
		if len(kept) > 0 {
			table["sections"] = kept
		} else {
			delete(table, "sections")
		}
	}
	return metaformat.EncodeDocument(table, c.format)
}

// canonicalBody patches the body bytes in place: heading attribute
// write-back first, then canonical link rewriting. Patches are applied
// back-to-front so earlier offsets stay valid.
func (c *Codec) canonicalBody(resolve codec.LinkResolver) []byte {
	patches := c.headingPatches()
	patches = append(patches, c.linkPatches(resolve)...)

	// Back-to-front. Spans never overlap: headings are whole lines, links
	// are inline spans inside non-heading or heading lines, and a link
	// patch inside a heading line is impossible because headingPatches
	// replaces the whole line only when the attribute suffix changes --
	// overlapping patches are dropped defensively below.
	sortPatchesDesc(patches)
	out := append([]byte(nil), c.source...)
	lastStart := len(out) + 1
	for _, p := range patches {
		if p.end > lastStart {
			continue
		}
		out = append(out[:p.start], append([]byte(p.text), out[p.end:]...)...)
		lastStart = p.start
	}
	return out
}

type patch struct {
	start, end int
	text       string
}

func sortPatchesDesc(ps []patch) {
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j].start > ps[j-1].start; j-- {
			ps[j], ps[j-1] = ps[j-1], ps[j]
		}
	}
}

// headingPatches pairs each scanned ATX heading line with its proto in
// document order and rewrites the {#id} suffix per §6: present iff the
// final ID differs from the natural title slug (which covers both explicit
// divergent IDs and collision Bref fallbacks). A leading H1 that was folded
// into the document node has no proto of its own and is left as written.
// Bails out entirely on any pairing mismatch rather than guessing.
func (c *Codec) headingPatches() []patch {
	spans := scanHeadings(c.source)
	if _, folded := c.headingASTs[0]; folded && len(spans) > 0 && spans[0].level == 1 {
		spans = spans[1:]
	}
	if len(spans) != len(c.nodes)-1 {
		return nil
	}
	var patches []patch
	for i, span := range spans {
		proto := c.nodes[i+1]
		if span.level != proto.HeadingLv-1 {
			return nil
		}
		resolved, ok := c.resolved[proto.Index]
		if !ok {
			continue
		}
		base, stripped := stripHeadingAttr(span.raw)
		if !stripped && strings.Contains(span.raw, "{#") {
			// Attribute block carrying more than a bare id; leave the
			// author's line alone.
			continue
		}
		line := base
		final := resolved.Anchor
		if final != "" && final != identity.ToAnchor(proto.Title) {
			line = base + " {#" + final + "}"
		}
		if line != span.raw {
			patches = append(patches, patch{start: span.start, end: span.end, text: line})
		}
	}
	return patches
}

// linkPatches pairs scanned inline links with the codec's parsed link
// entries by original destination, in document order, and rewrites each
// resolvable one to canonical form. Reference-style links have no inline
// span and are skipped.
func (c *Codec) linkPatches(resolve codec.LinkResolver) []patch {
	if resolve == nil {
		return nil
	}
	spans := scanInlineLinks(c.source)
	var patches []patch
	cursor := 0
	for _, entry := range c.linkNodes {
		var span *linkSpan
		for i := cursor; i < len(spans); i++ {
			if spans[i].dest == entry.origDest {
				span = &spans[i]
				cursor = i + 1
				break
			}
		}
		if span == nil {
			continue
		}
		target, ok := resolve(entry.key)
		if !ok {
			continue
		}

		lt := parseLinkTitle(span.title)
		lt.bref = target.Bref

		text := span.text
		if lt.autoTitle || text == "" || (target.OldTitle != "" && text == target.OldTitle) {
			text = target.Title
		}

		dest := c.canonicalDest(target)
		rebuilt := "[" + text + "](" + dest
		if t := lt.String(); t != "" {
			rebuilt += fmt.Sprintf(" %q", t)
		}
		rebuilt += ")"

		if rebuilt != string(c.source[span.start:span.end]) {
			patches = append(patches, patch{start: span.start, end: span.end, text: rebuilt})
		}
	}
	return patches
}

// canonicalDest computes the canonical destination for a resolved target:
// a bare #anchor for a same-document target, a relative file path (with
// terminal anchor) otherwise (§4.6 "Path: network-relative, computed via
// path-diff from the source document to the target").
func (c *Codec) canonicalDest(target codec.LinkTarget) string {
	file, anchor := splitAnchor(target.HomePath)
	if file == c.path {
		return "#" + anchor
	}
	rel := relativePath(path.Dir(c.path), file)
	if anchor != "" {
		return rel + "#" + anchor
	}
	return rel
}

// relativePath diffs target against the source document's directory using
// forward-slash network paths. fromDir "." or "" means the network root.
func relativePath(fromDir, target string) string {
	if fromDir == "." {
		fromDir = ""
	}
	from := splitNonEmpty(fromDir, "/")
	to := strings.Split(target, "/")
	common := 0
	for common < len(from) && common < len(to)-1 && from[common] == to[common] {
		common++
	}
	var parts []string
	for i := common; i < len(from); i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, to[common:]...)
	return strings.Join(parts, "/")
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, sep)
}

// stripHeadingAttr removes a trailing bare-id attribute block ({#id}, no
// classes) from a heading line, reporting whether one was removed.
func stripHeadingAttr(line string) (string, bool) {
	trimmed := strings.TrimRight(line, " \t")
	if !strings.HasSuffix(trimmed, "}") {
		return line, false
	}
	open := strings.LastIndex(trimmed, "{#")
	if open < 0 {
		return line, false
	}
	inner := trimmed[open+2 : len(trimmed)-1]
	if inner == "" || strings.ContainsAny(inner, " \t{}") {
		return line, false
	}
	return strings.TrimRight(trimmed[:open], " \t"), true
}
