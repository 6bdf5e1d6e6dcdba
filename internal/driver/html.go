package driver

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"noet-core/internal/codec"
	"noet-core/internal/graph"
	"noet-core/internal/logging"
)

// writeFragment materialises one rendered HTML fragment under the output
// directory's pages/ tree and records it for the sitemap (§6 "pages/<path>.html").
func (d *Driver) writeFragment(frag codec.Fragment) error {
	rel := string(frag.Path)
	if !strings.HasPrefix(rel, "pages/") && !strings.HasPrefix(rel, "static/") && rel != "index.html" && rel != "sitemap.xml" {
		rel = filepath.Join("pages", rel)
	}
	d.fragments[codec.RelPath(rel)] = true
	return d.fs.WriteFile(filepath.Join(d.cfg.OutputDir, rel), []byte(frag.Body))
}

// resolveDeferred implements §4.5 "Deferred HTML": once the event channel
// has been fully drained into global_bb, resolve each deferred codec's
// BeliefContext from the fully-synchronised store and call its
// generate_deferred_html.
func (d *Driver) resolveDeferred() {
	log := logging.For(logging.CategoryDriver)
	for _, entry := range d.deferred {
		node, ok := d.nodeForPath(entry.net, entry.path)
		if !ok {
			log.Warn("deferred codec's document root vanished before resolution", zap.String("path", entry.path))
			continue
		}
		ctx, ok := d.globalBB.GetContext(node.Bid)
		if !ok {
			continue
		}
		deferredCtx := codec.DeferredContext{Node: ctx.Node, HomePath: ctx.HomePath, Neighbors: ctx.Neighbors}
		for _, frag := range entry.codec.GenerateDeferredHTML(deferredCtx) {
			if err := d.writeFragmentUnderNet(entry.net, ctx.HomePath, frag); err != nil {
				log.Warn("writing deferred HTML fragment failed", zap.String("path", entry.path), zap.Error(err))
			}
		}
	}

	if manifestErr := d.writeAssetManifest(); manifestErr != nil {
		log.Warn("writing asset manifest failed", zap.Error(manifestErr))
	}
	d.materialiseAssets()
}

// nodeForPath finds the node whose HomePath is exactly path within net —
// deferred codecs only ever defer their own document-root fragment.
func (d *Driver) nodeForPath(net graph.Bid, path string) (graph.BeliefNode, bool) {
	for _, n := range d.globalBB.States() {
		if n.Net == net && n.HomePath == path {
			return n, true
		}
		if n.Net == net && n.Kind.Has(graph.KindNetwork) {
			// Network config files resolve to the network's own node,
			// whose HomePath is the directory, not the config file path.
			if filepath.Dir(path) == n.HomePath {
				return n, true
			}
		}
	}
	return graph.BeliefNode{}, false
}

// writeFragmentUnderNet places a deferred fragment at
// pages/<net-dir>/<frag.Path> when frag.Path is relative (e.g. a network's
// own "index.html"), matching §6's "pages/<net>/index.html" layout.
func (d *Driver) writeFragmentUnderNet(net graph.Bid, netHomePath string, frag codec.Fragment) error {
	rel := string(frag.Path)
	if !filepath.IsAbs(rel) && !strings.Contains(rel, string(filepath.Separator)) {
		rel = filepath.Join(netHomePath, rel)
	}
	return d.writeFragment(codec.Fragment{Path: codec.RelPath(filepath.Join("pages", rel)), Body: frag.Body})
}

func (d *Driver) writeAssetManifest() error {
	for _, frag := range d.assets.manifest() {
		if err := d.fs.WriteFile(filepath.Join(d.cfg.OutputDir, string(frag.Path)), []byte(frag.Body)); err != nil {
			return err
		}
	}
	return nil
}

// materialiseAssets copies each tracked asset's bytes to its canonical
// static/<sha>.<ext> path, then hardlinks (falling back to copy) every
// semantic path that referenced it — automatic deduplication (§4.5 step 6).
func (d *Driver) materialiseAssets() {
	log := logging.For(logging.CategoryDriver)
	for path, bid := range d.assets.byPath {
		n, ok := d.globalBB.NodeByBid(bid)
		if !ok {
			continue
		}
		hash, _ := n.Payload["content_hash"].(string)
		if hash == "" {
			continue
		}
		canonical := filepath.Join(d.cfg.OutputDir, assetCanonicalPath(hash, path))
		data, err := d.fs.ReadFile(path)
		if err != nil {
			log.Warn("asset missing at materialise time", zap.String("path", path), zap.Error(err))
			continue
		}
		if err := d.fs.WriteFile(canonical, data); err != nil {
			log.Warn("writing canonical asset copy failed", zap.String("path", path), zap.Error(err))
			continue
		}
		semantic := filepath.Join(d.cfg.OutputDir, path)
		if err := d.fs.Hardlink(canonical, semantic); err != nil {
			log.Warn("hardlinking semantic asset path failed", zap.String("path", path), zap.Error(err))
			continue
		}
	}
}

// writeSPAShellAndSitemap generates the root index.html (repository-root
// network node's metadata as a JSON script block) and sitemap.xml listing
// every generated fragment's public URL — presentation concerns the
// codecs themselves have no knowledge of (§4.5 "SPA shell and sitemap").
func (d *Driver) writeSPAShellAndSitemap(roots []networkRoot) error {
	var rootNode graph.BeliefNode
	for _, r := range roots {
		if r.dir == d.cfg.Workspace {
			rootNode, _ = d.globalBB.NodeByBid(r.net)
			break
		}
	}

	shell := renderSPAShell(rootNode)
	if err := d.fs.WriteFile(filepath.Join(d.cfg.OutputDir, "index.html"), []byte(shell)); err != nil {
		return err
	}

	var paths []string
	for p := range d.fragments {
		paths = append(paths, string(p))
	}
	sort.Strings(paths)
	return d.fs.WriteFile(filepath.Join(d.cfg.OutputDir, "sitemap.xml"), []byte(renderSitemap(paths)))
}

func renderSPAShell(root graph.BeliefNode) string {
	title := root.Title
	if title == "" {
		title = "noet-core"
	}
	meta := fmt.Sprintf(`{"bid":%q,"title":%q}`, root.Bid.String(), title)
	return fmt.Sprintf("<!DOCTYPE html>\n<html><head><title>%s</title>\n"+
		"<script type=\"application/json\" id=\"noet-root\">%s</script>\n"+
		"</head><body><div id=\"app\"></div></body></html>\n", title, meta)
}

func renderSitemap(paths []string) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	sb.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">` + "\n")
	for _, p := range paths {
		fmt.Fprintf(&sb, "  <url><loc>/%s</loc></url>\n", p)
	}
	sb.WriteString("</urlset>\n")
	return sb.String()
}
