package driver

import (
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"noet-core/internal/graph"
	"noet-core/internal/identity"
	"noet-core/internal/logging"
)

// networkRoot is one discovered network boundary: a directory containing a
// BeliefNetwork.{json,toml} file, or the workspace root itself (the
// implicit repository-root network — §4.[FULL].8 notes no original_source/
// resolved this, so the implicit root is this driver's own design choice,
// recorded in DESIGN.md).
type networkRoot struct {
	dir        string
	net        graph.Bid
	configPath string // "" for the implicit root when it carries no config file
}

// discoverNetworks walks the whole workspace once, identifying every
// network boundary (§6 "presence of either marks a directory as a
// network"). Bids are reused from any network node already present in
// global_bb (keyed by HomePath, as a persistent BeliefSource would restore
// it), minted fresh otherwise.
func (d *Driver) discoverNetworks() ([]networkRoot, error) {
	type found struct {
		dir        string
		configPath string
	}
	var dirs []found
	err := d.fs.WalkDir(d.cfg.Workspace, func(path string, isDir bool) error {
		if !isDir {
			return nil
		}
		jsonPath := filepath.Join(path, "BeliefNetwork.json")
		tomlPath := filepath.Join(path, "BeliefNetwork.toml")
		jsonInfo, _ := d.fs.Stat(jsonPath)
		tomlInfo, _ := d.fs.Stat(tomlPath)
		switch {
		case jsonInfo.Exists && tomlInfo.Exists:
			logging.For(logging.CategoryDriver).Warn("both BeliefNetwork.json and BeliefNetwork.toml present, json wins",
				zap.String("dir", path))
			dirs = append(dirs, found{dir: path, configPath: jsonPath})
		case jsonInfo.Exists:
			dirs = append(dirs, found{dir: path, configPath: jsonPath})
		case tomlInfo.Exists:
			dirs = append(dirs, found{dir: path, configPath: tomlPath})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	hasRoot := false
	for _, f := range dirs {
		if f.dir == d.cfg.Workspace {
			hasRoot = true
		}
	}
	if !hasRoot {
		dirs = append([]found{{dir: d.cfg.Workspace}}, dirs...)
	}
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i].dir) < len(dirs[j].dir) })

	roots := make([]networkRoot, 0, len(dirs))
	for _, f := range dirs {
		net := d.networkBidForDir(f.dir)
		roots = append(roots, networkRoot{dir: f.dir, net: net, configPath: f.configPath})
	}
	return roots, nil
}

// networkBidForDir reuses an existing network node's Bid if global_bb
// already has one rooted at dir (restored from a prior run via a
// persistent store), minting a fresh time-ordered Bid otherwise (§4.1
// "used for document nodes... and assets" generalised here to network
// roots, which are themselves KindDocument|KindNetwork).
func (d *Driver) networkBidForDir(dir string) graph.Bid {
	for _, n := range d.globalBB.States() {
		if n.Kind.Has(graph.KindNetwork) && n.HomePath == dir {
			return n.Bid
		}
	}
	return identity.NowV6()
}

// ensureNetworkNodes materialises a BeliefNode for every discovered network
// that doesn't already have one — config-less implicit roots included — so
// networkBidForDir finds the same Bid on the next run instead of minting a
// fresh one, keeping every path/anchor key stable across process restarts.
func (d *Driver) ensureNetworkNodes(roots []networkRoot) {
	for _, root := range roots {
		if _, ok := d.globalBB.NodeByBid(root.net); ok {
			continue
		}
		ev := graph.NodeUpdate{Node: graph.BeliefNode{
			Bid:      root.net,
			Net:      root.net,
			Kind:     graph.KindNetwork | graph.KindDocument,
			Title:    filepath.Base(root.dir),
			HomePath: root.dir,
		}}
		if _, err := d.globalBB.ProcessEvent(ev); err != nil {
			logging.For(logging.CategoryDriver).Warn("network node rejected",
				zap.String("dir", root.dir), zap.Error(err))
			continue
		}
		if d.source != nil {
			if _, err := d.source.ProcessEvent(ev); err != nil {
				logging.For(logging.CategoryDriver).Warn("persisting network node failed",
					zap.String("dir", root.dir), zap.Error(err))
			}
		}
	}
}

// isNetworkDir reports whether dir is one of roots, so walkNetwork can stop
// descending into a nested network's own scope.
func isNetworkDir(roots []networkRoot, dir string) bool {
	for _, r := range roots {
		if r.dir == dir {
			return true
		}
	}
	return false
}

// walkNetwork collects every work item directly owned by root: its own
// BeliefNetwork file first (if any), then every registered-extension
// document, discovering (and folding into global_bb) every other file as
// an asset along the way. Subtrees belonging to a nested network are
// skipped (§4.5 Asset handling, §6).
func (d *Driver) walkNetwork(roots []networkRoot, root networkRoot) ([]workItem, error) {
	var items []workItem
	var assetJobs []assetJob
	if root.configPath != "" && !d.upToDate(root.configPath) {
		items = append(items, workItem{net: root.net, path: root.configPath})
	}

	err := d.fs.WalkDir(root.dir, func(path string, isDir bool) error {
		if isDir {
			if path != root.dir && isNetworkDir(roots, path) {
				return errSkipDir
			}
			return nil
		}
		base := filepath.Base(path)
		if base == "BeliefNetwork.json" || base == "BeliefNetwork.toml" {
			return nil // queued above (this network) or owned by a nested one
		}
		if d.registry[extensionOf(path)] != nil {
			if !d.upToDate(path) {
				items = append(items, workItem{net: root.net, path: path})
			}
			return nil
		}

		data, err := d.fs.ReadFile(path)
		if err != nil {
			logging.For(logging.CategoryDriver).Warn("skipping unreadable asset", zap.String("path", path), zap.Error(err))
			return nil
		}
		assetJobs = append(assetJobs, assetJob{net: root.net, path: path, data: data})
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.assets.hashAssets(assetJobs)
	return items, nil
}

// upToDate reports whether path's on-disk mtime matches the cached value
// from a prior run (§4.5 check_stale_files): nothing to do, so it is
// skipped rather than re-enqueued.
func (d *Driver) upToDate(path string) bool {
	cachedMtime, ok := d.cachedMtimes[path]
	if !ok {
		return false
	}
	info, err := d.fs.Stat(path)
	if err != nil || !info.Exists {
		return false
	}
	return info.ModTime.Unix() == cachedMtime
}
