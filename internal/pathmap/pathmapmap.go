package pathmap

import (
	"strings"
	"sync"

	"noet-core/internal/identity"
)

// PathMapMap owns every network's PathMap, keyed by network Bid. It is the
// object the driver queries via NetGetFromPath to resolve cross-network
// assets without touching the full belief base (§4.2).
type PathMapMap struct {
	mu   sync.RWMutex
	nets map[identity.Bid]*PathMap

	// entryPath records, for each subnetwork Bid, the path at which that
	// subnetwork is mounted in its parent — used by RecursiveMap to prefix
	// child paths.
	entryPath map[identity.Bid]string
}

// NewPathMapMap creates an empty collection.
func NewPathMapMap() *PathMapMap {
	return &PathMapMap{
		nets:      map[identity.Bid]*PathMap{},
		entryPath: map[identity.Bid]string{},
	}
}

// ForNetwork returns (creating if necessary) the PathMap for net.
func (m *PathMapMap) ForNetwork(net identity.Bid) *PathMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	pm, ok := m.nets[net]
	if !ok {
		pm = New(net)
		m.nets[net] = pm
	}
	return pm
}

// SetEntryPath records where subnetwork net is mounted within its parent
// network, for RecursiveMap's prefix propagation.
func (m *PathMapMap) SetEntryPath(net identity.Bid, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entryPath[net] = path
}

// NetGetFromPath looks up path within a single named network without
// requiring a lock over the whole PathMapMap beyond the map lookup itself
// (§4.2: "used by the compiler to resolve cross-network assets without
// risking lock contention with the full belief base").
func (m *PathMapMap) NetGetFromPath(net identity.Bid, path string) (identity.Bid, identity.Bid, bool) {
	m.mu.RLock()
	pm, ok := m.nets[net]
	m.mu.RUnlock()
	if !ok {
		return identity.Nil, identity.Nil, false
	}
	bid, found := pm.GetFromPath(path)
	if !found {
		return identity.Nil, identity.Nil, false
	}
	return net, bid, true
}

// RecursiveEntry is one flattened (full_path, bid, order) row.
type RecursiveEntry struct {
	FullPath string
	Bid      identity.Bid
	Order    []int
}

// RecursiveMap flattens net and every reachable subnetwork, prefixing each
// child path with the subnetwork's own mount path in its parent
// (§4.2 recursive_map). Cycle-safe via visited.
func (m *PathMapMap) RecursiveMap(net identity.Bid, visited map[identity.Bid]bool) []RecursiveEntry {
	if visited == nil {
		visited = map[identity.Bid]bool{}
	}
	if visited[net] {
		return nil
	}
	visited[net] = true

	m.mu.RLock()
	pm, ok := m.nets[net]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	var out []RecursiveEntry
	for _, e := range pm.Iterate() {
		out = append(out, RecursiveEntry{FullPath: e.Path, Bid: e.Bid})
		// If e.Bid is itself a mounted subnetwork, recurse and prefix every
		// descendant path with this mount point's directory.
		m.mu.RLock()
		_, isSubnet := m.nets[e.Bid]
		m.mu.RUnlock()
		if isSubnet {
			mountDir := dirOf(fileBase(e.Path))
			for _, child := range m.RecursiveMap(e.Bid, visited) {
				out = append(out, RecursiveEntry{
					FullPath: joinDir(mountDir, child.FullPath),
					Bid:      child.Bid,
				})
			}
		}
	}
	return out
}

// dirOf returns the directory portion of a file-only (no-anchor) path.
func dirOf(file string) string {
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		return file[:i]
	}
	return ""
}

// joinDir prefixes childPath's file portion with dir, preserving its
// terminal anchor.
func joinDir(dir, childPath string) string {
	if dir == "" {
		return childPath
	}
	base := fileBase(childPath)
	anchor := terminalAnchor(childPath)
	full := dir + "/" + base
	if anchor == "" {
		return full
	}
	return full + "#" + anchor
}
