// Package pathmap implements the per-network PathMap: the bidirectional
// (path <-> Bid) map with document-order sort keys and the anchor-collision
// resolution algorithm (§4.2).
//
// Grounded on the teacher's bitmap-indexed file->node tracking in
// other_examples/372d2b5b_agentic-research-mache__internal-graph-graph.go.go
// (MemoryStore.fileToNodes), generalised from a file-path index to the
// path#anchor addressing this spec requires, and on the sqlite path table
// shape in _examples/other_examples/342440df_..._sqlite_graph.go.go for the
// persisted (net, path, bid, sort) row layout mirrored by store/sqlite.
package pathmap

import (
	"strings"
	"sync"

	"noet-core/internal/graph"
	"noet-core/internal/identity"
)

type entry struct {
	path string
	bid  identity.Bid
	sort []int
}

// PathMap owns one network's (path <-> Bid) map and document-order
// structure (§4.2).
type PathMap struct {
	net identity.Bid

	mu        sync.RWMutex
	byPath    map[string]entry
	byBid     map[identity.Bid]entry
	byFileBase map[string][]identity.Bid // "dir/file.ext" -> bids sharing that file
}

// New creates an empty PathMap for the given network Bid.
func New(net identity.Bid) *PathMap {
	return &PathMap{
		net:        net,
		byPath:     map[string]entry{},
		byBid:      map[identity.Bid]entry{},
		byFileBase: map[string][]identity.Bid{},
	}
}

func fileBase(path string) string {
	if i := strings.IndexByte(path, '#'); i >= 0 {
		return path[:i]
	}
	return path
}

// GetFromPath is an O(1) lookup (§4.2).
func (pm *PathMap) GetFromPath(path string) (identity.Bid, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	e, ok := pm.byPath[path]
	return e.bid, ok
}

// GetFromBid returns the path (if any) currently mapped to bid.
func (pm *PathMap) GetFromBid(b identity.Bid) (string, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	e, ok := pm.byBid[b]
	return e.path, ok
}

// insert records path -> bid with its document-order sort key. Overwrites
// any prior path for the same bid and any prior bid for the same path.
func (pm *PathMap) insert(path string, b identity.Bid, sort []int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.removeLocked(path)
	e := entry{path: path, bid: b, sort: append([]int(nil), sort...)}
	pm.byPath[path] = e
	pm.byBid[b] = e
	base := fileBase(path)
	pm.byFileBase[base] = appendUnique(pm.byFileBase[base], b)
}

func appendUnique(s []identity.Bid, b identity.Bid) []identity.Bid {
	for _, x := range s {
		if x == b {
			return s
		}
	}
	return append(s, b)
}

func (pm *PathMap) removeLocked(path string) {
	if e, ok := pm.byPath[path]; ok {
		delete(pm.byPath, path)
		delete(pm.byBid, e.bid)
		base := fileBase(path)
		bids := pm.byFileBase[base]
		for i, x := range bids {
			if x == e.bid {
				pm.byFileBase[base] = append(bids[:i], bids[i+1:]...)
				break
			}
		}
	}
}

// remove deletes path (and its bid) from the map.
func (pm *PathMap) remove(path string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.removeLocked(path)
}

// ProcessEvent applies PathAdded/PathRemoved directly, and keeps cached sort
// keys in step with RelationChange/RelationRemoved events affecting a known
// sink (§4.2 process_event). It returns no derivative events: sibling
// renumbering ownership lives in the BeliefBase, which re-emits
// RelationChange for surviving siblings — those events flow back here.
func (pm *PathMap) ProcessEvent(ev graph.Event) {
	switch e := ev.(type) {
	case graph.PathAdded:
		if e.Net != pm.net {
			return
		}
		pm.insert(e.Path, e.Target, e.Sort)
	case graph.PathRemoved:
		if e.Net != pm.net {
			return
		}
		pm.remove(e.Path)
	case graph.RelationChange:
		pm.mu.Lock()
		if existing, ok := pm.byBid[e.Relation.Sink]; ok {
			existing.sort = append([]int(nil), e.Relation.SortKey...)
			pm.byPath[existing.path] = existing
			pm.byBid[e.Relation.Sink] = existing
		}
		pm.mu.Unlock()
	}
}

// entryList is a document-order-sortable view used by Iterate.
type entryList []entry

func (l entryList) Len() int      { return len(l) }
func (l entryList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }
func (l entryList) Less(i, j int) bool {
	a, b := l[i].sort, l[j].sort
	for k := 0; k < len(a) && k < len(b); k++ {
		if a[k] != b[k] {
			return a[k] < b[k]
		}
	}
	return len(a) < len(b)
}
