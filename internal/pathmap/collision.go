package pathmap

import (
	"sort"
	"strings"

	"noet-core/internal/identity"
)

// JoinPath applies the path-join rule (§4.2): strip all anchors from the
// parent and take only the terminal anchor from the child, so joining never
// produces "doc.md#parent#child".
func JoinPath(parentPath, anchor string) string {
	base := fileBase(parentPath)
	if anchor == "" {
		return base
	}
	return base + "#" + anchor
}

// Iterate returns every (path, bid) pair in this network in document order,
// derived from each entry's cached sort key.
func (pm *PathMap) Iterate() []struct {
	Path string
	Bid  identity.Bid
} {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	list := make(entryList, 0, len(pm.byPath))
	for _, e := range pm.byPath {
		list = append(list, e)
	}
	sort.Sort(list)

	out := make([]struct {
		Path string
		Bid  identity.Bid
	}, len(list))
	for i, e := range list {
		out[i].Path = e.path
		out[i].Bid = e.bid
	}
	return out
}

// siblingCount returns how many bids already share parentPath's file base,
// used to derive a new sibling's sort index (§4.2 speculative_path).
func (pm *PathMap) siblingCount(parentPath string) int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.byFileBase[fileBase(parentPath)])
}

// anchorCollides reports whether anchor is already the terminal anchor of
// some sibling path under parentPath's file, other than excludeBid itself.
func (pm *PathMap) anchorCollides(parentPath, anchor string, excludeBid identity.Bid) bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	base := fileBase(parentPath)
	for _, b := range pm.byFileBase[base] {
		if b == excludeBid {
			continue
		}
		e := pm.byBid[b]
		if terminalAnchor(e.path) == anchor {
			return true
		}
	}
	return false
}

func terminalAnchor(path string) string {
	if i := strings.IndexByte(path, '#'); i >= 0 {
		return path[i+1:]
	}
	return ""
}

// GeneratePathWithCollisionCheck implements
// generate_path_name_with_collision_check (§4.2): form the candidate path,
// and fall back to the source Bid's Bref as the terminal anchor if another
// sibling already uses candidateAnchor.
func (pm *PathMap) GeneratePathWithCollisionCheck(source identity.Bid, parentPath, candidateAnchor string) string {
	candidate := JoinPath(parentPath, candidateAnchor)
	if candidateAnchor == "" || !pm.anchorCollides(parentPath, candidateAnchor, source) {
		return candidate
	}
	return JoinPath(parentPath, string(source.Bref()))
}

// SpeculativePath is purely functional (MUST NOT mutate state): given a
// source Bid, the parent path, and an optional explicit anchor, it derives
// the candidate anchor (explicit, else title-slug, else empty), counts
// existing siblings to assign a sort index, and returns the collision-safe
// candidate path together with that sort index.
func (pm *PathMap) SpeculativePath(source identity.Bid, parentPath string, explicitAnchor, titleSlug string) (path string, siblingIndex int) {
	anchor := explicitAnchor
	if anchor == "" {
		anchor = titleSlug
	}
	siblingIndex = pm.siblingCount(parentPath)
	path = pm.GeneratePathWithCollisionCheck(source, parentPath, anchor)
	return path, siblingIndex
}
