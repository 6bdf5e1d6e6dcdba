package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"noet-core/internal/codec"
	"noet-core/internal/graph"
	"noet-core/internal/identity"
	"noet-core/internal/logging"
	"noet-core/internal/store"
)

// assetTracker implements §4.5's asset handling: any file whose extension
// isn't registered in the codec factory. Identity is reconciled two ways at
// once — stable per path across reparses, and deduplicated by content hash
// across different paths — by preferring a path match first and falling
// back to a hash match (see DESIGN.md "asset identity").
type assetTracker struct {
	globalBB *store.BeliefBase
	source   store.BeliefSource // optional persistent mirror; nil is in-memory only

	byPath map[string]graph.Bid
	byHash map[string]graph.Bid
}

func newAssetTracker(globalBB *store.BeliefBase, source store.BeliefSource) *assetTracker {
	t := &assetTracker{
		globalBB: globalBB,
		source:   source,
		byPath:   map[string]graph.Bid{},
		byHash:   map[string]graph.Bid{},
	}
	for _, n := range globalBB.States() {
		if hash, ok := n.Payload["content_hash"].(string); ok && hash != "" {
			t.byHash[hash] = n.Bid
		}
	}
	for _, r := range globalBB.Relations() {
		if r.Sink != identity.AssetNamespace || r.Kind != graph.RelationSection {
			continue
		}
		for _, p := range weightDocPaths(r.Weight) {
			t.byPath[p] = r.Source
		}
	}
	return t
}

// discover ingests one asset file synchronously: hashes it, resolves (or
// mints) its BID, and folds the result directly into global_bb. walkNetwork
// batches real runs through hashAssets instead; discover is the single-file
// entry point exercised directly by tests.
func (t *assetTracker) discover(net graph.Bid, path string, data []byte) {
	t.apply(net, path, hashBytes(data))
}

// hashBytes is the parallelisable half of asset discovery: pure, stateless,
// safe to run across a bounded worker pool (see hashAssets).
func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// apply is the stateful half: resolving identity and folding the result
// into global_bb. Mutates byPath/byHash, so callers must serialise calls
// (hashAssets hashes concurrently but applies sequentially).
func (t *assetTracker) apply(net graph.Bid, path string, hash string) {
	log := logging.For(logging.CategoryDriver)

	bid, known := t.byPath[path]
	switch {
	case known:
		// Same path seen before: identity is stable even if content
		// changed (§8 testable property 7: one NodeUpdate, zero renames).
	case t.byHash[hash] != identity.Nil:
		bid = t.byHash[hash]
		t.byPath[path] = bid
	default:
		bid = identity.NowV6()
		t.byPath[path] = bid
	}
	t.byHash[hash] = bid

	existing, hadNode := t.globalBB.NodeByBid(bid)
	if !hadNode || existing.Payload["content_hash"] != hash {
		payload := map[string]any{"content_hash": hash, "ext": extensionOf(path)}
		if hadNode {
			for k, v := range existing.Payload {
				if _, ok := payload[k]; !ok {
					payload[k] = v
				}
			}
			payload["content_hash"] = hash
		}
		if err := t.processEvent(graph.NodeUpdate{Node: graph.BeliefNode{
			Bid: bid, Net: net, Kind: graph.KindExternal, Title: filepath.Base(path), Payload: payload,
		}}); err != nil {
			log.Warn("asset node update rejected", zap.String("path", path), zap.Error(err))
			return
		}
	}

	docPaths := t.existingDocPaths(bid)
	if !containsString(docPaths, path) {
		docPaths = append(docPaths, path)
	}
	if err := t.processEvent(graph.RelationChange{Relation: graph.Relation{
		Source: bid, Sink: identity.AssetNamespace, Kind: graph.RelationSection,
		Weight: map[string]any{graph.WeightDocPaths: docPaths},
	}}); err != nil {
		log.Warn("asset relation update rejected", zap.String("path", path), zap.Error(err))
	}
}

// processEvent applies one asset event to global_bb and mirrors it to the
// persistent source, the same double-write every other event kind gets in
// applyOutcome — without it, asset Bids would be re-minted on every
// process restart and a cached run over an unchanged workspace would never
// be a no-op (§8 property 8).
func (t *assetTracker) processEvent(ev graph.Event) error {
	if _, err := t.globalBB.ProcessEvent(ev); err != nil {
		return err
	}
	if t.source != nil {
		if _, err := t.source.ProcessEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

func (t *assetTracker) existingDocPaths(bid graph.Bid) []string {
	for _, r := range t.globalBB.Relations() {
		if r.Source == bid && r.Sink == identity.AssetNamespace && r.Kind == graph.RelationSection {
			paths := weightDocPaths(r.Weight)
			out := make([]string, len(paths))
			copy(out, paths)
			return out
		}
	}
	return nil
}

// assetJob is one discovered asset file awaiting a content hash.
type assetJob struct {
	net  graph.Bid
	path string
	data []byte
}

// hashAssets computes every job's content hash with bounded parallelism
// (SPEC DOMAIN STACK: golang.org/x/sync/errgroup, "bounded parallel SHA-256
// hashing of independent assets"), then folds each result into the tracker
// sequentially in job order — apply mutates shared maps and is not safe to
// call concurrently, but hashing itself has no shared state.
func (t *assetTracker) hashAssets(jobs []assetJob) {
	hashes := make([]string, len(jobs))

	g := new(errgroup.Group)
	g.SetLimit(assetHashConcurrency)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			hashes[i] = hashBytes(job.data)
			return nil
		})
	}
	_ = g.Wait() // hashBytes never errors; Wait only waits out the pool

	for i, job := range jobs {
		t.apply(job.net, job.path, hashes[i])
	}
}

// assetHashConcurrency bounds the worker pool hashAssets spins up per run.
const assetHashConcurrency = 8

// weightDocPaths reads the WEIGHT_DOC_PATHS list out of a relation weight,
// tolerating the []any shape it takes after a JSON round trip through the
// persistent store.
func weightDocPaths(weight map[string]any) []string {
	switch v := weight[graph.WeightDocPaths].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, p := range v {
			if s, ok := p.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// manifest regenerates the asset manifest by querying the asset namespace's
// children (§4.5 step 5: "When queue drains, regenerate the asset manifest
// by querying the asset namespace's children").
func (t *assetTracker) manifest() []codec.Fragment {
	type entry struct {
		Bid   string   `json:"bid"`
		Hash  string   `json:"content_hash"`
		Ext   string   `json:"ext"`
		Paths []string `json:"paths"`
	}
	var entries []entry
	for _, r := range t.globalBB.Relations() {
		if r.Sink != identity.AssetNamespace || r.Kind != graph.RelationSection {
			continue
		}
		n, ok := t.globalBB.NodeByBid(r.Source)
		if !ok {
			continue
		}
		hash, _ := n.Payload["content_hash"].(string)
		ext, _ := n.Payload["ext"].(string)
		paths := weightDocPaths(r.Weight)
		entries = append(entries, entry{Bid: r.Source.String(), Hash: hash, Ext: ext, Paths: paths})
	}
	return []codec.Fragment{{Path: "static/manifest.json", Body: codec.BodyHtml(manifestJSON(entries))}}
}

func manifestJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func assetCanonicalPath(hash, path string) string {
	ext := extensionOf(path)
	if ext == "" {
		return filepath.Join("static", hash)
	}
	return filepath.Join("static", hash+"."+ext)
}
