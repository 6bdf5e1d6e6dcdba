// Package driver implements the Compilation Driver (§4.5): the multi-pass
// work-queue loop that feeds files through the Graph Builder, tracks
// cross-file unresolved references, and drives HTML/asset materialisation
// once the graph has converged.
//
// Grounded on the teacher's event-loop shape in internal/core/mangle_watcher.go
// (debounce map, stop/done channels) generalised from a single watched
// directory to the driver's primary/reparse work queues, and on
// internal/core/dream_router.go's attempt-counted retry loop for the
// 3-attempt reparse cap.
package driver

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"noet-core/internal/builder"
	"noet-core/internal/codec"
	"noet-core/internal/config"
	"noet-core/internal/graph"
	"noet-core/internal/identity"
	"noet-core/internal/logging"
	"noet-core/internal/store"
)

// Result summarises one compilation run (§7 "the driver summarises counts
// of {parsed, skipped, unresolved, stale-reparsed}").
type Result struct {
	Parsed        int
	Skipped       int
	Unresolved    int
	StaleReparsed int
	Diagnostics   []codec.ParseDiagnostic
}

// workItem is one queued file awaiting (re)parse.
type workItem struct {
	net  graph.Bid
	path string
}

// Driver owns the work queues and per-run state described in §4.5.
type Driver struct {
	cfg      config.Config
	registry codec.Registry
	fs       FS

	globalBB  *store.BeliefBase
	sessionBB *store.BeliefBase
	source    store.BeliefSource // optional persistent mirror; nil is in-memory only

	primaryQueue []workItem
	reparseQueue []workItem
	attempts     map[string]int

	// cachedMtimes snapshots global_bb's file_mtimes table at the start of
	// Run, populated by checkStaleFiles; walkNetwork consults it to skip
	// files whose on-disk mtime hasn't moved (§4.5 check_stale_files).
	cachedMtimes map[string]int64

	// pendingDependencies maps an unresolved NodeKey (serialised, since
	// NodeKey isn't comparable as a map key on its Net+Value+Kind alone
	// once Bid/Bref variants are mixed in) to the set of source paths
	// awaiting its resolution (§4.5 "pending_dependencies map").
	pendingDependencies map[pendingKey]map[string]bool

	deferred  []deferredEntry
	fragments map[codec.RelPath]bool

	// writers retains SourceWriter codec instances for the post-convergence
	// write-back pass when cfg.WriteSource is set (§6 "when writing back").
	writers []writerEntry

	// titlesBefore snapshots every node's title as restored from the cache
	// before this run's events land, so write-back can tell an
	// auto-generated link text (equal to the target's previous title) from
	// a user-customised one (§4.6 "Canonical link transformation").
	titlesBefore map[graph.Bid]string

	assets *assetTracker
}

type writerEntry struct {
	path   string
	writer codec.SourceWriter
}

type pendingKey struct {
	kind graph.NodeKeyKind
	net  graph.Bid
	val  string
	bid  graph.Bid
	bref identity.Bref
}

func keyOf(k graph.NodeKey) pendingKey {
	return pendingKey{kind: k.Kind, net: k.Net, val: k.Value, bid: k.BidVal, bref: k.BrefVal}
}

// deferredEntry records a codec instance whose HTML generation must wait
// until the full store has converged (§4.5 "deferred_html set").
type deferredEntry struct {
	net   graph.Bid
	path  string
	codec codec.DocCodec
}

// New constructs a Driver over an already-populated globalBB (e.g. restored
// from a persistent BeliefSource) or a fresh one. source, if non-nil, is
// notified of FileParsed events to batch file_mtimes writes (§4.5 "FileParsed
// and mtime persistence").
func New(cfg config.Config, registry codec.Registry, fs FS, globalBB *store.BeliefBase, source store.BeliefSource) *Driver {
	if globalBB == nil {
		globalBB = store.New()
	}
	return &Driver{
		cfg:                 cfg,
		registry:            registry,
		fs:                  fs,
		globalBB:            globalBB,
		sessionBB:           store.New(),
		source:              source,
		attempts:            map[string]int{},
		pendingDependencies: map[pendingKey]map[string]bool{},
		fragments:           map[codec.RelPath]bool{},
		assets:              newAssetTracker(globalBB, source),
	}
}

// Run discovers every network under workspace, reparses anything stale,
// drains the multi-pass loop to convergence, then resolves deferred HTML
// and the SPA shell/sitemap (§4.5).
func (d *Driver) Run() (Result, error) {
	log := logging.For(logging.CategoryDriver)

	d.titlesBefore = map[graph.Bid]string{}
	for _, n := range d.globalBB.States() {
		d.titlesBefore[n.Bid] = n.Title
	}

	roots, err := d.discoverNetworks()
	if err != nil {
		return Result{}, fmt.Errorf("discovering networks: %w", err)
	}

	d.ensureNetworkNodes(roots)

	staleReparsed, err := d.checkStaleFiles()
	if err != nil {
		return Result{}, fmt.Errorf("checking stale files: %w", err)
	}

	for _, root := range roots {
		files, err := d.walkNetwork(roots, root)
		if err != nil {
			return Result{}, fmt.Errorf("walking network %s: %w", root.dir, err)
		}
		d.primaryQueue = append(d.primaryQueue, files...)
	}

	result := Result{StaleReparsed: staleReparsed}
	b := builder.New(d.sessionBB, d.globalBB)

	for len(d.primaryQueue) > 0 || len(d.reparseQueue) > 0 {
		var item workItem
		if len(d.primaryQueue) > 0 {
			item, d.primaryQueue = d.primaryQueue[0], d.primaryQueue[1:]
		} else {
			item, d.reparseQueue = d.reparseQueue[0], d.reparseQueue[1:]
		}

		if d.attempts[item.path] >= d.cfg.MaxPassAttempts {
			log.Warn("file hit max pass attempts, leaving unresolved diagnostics",
				zap.String("path", item.path), zap.Int("attempts", d.attempts[item.path]))
			continue
		}
		d.attempts[item.path]++

		source, err := d.fs.ReadFile(item.path)
		if err != nil {
			log.Warn("skipping unreadable file", zap.String("path", item.path), zap.Error(err))
			result.Skipped++
			continue
		}

		factory, ok := d.factoryFor(item.path)
		if !ok {
			// Shouldn't happen: walkNetwork only enqueues registered
			// extensions; assets are handled separately in walkNetwork.
			continue
		}

		outcome := b.ParseContent(item.net, item.path, source, factory)
		d.applyOutcome(item, outcome, &result)
	}

	d.writeBackSources()
	d.resolveDeferred()
	if err := d.writeSPAShellAndSitemap(roots); err != nil {
		return result, fmt.Errorf("writing SPA shell/sitemap: %w", err)
	}

	log.Info("compilation run complete",
		zap.Int("parsed", result.Parsed), zap.Int("skipped", result.Skipped),
		zap.Int("unresolved", result.Unresolved), zap.Int("stale_reparsed", result.StaleReparsed))

	return result, nil
}

func (d *Driver) factoryFor(path string) (codec.Factory, bool) {
	ext := extensionOf(path)
	f, ok := d.registry[ext]
	return f, ok
}

// applyOutcome folds one file's ParseOutcome into the driver's queues and
// store, mirroring the pseudocode in §4.5's "Multi-pass loop".
func (d *Driver) applyOutcome(item workItem, outcome builder.ParseOutcome, result *Result) {
	if outcome.Aborted {
		result.Skipped++
		result.Diagnostics = append(result.Diagnostics, outcome.Diagnostics...)
		return
	}

	result.Parsed++
	result.Diagnostics = append(result.Diagnostics, outcome.Diagnostics...)

	for _, diag := range outcome.Diagnostics {
		if diag.Kind == codec.DiagUnresolvedReference {
			result.Unresolved++
			k := keyOf(diag.Key)
			if d.pendingDependencies[k] == nil {
				d.pendingDependencies[k] = map[string]bool{}
			}
			d.pendingDependencies[k][item.path] = true
		}
	}

	for _, ev := range outcome.Events {
		// Stamp the real filesystem mtime onto FileParsed: the builder
		// doesn't own filesystem access (§5 "Codec parse functions are
		// pure"), so it emits the event with Mtime unset and the driver
		// fills it in here, just before the event reaches global_bb (§8
		// property 3: "file_mtimes[f] == fs::mtime(f)").
		if fp, ok := ev.(graph.FileParsed); ok {
			if info, statErr := d.fs.Stat(item.path); statErr == nil && info.Exists {
				fp.Mtime = info.ModTime.Unix()
				ev = fp
			}
		}

		derived, err := d.globalBB.ProcessEvent(ev)
		if err != nil {
			panic(fmt.Sprintf("driver: global belief base rejected event %T: %v", ev, err))
		}
		d.handleEvent(item, ev, result)
		for _, de := range derived {
			d.handleEvent(item, de, result)
		}
		// The persistent mirror receives every event the in-memory store
		// does, not just FileParsed: it implements the same BeliefSource
		// contract (§2), so a restart can rebuild global_bb from it.
		// FileParsed specifically is what feeds its file_mtimes table
		// (§4.5 "FileParsed and mtime persistence").
		if d.source != nil {
			if _, err := d.source.ProcessEvent(ev); err != nil {
				panic(fmt.Sprintf("driver: persistent store rejected event %T: %v", ev, err))
			}
		}
	}

	if outcome.Codec != nil && d.cfg.WriteSource {
		if sw, ok := outcome.Codec.(codec.SourceWriter); ok {
			d.writers = append(d.writers, writerEntry{path: item.path, writer: sw})
		}
	}

	if outcome.Codec != nil {
		if outcome.Codec.ShouldDefer() {
			d.deferred = append(d.deferred, deferredEntry{net: item.net, path: item.path, codec: outcome.Codec})
		} else if d.cfg.EmitImmediateHTML {
			for _, frag := range outcome.Codec.GenerateHTML() {
				if err := d.writeFragment(frag); err != nil {
					logging.For(logging.CategoryDriver).Warn("writing immediate HTML fragment failed",
						zap.String("path", string(frag.Path)), zap.Error(err))
				}
			}
		}
	}
}

// handleEvent reacts to a NodeUpdate by checking whether any pending
// reference now resolves against the key set the update just established
// (§4.5 "for newly-resolved key in session_bb: reparse its dependents"),
// and to a NodeRenamed by re-enqueuing every file whose already-resolved
// links point at the renamed node (Scenario 3: "index.md is enqueued for
// reparse (dependent)").
func (d *Driver) handleEvent(item workItem, ev graph.Event, result *Result) {
	switch e := ev.(type) {
	case graph.NodeUpdate:
		for _, k := range e.Node.KeySet() {
			pk := keyOf(k)
			dependents, ok := d.pendingDependencies[pk]
			if !ok {
				continue
			}
			delete(d.pendingDependencies, pk)
			paths := make([]string, 0, len(dependents))
			for p := range dependents {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			for _, p := range paths {
				d.reparseQueue = append(d.reparseQueue, workItem{net: e.Node.Net, path: p})
			}
		}
	case graph.NodeRenamed:
		d.enqueueLinkDependents(item, e)
	}
}

// enqueueLinkDependents re-enqueues every file holding a resolved link to
// a just-renamed node. Resolved-link provenance is the graph itself: each
// resolved link is a non-structural relation whose sink is the target, so
// no separate bookkeeping survives beyond what the store already persists
// — which is also what makes this work for renames detected on the first
// stale reparse of a later run. The store has already rewired relations to
// the new Bid by the time this runs, so both ends are checked.
func (d *Driver) enqueueLinkDependents(item workItem, e graph.NodeRenamed) {
	var paths []string
	nets := map[string]graph.Bid{}
	for _, r := range d.globalBB.Relations() {
		if r.Kind == graph.RelationSection {
			continue
		}
		if r.Sink != e.NewBid && r.Sink != e.OldBid {
			continue
		}
		src, ok := d.globalBB.NodeByBid(r.Source)
		if !ok {
			continue
		}
		p := docPathOf(src.HomePath)
		if p == "" || p == item.path {
			continue
		}
		if _, dup := nets[p]; dup {
			continue
		}
		nets[p] = src.Net
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		d.reparseQueue = append(d.reparseQueue, workItem{net: nets[p], path: p})
	}
}

// docPathOf strips the anchor segment from a node's home path, yielding
// the owning document's file path.
func docPathOf(homePath string) string {
	if i := strings.IndexByte(homePath, '#'); i >= 0 {
		return homePath[:i]
	}
	return homePath
}
