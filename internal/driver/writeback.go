package driver

import (
	"fmt"

	"go.uber.org/zap"

	"noet-core/internal/codec"
	"noet-core/internal/graph"
	"noet-core/internal/logging"
)

// writeBackSources runs after the work queues have drained: each retained
// SourceWriter re-serialises its document to canonical form against the
// converged store, and changed files are written back in place (§6
// "Markdown output contract (when writing back)"). Write failures are
// logged and skipped per file (§7.6); a successful write re-stamps the
// file's mtime so the next run's staleness check treats the canonical
// form as current.
func (d *Driver) writeBackSources() {
	if len(d.writers) == 0 {
		return
	}
	log := logging.For(logging.CategoryDriver)

	// A file parsed more than once retains one writer per pass; only the
	// final pass's codec reflects the converged graph.
	latest := map[string]codec.SourceWriter{}
	var order []string
	for _, w := range d.writers {
		if _, seen := latest[w.path]; !seen {
			order = append(order, w.path)
		}
		latest[w.path] = w.writer
	}

	for _, path := range order {
		out, changed := latest[path].WriteSource(d.resolveLinkTarget)
		if !changed || out == nil {
			continue
		}
		if err := d.fs.WriteFile(path, out); err != nil {
			log.Warn("source write-back failed", zap.String("path", path), zap.Error(err))
			continue
		}
		ev := graph.FileParsed{Path: path}
		if info, err := d.fs.Stat(path); err == nil && info.Exists {
			ev.Mtime = info.ModTime.Unix()
		}
		if _, err := d.globalBB.ProcessEvent(ev); err != nil {
			panic(fmt.Sprintf("driver: global belief base rejected event %T: %v", ev, err))
		}
		if d.source != nil {
			if _, err := d.source.ProcessEvent(ev); err != nil {
				panic(fmt.Sprintf("driver: persistent store rejected event %T: %v", ev, err))
			}
		}
		log.Info("wrote canonical source", zap.String("path", path))
	}
}

// resolveLinkTarget is the LinkResolver handed to SourceWriter codecs:
// candidate keys resolve against the fully-converged global store.
func (d *Driver) resolveLinkTarget(key graph.NodeKey) (codec.LinkTarget, bool) {
	n, ok := d.globalBB.NodeByKey(key)
	if !ok {
		return codec.LinkTarget{}, false
	}
	return codec.LinkTarget{
		Bref:     string(n.Bid.Bref()),
		HomePath: n.HomePath,
		Title:    n.Title,
		OldTitle: d.titlesBefore[n.Bid],
	}, true
}
