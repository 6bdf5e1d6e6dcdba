package driver

import (
	"time"

	"go.uber.org/zap"

	"noet-core/internal/logging"
)

// checkStaleFiles implements §4.5's check_stale_files pre-stage: snapshot
// the cached file_mtimes table before the walk so walkNetwork can skip
// anything whose on-disk mtime hasn't moved. Returns the count of
// previously-cached files whose content actually changed (as opposed to
// files seen for the first time), for the driver's {stale-reparsed}
// summary count.
//
// A cached path missing on disk is logged and left out of the mtime
// snapshot; rebuilding its owning network's full document list would need
// a network-wide diff this core's per-document diff engine does not
// provide — see DESIGN.md "stale-file network rebuild".
func (d *Driver) checkStaleFiles() (int, error) {
	log := logging.For(logging.CategoryDriver)

	cached := map[string]int64{}
	for _, fm := range d.globalBB.GetFileMtimes() {
		cached[fm.Path] = fm.Mtime
	}

	now := time.Now().Unix()
	staleReparsed := 0
	live := map[string]int64{}
	for path, mtime := range cached {
		info, err := d.fs.Stat(path)
		if err != nil {
			return 0, err
		}
		if !info.Exists {
			log.Warn("cached file missing on disk", zap.String("path", path))
			continue
		}
		diskMtime := info.ModTime.Unix()
		if d.cfg.ForceReparse {
			staleReparsed++
			continue
		}
		if diskMtime > now {
			// Left out of the snapshot so walkNetwork re-enqueues it.
			log.Warn("file mtime is in the future, treating as stale", zap.String("path", path))
			staleReparsed++
			continue
		}
		if diskMtime != mtime {
			staleReparsed++
		}
		live[path] = mtime
	}
	d.cachedMtimes = live
	return staleReparsed, nil
}
