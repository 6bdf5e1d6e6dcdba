// Package textdiff provides line-level text comparison used by round-trip
// tests: parse a document, regenerate it, reparse the regenerated text, and
// confirm the two images agree (§5 "a fixed point: reserializing parsed
// content and reparsing it yields the same graph").
//
// Grounded on the teacher's internal/diff.Engine (sergi/go-diff wrapped in a
// small cached result type), narrowed to what fixed-point assertions need:
// a yes/no equality check and a readable mismatch report, rather than the
// teacher's full unified-hunk rendering (that UI concern has no home here).
package textdiff

import (
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Engine wraps diffmatchpatch with a result cache, same shape as the
// teacher's internal/diff.Engine.
type Engine struct {
	dmp   *diffmatchpatch.DiffMatchPatch
	cache sync.Map
}

// NewEngine creates an Engine with DiffTimeout disabled, matching the
// teacher's choice to prioritise accuracy over bounded latency for the
// documents this compiler processes.
func NewEngine() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return &Engine{dmp: dmp}
}

// Default is a singleton engine for test call sites that don't need their
// own cache lifetime.
var Default = NewEngine()

// Equal reports whether a and b are textually identical once trailing
// whitespace-only line differences are ignored — codecs are free to
// normalise trailing spaces on write without that counting as a fixed-point
// violation.
func Equal(a, b string) bool {
	return Default.Equal(a, b)
}

func (e *Engine) Equal(a, b string) bool {
	if a == b {
		return true
	}
	return normalizeLines(a) == normalizeLines(b)
}

func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.Join(lines, "\n")
}

// Report renders a human-readable line diff between a and b for a failed
// round-trip assertion's error message.
func Report(a, b string) string {
	return Default.Report(a, b)
}

func (e *Engine) Report(a, b string) string {
	type cacheKey struct{ a, b string }
	key := cacheKey{a, b}
	if cached, ok := e.cache.Load(key); ok {
		return cached.(string)
	}

	wa, wb, lineArray := e.dmp.DiffLinesToChars(a, b)
	diffs := e.dmp.DiffMain(wa, wb, false)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	var sb strings.Builder
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}

	report := sb.String()
	e.cache.Store(key, report)
	return report
}
