// Package logging provides the process-wide structured logger for noet-core.
// It mirrors the teacher's split between a zap.Logger for human/JSON output
// and a small category system so each subsystem tags its own records.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies the subsystem emitting a log record.
type Category string

const (
	CategoryDriver   Category = "driver"
	CategoryBuilder  Category = "builder"
	CategoryCodec    Category = "codec"
	CategoryStore    Category = "store"
	CategoryPathMap  Category = "pathmap"
	CategoryIdentity Category = "identity"
)

var (
	mu     sync.RWMutex
	base   *zap.Logger = zap.NewNop()
	inited bool
)

// Init builds the process logger. verbose lowers the level to Debug, matching
// the teacher's --verbose flag -> zap.NewAtomicLevelAt(zapcore.DebugLevel).
func Init(verbose bool) error {
	mu.Lock()
	defer mu.Unlock()

	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	base = l
	inited = true
	return nil
}

// Sync flushes any buffered log entries. Safe to call even if Init was never
// called.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

// For returns a logger scoped to the given category.
func For(cat Category) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With(zap.String("category", string(cat)))
}

// IsInitialized reports whether Init has produced a real logger (as opposed
// to the default no-op), useful for tests that don't want log noise.
func IsInitialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return inited
}
