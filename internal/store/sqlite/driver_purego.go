//go:build !cgo

package sqlite

// Pure-Go fallback when cgo is unavailable. The build-tag split follows the
// common ecosystem convention for shipping both drivers (see DESIGN.md).
import _ "modernc.org/sqlite"

const driverName = "sqlite"
