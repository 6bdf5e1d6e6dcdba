//go:build cgo

package sqlite

// Primary driver: mattn/go-sqlite3 (cgo), mirroring the teacher's
// sql.Open("sqlite3", path) in internal/store/local_core.go.
import _ "github.com/mattn/go-sqlite3"

const driverName = "sqlite3"
