package sqlite

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"noet-core/internal/logging"
)

// CurrentSchemaVersion tracks the nodes/relations/paths/file_mtimes layout
// (§6 "Persistent cache schema"). Grounded on the teacher's
// internal/store/migrations.go versioning comment block.
const CurrentSchemaVersion = 1

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS nodes (
	bid        BLOB PRIMARY KEY,
	kind_bits  INTEGER NOT NULL,
	payload    BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS relations (
	source_bid     BLOB NOT NULL,
	sink_bid       BLOB NOT NULL,
	kind           INTEGER NOT NULL,
	weight_payload BLOB NOT NULL,
	PRIMARY KEY (source_bid, sink_bid, kind)
);

CREATE TABLE IF NOT EXISTS paths (
	net_bid       BLOB NOT NULL,
	path          TEXT NOT NULL,
	target_bid    BLOB NOT NULL,
	sort_key_blob BLOB,
	PRIMARY KEY (net_bid, path)
);

CREATE TABLE IF NOT EXISTS file_mtimes (
	path  TEXT PRIMARY KEY,
	mtime INTEGER NOT NULL
);
`

// migration is one guarded ALTER TABLE ADD COLUMN, the same shape as the
// teacher's pendingMigrations (internal/store/migrations.go): applied only
// if the table exists and the column doesn't, errors tolerated since the
// column may already be present in a differently-sourced database.
type migration struct {
	table  string
	column string
	def    string
}

// pendingMigrations is empty at schema v1; the machinery is wired up front
// so a v2 column addition (e.g. a future `nodes.schema_name` column) only
// needs an entry here, matching the teacher's additive-migration posture.
var pendingMigrations []migration

func runMigrations(db *sql.DB) error {
	log := logging.For(logging.CategoryStore)
	if _, err := db.Exec(createTablesSQL); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}

	for _, m := range pendingMigrations {
		if !tableExists(db, m.table) {
			continue
		}
		if columnExists(db, m.table, m.column) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.column, m.def)
		if _, err := db.Exec(stmt); err != nil {
			log.Warn("migration failed, continuing", zap.String("table", m.table), zap.String("column", m.column), zap.Error(err))
		}
	}
	return nil
}

func tableExists(db *sql.DB, table string) bool {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count); err != nil {
		return false
	}
	return count > 0
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
