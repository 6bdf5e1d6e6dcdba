// Package sqlite is the persistent BeliefSource (§2, §6): it mirrors the
// in-memory BeliefBase's event stream into the four-table cache schema
// (nodes, relations, paths, file_mtimes) so a later run can restore
// global_bb without reparsing unchanged files (§8 property 8, Scenario 5).
//
// Spec §1 places "persistent SQLite back-end as a storage engine" out of
// scope beyond its interface contract; this package exists to exercise that
// contract concretely (the driver's `source store.BeliefSource` field) while
// staying a thin event mirror rather than a query engine of its own — all
// read-side logic (Eval, GetContext, ...) is delegated to an in-memory
// store.BeliefBase kept in step with the database.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"noet-core/internal/graph"
	"noet-core/internal/identity"
	"noet-core/internal/store"
)

// Store is a store.BeliefSource backed by a sqlite database. All derived
// indices (Eval, GetContext, GetNetworkPaths, ...) are served from an
// in-memory mirror rebuilt from the database at Open and kept current by
// ProcessEvent; the database itself never needs to answer a query.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	mem *store.BeliefBase
}

// Open opens (creating if absent) the sqlite database at path, runs pending
// migrations (schema.go), and restores the in-memory mirror from its
// contents — the teacher's `sql.Open` + migrate-then-load sequence in
// internal/store/local_core.go.
func Open(path string) (*Store, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", path, err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrating %s: %w", path, err)
	}
	s := &Store{db: db, mem: store.New()}
	if err := s.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: loading %s: %w", path, err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// nodeRow is the JSON shape stored in nodes.payload: the full node, not just
// its domain-metadata Payload field — §6's three-column nodes table is
// explicitly "informal", and a node's Title/HomePath/Anchor/Net need
// somewhere to live too.
type nodeRow struct {
	Bid      identity.Bid   `json:"bid"`
	Kind     graph.Kind     `json:"kind"`
	Title    string         `json:"title"`
	HomePath string         `json:"home_path"`
	Anchor   string         `json:"anchor"`
	Net      identity.Bid   `json:"net"`
	Payload  map[string]any `json:"payload"`
}

type relationRow struct {
	Weight  map[string]any `json:"weight"`
	SortKey []int          `json:"sort_key"`
}

// load replays every persisted row into the in-memory mirror via the same
// ProcessEvent path live parsing uses, so restoring from disk and restoring
// from a live run produce an identically-indexed BeliefBase.
func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT payload FROM nodes`)
	if err != nil {
		return err
	}
	var nodes []nodeRow
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			rows.Close()
			return err
		}
		var nr nodeRow
		if err := json.Unmarshal(blob, &nr); err != nil {
			rows.Close()
			return err
		}
		nodes = append(nodes, nr)
	}
	rows.Close()
	for _, nr := range nodes {
		if _, err := s.mem.ProcessEvent(graph.NodeUpdate{Node: graph.BeliefNode{
			Bid: nr.Bid, Kind: nr.Kind, Title: nr.Title, HomePath: nr.HomePath,
			Anchor: nr.Anchor, Net: nr.Net, Payload: nr.Payload,
		}}); err != nil {
			return err
		}
	}

	relRows, err := s.db.Query(`SELECT source_bid, sink_bid, kind, weight_payload FROM relations`)
	if err != nil {
		return err
	}
	for relRows.Next() {
		var srcBytes, sinkBytes, blob []byte
		var kind int
		if err := relRows.Scan(&srcBytes, &sinkBytes, &kind, &blob); err != nil {
			relRows.Close()
			return err
		}
		var rr relationRow
		if err := json.Unmarshal(blob, &rr); err != nil {
			relRows.Close()
			return err
		}
		src, sink := bidFromBytes(srcBytes), bidFromBytes(sinkBytes)
		if _, err := s.mem.ProcessEvent(graph.RelationChange{Relation: graph.Relation{
			Source: src, Sink: sink, Kind: graph.RelationKind(kind),
			Weight: rr.Weight, SortKey: rr.SortKey,
		}}); err != nil {
			relRows.Close()
			return err
		}
	}
	relRows.Close()

	mtimeRows, err := s.db.Query(`SELECT path, mtime FROM file_mtimes`)
	if err != nil {
		return err
	}
	for mtimeRows.Next() {
		var path string
		var mtime int64
		if err := mtimeRows.Scan(&path, &mtime); err != nil {
			mtimeRows.Close()
			return err
		}
		if _, err := s.mem.ProcessEvent(graph.FileParsed{Path: path, Mtime: mtime}); err != nil {
			mtimeRows.Close()
			return err
		}
	}
	mtimeRows.Close()
	return nil
}

func bidFromBytes(b []byte) identity.Bid {
	var out identity.Bid
	copy(out[:], b)
	return out
}

// ProcessEvent applies ev to the in-memory mirror and persists the rows it
// touches in a single transaction (§6 "All writes are batched within a
// single document's transaction" — here, one event at a time is its own
// transaction, which is the degenerate but correct case since the driver
// calls ProcessEvent once per event in a document's diff in order).
func (s *Store) ProcessEvent(ev graph.Event) ([]graph.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	derived, err := s.mem.ProcessEvent(ev)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := s.persist(tx, ev); err != nil {
		tx.Rollback()
		return nil, err
	}
	for _, d := range derived {
		if err := s.persist(tx, d); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit: %w", err)
	}
	return derived, nil
}

func (s *Store) persist(tx *sql.Tx, ev graph.Event) error {
	switch e := ev.(type) {
	case graph.NodeUpdate:
		n, ok := s.mem.NodeByBid(e.Node.Bid)
		if !ok {
			n = e.Node
		}
		return s.persistNode(tx, n)
	case graph.NodeRenamed:
		if _, err := tx.Exec(`DELETE FROM nodes WHERE bid = ?`, e.OldBid[:]); err != nil {
			return err
		}
		n, ok := s.mem.NodeByBid(e.NewBid)
		if !ok {
			return nil
		}
		return s.persistNode(tx, n)
	case graph.RelationChange:
		blob, err := json.Marshal(relationRow{Weight: e.Relation.Weight, SortKey: e.Relation.SortKey})
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT OR REPLACE INTO relations (source_bid, sink_bid, kind, weight_payload) VALUES (?, ?, ?, ?)`,
			e.Relation.Source[:], e.Relation.Sink[:], int(e.Relation.Kind), blob)
		return err
	case graph.RelationRemoved:
		_, err := tx.Exec(`DELETE FROM relations WHERE source_bid = ? AND sink_bid = ? AND kind = ?`,
			e.Relation.Source[:], e.Relation.Sink[:], int(e.Relation.Kind))
		return err
	case graph.PathAdded:
		_, err := tx.Exec(`INSERT OR REPLACE INTO paths (net_bid, path, target_bid, sort_key_blob) VALUES (?, ?, ?, ?)`,
			e.Net[:], e.Path, e.Target[:], mustJSON(e.Sort))
		return err
	case graph.PathRemoved:
		_, err := tx.Exec(`DELETE FROM paths WHERE net_bid = ? AND path = ?`, e.Net[:], e.Path)
		return err
	case graph.FileParsed:
		_, err := tx.Exec(`INSERT OR REPLACE INTO file_mtimes (path, mtime) VALUES (?, ?)`, e.Path, e.Mtime)
		return err
	default:
		return nil
	}
}

func (s *Store) persistNode(tx *sql.Tx, n graph.BeliefNode) error {
	blob, err := json.Marshal(nodeRow{
		Bid: n.Bid, Kind: n.Kind, Title: n.Title, HomePath: n.HomePath,
		Anchor: n.Anchor, Net: n.Net, Payload: n.Payload,
	})
	if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT OR REPLACE INTO nodes (bid, kind_bits, payload) VALUES (?, ?, ?)`,
		n.Bid[:], int(n.Kind), blob)
	return err
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return b
}

// --- store.BeliefSource read-side: delegated to the in-memory mirror -----

func (s *Store) States() []graph.BeliefNode { return s.mem.States() }
func (s *Store) Relations() []graph.Relation { return s.mem.Relations() }
func (s *Store) Eval(expr store.Expr) graph.BeliefGraph { return s.mem.Eval(expr) }
func (s *Store) GetContext(bid identity.Bid) (store.BeliefContext, bool) {
	return s.mem.GetContext(bid)
}
func (s *Store) GetFileMtimes() []store.FileMtime { return s.mem.GetFileMtimes() }
func (s *Store) GetNetworkPaths(net identity.Bid) []store.NetPathEntry {
	return s.mem.GetNetworkPaths(net)
}

// Mem exposes the in-memory mirror directly, for callers (e.g. the driver at
// startup) that want to seed global_bb from a restored cache instead of
// replaying through events a second time.
func (s *Store) Mem() *store.BeliefBase { return s.mem }

var _ store.BeliefSource = (*Store)(nil)
