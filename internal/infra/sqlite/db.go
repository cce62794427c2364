// Package sqlite provides SQLite-based storage for Tessera's
// monitoring history. Uses WAL mode for concurrent reads and
// crash-safe writes.
//
// Deliberately not a peer cache: candidate peers are rediscovered from
// DNS and gossip on every run. What lives here is the churn log and a
// small node_info key-value table, both observability artifacts.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// PeerEvent is one row of the churn log.
type PeerEvent struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Peer      string    `json:"peer"`
	Event     string    `json:"event"` // "connected", "terminated", "evicted"
}

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and a 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS node_info (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Peer churn log. Append-only; one row per membership change.
		`CREATE TABLE IF NOT EXISTS peer_events (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id    TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			peer      TEXT NOT NULL,
			event     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_peer_events_ts ON peer_events(timestamp)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Node Info ──────────────────────────────────────────────────────────────

// SetNodeInfo stores a key-value pair in node_info.
func (d *DB) SetNodeInfo(key, value string) error {
	_, err := d.db.Exec(
		`INSERT INTO node_info (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

// GetNodeInfo retrieves a value from node_info.
func (d *DB) GetNodeInfo(key string) (string, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM node_info WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// ─── Churn Log ──────────────────────────────────────────────────────────────

// RecordPeerEvent appends one membership change to the churn log.
func (d *DB) RecordPeerEvent(runID, peer, event string) error {
	_, err := d.db.Exec(
		`INSERT INTO peer_events (run_id, timestamp, peer, event) VALUES (?, ?, ?, ?)`,
		runID, time.Now().Unix(), peer, event,
	)
	return err
}

// RecentPeerEvents returns the newest limit rows of the churn log,
// most recent first.
func (d *DB) RecentPeerEvents(limit int) ([]PeerEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.Query(
		`SELECT run_id, timestamp, peer, event FROM peer_events
		 ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []PeerEvent
	for rows.Next() {
		var ev PeerEvent
		var ts int64
		if err := rows.Scan(&ev.RunID, &ts, &ev.Peer, &ev.Event); err != nil {
			return nil, err
		}
		ev.Timestamp = time.Unix(ts, 0)
		events = append(events, ev)
	}
	return events, rows.Err()
}
