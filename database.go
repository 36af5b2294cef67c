package main

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite operational store: settings, the activity log,
// and archived world snapshots. It holds no authoritative world state;
// the relay never restores from it.
type DB struct {
	conn *sql.DB
}

// SnapshotRow is one archived world snapshot (msgpack blob)
type SnapshotRow struct {
	ID          int64
	TakenAt     time.Time
	PlayerCount int
	Data        []byte
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single writer; also keeps :memory: databases on one connection
	conn.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		conn_id TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		taken_at DATETIME NOT NULL,
		player_count INTEGER NOT NULL DEFAULT 0,
		data BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	CREATE INDEX IF NOT EXISTS idx_snapshots_taken ON snapshots(taken_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// GetSetting returns a settings value, or "" if absent
func (db *DB) GetSetting(key string) string {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return ""
	}
	return value
}

// SetSetting upserts a settings value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// InsertEvents writes a batch of activity events in one transaction
func (db *DB) InsertEvents(events []ActivityEvent) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO events (type, conn_id, detail, created_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, evt := range events {
		if _, err := stmt.Exec(evt.Type, evt.ConnID, evt.Detail, evt.Timestamp); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// CountEvents returns the number of stored events of one type
func (db *DB) CountEvents(evtType string) (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM events WHERE type = ?", evtType).Scan(&n)
	return n, err
}

// SaveSnapshot stores one archived world snapshot
func (db *DB) SaveSnapshot(takenAt time.Time, playerCount int, data []byte) error {
	_, err := db.conn.Exec(
		"INSERT INTO snapshots (taken_at, player_count, data) VALUES (?, ?, ?)",
		takenAt, playerCount, data,
	)
	return err
}

// LatestSnapshot returns the most recent archived snapshot, or nil if
// none exist
func (db *DB) LatestSnapshot() (*SnapshotRow, error) {
	row := db.conn.QueryRow(
		"SELECT id, taken_at, player_count, data FROM snapshots ORDER BY id DESC LIMIT 1",
	)
	var s SnapshotRow
	if err := row.Scan(&s.ID, &s.TakenAt, &s.PlayerCount, &s.Data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
