// Package localstore implements the local file cache: a vault directory
// of markdown entries plus a SQLite state database for the metadata the
// filesystem cannot carry (ids, remote revisions, sync stamps, connection
// settings).
package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kallestad/driftmark/internal/models"
)

const stateSchemaSQL = `
CREATE TABLE IF NOT EXISTS files (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL UNIQUE,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	remote_revision TEXT NOT NULL DEFAULT '',
	last_synced_at  DATETIME,
	checksum        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_updated ON files(updated_at);
`

// Settings keys. The token is stored independently of the connection so
// it survives a soft disconnect that clears the repository selection.
const (
	settingConnection = "connection"
	settingToken      = "token"
	settingLastSync   = "last_sync"
)

// FileMeta is one row of the files table.
type FileMeta struct {
	ID             string
	Name           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	RemoteRevision string
	LastSyncedAt   *time.Time
	Checksum       string
}

// StateDB wraps a sql.DB with state-specific operations.
type StateDB struct {
	conn *sql.DB
}

// OpenState opens (or creates) the SQLite state database and applies the schema.
func OpenState(dsn string) (*StateDB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("state: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("state: ping: %w", err)
	}
	if _, err := conn.Exec(stateSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("state: apply schema: %w", err)
	}
	return &StateDB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *StateDB) Close() error {
	return db.conn.Close()
}

// UpsertMeta inserts or replaces a file's metadata row, keyed by id.
// A name collision with a different id removes the older row first:
// names are unique per store with last-write-wins semantics.
func (db *StateDB) UpsertMeta(m FileMeta) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("state: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM files WHERE name = ? AND id != ?`, m.Name, m.ID); err != nil {
		return fmt.Errorf("state: clear name collision: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO files (id, name, created_at, updated_at, remote_revision, last_synced_at, checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name            = excluded.name,
			created_at      = excluded.created_at,
			updated_at      = excluded.updated_at,
			remote_revision = excluded.remote_revision,
			last_synced_at  = excluded.last_synced_at,
			checksum        = excluded.checksum
	`, m.ID, m.Name, m.CreatedAt, m.UpdatedAt, m.RemoteRevision, nullTime(m.LastSyncedAt), m.Checksum)
	if err != nil {
		return fmt.Errorf("state: upsert file: %w", err)
	}
	return tx.Commit()
}

// UpdateSyncStamp records a successful remote sync: revision and sync
// time only, content timestamps are untouched.
func (db *StateDB) UpdateSyncStamp(id, revision string, syncedAt time.Time) error {
	_, err := db.conn.Exec(`UPDATE files SET remote_revision = ?, last_synced_at = ? WHERE id = ?`,
		revision, syncedAt, id)
	if err != nil {
		return fmt.Errorf("state: update sync stamp: %w", err)
	}
	return nil
}

// DeleteMeta removes a file's metadata row by id.
func (db *StateDB) DeleteMeta(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM files WHERE id = ?`, id); err != nil {
		return fmt.Errorf("state: delete file: %w", err)
	}
	return nil
}

// GetMeta returns a file's metadata by id, or nil when absent.
func (db *StateDB) GetMeta(id string) (*FileMeta, error) {
	return db.getMeta(`SELECT id, name, created_at, updated_at, remote_revision, last_synced_at, checksum
		FROM files WHERE id = ?`, id)
}

// GetMetaByName returns a file's metadata by name, or nil when absent.
func (db *StateDB) GetMetaByName(name string) (*FileMeta, error) {
	return db.getMeta(`SELECT id, name, created_at, updated_at, remote_revision, last_synced_at, checksum
		FROM files WHERE name = ?`, name)
}

func (db *StateDB) getMeta(query string, arg any) (*FileMeta, error) {
	var m FileMeta
	var synced sql.NullTime
	err := db.conn.QueryRow(query, arg).Scan(
		&m.ID, &m.Name, &m.CreatedAt, &m.UpdatedAt, &m.RemoteRevision, &synced, &m.Checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: get file: %w", err)
	}
	if synced.Valid {
		t := synced.Time
		m.LastSyncedAt = &t
	}
	return &m, nil
}

// ListMeta returns all file metadata, most recently updated first.
func (db *StateDB) ListMeta() ([]FileMeta, error) {
	rows, err := db.conn.Query(`SELECT id, name, created_at, updated_at, remote_revision, last_synced_at, checksum
		FROM files ORDER BY updated_at DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("state: list files: %w", err)
	}
	defer rows.Close()

	var out []FileMeta
	for rows.Next() {
		var m FileMeta
		var synced sql.NullTime
		if err := rows.Scan(&m.ID, &m.Name, &m.CreatedAt, &m.UpdatedAt, &m.RemoteRevision, &synced, &m.Checksum); err != nil {
			return nil, err
		}
		if synced.Valid {
			t := synced.Time
			m.LastSyncedAt = &t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AllChecksums returns name → checksum for every tracked file.
func (db *StateDB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT name, checksum FROM files`)
	if err != nil {
		return nil, fmt.Errorf("state: all checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, cs string
		if err := rows.Scan(&name, &cs); err != nil {
			return nil, err
		}
		out[name] = cs
	}
	return out, rows.Err()
}

// ClearFiles removes every file metadata row.
func (db *StateDB) ClearFiles() error {
	if _, err := db.conn.Exec(`DELETE FROM files`); err != nil {
		return fmt.Errorf("state: clear files: %w", err)
	}
	return nil
}

// SaveConnection persists the active remote connection.
func (db *StateDB) SaveConnection(cfg models.ConnectionConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("state: marshal connection: %w", err)
	}
	return db.setSetting(settingConnection, string(data))
}

// LoadConnection returns the persisted connection, or nil when absent.
func (db *StateDB) LoadConnection() (*models.ConnectionConfig, error) {
	raw, ok, err := db.getSetting(settingConnection)
	if err != nil || !ok {
		return nil, err
	}
	var cfg models.ConnectionConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("state: unmarshal connection: %w", err)
	}
	return &cfg, nil
}

// ClearConnection removes the active connection and last-sync stamp,
// leaving the stored token intact.
func (db *StateDB) ClearConnection() error {
	if err := db.deleteSetting(settingConnection); err != nil {
		return err
	}
	return db.deleteSetting(settingLastSync)
}

// SaveToken persists the credential token.
func (db *StateDB) SaveToken(token string) error {
	return db.setSetting(settingToken, token)
}

// LoadToken returns the stored token, or empty string when absent.
func (db *StateDB) LoadToken() (string, error) {
	raw, _, err := db.getSetting(settingToken)
	return raw, err
}

// ClearToken removes the stored token.
func (db *StateDB) ClearToken() error {
	return db.deleteSetting(settingToken)
}

// SetLastSync records the time of the last successful sync.
func (db *StateDB) SetLastSync(t time.Time) error {
	return db.setSetting(settingLastSync, t.UTC().Format(time.RFC3339Nano))
}

// LastSync returns the last successful sync time, or nil when never synced.
func (db *StateDB) LastSync() (*time.Time, error) {
	raw, ok, err := db.getSetting(settingLastSync)
	if err != nil || !ok {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("state: parse last sync: %w", err)
	}
	return &t, nil
}

func (db *StateDB) setSetting(key, value string) error {
	_, err := db.conn.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("state: set %s: %w", key, err)
	}
	return nil
}

func (db *StateDB) getSetting(key string) (string, bool, error) {
	var value string
	err := db.conn.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("state: get %s: %w", key, err)
	}
	return value, true, nil
}

func (db *StateDB) deleteSetting(key string) error {
	if _, err := db.conn.Exec(`DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("state: delete %s: %w", key, err)
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
