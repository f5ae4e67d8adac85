package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"notesync/internal/collection"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		collection TEXT NOT NULL,
		key        TEXT NOT NULL,
		data       TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (collection, key)
	)`,
	`CREATE TABLE IF NOT EXISTS schemas (
		collection TEXT PRIMARY KEY,
		schema     TEXT NOT NULL
	)`,
}

// SQLite stores one row per item. Save rewrites a collection's rows inside
// a single transaction, so a failed save leaves the previous items intact.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(ctx context.Context, dbPath string) (*SQLite, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Load(ctx context.Context, name string) (collection.Items, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, data FROM items WHERE collection = ?", name)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	return scanDoc(rows)
}

func (s *SQLite) Save(ctx context.Context, name string, items collection.Items) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM items WHERE collection = ?", name); err != nil {
		return fmt.Errorf("clear %s: %w", name, err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO items (collection, key, data, updated_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for key, raw := range items {
		if _, err := stmt.ExecContext(ctx, name, key, string(raw), updatedAtOf(raw)); err != nil {
			return fmt.Errorf("insert %s/%s: %w", name, key, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT collection FROM items ORDER BY collection")
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLite) LoadSchemas(ctx context.Context) (collection.Items, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT collection, schema FROM schemas")
	if err != nil {
		return nil, fmt.Errorf("query schemas: %w", err)
	}
	return scanDoc(rows)
}

func (s *SQLite) SaveSchemas(ctx context.Context, schemas collection.Items) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM schemas"); err != nil {
		return fmt.Errorf("clear schemas: %w", err)
	}
	for name, raw := range schemas {
		if _, err := tx.ExecContext(ctx, "INSERT INTO schemas (collection, schema) VALUES (?, ?)", name, string(raw)); err != nil {
			return fmt.Errorf("insert schema %s: %w", name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// scanDoc reads (key, json) rows into a document, closing rows.
func scanDoc(rows *sql.Rows) (collection.Items, error) {
	defer rows.Close()

	out := collection.Items{}
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out[key] = json.RawMessage(raw)
	}
	return out, rows.Err()
}

// updatedAtOf pulls updatedAt out of an item for the indexed column. Items
// without a readable one get "".
func updatedAtOf(raw json.RawMessage) string {
	var v struct {
		UpdatedAt any `json:"updatedAt"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	s, _ := v.UpdatedAt.(string)
	return s
}
