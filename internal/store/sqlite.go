// ABOUTME: SQLite implementation of the Store interface
// ABOUTME: Persists tree nodes as JSON field maps with automatic schema creation

package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path using the pure
// Go driver. The schema is automatically created if it doesn't exist.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return Open(DriverModernc, path)
}

// Open creates a store with an explicit driver (DriverModernc or DriverCGO).
// Parent directories are created if needed.
func Open(driver, path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	switch driver {
	case "":
		driver = DriverModernc
	case DriverModernc, DriverCGO:
	default:
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "driver", driver, "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS nodes (
			collection  TEXT NOT NULL,
			key         TEXT NOT NULL,
			fields_json TEXT NOT NULL,
			updated_at  TEXT NOT NULL,

			PRIMARY KEY (collection, key)
		);

		CREATE INDEX IF NOT EXISTS idx_nodes_collection ON nodes(collection);
	`

	_, err := s.db.Exec(schema)
	return err
}

// PutNode inserts or replaces a node
func (s *SQLiteStore) PutNode(ctx context.Context, collection, key string, fields map[string]any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}

	query := `
		INSERT INTO nodes (collection, key, fields_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, key) DO UPDATE SET
			fields_json = excluded.fields_json,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query, collection, key, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving node: %w", err)
	}
	return nil
}

// GetNode retrieves a node, returning ErrNotFound if it doesn't exist
func (s *SQLiteStore) GetNode(ctx context.Context, collection, key string) (*Node, error) {
	query := `SELECT collection, key, fields_json, updated_at FROM nodes WHERE collection = ? AND key = ?`
	node, err := scanNode(s.db.QueryRowContext(ctx, query, collection, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting node: %w", err)
	}
	return node, nil
}

// DeleteNode removes a node. Deleting a missing node is not an error.
func (s *SQLiteStore) DeleteNode(ctx context.Context, collection, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE collection = ? AND key = ?`, collection, key)
	if err != nil {
		return fmt.Errorf("deleting node: %w", err)
	}
	return nil
}

// ListNodes returns the children of a collection ordered by key
func (s *SQLiteStore) ListNodes(ctx context.Context, collection string) ([]*Node, error) {
	query := `SELECT collection, key, fields_json, updated_at FROM nodes WHERE collection = ? ORDER BY key`
	rows, err := s.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// LoadNodes streams every node in (collection, key) order
func (s *SQLiteStore) LoadNodes(ctx context.Context, fn func(collection, key string, fields map[string]any) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT collection, key, fields_json, updated_at FROM nodes ORDER BY collection, key`)
	if err != nil {
		return fmt.Errorf("loading nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return fmt.Errorf("scanning node: %w", err)
		}
		if err := fn(node.Collection, node.Key, node.Fields); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*Node, error) {
	var (
		node      Node
		fieldsRaw string
		updatedAt string
	)
	if err := row.Scan(&node.Collection, &node.Key, &fieldsRaw, &updatedAt); err != nil {
		return nil, err
	}

	fields, err := decodeFields(fieldsRaw)
	if err != nil {
		return nil, err
	}
	node.Fields = fields

	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		node.UpdatedAt = t
	}
	return &node, nil
}

// decodeFields keeps numbers as json.Number so integer fields survive the round trip
func decodeFields(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decoding fields: %w", err)
	}
	return fields, nil
}
