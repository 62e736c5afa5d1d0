// ABOUTME: Contract tests for the node store schema to detect breaking changes
// ABOUTME: Older databases must keep opening, so tables, columns, and indexes are pinned

package contract

import (
	"database/sql"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-conversations/internal/store"
)

// expectedSchema maps each table to the columns existing databases rely on.
var expectedSchema = map[string][]string{
	"nodes": {"collection", "key", "fields_json", "updated_at"},
}

var expectedIndexes = []string{"idx_nodes_collection"}

// openSchemaDB lets the store create its schema, then opens a second raw
// connection for inspection.
func openSchemaDB(t *testing.T, driver string) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "contract.db")

	nodes, err := store.Open(driver, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { nodes.Close() })

	db, err := sql.Open(driver, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// queryNames runs a single-column query and returns the results as a set.
func queryNames(t *testing.T, db *sql.DB, query string, args ...any) map[string]bool {
	t.Helper()
	rows, err := db.QueryContext(t.Context(), query, args...)
	require.NoError(t, err)
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names[name] = true
	}
	require.NoError(t, rows.Err())
	return names
}

func TestSchemaSurface(t *testing.T) {
	db := openSchemaDB(t, store.DriverModernc)

	for table, want := range expectedSchema {
		t.Run(table, func(t *testing.T) {
			cols := queryNames(t, db, "SELECT name FROM pragma_table_info(?)", table)
			require.NotEmpty(t, cols, "table %s should exist", table)

			for _, col := range want {
				assert.True(t, cols[col], "column %s.%s should exist", table, col)
			}
			for col := range cols {
				if !slices.Contains(want, col) {
					t.Logf("INFO: extra column %s.%s not in contract (consider adding)", table, col)
				}
			}
		})
	}
}

func TestSchemaHasIndexes(t *testing.T) {
	db := openSchemaDB(t, store.DriverModernc)

	indexes := queryNames(t, db, "SELECT name FROM sqlite_master WHERE type = 'index' AND name NOT LIKE 'sqlite_%'")
	for _, idx := range expectedIndexes {
		assert.True(t, indexes[idx], "index %s should exist", idx)
	}
}
