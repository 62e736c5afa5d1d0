// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers node upsert, lookup, deletion, listing order and number round-trips

package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/2389/coven-conversations/internal/remote"
)

var _ Store = (*SQLiteStore)(nil)
var _ remote.NodeStore = (*SQLiteStore)(nil)
var _ remote.NodeStore = (*MockStore)(nil)

const testCollection = "apps/chat21/users/u1/conversations"

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open("postgres", filepath.Join(t.TempDir(), "x.db")); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestOpen_InMemory(t *testing.T) {
	store, err := Open(DriverModernc, ":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.PutNode(ctx, testCollection, "c1", map[string]any{"sender": "u1"}); err != nil {
		t.Fatalf("PutNode failed: %v", err)
	}
	if _, err := store.GetNode(ctx, testCollection, "c1"); err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
}

func TestOpen_CGODriver(t *testing.T) {
	store, err := Open(DriverCGO, filepath.Join(t.TempDir(), "cgo.db"))
	if err != nil {
		// go-sqlite3 registers a stub driver when built with CGO_ENABLED=0
		t.Skipf("cgo sqlite driver unavailable: %v", err)
	}
	defer store.Close()

	ctx := t.Context()
	if err := store.PutNode(ctx, testCollection, "c1", map[string]any{"is_new": true}); err != nil {
		t.Fatalf("PutNode failed: %v", err)
	}
	node, err := store.GetNode(ctx, testCollection, "c1")
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if node.Fields["is_new"] != true {
		t.Errorf("is_new = %v, want true", node.Fields["is_new"])
	}
}

func TestPutAndGetNode(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fields := map[string]any{
		"sender":            "u1",
		"recipient":         "u2",
		"is_new":            true,
		"timestamp":         int64(1700000000123),
		"last_message_text": "hi",
	}
	if err := store.PutNode(ctx, testCollection, "c1", fields); err != nil {
		t.Fatalf("PutNode failed: %v", err)
	}

	got, err := store.GetNode(ctx, testCollection, "c1")
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}

	if got.Path() != testCollection+"/c1" {
		t.Errorf("Path() = %q", got.Path())
	}
	if got.Fields["sender"] != "u1" {
		t.Errorf("sender = %v, want u1", got.Fields["sender"])
	}
	if got.Fields["is_new"] != true {
		t.Errorf("is_new = %v, want true", got.Fields["is_new"])
	}
	ts, ok := got.Fields["timestamp"].(json.Number)
	if !ok {
		t.Fatalf("timestamp type = %T, want json.Number", got.Fields["timestamp"])
	}
	if n, _ := ts.Int64(); n != 1700000000123 {
		t.Errorf("timestamp = %d, want 1700000000123", n)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
}

func TestPutNode_Replaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.PutNode(ctx, testCollection, "c1", map[string]any{"is_new": true, "sender": "u1"}); err != nil {
		t.Fatalf("PutNode failed: %v", err)
	}
	if err := store.PutNode(ctx, testCollection, "c1", map[string]any{"is_new": false}); err != nil {
		t.Fatalf("PutNode failed: %v", err)
	}

	got, err := store.GetNode(ctx, testCollection, "c1")
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if got.Fields["is_new"] != false {
		t.Errorf("is_new = %v, want false", got.Fields["is_new"])
	}
	if _, ok := got.Fields["sender"]; ok {
		t.Error("sender should have been replaced away")
	}
}

func TestGetNode_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetNode(context.Background(), testCollection, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteNode(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.PutNode(ctx, testCollection, "c1", map[string]any{"sender": "u1"}); err != nil {
		t.Fatalf("PutNode failed: %v", err)
	}
	if err := store.DeleteNode(ctx, testCollection, "c1"); err != nil {
		t.Fatalf("DeleteNode failed: %v", err)
	}
	if err := store.DeleteNode(ctx, testCollection, "c1"); err != nil {
		t.Fatalf("second DeleteNode failed: %v", err)
	}

	if _, err := store.GetNode(ctx, testCollection, "c1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListNodes_OrderedAndScoped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"c3", "c1", "c2"} {
		if err := store.PutNode(ctx, testCollection, key, map[string]any{"k": key}); err != nil {
			t.Fatalf("PutNode failed: %v", err)
		}
	}
	if err := store.PutNode(ctx, "apps/chat21/users/u2/conversations", "c9", map[string]any{"k": "c9"}); err != nil {
		t.Fatalf("PutNode failed: %v", err)
	}

	nodes, err := store.ListNodes(ctx, testCollection)
	if err != nil {
		t.Fatalf("ListNodes failed: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("got %d nodes, want 3", len(nodes))
	}
	for i, want := range []string{"c1", "c2", "c3"} {
		if nodes[i].Key != want {
			t.Errorf("nodes[%d].Key = %q, want %q", i, nodes[i].Key, want)
		}
	}
}

func TestLoadNodes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.PutNode(ctx, testCollection, "c1", map[string]any{"sender": "u1"}); err != nil {
		t.Fatalf("PutNode failed: %v", err)
	}
	if err := store.PutNode(ctx, "apps/chat21/users/u2/conversations", "c2", map[string]any{"sender": "u2"}); err != nil {
		t.Fatalf("PutNode failed: %v", err)
	}

	seen := map[string]bool{}
	err := store.LoadNodes(ctx, func(collection, key string, fields map[string]any) error {
		seen[collection+"/"+key] = true
		return nil
	})
	if err != nil {
		t.Fatalf("LoadNodes failed: %v", err)
	}
	if len(seen) != 2 {
		t.Errorf("loaded %d nodes, want 2", len(seen))
	}

	stop := errors.New("stop")
	err = store.LoadNodes(ctx, func(string, string, map[string]any) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("expected callback error to propagate, got %v", err)
	}
}

func TestSQLiteStore_BacksLocalTree(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tree.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	tree, err := remote.NewLocalTree(ctx, remote.WithStore(store))
	if err != nil {
		t.Fatalf("NewLocalTree failed: %v", err)
	}
	if err := tree.SetNode(ctx, testCollection+"/c1", map[string]any{"sender": "u1", "timestamp": int64(5)}); err != nil {
		t.Fatalf("SetNode failed: %v", err)
	}
	tree.Close()
	store.Close()

	reopened, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	tree2, err := remote.NewLocalTree(ctx, remote.WithStore(reopened))
	if err != nil {
		t.Fatalf("NewLocalTree failed: %v", err)
	}
	defer tree2.Close()

	fields, err := tree2.ReadOnce(ctx, testCollection+"/c1")
	if err != nil {
		t.Fatalf("ReadOnce failed: %v", err)
	}
	if fields["sender"] != "u1" {
		t.Errorf("sender = %v, want u1", fields["sender"])
	}
}
