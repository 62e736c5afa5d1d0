// ABOUTME: Store interface and data types for durable tree node persistence
// ABOUTME: Defines Node and the Store interface backing a LocalTree

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested node does not exist
var ErrNotFound = errors.New("not found")

// Supported database/sql driver names.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverCGO     = "sqlite3" // github.com/mattn/go-sqlite3, requires cgo
)

// Node is one persisted child of a collection
type Node struct {
	Collection string
	Key        string
	Fields     map[string]any
	UpdatedAt  time.Time
}

// Path returns the full node path.
func (n *Node) Path() string {
	return n.Collection + "/" + n.Key
}

// Store defines the interface for node persistence
type Store interface {
	PutNode(ctx context.Context, collection, key string, fields map[string]any) error
	GetNode(ctx context.Context, collection, key string) (*Node, error)
	DeleteNode(ctx context.Context, collection, key string) error
	ListNodes(ctx context.Context, collection string) ([]*Node, error)

	// LoadNodes streams every stored node to fn, stopping at the first error
	LoadNodes(ctx context.Context, fn func(collection, key string, fields map[string]any) error) error

	// Close releases any resources held by the store
	Close() error
}
