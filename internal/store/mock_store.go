// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject persistence failures

package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu    sync.RWMutex
	nodes map[string]*Node // keyed by "collection/key"

	// PutErr, when set, is returned by PutNode without storing anything.
	PutErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		nodes: make(map[string]*Node),
	}
}

// PutNode stores a copy of the node. Fields are normalized through JSON the
// same way SQLiteStore stores them.
func (m *MockStore) PutNode(ctx context.Context, collection, key string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PutErr != nil {
		return m.PutErr
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	normalized, err := decodeFields(string(data))
	if err != nil {
		return err
	}

	m.nodes[collection+"/"+key] = &Node{
		Collection: collection,
		Key:        key,
		Fields:     normalized,
		UpdatedAt:  time.Now().UTC(),
	}
	return nil
}

// GetNode retrieves a copy of a node.
func (m *MockStore) GetNode(ctx context.Context, collection, key string) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.nodes[collection+"/"+key]
	if !ok {
		return nil, ErrNotFound
	}
	result := *n
	return &result, nil
}

// DeleteNode removes a node if present.
func (m *MockStore) DeleteNode(ctx context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.nodes, collection+"/"+key)
	return nil
}

// ListNodes returns the collection's nodes ordered by key.
func (m *MockStore) ListNodes(ctx context.Context, collection string) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var nodes []*Node
	for _, n := range m.nodes {
		if n.Collection == collection {
			c := *n
			nodes = append(nodes, &c)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Key < nodes[j].Key })
	return nodes, nil
}

// LoadNodes streams every node in (collection, key) order.
func (m *MockStore) LoadNodes(ctx context.Context, fn func(collection, key string, fields map[string]any) error) error {
	m.mu.RLock()
	nodes := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	m.mu.RUnlock()

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Path() < nodes[j].Path() })
	for _, n := range nodes {
		if err := fn(n.Collection, n.Key, n.Fields); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op for MockStore.
func (m *MockStore) Close() error {
	return nil
}
