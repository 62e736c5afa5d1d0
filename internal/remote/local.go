// ABOUTME: In-process tree store that emits child events to subscribers on every write
// ABOUTME: Optionally hydrates from and writes through to a durable NodeStore

package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// NodeStore persists tree nodes. store.SQLiteStore and store.MockStore implement it.
type NodeStore interface {
	PutNode(ctx context.Context, collection, key string, fields map[string]any) error
	DeleteNode(ctx context.Context, collection, key string) error
	LoadNodes(ctx context.Context, fn func(collection, key string, fields map[string]any) error) error
}

// LocalTree is a Tree held in memory. Writes are applied under a single lock
// and fanned out to subscribers of the parent collection in write order.
type LocalTree struct {
	mu     sync.RWMutex
	nodes  map[string]map[string]map[string]any // collection -> key -> fields
	feeds  map[string]map[string]*Feed          // collection -> subID -> feed
	store  NodeStore
	logger *slog.Logger
	closed bool
}

// Option configures a LocalTree.
type Option func(*LocalTree)

// WithStore makes the tree durable: it is hydrated from s on open and every
// mutation is written to s before it is applied in memory.
func WithStore(s NodeStore) Option {
	return func(t *LocalTree) { t.store = s }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *LocalTree) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewLocalTree creates an empty tree, or one hydrated from the configured store.
func NewLocalTree(ctx context.Context, opts ...Option) (*LocalTree, error) {
	t := &LocalTree{
		nodes:  make(map[string]map[string]map[string]any),
		feeds:  make(map[string]map[string]*Feed),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "tree")

	if t.store != nil {
		count := 0
		err := t.store.LoadNodes(ctx, func(collection, key string, fields map[string]any) error {
			t.children(collection)[key] = fields
			count++
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("loading nodes: %w", err)
		}
		t.logger.Info("tree hydrated", "nodes", count)
	}

	return t, nil
}

// children returns the child map for a collection, creating it. Must be called with mu held.
func (t *LocalTree) children(collection string) map[string]map[string]any {
	c, ok := t.nodes[collection]
	if !ok {
		c = make(map[string]map[string]any)
		t.nodes[collection] = c
	}
	return c
}

// Subscribe registers a feed for the collection at path. Existing children are
// queued as Added events in key order before any live event. The feed is torn
// down when ctx is cancelled.
func (t *LocalTree) Subscribe(ctx context.Context, path string) (Subscription, error) {
	path = Join(path)
	if path == "" {
		return nil, ErrInvalidPath
	}

	feed := NewFeed(uuid.New().String(), path)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		feed.Close()
		return nil, ErrClosed
	}
	if _, ok := t.feeds[path]; !ok {
		t.feeds[path] = make(map[string]*Feed)
	}
	t.feeds[path][feed.ID()] = feed

	children := t.nodes[path]
	prev := ""
	for _, key := range sortedKeys(children) {
		feed.Push(Event{
			Kind:    EventAdded,
			Record:  Record{Key: key, Fields: CloneFields(children[key])},
			PrevKey: prev,
		})
		prev = key
	}
	t.mu.Unlock()

	t.logger.Debug("feed subscribed", "path", path, "sub_id", feed.ID())

	go func() {
		select {
		case <-ctx.Done():
			t.Unsubscribe(feed)
		case <-feed.Done():
		}
	}()

	return feed, nil
}

// Unsubscribe removes the feed and closes its channel.
func (t *LocalTree) Unsubscribe(sub Subscription) {
	if sub == nil {
		return
	}

	t.mu.Lock()
	feeds, ok := t.feeds[sub.Path()]
	if ok {
		if _, exists := feeds[sub.ID()]; exists {
			delete(feeds, sub.ID())
			if len(feeds) == 0 {
				delete(t.feeds, sub.Path())
			}
			t.logger.Debug("feed unsubscribed", "path", sub.Path(), "sub_id", sub.ID())
		}
	}
	t.mu.Unlock()

	if f, ok := sub.(*Feed); ok {
		f.Close()
	}
}

// ReadOnce returns a copy of the node's fields.
func (t *LocalTree) ReadOnce(ctx context.Context, path string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	collection, key, err := Split(path)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, ErrClosed
	}
	fields, ok := t.nodes[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	return CloneFields(fields), nil
}

// WriteField sets one field, creating the node when it does not exist yet.
func (t *LocalTree) WriteField(ctx context.Context, path, field string, value any) error {
	if field == "" {
		return fmt.Errorf("%w: empty field name", ErrInvalidPath)
	}
	return t.mutate(ctx, path, func(existing map[string]any) map[string]any {
		next := CloneFields(existing)
		if next == nil {
			next = make(map[string]any, 1)
		}
		next[field] = value
		return next
	})
}

// SetNode replaces the node's fields. An empty mapping removes the node.
func (t *LocalTree) SetNode(ctx context.Context, path string, fields map[string]any) error {
	return t.mutate(ctx, path, func(map[string]any) map[string]any {
		return CloneFields(fields)
	})
}

// RemoveNode deletes the node. Removing a missing node is a no-op.
func (t *LocalTree) RemoveNode(ctx context.Context, path string) error {
	return t.mutate(ctx, path, func(map[string]any) map[string]any {
		return nil
	})
}

// mutate applies fn to the node at path, persists the result, and emits the
// matching child event. A nil or empty result deletes the node.
func (t *LocalTree) mutate(ctx context.Context, path string, fn func(existing map[string]any) map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	collection, key, err := Split(path)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	children := t.children(collection)
	existing, existed := children[key]
	next := fn(existing)

	var ev Event
	switch {
	case len(next) == 0 && !existed:
		return nil
	case len(next) == 0:
		if t.store != nil {
			if err := t.store.DeleteNode(ctx, collection, key); err != nil {
				return fmt.Errorf("deleting node: %w", err)
			}
		}
		delete(children, key)
		ev = Event{Kind: EventRemoved, Record: Record{Key: key, Fields: existing}}
	default:
		if t.store != nil {
			if err := t.store.PutNode(ctx, collection, key, next); err != nil {
				return fmt.Errorf("writing node: %w", err)
			}
		}
		children[key] = next
		ev = Event{Kind: EventChanged, Record: Record{Key: key, Fields: next}}
		if !existed {
			ev.Kind = EventAdded
		}
	}
	ev.PrevKey = prevKey(children, key)

	for _, feed := range t.feeds[collection] {
		out := ev
		out.Record.Fields = CloneFields(ev.Record.Fields)
		feed.Push(out)
	}

	t.logger.Debug("node written",
		"collection", collection,
		"key", key,
		"event", ev.Kind.String(),
		"subscribers", len(t.feeds[collection]))

	return nil
}

// Close ends every feed. Further calls return ErrClosed.
func (t *LocalTree) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for path, feeds := range t.feeds {
		for id, feed := range feeds {
			feed.Close()
			delete(feeds, id)
		}
		delete(t.feeds, path)
	}
	t.closed = true
	t.logger.Debug("tree closed")
}

func sortedKeys(children map[string]map[string]any) []string {
	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// prevKey returns the greatest sibling key ordered before key.
func prevKey(children map[string]map[string]any, key string) string {
	prev := ""
	for k := range children {
		if k < key && k > prev {
			prev = k
		}
	}
	return prev
}
