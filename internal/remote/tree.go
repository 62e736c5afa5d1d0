// ABOUTME: Abstract boundary to the remote tree-structured store and its child event feed
// ABOUTME: Defines Tree, Event, EventKind and path helpers shared by every transport

package remote

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by ReadOnce when no node exists at the path.
var ErrNotFound = errors.New("node not found")

// ErrClosed is returned when operating on a tree or subscription that has been shut down.
var ErrClosed = errors.New("tree closed")

// ErrInvalidPath is returned for empty paths or paths without a parent collection.
var ErrInvalidPath = errors.New("invalid path")

// EventKind identifies the kind of child event delivered on a subscription.
type EventKind int

const (
	EventAdded EventKind = iota + 1
	EventChanged
	EventRemoved
	EventMoved
	EventCancelled
)

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventChanged:
		return "changed"
	case EventRemoved:
		return "removed"
	case EventMoved:
		return "moved"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseEventKind is the inverse of EventKind.String. Unknown names return 0.
func ParseEventKind(s string) EventKind {
	switch s {
	case "added":
		return EventAdded
	case "changed":
		return EventChanged
	case "removed":
		return EventRemoved
	case "moved":
		return EventMoved
	case "cancelled":
		return EventCancelled
	default:
		return 0
	}
}

// Record is one child of a subscribed collection: its key and raw field mapping.
// Fields is nil when the remote node carries no value at all.
type Record struct {
	Key    string
	Fields map[string]any
}

// Event is a single child event. Cancelled events carry no record, only Err.
type Event struct {
	Kind    EventKind
	Record  Record
	PrevKey string // key of the preceding sibling, empty for the first child
	Err     error  // set on Cancelled
}

// Subscription is a live child-event feed for one collection.
// The Events channel is closed after Unsubscribe or when the feed ends.
type Subscription interface {
	ID() string
	Path() string
	Events() <-chan Event
}

// Tree is what the conversation layer needs from the remote store.
type Tree interface {
	// Subscribe starts a child-event feed for the collection at path.
	// Existing children are delivered first as Added events.
	Subscribe(ctx context.Context, path string) (Subscription, error)

	// Unsubscribe tears down a feed. It is safe to call more than once.
	Unsubscribe(sub Subscription)

	// ReadOnce returns the fields of the node at path, or ErrNotFound.
	ReadOnce(ctx context.Context, path string) (map[string]any, error)

	// WriteField sets a single field on the node at path, creating the node if needed.
	WriteField(ctx context.Context, path, field string, value any) error
}

// Writer is implemented by trees that also accept whole-node producer writes.
type Writer interface {
	SetNode(ctx context.Context, path string, fields map[string]any) error
	RemoveNode(ctx context.Context, path string) error
}

// ReadWriteTree combines the consumer and producer sides of a tree.
type ReadWriteTree interface {
	Tree
	Writer
}

// Join builds a path from segments, ignoring empty ones and stray slashes.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// Split returns the parent collection and the key of a node path.
func Split(path string) (collection, key string, err error) {
	path = strings.Trim(path, "/")
	i := strings.LastIndex(path, "/")
	if i <= 0 || i == len(path)-1 {
		return "", "", ErrInvalidPath
	}
	return path[:i], path[i+1:], nil
}

// CloneFields deep-copies a field mapping so callers cannot alias tree state.
func CloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneFields(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
