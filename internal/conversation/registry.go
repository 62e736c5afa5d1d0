// ABOUTME: Listener registry that fans conversation events out to subscribers
// ABOUTME: Delivers in registration order and isolates panicking listeners

package conversation

import (
	"fmt"
	"log/slog"
	"sync"
)

// Listener receives conversation events. Every call carries exactly one of a
// conversation or an error. Listeners are compared by identity, so
// implementations should be pointer types.
type Listener interface {
	ConversationAdded(conv *Conversation, err error)
	ConversationChanged(conv *Conversation, err error)
	ConversationRemoved(conv *Conversation, err error)
}

// ListenerFuncs adapts plain functions to Listener. Nil funcs are skipped.
type ListenerFuncs struct {
	Added   func(conv *Conversation, err error)
	Changed func(conv *Conversation, err error)
	Removed func(conv *Conversation, err error)
}

func (f *ListenerFuncs) ConversationAdded(conv *Conversation, err error) {
	if f.Added != nil {
		f.Added(conv, err)
	}
}

func (f *ListenerFuncs) ConversationChanged(conv *Conversation, err error) {
	if f.Changed != nil {
		f.Changed(conv, err)
	}
}

func (f *ListenerFuncs) ConversationRemoved(conv *Conversation, err error) {
	if f.Removed != nil {
		f.Removed(conv, err)
	}
}

type eventKind string

const (
	eventAdded   eventKind = "added"
	eventChanged eventKind = "changed"
	eventRemoved eventKind = "removed"
)

// Registry holds the set of listeners. A listener is registered at most once.
type Registry struct {
	mu        sync.RWMutex
	listeners []Listener
	logger    *slog.Logger
}

// NewRegistry creates a registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger.With("component", "listeners"),
	}
}

// Add registers l. Adding a listener that is already registered is a no-op.
func (r *Registry) Add(l Listener) {
	if l == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexLocked(l) >= 0 {
		r.logger.Debug("listener already registered", "listener", listenerName(l))
		return
	}
	r.listeners = append(r.listeners, l)
	r.logger.Debug("listener added", "listener", listenerName(l), "total", len(r.listeners))
}

// Remove unregisters l and reports whether it was registered.
func (r *Registry) Remove(l Listener) bool {
	if l == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(l)
	if i < 0 {
		return false
	}
	r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
	r.logger.Debug("listener removed", "listener", listenerName(l), "total", len(r.listeners))
	return true
}

// Upsert removes l if present and registers it again at the end.
func (r *Registry) Upsert(l Listener) {
	if l == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexLocked(l); i >= 0 {
		r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
	}
	r.listeners = append(r.listeners, l)
	r.logger.Debug("listener upserted", "listener", listenerName(l), "total", len(r.listeners))
}

// RemoveAll detaches every listener.
func (r *Registry) RemoveAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listeners = nil
	r.logger.Debug("all listeners removed")
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// Listeners returns the registered listeners in registration order.
func (r *Registry) Listeners() []Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Listener, len(r.listeners))
	copy(out, r.listeners)
	return out
}

// NotifyAdded delivers an added event to every listener.
func (r *Registry) NotifyAdded(conv *Conversation, err error) {
	r.notify(eventAdded, conv, err)
}

// NotifyChanged delivers a changed event to every listener.
func (r *Registry) NotifyChanged(conv *Conversation, err error) {
	r.notify(eventChanged, conv, err)
}

// NotifyRemoved delivers a removed event to every listener.
func (r *Registry) NotifyRemoved(conv *Conversation, err error) {
	r.notify(eventRemoved, conv, err)
}

func (r *Registry) notify(kind eventKind, conv *Conversation, err error) {
	if conv == nil && err == nil {
		r.logger.Warn("dropping empty notification", "event", kind)
		return
	}
	if err != nil {
		conv = nil
	}

	// Copy under read lock so listeners may (un)register while being notified
	r.mu.RLock()
	targets := make([]Listener, len(r.listeners))
	copy(targets, r.listeners)
	r.mu.RUnlock()

	for _, l := range targets {
		var value *Conversation
		if conv != nil {
			c := *conv
			value = &c
		}
		r.deliver(kind, l, value, err)
	}
}

// deliver invokes one listener, recovering from panics so fan-out always completes.
func (r *Registry) deliver(kind eventKind, l Listener, conv *Conversation, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("listener panicked",
				"event", kind,
				"listener", listenerName(l),
				"panic", fmt.Sprint(p))
		}
	}()

	switch kind {
	case eventAdded:
		l.ConversationAdded(conv, err)
	case eventChanged:
		l.ConversationChanged(conv, err)
	case eventRemoved:
		l.ConversationRemoved(conv, err)
	}
}

// indexLocked must be called with mu held.
func (r *Registry) indexLocked(l Listener) int {
	for i, existing := range r.listeners {
		if existing == l {
			return i
		}
	}
	return -1
}

func listenerName(l Listener) string {
	return fmt.Sprintf("%T@%p", l, l)
}
