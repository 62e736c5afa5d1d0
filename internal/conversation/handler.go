// ABOUTME: Keeps a user's conversation cache in sync with the remote feed
// ABOUTME: Owns connect/disconnect and turns each child event into decode, reconcile, upsert, notify

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/coven-conversations/internal/remote"
)

// Config identifies whose conversations a Handler mirrors.
type Config struct {
	AppID         string
	CurrentUserID string
	Reconcile     ReconcilerConfig
}

// Subscription is the handle returned by Connect. It stays the same across
// repeated Connect calls until the handler disconnects.
type Subscription struct {
	id     string
	path   string
	feed   remote.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// ID returns the handle's unique identifier.
func (s *Subscription) ID() string { return s.id }

// Path returns the subscribed collection path.
func (s *Subscription) Path() string { return s.path }

// Done is closed when the event consumer has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Handler mirrors the remote conversation collection of one (app, user)
// pair. Events are applied by a single consumer goroutine per subscription,
// which is the only writer of the cache.
type Handler struct {
	tree          remote.Tree
	appID         string
	currentUserID string
	path          string

	cache      *Cache
	registry   *Registry
	reconciler *Reconciler
	logger     *slog.Logger

	mu  sync.Mutex
	sub *Subscription // nil while disconnected

	openMu           sync.RWMutex
	openConversation string
}

// NewHandler creates a disconnected handler with an empty cache.
func NewHandler(tree remote.Tree, cfg Config, logger *slog.Logger) (*Handler, error) {
	if tree == nil {
		return nil, errors.New("remote tree is required")
	}
	if cfg.AppID == "" {
		return nil, errors.New("app id is required")
	}
	if cfg.CurrentUserID == "" {
		return nil, errors.New("current user id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	path := CollectionPath(cfg.AppID, cfg.CurrentUserID)
	return &Handler{
		tree:          tree,
		appID:         cfg.AppID,
		currentUserID: cfg.CurrentUserID,
		path:          path,
		cache:         NewCache(),
		registry:      NewRegistry(logger),
		reconciler:    NewReconciler(tree, path, cfg.Reconcile, logger),
		logger:        logger.With("component", "conversations", "user_id", cfg.CurrentUserID),
	}, nil
}

// Path returns the remote collection path this handler mirrors.
func (h *Handler) Path() string {
	return h.path
}

// Connect upserts the given listeners and subscribes to the remote feed if
// not already connected. When already connected it returns the existing
// handle unchanged. Cancelling ctx ends the feed.
func (h *Handler) Connect(ctx context.Context, listeners ...Listener) (*Subscription, error) {
	for _, l := range listeners {
		h.registry.Upsert(l)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sub != nil {
		h.logger.Info("already connected", "sub_id", h.sub.id)
		return h.sub, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	feed, err := h.tree.Subscribe(runCtx, h.path)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribing to %s: %w", h.path, err)
	}

	sub := &Subscription{
		id:     uuid.New().String(),
		path:   h.path,
		feed:   feed,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	h.sub = sub

	go h.consume(runCtx, sub)

	h.logger.Info("connected", "path", h.path, "sub_id", sub.id)
	return sub, nil
}

// Disconnect tears down the feed and detaches every listener. The cache is
// kept. No event received after Disconnect returns is applied; an event
// already being dispatched may still finish. Safe to call when disconnected.
func (h *Handler) Disconnect() {
	h.mu.Lock()
	sub := h.sub
	h.sub = nil
	h.mu.Unlock()

	if sub != nil {
		sub.cancel()
		h.tree.Unsubscribe(sub.feed)
		h.logger.Info("disconnected", "sub_id", sub.id)
	}
	h.registry.RemoveAll()
}

// IsConnected reports whether a feed is active.
func (h *Handler) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sub != nil
}

// Close disconnects and waits for in-flight mark-read writes.
func (h *Handler) Close() {
	h.Disconnect()
	h.reconciler.Close()
}

// consume is the single writer of the cache for one subscription.
func (h *Handler) consume(ctx context.Context, sub *Subscription) {
	defer close(sub.done)
	defer h.release(sub)

	events := sub.feed.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				h.logger.Debug("feed closed", "sub_id", sub.id)
				return
			}
			if ctx.Err() != nil {
				return
			}
			if !h.apply(ctx, ev) {
				return
			}
		}
	}
}

// release returns the handler to Disconnected if sub ended on its own.
// Listeners are kept so a later Connect resumes delivery.
func (h *Handler) release(sub *Subscription) {
	h.mu.Lock()
	current := h.sub == sub
	if current {
		h.sub = nil
	}
	h.mu.Unlock()

	if current {
		sub.cancel()
		h.tree.Unsubscribe(sub.feed)
		h.logger.Warn("feed ended, handler disconnected", "sub_id", sub.id)
	}
}

// apply handles one event and reports whether the feed is still live.
func (h *Handler) apply(ctx context.Context, ev remote.Event) bool {
	switch ev.Kind {
	case remote.EventAdded:
		h.onAdded(ctx, ev.Record)
	case remote.EventChanged:
		h.onChanged(ev.Record)
	case remote.EventRemoved:
		h.onRemoved(ev.Record)
	case remote.EventMoved:
		h.logger.Debug("ignoring moved event", "conversation_id", ev.Record.Key, "prev_key", ev.PrevKey)
	case remote.EventCancelled:
		h.logger.Warn("feed cancelled by remote", "error", ev.Err)
		return false
	default:
		h.logger.Warn("ignoring unknown event", "kind", int(ev.Kind))
	}
	return true
}

func (h *Handler) onAdded(ctx context.Context, rec remote.Record) {
	conv, err := Decode(rec, h.currentUserID)
	if err != nil {
		h.logger.Warn("cannot decode added conversation", "key", rec.Key, "error", err)
		h.registry.NotifyAdded(nil, err)
		return
	}

	// My own outgoing message reflected back: already read by me.
	if conv.Sender == h.currentUserID {
		h.reconciler.MarkRead(ctx, *conv)
	}

	h.reconciler.Settle(*conv)
	h.cache.Upsert(*conv)
	h.logger.Debug("conversation added", "conversation_id", conv.ConversationID, "convers_with", conv.ConversWith)
	h.registry.NotifyAdded(conv, nil)
}

func (h *Handler) onChanged(rec remote.Record) {
	conv, err := Decode(rec, h.currentUserID)
	if err != nil {
		h.logger.Warn("cannot decode changed conversation", "key", rec.Key, "error", err)
		h.registry.NotifyChanged(nil, err)
		return
	}

	h.reconciler.Settle(*conv)
	h.cache.Upsert(*conv)
	h.logger.Debug("conversation changed", "conversation_id", conv.ConversationID)
	h.registry.NotifyChanged(conv, nil)
}

// onRemoved applies removals with the same decode/notify discipline as adds.
// TODO: confirm with product whether removals should reach listeners at all;
// the legacy client left this path inert.
func (h *Handler) onRemoved(rec remote.Record) {
	conv, err := Decode(rec, h.currentUserID)
	if err != nil {
		h.logger.Warn("cannot decode removed conversation", "key", rec.Key, "error", err)
		h.registry.NotifyRemoved(nil, err)
		return
	}

	existed := h.cache.Delete(conv.ConversationID)
	h.logger.Debug("conversation removed", "conversation_id", conv.ConversationID, "cached", existed)
	h.registry.NotifyRemoved(conv, nil)
}

// Conversations returns a freshly sorted snapshot, newest first.
func (h *Handler) Conversations() []Conversation {
	return h.cache.Sorted()
}

// GetByID returns the cached conversation with the given id.
func (h *Handler) GetByID(id string) (Conversation, bool) {
	return h.cache.Get(id)
}

// SetConversationRead marks a cached conversation read at the remote if it
// is still flagged new. It returns true when a write was dispatched.
func (h *Handler) SetConversationRead(ctx context.Context, id string) bool {
	conv, ok := h.cache.Get(id)
	if !ok {
		h.logger.Debug("mark-read for unknown conversation", "conversation_id", id)
		return false
	}
	return h.reconciler.MarkRead(ctx, conv)
}

// MarkReadPending reports whether a mark-read for the cached state of id
// has been dispatched and not yet observed.
func (h *Handler) MarkReadPending(id string) bool {
	conv, ok := h.cache.Get(id)
	return ok && h.reconciler.Pending(conv)
}

// AddListener registers l.
func (h *Handler) AddListener(l Listener) { h.registry.Add(l) }

// RemoveListener unregisters l.
func (h *Handler) RemoveListener(l Listener) { h.registry.Remove(l) }

// UpsertListener re-registers l, replacing an earlier registration.
func (h *Handler) UpsertListener(l Listener) { h.registry.Upsert(l) }

// RemoveAllListeners detaches every listener.
func (h *Handler) RemoveAllListeners() { h.registry.RemoveAll() }

// Listeners returns the registered listeners in registration order.
func (h *Handler) Listeners() []Listener { return h.registry.Listeners() }

// CurrentOpenConversationID returns the conversation currently displayed, if any.
func (h *Handler) CurrentOpenConversationID() string {
	h.openMu.RLock()
	defer h.openMu.RUnlock()
	return h.openConversation
}

// SetCurrentOpenConversationID records which conversation is displayed.
// The handler stores the value only; it does not act on it.
func (h *Handler) SetCurrentOpenConversationID(id string) {
	h.openMu.Lock()
	defer h.openMu.Unlock()
	h.openConversation = id
}
