// ABOUTME: Read-state reconciler that clears the unread flag on conversations at the remote
// ABOUTME: Best-effort side channel: failures go to an ErrorReporter, never to listeners

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/2389/coven-conversations/internal/dedupe"
	"github.com/2389/coven-conversations/internal/remote"
)

// Reconciliation steps reported in ReconciliationError.Op.
const (
	OpRead  = "read"
	OpWrite = "write"
)

// ReconciliationError reports a failed mark-read precondition read or write.
type ReconciliationError struct {
	ConversationID string
	Op             string
	Err            error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("cannot mark conversation %q as read (%s): %v", e.ConversationID, e.Op, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// ErrorReporter is the observability sink for reconciliation failures.
type ErrorReporter interface {
	Report(ctx context.Context, err error)
}

// LogReporter reports errors through a slog.Logger.
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) Report(ctx context.Context, err error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.ErrorContext(ctx, "reconciliation failed", "error", err)
}

// ReconcilerConfig tunes the reconciler. Zero values select defaults.
type ReconcilerConfig struct {
	Timeout      time.Duration // per remote call, default 10s
	DedupeWindow time.Duration // upper bound on a held claim, default 30s
	DedupeSize   int           // default 1024
	Reporter     ErrorReporter // default LogReporter
}

const (
	defaultReconcileTimeout = 10 * time.Second
	defaultDedupeWindow     = 30 * time.Second
	defaultDedupeSize       = 1024
)

// Reconciler issues conditional is_new=false writes against the remote
// collection. Each write runs on its own goroutine and is never awaited by
// the caller.
type Reconciler struct {
	tree       remote.Tree
	collection string
	timeout    time.Duration
	reporter   ErrorReporter
	recent     *dedupe.Cache
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewReconciler creates a reconciler for the collection at path. Pass nil logger for default.
func NewReconciler(tree remote.Tree, collection string, cfg ReconcilerConfig, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reconciler")

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultReconcileTimeout
	}
	if cfg.DedupeWindow <= 0 {
		cfg.DedupeWindow = defaultDedupeWindow
	}
	if cfg.DedupeSize <= 0 {
		cfg.DedupeSize = defaultDedupeSize
	}
	if cfg.Reporter == nil {
		cfg.Reporter = LogReporter{Logger: logger}
	}

	return &Reconciler{
		tree:       tree,
		collection: collection,
		timeout:    cfg.Timeout,
		reporter:   cfg.Reporter,
		recent:     dedupe.New(cfg.DedupeWindow, cfg.DedupeSize),
		logger:     logger,
	}
}

// MarkRead dispatches a mark-read for conv if it is still flagged new.
// It returns true when a write was dispatched. The outcome is only visible
// through the remote feed and the ErrorReporter.
//
// A claim on (id, timestamp) suppresses repeats of the same unread state
// until Settle sees it read, a write fails, or the dedupe window lapses.
// A newer message carries a newer timestamp and is never suppressed.
func (r *Reconciler) MarkRead(ctx context.Context, conv Conversation) bool {
	if !conv.IsNew {
		return false
	}
	id := conv.ConversationID
	key := claimKey(conv)
	if !r.recent.Claim(key) {
		r.logger.Debug("mark-read already pending", "conversation_id", id, "timestamp", conv.Timestamp)
		return false
	}

	// The write outlives the caller; only the per-call timeout bounds it.
	bg := context.WithoutCancel(ctx)

	r.wg.Go(func() {
		if err := r.markRead(bg, id); err != nil {
			r.recent.Release(key)
			r.reporter.Report(bg, err)
		}
	})
	return true
}

// markRead writes is_new=false only if the node still exists, so a removed
// conversation is not resurrected as a node holding nothing but the flag.
func (r *Reconciler) markRead(ctx context.Context, id string) error {
	path := remote.Join(r.collection, id)

	readCtx, cancel := context.WithTimeout(ctx, r.timeout)
	_, err := r.tree.ReadOnce(readCtx, path)
	cancel()
	if errors.Is(err, remote.ErrNotFound) {
		r.logger.Debug("conversation node gone, skipping mark-read", "conversation_id", id)
		return nil
	}
	if err != nil {
		return &ReconciliationError{ConversationID: id, Op: OpRead, Err: err}
	}

	writeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.tree.WriteField(writeCtx, path, FieldIsNew, false); err != nil {
		return &ReconciliationError{ConversationID: id, Op: OpWrite, Err: err}
	}

	r.logger.Debug("conversation marked read", "conversation_id", id)
	return nil
}

// Settle releases the claim for conv once the mirror shows it read, so a
// later unread flip of the same message can be marked again.
func (r *Reconciler) Settle(conv Conversation) {
	if conv.IsNew {
		return
	}
	r.recent.Release(claimKey(conv))
}

// Pending reports whether a mark-read for conv's current state is held.
func (r *Reconciler) Pending(conv Conversation) bool {
	return conv.IsNew && r.recent.Claimed(claimKey(conv))
}

func claimKey(conv Conversation) string {
	return conv.ConversationID + "@" + strconv.FormatInt(conv.Timestamp, 10)
}

// Wait blocks until every dispatched mark-read has finished.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// Close waits for in-flight writes and releases the dedupe window.
func (r *Reconciler) Close() {
	r.wg.Wait()
	r.recent.Close()
}
