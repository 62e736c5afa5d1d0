// Package conversation keeps an in-memory mirror of one user's remote
// conversation collection and fans changes out to listeners.
//
// # Overview
//
// The remote tree holds each user's conversations under
//
//	apps/{appId}/users/{userId}/conversations/{conversationId}
//
// A Handler subscribes to that collection and turns every child event into:
//
//  1. Decode the raw record into a Conversation
//  2. If the current user sent it, dispatch a mark-read (add events only)
//  3. Upsert into the Cache, keeping newest-first order
//  4. Notify registered listeners
//
// # Decoding
//
// Decode reads each field independently. Missing or mistyped optional fields
// are left at their zero values. A record without a key, without any fields,
// or without a recipient fails with a *DecodeError, which is delivered to
// listeners in place of a value.
//
// The derived ConversWith/ConversWithFullName fields name the other
// participant: the sender when the current user is the recipient, otherwise
// the recipient.
//
// # Listeners
//
// Listeners receive ConversationAdded, ConversationChanged and
// ConversationRemoved calls, each with exactly one of a conversation or an
// error. Delivery follows registration order. A panicking listener is logged
// and skipped; the rest still receive the event.
//
// # Read State
//
// When a conversation I sent arrives still flagged is_new, the Reconciler
// reads the remote node and, only if it still exists, writes is_new=false.
// Failures are reported to an ErrorReporter and never retried.
//
// # Lifecycle
//
//	h, _ := conversation.NewHandler(tree, conversation.Config{AppID: "chat21", CurrentUserID: "u1"}, logger)
//	sub, _ := h.Connect(ctx, listener)
//	...
//	h.Disconnect()
//
// Connect is idempotent. Disconnect drops the feed and all listeners but
// keeps the cache, so Conversations still answers from the last known state.
package conversation
