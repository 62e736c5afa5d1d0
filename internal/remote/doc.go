// Package remote defines the boundary to the push-based tree store that holds
// each user's conversation collection.
//
// # Tree
//
// A Tree exposes four operations:
//
//   - Subscribe(ctx, collection): child events for one collection
//   - Unsubscribe(sub): tear the feed down
//   - ReadOnce(ctx, node): one-shot read of a node's fields
//   - WriteField(ctx, node, field, value): single-field write
//
// Paths are slash-separated, e.g. apps/chat/users/u1/conversations/c1.
// The parent of a node path is its collection.
//
// # Events
//
// Subscriptions deliver Added, Changed, Removed, Moved and Cancelled events.
// Existing children are replayed as Added before live events. Events for the
// same key arrive in write order.
//
// # Implementations
//
// LocalTree keeps the tree in memory, optionally backed by a NodeStore.
// treerpc.Client reaches a LocalTree served by treerpc.Server over gRPC.
package remote
