// Package treerpc serves a remote tree over gRPC and consumes it again.
//
// The service is coven.conversations.v1.Tree. Its messages are
// google.protobuf.Struct values, so there are no generated stubs:
//
//	ReadOnce   {path}                -> Struct of node fields
//	WriteField {path, field, value}  -> Empty
//	SetNode    {path, fields}        -> Empty
//	RemoveNode {path}                -> Empty
//	Subscribe  {path}                -> stream of {kind, key, prev_key, fields, error}
//
// Numbers cross the wire as doubles. Paths must fall under the caller's
// apps/{app}/users/{user} subtree, taken from the bearer token.
//
// Client implements remote.ReadWriteTree, so a conversation.Handler can run
// against a server in another process.
package treerpc
