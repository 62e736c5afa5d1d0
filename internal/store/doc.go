// Package store provides durable storage for remote tree nodes using SQLite.
//
// # Architecture
//
// A LocalTree keeps the whole tree in memory and writes every mutation
// through a Store before applying it. On startup the tree is hydrated with
// LoadNodes. SQLiteStore implements Store; MockStore is an in-memory
// stand-in for tests.
//
// # Data Model
//
// Each row is one child of a collection:
//
//	collection  apps/chat21/users/u1/conversations
//	key         c1
//	fields_json {"sender":"u1","is_new":true,"timestamp":1700000000000}
//
// Numbers are decoded as json.Number so integer fields keep their precision.
//
// # Drivers
//
// Two database/sql drivers are registered:
//
//   - "sqlite": modernc.org/sqlite, pure Go (default)
//   - "sqlite3": github.com/mattn/go-sqlite3, requires cgo
//
// File databases run in WAL mode. ":memory:" is limited to one connection.
//
// # Error Handling
//
//   - ErrNotFound: the requested node does not exist
package store
