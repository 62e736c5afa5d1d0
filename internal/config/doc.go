// Package config handles configuration loading for coven-conversations.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by the .toml
// extension) with environment variable expansion, defaults, and validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_CONVERSATIONS_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/conversations.yaml
//  3. ~/.config/coven/conversations.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${COVEN_JWT_SECRET}"
//
// Unset variables expand to an empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	reconcile:
//	  timeout: "10s"
//	  dedupe_window: "30s"
//
// # Example
//
//	app_id: "chat21"
//	user_id: "u1"
//
//	remote:
//	  addr: "localhost:50061"
//	  token: "${COVEN_TREE_TOKEN}"
//	  insecure: true
//
//	server:
//	  grpc_addr: "127.0.0.1:50061"
//
//	database:
//	  driver: "sqlite"      # or "sqlite3" for the cgo driver
//	  path: "./conversations.db"
//
//	auth:
//	  jwt_secret: "${COVEN_JWT_SECRET}"
//	  token_ttl: "24h"
//
//	logging:
//	  level: "info"         # debug, info, warn, error
//	  format: "text"        # text or json
//
// Client commands need app_id, user_id, and remote.addr (ValidateClient).
// The serve command needs server and database settings (ValidateServer);
// without auth.jwt_secret it runs unauthenticated.
package config
