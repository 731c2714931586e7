// Package memory provides key/value memory backends for agents.
//
// Store is the contract. InMemoryStore keeps entries in a process-local map
// and is the default; SQLiteStore persists JSON-encoded values in a SQLite
// file. Both support per-entry time to live and substring search over keys.
//
// Values written to SQLiteStore come back through encoding/json, so numbers
// are returned as float64 and structs as map[string]any.
package memory
