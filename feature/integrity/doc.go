// Package integrity provides store diagnostics.
//
// # Checks Provided
//
//   - Schema: every document table of the versioned store has a key column; tables without a
//     content column are reported as fields_only. Internal tables matching the engine's excluded
//     patterns are listed and skipped.
//   - Structure: the storage bucket exists; lists the foreign store snapshots under the foreign prefix.
//   - Collections: opens a foreign store and reports collections whose configuration is unreadable
//     (they cannot be imported into an existing collection) or lacks a type tag (legacy).
//
// # HTTP Endpoints
//
//   - GET /integrity : Runs all configured checks.
//   - GET /integrity/schema
//   - GET /integrity/structure
//   - GET /integrity/collections?foreign_path=... or ?foreign_object=...
package integrity
