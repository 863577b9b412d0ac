// Package bookkeeping persists the facts the conflict engine reads but never
// writes: documents deleted on purpose from the local store, and decisions taken
// by earlier imports.
//
// The store is a sqlite file opened through GORM. Writers take an exclusive
// file lock (gofrs/flock) next to the database so that a CLI run and a running
// server never interleave their updates; readers do not lock.
//
// # Usage
//
//	store, err := bookkeeping.Open(cfg.Bookkeeping, log)
//	deleted, err := store.IsLocallyDeleted(ctx, "doc-42", "notes")
//	err = store.RecordDeletion(ctx, "notes", "doc-42", "removed by user")
package bookkeeping
