// Package storage reads foreign store snapshots from S3-compatible object
// storage through the MinIO client.
//
// Snapshots are kept in one bucket under a key prefix, either as a single
// database file (team/chroma.sqlite3) or as a directory holding one. The
// import workflow downloads them with GetObject before opening them
// read-only, and the integrity checks list them with ListKeys.
//
// The Client interface is the subset of *minio.Client in use, so tests can
// substitute the testify mock in core/storage/mocks:
//
//	client := new(mocks.Client)
//	client.ExpectListing("knowledge", "foreign/", "foreign/team/chroma.sqlite3")
//	client.ExpectObject("knowledge", "foreign/team/chroma.sqlite3", body)
package storage
