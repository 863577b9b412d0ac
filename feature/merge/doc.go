// Package merge previews and executes merges of one branch of a versioned
// knowledge store into another.
//
// The store is picked by vcs.backend: a Dolt SQL server (package dolt) or a
// git repository of JSON documents (package gitstore). Ours is always the
// target branch and theirs the source.
//
// # HTTP Endpoints
//
//   - POST /merge/preview : Lists the conflicts a merge would raise.
//   - POST /merge/execute : Resolves conflicts and records the merge as one commit.
package merge
