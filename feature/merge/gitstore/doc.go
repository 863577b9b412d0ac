// Package gitstore implements the versioned store collaborators over a git
// repository through go-git.
//
// A table is a top-level directory and a document is a JSON object stored at
// <table>/<document id>.json. The content lives under one of the configured
// content field names, every other key is metadata.
//
// Merges are computed in memory: a three-way merge of the base, target and
// source trees keeps every one-sided change, the resolved writes are laid on
// top and the result is committed with both branch tips as parents. The target
// branch only moves if it still points at the commit that was analyzed. The
// worktree is left untouched.
package gitstore
