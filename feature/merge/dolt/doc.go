// Package dolt implements the versioned store collaborators over a Dolt SQL
// server. Dolt speaks the MySQL wire protocol, so the store is a plain GORM
// connection opened with the mysql driver.
//
// Reads use Dolt's system functions:
//
//	HASHOF(ref)                                   pin a branch to a commit
//	DOLT_MERGE_BASE(a, b)                         common ancestor
//	DOLT_DIFF_SUMMARY(from, to)                   changed tables
//	DOLT_DIFF(from, to, table)                    changed rows
//	SELECT ... FROM t AS OF 'ref'                 one row at a commit
//	DOLT_PREVIEW_MERGE_CONFLICTS_SUMMARY(a, b)    tables that would conflict
//	DOLT_PREVIEW_MERGE_CONFLICTS(a, b, table)     native conflict rows
//
// ApplyMerge runs on a single pinned connection: checkout, merge without
// commit, resolve native conflicts to the target side, apply the resolved
// rows, commit. Any failure aborts the merge, leaving the branch untouched.
package dolt
