// Package wildcard matches collection and table names against patterns in
// which '*' stands for any run of characters, including none.
//
// Patterns are anchored at both ends and case-sensitive. Every other character,
// including the glob metacharacters '?', '[' and '{', matches itself.
//
//	p, _ := wildcard.Compile("docs_*")
//	p.Match("docs_v2")   // true
//	p.Match("old_docs")  // false
package wildcard
