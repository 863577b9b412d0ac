package wildcard

import (
	"errors"
	"strings"

	"github.com/gobwas/glob"
)

// ErrEmptyPattern is returned when compiling an empty pattern.
var ErrEmptyPattern = errors.New("wildcard: empty pattern")

// Pattern is a compiled wildcard pattern.
type Pattern struct {
	raw  string
	glob glob.Glob
}

// Compile parses a pattern. Literal segments are quoted so that only '*'
// keeps a special meaning.
func Compile(pattern string) (*Pattern, error) {
	if pattern == "" {
		return nil, ErrEmptyPattern
	}
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = glob.QuoteMeta(part)
	}
	g, err := glob.Compile(strings.Join(parts, "*"))
	if err != nil {
		return nil, err
	}
	return &Pattern{raw: pattern, glob: g}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// CompileAll compiles every pattern, stopping at the first error.
func CompileAll(patterns []string) ([]*Pattern, error) {
	out := make([]*Pattern, 0, len(patterns))
	for _, raw := range patterns {
		p, err := Compile(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Match reports whether name matches the whole pattern.
func (p *Pattern) Match(name string) bool {
	return p.glob.Match(name)
}

// String returns the pattern as written.
func (p *Pattern) String() string {
	return p.raw
}

// HasWildcard reports whether the pattern contains '*'.
func (p *Pattern) HasWildcard() bool {
	return HasWildcard(p.raw)
}

// HasWildcard reports whether pattern contains '*'.
func HasWildcard(pattern string) bool {
	return strings.Contains(pattern, "*")
}

// Match compiles pattern and matches name. Invalid patterns match nothing.
func Match(pattern, name string) bool {
	p, err := Compile(pattern)
	if err != nil {
		return false
	}
	return p.Match(name)
}

// MatchAny reports whether name matches at least one pattern.
func MatchAny(patterns []*Pattern, name string) bool {
	for _, p := range patterns {
		if p.Match(name) {
			return true
		}
	}
	return false
}

// Filter returns the names matching pattern, keeping their order.
func (p *Pattern) Filter(names []string) []string {
	var out []string
	for _, n := range names {
		if p.Match(n) {
			out = append(out, n)
		}
	}
	return out
}
