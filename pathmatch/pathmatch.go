// Package pathmatch classifies request paths against Ant-style patterns.
//
// A single * matches within one path segment; ** matches any number of
// segments, including none. Patterns are always absolute ("/css/**").
package pathmatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of remembered path decisions.
const DefaultCacheSize = 1024

// ErrInvalidPattern is returned for malformed or relative patterns.
var ErrInvalidPattern = errors.New("invalid path pattern")

// Match reports whether path matches the Ant-style pattern. Malformed
// patterns never match.
func Match(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}

// Validate checks that pattern is absolute and well formed.
func Validate(pattern string) error {
	if !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("%w: %q must start with /", ErrInvalidPattern, pattern)
	}
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}
	return nil
}

// Rules selects the paths a pipeline stage applies to. A path is
// selected when it matches any Include pattern and no Exclude pattern.
// An empty Include list selects every path.
//
// Rules is safe for concurrent use.
type Rules struct {
	include []string
	exclude []string
	cache   *lru.Cache[string, bool]
}

// RulesOption configures Rules.
type RulesOption func(*rulesOptions)

type rulesOptions struct {
	cacheSize int
}

// WithCacheSize sets the number of path decisions kept in memory.
// Zero or negative disables the cache.
func WithCacheSize(n int) RulesOption {
	return func(o *rulesOptions) { o.cacheSize = n }
}

// NewRules validates the patterns and returns the compiled rule set.
func NewRules(include, exclude []string, opts ...RulesOption) (*Rules, error) {
	o := rulesOptions{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	for _, p := range include {
		if err := Validate(p); err != nil {
			return nil, fmt.Errorf("include: %w", err)
		}
	}
	for _, p := range exclude {
		if err := Validate(p); err != nil {
			return nil, fmt.Errorf("exclude: %w", err)
		}
	}

	r := &Rules{
		include: append([]string(nil), include...),
		exclude: append([]string(nil), exclude...),
	}
	if o.cacheSize > 0 {
		cache, err := lru.New[string, bool](o.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating decision cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// MustRules is like NewRules but panics on an invalid pattern. It is
// meant for package-level rule sets built from literals.
func MustRules(include, exclude []string, opts ...RulesOption) *Rules {
	r, err := NewRules(include, exclude, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// Applies reports whether path is selected by the rules. A nil Rules
// selects everything.
func (r *Rules) Applies(path string) bool {
	if r == nil {
		return true
	}
	if r.cache != nil {
		if v, ok := r.cache.Get(path); ok {
			return v
		}
	}
	v := r.decide(path)
	if r.cache != nil {
		r.cache.Add(path, v)
	}
	return v
}

func (r *Rules) decide(path string) bool {
	if len(r.include) > 0 && !matchAny(r.include, path) {
		return false
	}
	return !matchAny(r.exclude, path)
}

func matchAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if Match(p, path) {
			return true
		}
	}
	return false
}
