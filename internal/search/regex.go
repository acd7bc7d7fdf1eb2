package search

import (
	"regexp"
	"sync"

	"github.com/cristianoliveira/tablesource/internal/row"
)

// RegexProvider provides regex-based search.
// Matches if the stringified field value matches the regex pattern.
type RegexProvider struct {
	opts    Options
	cache   map[string]*regexp.Regexp
	cacheMu sync.RWMutex
}

// NewRegexProvider creates a new regex search provider.
func NewRegexProvider(opts ...Option) Provider {
	return &RegexProvider{
		opts:  applyOptions(opts),
		cache: make(map[string]*regexp.Regexp),
	}
}

// Match returns true if the field value matches the regex pattern.
// If the query is not a valid regex, it returns false for every value.
func (p *RegexProvider) Match(value any, query string) bool {
	if query == "" {
		return true
	}

	re, err := p.getRegex(query)
	if err != nil {
		return false
	}
	return re.MatchString(row.String(value))
}

// getRegex returns a compiled regex for the given pattern, using cache.
func (p *RegexProvider) getRegex(pattern string) (*regexp.Regexp, error) {
	p.cacheMu.RLock()
	re, ok := p.cache[pattern]
	p.cacheMu.RUnlock()

	if ok {
		return re, nil
	}

	// Compile with case-insensitive flag if configured
	expr := pattern
	if p.opts.CaseInsensitive {
		expr = "(?i)" + pattern
	}
	compiled, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}

	p.cacheMu.Lock()
	p.cache[pattern] = compiled
	p.cacheMu.Unlock()

	return compiled, nil
}

// Name returns the provider name.
func (p *RegexProvider) Name() string {
	return "regex"
}
