package search

import (
	"strings"

	"github.com/cristianoliveira/tablesource/internal/row"
)

// SubstringProvider provides substring-based search.
// Matches if the stringified field value contains the query as a substring.
type SubstringProvider struct {
	opts Options
}

// NewSubstringProvider creates a new substring search provider.
func NewSubstringProvider(opts ...Option) Provider {
	return &SubstringProvider{
		opts: applyOptions(opts),
	}
}

// Match returns true if the field value contains the query substring.
func (p *SubstringProvider) Match(value any, query string) bool {
	if query == "" {
		return true
	}

	fieldValue := row.String(value)
	if p.opts.CaseInsensitive {
		return strings.Contains(strings.ToLower(fieldValue), strings.ToLower(query))
	}
	return strings.Contains(fieldValue, query)
}

// Name returns the provider name.
func (p *SubstringProvider) Name() string {
	return "substring"
}

// ExactProvider matches when the stringified field value equals the query.
type ExactProvider struct {
	opts Options
}

// NewExactProvider creates a new exact-match search provider.
func NewExactProvider(opts ...Option) Provider {
	return &ExactProvider{
		opts: applyOptions(opts),
	}
}

// Match returns true if the field value equals the query.
func (p *ExactProvider) Match(value any, query string) bool {
	if query == "" {
		return true
	}
	if p.opts.CaseInsensitive {
		return strings.EqualFold(row.String(value), query)
	}
	return row.String(value) == query
}

// Name returns the provider name.
func (p *ExactProvider) Name() string {
	return "exact"
}
