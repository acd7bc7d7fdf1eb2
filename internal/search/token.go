package search

import (
	"strings"

	"github.com/cristianoliveira/tablesource/internal/row"
)

// TokenProvider provides token-based search.
// The query is split into whitespace-separated tokens and every token must
// be contained in the field value (AND logic). Tokens prefixed with "-" must
// not be contained.
type TokenProvider struct {
	opts Options
}

// NewTokenProvider creates a new token search provider.
func NewTokenProvider(opts ...Option) Provider {
	return &TokenProvider{
		opts: applyOptions(opts),
	}
}

// Match returns true if all tokens match the field value.
func (p *TokenProvider) Match(value any, query string) bool {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return true
	}

	fieldValue := row.String(value)
	if p.opts.CaseInsensitive {
		fieldValue = strings.ToLower(fieldValue)
	}

	for _, token := range tokens {
		if p.opts.CaseInsensitive {
			token = strings.ToLower(token)
		}

		negated := false
		if len(token) > 1 && strings.HasPrefix(token, "-") {
			negated = true
			token = token[1:]
		}

		if strings.Contains(fieldValue, token) == negated {
			return false
		}
	}

	// All tokens matched
	return true
}

// Name returns the provider name.
func (p *TokenProvider) Name() string {
	return "token"
}
