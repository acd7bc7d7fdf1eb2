package search

import (
	"strings"
	"sync"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/cristianoliveira/tablesource/internal/row"
)

// ExprProvider treats the query as a boolean expr-lang expression.
// The environment binds "value" to the raw field value and "text" to its
// string form (lower-cased when case-insensitive), e.g. `value >= 30 && value < 40`
// or `text startsWith "al"`. Compile errors, runtime errors and non-bool
// results never match.
type ExprProvider struct {
	opts    Options
	cache   map[string]*exprvm.Program
	cacheMu sync.RWMutex
}

// NewExprProvider creates a new expression search provider.
func NewExprProvider(opts ...Option) Provider {
	return &ExprProvider{
		opts:  applyOptions(opts),
		cache: make(map[string]*exprvm.Program),
	}
}

// Match evaluates the query expression against the field value.
func (p *ExprProvider) Match(value any, query string) bool {
	if strings.TrimSpace(query) == "" {
		return true
	}

	program, err := p.getProgram(query)
	if err != nil {
		return false
	}

	text := row.String(value)
	if p.opts.CaseInsensitive {
		text = strings.ToLower(text)
	}
	out, err := exprlang.Run(program, map[string]any{
		"value": value,
		"text":  text,
	})
	if err != nil {
		return false
	}
	matched, ok := out.(bool)
	return ok && matched
}

// getProgram returns the compiled program for the expression, using cache.
func (p *ExprProvider) getProgram(expression string) (*exprvm.Program, error) {
	p.cacheMu.RLock()
	program, ok := p.cache[expression]
	p.cacheMu.RUnlock()

	if ok {
		return program, nil
	}

	program, err := exprlang.Compile(expression)
	if err != nil {
		return nil, err
	}

	p.cacheMu.Lock()
	p.cache[expression] = program
	p.cacheMu.Unlock()

	return program, nil
}

// Name returns the provider name.
func (p *ExprProvider) Name() string {
	return "expr"
}
