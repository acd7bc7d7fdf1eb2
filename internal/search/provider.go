// Package search provides the match strategies used as filter predicates.
// Every strategy implements Provider and matches a single field value against
// the search text a user typed into a column filter.
package search

import (
	"fmt"
	"sort"
	"strings"
)

// Provider defines the interface for search providers.
// Implementations can use different strategies (substring, regex, token-based, etc.)
// to match a field value against a search query.
type Provider interface {
	// Match returns true if the field value matches the search query.
	Match(value any, query string) bool

	// Name returns the provider name for identification and debugging.
	Name() string
}

// Predicate is the per-filter match function: the resolved field value and
// the filter's search text.
type Predicate func(value any, search string) bool

// Options holds configuration options for creating search providers.
type Options struct {
	CaseInsensitive bool // If true, searches ignore case sensitivity
}

// DefaultOptions returns the default search options.
func DefaultOptions() Options {
	return Options{
		CaseInsensitive: false,
	}
}

// Option is a function that modifies search options.
type Option func(*Options)

// WithCaseInsensitive sets case-insensitive search.
func WithCaseInsensitive(enabled bool) Option {
	return func(o *Options) {
		o.CaseInsensitive = enabled
	}
}

// applyOptions applies the given options to the options struct.
func applyOptions(opts []Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// AsPredicate adapts a provider to a Predicate.
func AsPredicate(p Provider) Predicate {
	return p.Match
}

// DefaultPredicate returns the predicate used when a filter does not set one:
// a case-insensitive substring match against the stringified field value.
func DefaultPredicate() Predicate {
	return defaultPredicate
}

var defaultPredicate = AsPredicate(NewSubstringProvider(WithCaseInsensitive(true)))

var constructors = map[string]func(...Option) Provider{
	"substring": NewSubstringProvider,
	"regex":     NewRegexProvider,
	"token":     NewTokenProvider,
	"exact":     NewExactProvider,
	"expr":      NewExprProvider,
}

// ByName returns a new provider for the given strategy name.
func ByName(name string, opts ...Option) (Provider, error) {
	ctor, ok := constructors[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown search provider %q: must be one of: %s", name, strings.Join(Names(), ", "))
	}
	return ctor(opts...), nil
}

// Names returns the registered provider names in sorted order.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
