package query

import (
	"fmt"
	"strings"

	"github.com/cristianoliveira/tablesource/internal/search"
)

// Filter is a column filter: the field it applies to, the text the user
// searched for and how the two are matched.
type Filter struct {
	Field  string
	Search string
	// Predicate nil means search.DefaultPredicate().
	Predicate search.Predicate
}

// Active reports whether the filter has a search value.
func (f Filter) Active() bool {
	return f.Search != ""
}

// Matches applies the filter's predicate to a field value.
func (f Filter) Matches(value any) bool {
	pred := f.Predicate
	if pred == nil {
		pred = search.DefaultPredicate()
	}
	return pred(value, f.Search)
}

func (f Filter) validate() error {
	if strings.TrimSpace(f.Field) == "" {
		return ErrFieldRequired
	}
	return nil
}

// ParseFilter parses "field=search".
func ParseFilter(raw string) (Filter, error) {
	field, value, ok := strings.Cut(raw, "=")
	if !ok {
		return Filter{}, fmt.Errorf("invalid filter %q: expected field=search", raw)
	}
	f := Filter{Field: strings.TrimSpace(field), Search: value}
	if err := f.validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

// FilterMode combines filters on different fields.
type FilterMode string

const (
	// ModeAnd keeps rows matching every filter.
	ModeAnd FilterMode = "AND"
	// ModeOr keeps rows matching at least one active filter.
	ModeOr FilterMode = "OR"
)

// IsValid checks if the mode is valid.
func (m FilterMode) IsValid() bool {
	return m == ModeAnd || m == ModeOr
}

// FilterConf is the filter part of the query state.
type FilterConf struct {
	Filters []Filter
	Mode    FilterMode
}
