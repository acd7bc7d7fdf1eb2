// Package query models the query state held by a data source: the active
// filters, the sort order and the paging window. It performs no I/O; data
// sources own a State and mutate it only through their setters.
package query

import (
	"errors"
)

var (
	// ErrFieldRequired indicates a filter or sort entry without a field.
	ErrFieldRequired = errors.New("field is required")
	// ErrInvalidDirection indicates a sort direction other than ASC or DESC.
	ErrInvalidDirection = errors.New("invalid sort direction")
	// ErrInvalidPaging indicates a non-positive page or page size.
	ErrInvalidPaging = errors.New("page and perPage must be positive integers")
	// ErrInvalidMode indicates an unknown filter mode.
	ErrInvalidMode = errors.New("invalid filter mode")
)

// Paging is the requested page window. Pages start at 1.
type Paging struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Bounds returns the [start, end) slice bounds of the page within n rows.
// A page past the end yields start == end == n.
func (p Paging) Bounds(n int) (int, int) {
	if p.Page <= 0 || p.PerPage <= 0 || p.Page-1 >= p.Pages(n) {
		return n, n
	}
	// Page-1 < Pages(n), so the product stays below n
	start := (p.Page - 1) * p.PerPage
	end := n
	if n-start > p.PerPage {
		end = start + p.PerPage
	}
	return start, end
}

// Pages returns how many pages n rows fill.
func (p Paging) Pages(n int) int {
	if p.PerPage <= 0 || n <= 0 {
		return 0
	}
	pages := n / p.PerPage
	if n%p.PerPage != 0 {
		pages++
	}
	return pages
}

func (p Paging) validate() error {
	if p.Page <= 0 || p.PerPage <= 0 {
		return ErrInvalidPaging
	}
	return nil
}

// Snapshot is a copy of the whole query state.
type Snapshot struct {
	Filters []Filter
	Mode    FilterMode
	Sorts   []Sort
	Paging  *Paging
}

// ActiveFilters returns the filters with a non-empty search value.
func (s Snapshot) ActiveFilters() []Filter {
	active := make([]Filter, 0, len(s.Filters))
	for _, f := range s.Filters {
		if f.Active() {
			active = append(active, f)
		}
	}
	return active
}

// State is the mutable query state. It is not safe for concurrent use;
// the owning data source serializes access.
type State struct {
	filters []Filter
	mode    FilterMode
	sorts   []Sort
	paging  *Paging
}

// NewState returns an empty state in AND mode.
func NewState() *State {
	return &State{mode: ModeAnd}
}

// UpsertFilter replaces the filter for f.Field in place, or appends it.
func (s *State) UpsertFilter(f Filter) error {
	if err := f.validate(); err != nil {
		return err
	}
	for i := range s.filters {
		if s.filters[i].Field == f.Field {
			s.filters[i] = f
			return nil
		}
	}
	s.filters = append(s.filters, f)
	return nil
}

// RemoveFilter drops the filter for field and reports whether one existed.
func (s *State) RemoveFilter(field string) bool {
	for i := range s.filters {
		if s.filters[i].Field == field {
			s.filters = append(s.filters[:i:i], s.filters[i+1:]...)
			return true
		}
	}
	return false
}

// ClearFilters drops every filter and resets the mode to AND.
func (s *State) ClearFilters() {
	s.filters = nil
	s.mode = ModeAnd
}

// ReplaceFilters swaps the whole filter set. Repeated fields collapse onto
// the first position with the last value.
func (s *State) ReplaceFilters(filters []Filter, mode FilterMode) error {
	if mode == "" {
		mode = ModeAnd
	}
	if !mode.IsValid() {
		return ErrInvalidMode
	}
	next := &State{}
	for _, f := range filters {
		if err := next.UpsertFilter(f); err != nil {
			return err
		}
	}
	s.filters = next.filters
	s.mode = mode
	return nil
}

// SetSorts replaces the sort description. Repeated fields collapse onto the
// first position with the last value.
func (s *State) SetSorts(sorts []Sort) error {
	next := make([]Sort, 0, len(sorts))
	index := make(map[string]int, len(sorts))
	for _, entry := range sorts {
		normalized, err := entry.normalize()
		if err != nil {
			return err
		}
		if i, ok := index[normalized.Field]; ok {
			next[i] = normalized
			continue
		}
		index[normalized.Field] = len(next)
		next = append(next, normalized)
	}
	s.sorts = next
	return nil
}

// SetPaging sets the page window.
func (s *State) SetPaging(page, perPage int) error {
	p := Paging{Page: page, PerPage: perPage}
	if err := p.validate(); err != nil {
		return err
	}
	s.paging = &p
	return nil
}

// SetPage moves to another page keeping the page size. Paging must be set.
func (s *State) SetPage(page int) error {
	if s.paging == nil || page <= 0 {
		return ErrInvalidPaging
	}
	s.paging.Page = page
	return nil
}

// ResetPage moves back to the first page when paging is set.
func (s *State) ResetPage() {
	if s.paging != nil {
		s.paging.Page = 1
	}
}

// ClearPaging removes the page window.
func (s *State) ClearPaging() {
	s.paging = nil
}

// Filters returns a copy of the filters in insertion order.
func (s *State) Filters() []Filter {
	out := make([]Filter, len(s.filters))
	copy(out, s.filters)
	return out
}

// FilterConf returns a copy of the filters and the mode.
func (s *State) FilterConf() FilterConf {
	return FilterConf{Filters: s.Filters(), Mode: s.mode}
}

// Mode returns the filter mode.
func (s *State) Mode() FilterMode {
	return s.mode
}

// Sorts returns a copy of the sort entries.
func (s *State) Sorts() []Sort {
	out := make([]Sort, len(s.sorts))
	copy(out, s.sorts)
	return out
}

// Paging returns the page window and whether one is set.
func (s *State) Paging() (Paging, bool) {
	if s.paging == nil {
		return Paging{}, false
	}
	return *s.paging, true
}

// PagingRef returns a copy of the page window, nil when unset.
func (s *State) PagingRef() *Paging {
	if s.paging == nil {
		return nil
	}
	p := *s.paging
	return &p
}

// Snapshot returns a copy of the whole state.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Filters: s.Filters(),
		Mode:    s.mode,
		Sorts:   s.Sorts(),
		Paging:  s.PagingRef(),
	}
}

// Reset clears filters, sorts and paging.
func (s *State) Reset() {
	s.ClearFilters()
	s.sorts = nil
	s.paging = nil
}
