package source

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/cristianoliveira/tablesource/internal/query"
)

// Valid reports whether the remote endpoint can serve snap: at most one
// active filter, at most one sort entry, and when both are present they
// target the same field.
func Valid(snap query.Snapshot) bool {
	filters := snap.ActiveFilters()
	if len(filters) > 1 || len(snap.Sorts) > 1 {
		return false
	}
	if len(filters) == 1 && len(snap.Sorts) == 1 {
		return filters[0].Field == snap.Sorts[0].Field
	}
	return true
}

// BuildParams maps snap onto request parameters named by cfg.
func BuildParams(cfg ServerConfig, snap query.Snapshot) url.Values {
	params := url.Values{}
	for _, s := range snap.Sorts {
		params.Set(cfg.SortFieldKey, s.Field)
		params.Set(cfg.SortDirKey, s.Direction.String())
	}
	for _, f := range snap.ActiveFilters() {
		params.Set(FilterParam(cfg.FilterFieldKey, f.Field), f.Search)
	}
	if snap.Paging != nil {
		params.Set(cfg.PagerPageKey, strconv.Itoa(snap.Paging.Page))
		params.Set(cfg.PagerLimitKey, strconv.Itoa(snap.Paging.PerPage))
	}
	return params
}

// FilterParam expands the filter key template for field.
func FilterParam(template, field string) string {
	return strings.ReplaceAll(template, FieldPlaceholder, field)
}
