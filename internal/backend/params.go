package backend

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/cristianoliveira/tablesource/internal/query"
	"github.com/cristianoliveira/tablesource/internal/search"
	"github.com/cristianoliveira/tablesource/internal/source"
)

// DefaultPerPage is used when a request sets page without per_page.
const DefaultPerPage = 20

// ErrBadRequest wraps every parameter error.
var ErrBadRequest = errors.New("bad request")

// ParseQuery reads the query state from request parameters named by cfg,
// the inverse of source.BuildParams. Filters are matched with pred.
func ParseQuery(cfg source.ServerConfig, params url.Values, pred search.Predicate) (query.Snapshot, error) {
	snap := query.Snapshot{Mode: query.ModeAnd}

	if field := strings.TrimSpace(params.Get(cfg.SortFieldKey)); field != "" {
		dir, err := query.ParseDirection(params.Get(cfg.SortDirKey))
		if err != nil {
			return query.Snapshot{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		snap.Sorts = []query.Sort{{Field: field, Direction: dir}}
	}

	reserved := map[string]bool{
		cfg.SortFieldKey:  true,
		cfg.SortDirKey:    true,
		cfg.PagerPageKey:  true,
		cfg.PagerLimitKey: true,
	}
	prefix, suffix, _ := strings.Cut(cfg.FilterFieldKey, source.FieldPlaceholder)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if reserved[key] || len(key) <= len(prefix)+len(suffix) ||
			!strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
			continue
		}
		field := key[len(prefix) : len(key)-len(suffix)]
		snap.Filters = append(snap.Filters, query.Filter{Field: field, Search: params.Get(key), Predicate: pred})
	}

	page, hasPage, err := positiveInt(params, cfg.PagerPageKey)
	if err != nil {
		return query.Snapshot{}, err
	}
	perPage, hasPerPage, err := positiveInt(params, cfg.PagerLimitKey)
	if err != nil {
		return query.Snapshot{}, err
	}
	if hasPage || hasPerPage {
		if !hasPage {
			page = 1
		}
		if !hasPerPage {
			perPage = DefaultPerPage
		}
		snap.Paging = &query.Paging{Page: page, PerPage: perPage}
	}
	return snap, nil
}

func positiveInt(params url.Values, key string) (int, bool, error) {
	raw := strings.TrimSpace(params.Get(key))
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false, fmt.Errorf("%w: %s must be a positive integer, got %q", ErrBadRequest, key, raw)
	}
	return n, true, nil
}
