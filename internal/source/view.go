package source

import (
	"sort"

	"golang.org/x/text/collate"

	"github.com/cristianoliveira/tablesource/internal/query"
	"github.com/cristianoliveira/tablesource/internal/row"
)

// FilterRows returns the rows matching the active filters. In AND mode a row
// must match every active filter, in OR mode at least one. Inactive filters
// (empty search) are ignored. The input is not modified.
func FilterRows(rows []row.Row, filters []query.Filter, mode query.FilterMode) []row.Row {
	active := make([]query.Filter, 0, len(filters))
	for _, f := range filters {
		if f.Active() {
			active = append(active, f)
		}
	}
	if len(active) == 0 {
		return row.Clone(rows)
	}

	result := make([]row.Row, 0, len(rows))
	for _, r := range rows {
		if matchRow(r, active, mode) {
			result = append(result, r)
		}
	}
	return result
}

func matchRow(r row.Row, filters []query.Filter, mode query.FilterMode) bool {
	for _, f := range filters {
		value, _ := row.Get(r, f.Field)
		matched := f.Matches(value)
		if mode == query.ModeOr && matched {
			return true
		}
		if mode != query.ModeOr && !matched {
			return false
		}
	}
	return mode != query.ModeOr
}

// SortRows stable-sorts rows in place, applying the entries in order: later
// entries only break ties left by earlier ones.
func SortRows(rows []row.Row, sorts []query.Sort, c *collate.Collator) {
	if len(sorts) == 0 || len(rows) < 2 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return compareRows(rows[i], rows[j], sorts, c) < 0
	})
}

func compareRows(a, b row.Row, sorts []query.Sort, c *collate.Collator) int {
	for _, s := range sorts {
		va, _ := row.Get(a, s.Field)
		vb, _ := row.Get(b, s.Field)

		var cmp int
		if s.Compare != nil {
			cmp = s.Compare(va, vb)
		} else {
			cmp = row.Compare(va, vb, s.Type, c)
		}
		if s.Direction == query.Desc {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp
		}
	}
	return 0
}

// PageRows returns the page window of rows. nil paging returns rows as is;
// a page past the end returns an empty, non-nil slice.
func PageRows(rows []row.Row, paging *query.Paging) []row.Row {
	if paging == nil {
		return rows
	}
	start, end := paging.Bounds(len(rows))
	return rows[start:end:end]
}

// Apply runs filter, then sort, then paging over rows and returns the page
// together with the number of rows that matched before paging.
func Apply(rows []row.Row, snap query.Snapshot, c *collate.Collator) ([]row.Row, int) {
	filtered := FilterRows(rows, snap.Filters, snap.Mode)
	SortRows(filtered, snap.Sorts, c)
	return PageRows(filtered, snap.Paging), len(filtered)
}
