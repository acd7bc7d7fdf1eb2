// Package row provides the row model shared by every data source: a decoded
// JSON object, dotted-path field access and type-coerced comparison.
package row

import (
	"strings"

	"github.com/spf13/cast"
)

// Row is a single table row keyed by column name.
type Row map[string]any

// Get resolves a dotted field path such as "user.address.city" against r.
func Get(r Row, path string) (any, bool) {
	if r == nil {
		return nil, false
	}
	return lookup(map[string]any(r), path)
}

// Lookup resolves a dotted path against an arbitrary decoded JSON value.
// An empty path returns v itself. def is returned when the path does not resolve.
func Lookup(v any, path string, def any) any {
	if path == "" {
		return v
	}
	found, ok := lookup(v, path)
	if !ok {
		return def
	}
	return found
}

func lookup(v any, path string) (any, bool) {
	cur := v
	for _, part := range strings.Split(path, ".") {
		var m map[string]any
		switch typed := cur.(type) {
		case map[string]any:
			m = typed
		case Row:
			m = typed
		default:
			return nil, false
		}
		next, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// String stringifies a field value. nil becomes the empty string.
func String(v any) string {
	if v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}

// Clone returns a new slice holding the same rows.
func Clone(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	copy(out, rows)
	return out
}

// FromAny converts a decoded JSON array into rows. Elements that are not
// objects are skipped.
func FromAny(items []any) []Row {
	out := make([]Row, 0, len(items))
	for _, item := range items {
		switch typed := item.(type) {
		case map[string]any:
			out = append(out, Row(typed))
		case Row:
			out = append(out, typed)
		}
	}
	return out
}
