package source

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/cristianoliveira/tablesource/internal/row"
)

// ExtractData returns the rows found at dataKey in a decoded body. Anything
// other than an array yields an empty, non-nil result.
func ExtractData(body any, dataKey string) []row.Row {
	items, ok := row.Lookup(body, dataKey, nil).([]any)
	if !ok {
		return []row.Row{}
	}
	return row.FromAny(items)
}

// ExtractTotal reads the total count from the header named totalKey, falling
// back to totalPath in the body, then to 0.
func ExtractTotal(header http.Header, body any, totalKey, totalPath string) int {
	if v := header.Get(totalKey); v != "" {
		if n, err := toTotal(v); err == nil {
			return n
		}
	}
	if totalPath == "" {
		return 0
	}
	n, err := toTotal(row.Lookup(body, totalPath, nil))
	if err != nil {
		return 0
	}
	return n
}

// toTotal coerces a count. Strings are always base 10 so that "010" is ten;
// json numbers decode as float64 and go through cast.
func toTotal(v any) (int, error) {
	if s, ok := v.(string); ok {
		return strconv.Atoi(strings.TrimSpace(s))
	}
	return cast.ToIntE(v)
}
