// Package format provides output formatting for CLI commands.
// It renders a page of rows either as a terminal table or as JSON.
package format

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cristianoliveira/tablesource/internal/query"
	"github.com/cristianoliveira/tablesource/internal/row"
)

// Page is one rendered result.
type Page struct {
	Rows []row.Row
	// Columns fixes the column order. When empty it is inferred from Rows.
	Columns []string
	// Total is the number of matching rows before paging.
	Total  int
	Paging *query.Paging
}

// Formatter defines the interface for output formatters.
type Formatter interface {
	// Format writes the page to the writer.
	Format(page Page, writer io.Writer) error
}

// FormatterType represents the type of formatter to use.
type FormatterType string

const (
	// FormatterTypeTable displays rows in a bordered table with a footer.
	FormatterTypeTable FormatterType = "table"

	// FormatterTypeJSON displays rows and the total as a JSON document.
	FormatterTypeJSON FormatterType = "json"
)

// NewFormatter creates a new formatter of the specified type.
func NewFormatter(formatterType FormatterType) (Formatter, error) {
	switch FormatterType(strings.ToLower(string(formatterType))) {
	case FormatterTypeTable, "":
		return NewTableFormatter(), nil
	case FormatterTypeJSON:
		return NewJSONFormatter(), nil
	default:
		return nil, fmt.Errorf("unknown format %q: must be one of: %s, %s", formatterType, FormatterTypeTable, FormatterTypeJSON)
	}
}

// Columns returns the union of the row keys. "id" comes first when present,
// the rest in name order.
func Columns(rows []row.Row) []string {
	seen := make(map[string]bool)
	var columns []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Slice(columns, func(i, j int) bool {
		if columns[i] == "id" || columns[j] == "id" {
			return columns[i] == "id"
		}
		return columns[i] < columns[j]
	})
	return columns
}
