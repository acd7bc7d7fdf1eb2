package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/cristianoliveira/tablesource/internal/row"
)

// TableConfig holds configuration for table formatting.
type TableConfig struct {
	// ShowHeaders determines whether to show column headers.
	ShowHeaders bool

	// ShowFooter prints the row range and total under the table.
	ShowFooter bool

	// HeaderColor is the ANSI color of the headers.
	HeaderColor string

	// MaxCellWidth truncates longer cells. Zero disables truncation.
	MaxCellWidth int
}

// DefaultTableConfig returns a default table configuration.
func DefaultTableConfig() *TableConfig {
	return &TableConfig{
		ShowHeaders:  true,
		ShowFooter:   true,
		HeaderColor:  "4",
		MaxCellWidth: 40,
	}
}

// TableFormatter renders rows with lipgloss/table.
type TableFormatter struct {
	config *TableConfig
}

// NewTableFormatter creates a new TableFormatter with the default config.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{config: DefaultTableConfig()}
}

// WithConfig replaces the formatter config.
func (f *TableFormatter) WithConfig(config *TableConfig) *TableFormatter {
	if config != nil {
		f.config = config
	}
	return f
}

// Format writes the page as a table.
func (f *TableFormatter) Format(page Page, writer io.Writer) error {
	if len(page.Rows) == 0 {
		_, err := fmt.Fprintf(writer, "No rows (total %d)\n", page.Total)
		return err
	}

	columns := page.Columns
	if len(columns) == 0 {
		columns = Columns(page.Rows)
	}

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(f.config.HeaderColor))
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(r, _ int) lipgloss.Style {
			if r == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		})
	if f.config.ShowHeaders {
		t = t.Headers(columns...)
	}
	for _, r := range page.Rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			v, _ := row.Get(r, col)
			cells[i] = truncateString(cellString(v), f.config.MaxCellWidth)
		}
		t = t.Row(cells...)
	}

	if _, err := fmt.Fprintln(writer, t.Render()); err != nil {
		return err
	}
	if !f.config.ShowFooter {
		return nil
	}
	_, err := fmt.Fprintln(writer, footer(page))
	return err
}

func footer(page Page) string {
	if page.Paging == nil {
		return fmt.Sprintf("%d of %d rows", len(page.Rows), page.Total)
	}
	start, _ := page.Paging.Bounds(page.Total)
	end := start + len(page.Rows)
	return fmt.Sprintf("rows %d-%d of %d (page %d/%d)", start+1, end, page.Total, page.Paging.Page, page.Paging.Pages(page.Total))
}

// cellString renders nested values as JSON and everything else with row.String.
func cellString(v any) string {
	switch v.(type) {
	case map[string]any, row.Row, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return row.String(v)
		}
		return string(b)
	default:
		return strings.ReplaceAll(row.String(v), "\n", " ")
	}
}

// truncateString truncates a string to the specified width, adding "..." if truncated.
func truncateString(s string, width int) string {
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	if width < 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
