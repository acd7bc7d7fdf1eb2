package format

import (
	"encoding/json"
	"io"

	"github.com/cristianoliveira/tablesource/internal/query"
	"github.com/cristianoliveira/tablesource/internal/row"
)

// JSONFormatter writes the page as an indented JSON document.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSONFormatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

type jsonPage struct {
	Data   []row.Row     `json:"data"`
	Total  int           `json:"total"`
	Paging *query.Paging `json:"paging,omitempty"`
}

// Format writes the page as JSON.
func (f *JSONFormatter) Format(page Page, writer io.Writer) error {
	data := page.Rows
	if data == nil {
		data = []row.Row{}
	}
	enc := json.NewEncoder(writer)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonPage{Data: data, Total: page.Total, Paging: page.Paging})
}
