package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cristianoliveira/tablesource/internal/format"
	"github.com/cristianoliveira/tablesource/internal/query"
	"github.com/cristianoliveira/tablesource/internal/row"
	"github.com/cristianoliveira/tablesource/internal/search"
	"github.com/cristianoliveira/tablesource/internal/storage/sqlite"
)

var (
	// ErrNoInput is returned when neither --file nor --db is given.
	ErrNoInput = errors.New("no input: use --file or --db with --table")
	// ErrConflictingInput is returned when both --file and --db are given.
	ErrConflictingInput = errors.New("--file and --db are mutually exclusive")
	// ErrMissingTable is returned when --db is given without --table.
	ErrMissingTable = errors.New("--db requires --table")
)

// inputOptions selects where local rows are read from.
type inputOptions struct {
	file    string
	dataKey string
	db      string
	table   string
}

func (o *inputOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.file, "file", "", "JSON file holding an array of objects (- for stdin)")
	cmd.Flags().StringVar(&o.dataKey, "data-key", "", "Dotted path of the array inside the JSON document")
	cmd.Flags().StringVar(&o.db, "db", "", "SQLite database file")
	cmd.Flags().StringVar(&o.table, "table", "", "SQLite table to load (requires --db)")
}

func (o *inputOptions) validate() error {
	switch {
	case o.file != "" && o.db != "":
		return ErrConflictingInput
	case o.file == "" && o.db == "":
		return ErrNoInput
	case o.db != "" && o.table == "":
		return ErrMissingTable
	}
	return nil
}

// loadRows reads the rows selected by o. stdin is used for --file -.
func loadRows(ctx context.Context, o *inputOptions, stdin io.Reader) ([]row.Row, error) {
	if err := o.validate(); err != nil {
		if errors.Is(err, ErrMissingTable) {
			return nil, missingTable(ctx, o.db)
		}
		return nil, err
	}
	if o.db != "" {
		return sqlite.LoadTable(ctx, o.db, o.table)
	}

	var data []byte
	var err error
	if o.file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(o.file)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return decodeRows(data, o.dataKey)
}

// missingTable reports ErrMissingTable along with the tables found in dbPath.
func missingTable(ctx context.Context, dbPath string) error {
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return ErrMissingTable
	}
	defer db.Close()

	tables, err := sqlite.Tables(ctx, db)
	if err != nil || len(tables) == 0 {
		return ErrMissingTable
	}
	return fmt.Errorf("%w (tables: %s)", ErrMissingTable, strings.Join(tables, ", "))
}

func decodeRows(data []byte, dataKey string) ([]row.Row, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	items, ok := row.Lookup(doc, dataKey, nil).([]any)
	if !ok {
		if dataKey == "" {
			return nil, fmt.Errorf("decode input: document is not an array")
		}
		return nil, fmt.Errorf("decode input: %q is not an array", dataKey)
	}
	return row.FromAny(items), nil
}

// queryOptions are the filter, sort and paging flags.
type queryOptions struct {
	filters       []string
	match         string
	caseSensitive bool
	mode          string
	sorts         []string
	page          int
	perPage       int
}

func (o *queryOptions) register(cmd *cobra.Command, local bool) {
	cmd.Flags().StringArrayVar(&o.filters, "filter", nil, "Filter as field=search (repeatable)")
	cmd.Flags().StringArrayVar(&o.sorts, "sort", nil, "Sort as field[:asc|desc[:type]], type one of auto, string, number, time, bool (repeatable)")
	cmd.Flags().IntVar(&o.page, "page", 1, "Page number, starting at 1")
	cmd.Flags().IntVar(&o.perPage, "per-page", 0, "Rows per page (0 disables paging)")
	if local {
		cmd.Flags().StringVar(&o.match, "match", "substring", "Match strategy: "+strings.Join(search.Names(), ", "))
		cmd.Flags().BoolVar(&o.caseSensitive, "case-sensitive", false, "Match filters case-sensitively")
		cmd.Flags().StringVar(&o.mode, "mode", string(query.ModeAnd), "Combine filters with AND or OR")
	}
}

// predicate returns the filter predicate selected by --match.
func (o *queryOptions) predicate() (search.Predicate, error) {
	if o.match == "" {
		return search.DefaultPredicate(), nil
	}
	p, err := search.ByName(o.match, search.WithCaseInsensitive(!o.caseSensitive))
	if err != nil {
		return nil, err
	}
	return search.AsPredicate(p), nil
}

func (o *queryOptions) filterMode() (query.FilterMode, error) {
	if o.mode == "" {
		return query.ModeAnd, nil
	}
	m := query.FilterMode(strings.ToUpper(o.mode))
	if !m.IsValid() {
		return "", fmt.Errorf("invalid mode %q: must be AND or OR", o.mode)
	}
	return m, nil
}

func (o *queryOptions) parseFilters(pred search.Predicate) ([]query.Filter, error) {
	filters := make([]query.Filter, 0, len(o.filters))
	for _, raw := range o.filters {
		f, err := query.ParseFilter(raw)
		if err != nil {
			return nil, err
		}
		f.Predicate = pred
		filters = append(filters, f)
	}
	return filters, nil
}

func (o *queryOptions) parseSorts() ([]query.Sort, error) {
	sorts := make([]query.Sort, 0, len(o.sorts))
	for _, raw := range o.sorts {
		s, err := query.ParseSort(raw)
		if err != nil {
			return nil, err
		}
		sorts = append(sorts, s)
	}
	return sorts, nil
}

// outputOptions select how a page is rendered.
type outputOptions struct {
	format  string
	columns []string
}

func (o *outputOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.format, "format", string(format.FormatterTypeTable), "Output format: table, json")
	cmd.Flags().StringSliceVar(&o.columns, "columns", nil, "Columns to show, comma separated (table format)")
}

func (o *outputOptions) write(w io.Writer, rows []row.Row, total int, paging *query.Paging) error {
	f, err := format.NewFormatter(format.FormatterType(o.format))
	if err != nil {
		return err
	}
	return f.Format(format.Page{
		Rows:    rows,
		Columns: o.columns,
		Total:   total,
		Paging:  paging,
	}, w)
}
