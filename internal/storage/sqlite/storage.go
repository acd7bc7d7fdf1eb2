// Package sqlite loads table rows from SQLite databases.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/cristianoliveira/tablesource/internal/row"
	_ "modernc.org/sqlite"
)

// Open opens an existing SQLite database.
func Open(dbPath string) (*sql.DB, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("sqlite loader: %w", ErrEmptyPath)
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("sqlite loader: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite loader: open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite loader: set busy timeout: %w", err)
	}
	return db, nil
}

// LoadTable reads every row of table from the database at dbPath.
func LoadTable(ctx context.Context, dbPath, table string) ([]row.Row, error) {
	if !ValidTableName(table) {
		return nil, fmt.Errorf("sqlite loader: %w: %q", ErrInvalidTableName, table)
	}
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return LoadQuery(ctx, db, fmt.Sprintf("SELECT * FROM %q", table))
}

// LoadQuery runs a query and returns one row per result row, keyed by column
// name. BLOB and TEXT values come back as strings.
func LoadQuery(ctx context.Context, db *sql.DB, query string, args ...any) ([]row.Row, error) {
	rs, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite loader: query: %w", err)
	}
	defer rs.Close()

	columns, err := rs.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqlite loader: columns: %w", err)
	}

	rows := []row.Row{}
	for rs.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlite loader: scan: %w", err)
		}

		r := make(row.Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				r[col] = string(b)
				continue
			}
			r[col] = values[i]
		}
		rows = append(rows, r)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("sqlite loader: iterate rows: %w", err)
	}
	return rows, nil
}

// Tables lists the user tables of db in name order.
func Tables(ctx context.Context, db *sql.DB) ([]string, error) {
	rs, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("sqlite loader: list tables: %w", err)
	}
	defer rs.Close()

	var names []string
	for rs.Next() {
		var name string
		if err := rs.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite loader: scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rs.Err()
}
