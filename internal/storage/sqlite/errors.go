package sqlite

import (
	"errors"
	"regexp"
)

var (
	// ErrInvalidTableName indicates a table name that is not a plain identifier.
	ErrInvalidTableName = errors.New("invalid table name")
	// ErrEmptyPath indicates an empty database path.
	ErrEmptyPath = errors.New("db path cannot be empty")
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidTableName reports whether name can be interpolated into a query.
func ValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}
