package query

import (
	"fmt"
	"strings"

	"github.com/cristianoliveira/tablesource/internal/row"
)

// Direction specifies the sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// IsValid checks if the direction is valid.
func (d Direction) IsValid() bool {
	switch d {
	case Asc, Desc:
		return true
	default:
		return false
	}
}

// String returns the wire form of the direction.
func (d Direction) String() string {
	return string(d)
}

// ParseDirection parses a direction case-insensitively. Empty means ASC.
func ParseDirection(s string) (Direction, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Asc, nil
	}
	d := Direction(strings.ToUpper(s))
	if !d.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidDirection, s)
	}
	return d, nil
}

// Sort is one sort entry.
type Sort struct {
	Field     string
	Direction Direction
	// Type declares how values are coerced by the default comparator.
	Type row.ValueType
	// Compare optionally replaces the default comparator. It receives the two
	// field values and returns a negative, zero or positive number for ascending
	// order; Direction is still applied on top.
	Compare func(a, b any) int
}

// normalize validates s and fills defaults.
func (s Sort) normalize() (Sort, error) {
	if strings.TrimSpace(s.Field) == "" {
		return Sort{}, ErrFieldRequired
	}
	if s.Direction == "" {
		s.Direction = Asc
	} else {
		d, err := ParseDirection(string(s.Direction))
		if err != nil {
			return Sort{}, err
		}
		s.Direction = d
	}
	if !s.Type.IsValid() {
		return Sort{}, fmt.Errorf("invalid value type for %s: %s", s.Field, s.Type)
	}
	return s, nil
}

// ParseSort parses "field[:direction[:type]]", e.g. "age", "age:desc" or
// "created:asc:time". The type is parsed by row.ParseValueType.
func ParseSort(raw string) (Sort, error) {
	field, rest, _ := strings.Cut(raw, ":")
	dir, typ, _ := strings.Cut(rest, ":")
	d, err := ParseDirection(dir)
	if err != nil {
		return Sort{}, err
	}
	t, err := row.ParseValueType(typ)
	if err != nil {
		return Sort{}, err
	}
	return Sort{Field: strings.TrimSpace(field), Direction: d, Type: t}.normalize()
}
