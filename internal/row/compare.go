package row

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// ValueType declares how a column's values are coerced before comparison.
type ValueType string

const (
	// TypeAuto compares numerically when both values are numbers and as
	// strings otherwise.
	TypeAuto   ValueType = ""
	TypeString ValueType = "string"
	TypeNumber ValueType = "number"
	TypeTime   ValueType = "time"
	TypeBool   ValueType = "bool"
)

// IsValid checks if the value type is known.
func (t ValueType) IsValid() bool {
	switch t {
	case TypeAuto, TypeString, TypeNumber, TypeTime, TypeBool:
		return true
	default:
		return false
	}
}

// ParseValueType parses a string into a ValueType.
func ParseValueType(s string) (ValueType, error) {
	t := ValueType(strings.ToLower(strings.TrimSpace(s)))
	if t == "auto" {
		return TypeAuto, nil
	}
	if !t.IsValid() {
		return "", fmt.Errorf("invalid value type: %s", s)
	}
	return t, nil
}

// NewCollator returns a collator for locale-aware string comparison.
// An empty or unknown tag falls back to the root locale.
func NewCollator(tag string) *collate.Collator {
	lang := language.Und
	if tag != "" {
		if parsed, err := language.Parse(tag); err == nil {
			lang = parsed
		}
	}
	return collate.New(lang, collate.IgnoreCase)
}

// Compare returns -1, 0 or 1 comparing a and b as type t. nil sorts first.
// A nil collator falls back to byte-wise string comparison. Collators are not
// safe for concurrent use; callers serialize access.
func Compare(a, b any, t ValueType, c *collate.Collator) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	switch t {
	case TypeNumber:
		return compareNumbers(a, b, c)
	case TypeTime:
		ta, errA := cast.ToTimeE(a)
		tb, errB := cast.ToTimeE(b)
		if errA != nil || errB != nil {
			return compareFailures(errA, errB, a, b, c)
		}
		return ta.Compare(tb)
	case TypeBool:
		ba, errA := cast.ToBoolE(a)
		bb, errB := cast.ToBoolE(b)
		if errA != nil || errB != nil {
			return compareFailures(errA, errB, a, b, c)
		}
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case TypeString:
		return compareStrings(String(a), String(b), c)
	default:
		if isNumeric(a) && isNumeric(b) {
			return compareNumbers(a, b, c)
		}
		return compareStrings(String(a), String(b), c)
	}
}

func compareNumbers(a, b any, c *collate.Collator) int {
	fa, errA := cast.ToFloat64E(a)
	fb, errB := cast.ToFloat64E(b)
	if errA != nil || errB != nil {
		return compareFailures(errA, errB, a, b, c)
	}
	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	default:
		return 0
	}
}

// compareFailures orders values that could not be coerced before the ones
// that could, and falls back to string order when neither could.
func compareFailures(errA, errB error, a, b any, c *collate.Collator) int {
	switch {
	case errA != nil && errB != nil:
		return compareStrings(String(a), String(b), c)
	case errA != nil:
		return -1
	default:
		return 1
	}
}

func compareStrings(a, b string, c *collate.Collator) int {
	if c == nil {
		return strings.Compare(a, b)
	}
	return c.CompareString(a, b)
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}
