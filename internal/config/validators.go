package config

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Validator validates and normalizes a configuration value.
// Returns the normalized value and an error if validation fails.
type Validator func(key, value, defaultValue string) (normalized string, err error)

// validators maps each validated key to its Validator.
var validators = map[string]Validator{
	"method":      EnumValidator(map[string]bool{http.MethodGet: true, http.MethodPost: true}, strings.ToUpper),
	"timeout":     DurationValidator(),
	"log_enabled": BoolValidator(),
	"log_format":  EnumValidator(map[string]bool{"text": true, "json": true}, strings.ToLower),
	"debug":       BoolValidator(),
	"log_level": EnumValidator(map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}, strings.ToLower),
}

// EnumValidator returns a validator that ensures a value is one of the allowed
// enum values after normalize is applied.
func EnumValidator(allowed map[string]bool, normalize func(string) string) Validator {
	return func(key, value, defaultValue string) (string, error) {
		if value == "" {
			return defaultValue, nil
		}
		normalized := normalize(strings.TrimSpace(value))
		if !allowed[normalized] {
			return "", fmt.Errorf("%w: %s value '%s': must be one of: %s", ErrInvalidValue, key, value, allowedValues(allowed))
		}
		return normalized, nil
	}
}

// BoolValidator returns a validator that normalizes and validates boolean values.
func BoolValidator() Validator {
	return func(key, value, defaultValue string) (string, error) {
		if value == "" {
			return defaultValue, nil
		}
		normalized := normalizeBool(value)
		if normalized != "true" && normalized != "false" {
			return "", fmt.Errorf("%w: boolean value for %s: '%s', must be one of: 1, true, yes, on, 0, false, no, off", ErrInvalidValue, key, value)
		}
		return normalized, nil
	}
}

// DurationValidator validates positive Go-style duration strings (e.g., 30s, 1m).
func DurationValidator() Validator {
	return func(key, value, defaultValue string) (string, error) {
		if value == "" {
			return defaultValue, nil
		}
		duration, err := time.ParseDuration(value)
		if err != nil || duration <= 0 {
			return "", fmt.Errorf("%w: duration for %s: '%s', must be a positive Go-style duration (e.g. 30s, 5m)", ErrInvalidValue, key, value)
		}
		return duration.String(), nil
	}
}

// normalizeBool converts various boolean representations to "true"/"false".
func normalizeBool(val string) string {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "on":
		return "true"
	case "0", "false", "no", "off":
		return "false"
	default:
		return val
	}
}

// allowedValues returns a comma-separated string of allowed values.
func allowedValues(allowed map[string]bool) string {
	values := make([]string, 0, len(allowed))
	for k := range allowed {
		values = append(values, k)
	}
	sort.Strings(values)
	return strings.Join(values, ", ")
}
