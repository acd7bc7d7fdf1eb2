// Package config resolves tablesource configuration from defaults, an
// optional TOML file and TABLESOURCE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/cristianoliveira/tablesource/internal/logging"
	"github.com/cristianoliveira/tablesource/internal/source"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "TABLESOURCE_"
	// EnvConfigPath selects the configuration file.
	EnvConfigPath = EnvPrefix + "CONFIG_PATH"

	// FileExtTOML is the file extension for TOML configuration files.
	FileExtTOML = ".toml"
)

// ErrInvalidValue indicates a configuration value that failed validation.
var ErrInvalidValue = errors.New("invalid configuration value")

// Config is the resolved configuration.
type Config struct {
	Server source.ServerConfig
	Log    logging.Config
	// Path is the file the configuration was read from, empty when none.
	Path string
}

// Load resolves the configuration using the process environment. path may
// be empty, in which case TABLESOURCE_CONFIG_PATH and then
// $XDG_CONFIG_HOME/tablesource/config.toml are tried.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.Environ())
}

// LoadWithEnv is Load with an explicit environment in os.Environ form.
func LoadWithEnv(path string, environ []string) (*Config, error) {
	env := envMap(environ)
	values := defaults()
	headers := map[string]string{}

	explicit := path != ""
	if !explicit {
		if p := env["config_path"]; p != "" {
			path, explicit = p, true
		} else {
			path = defaultPath()
		}
	}

	if path != "" {
		if err := loadFromFile(path, values, headers); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
			path = ""
		}
	}

	// env wins over the file; unrelated TABLESOURCE_* variables are ignored
	known := defaults()
	for key, value := range env {
		if _, ok := known[key]; ok {
			values[key] = value
		}
	}

	if err := validate(values); err != nil {
		return nil, err
	}

	cfg := build(values, headers)
	cfg.Path = path
	return cfg, nil
}

// defaults returns the flat default values.
func defaults() map[string]string {
	server := source.DefaultServerConfig()
	log := logging.DefaultConfig()
	return map[string]string{
		"endpoint":         "",
		"method":           server.Method,
		"sort_field_key":   server.SortFieldKey,
		"sort_dir_key":     server.SortDirKey,
		"filter_field_key": server.FilterFieldKey,
		"pager_page_key":   server.PagerPageKey,
		"pager_limit_key":  server.PagerLimitKey,
		"data_key":         server.DataKey,
		"total_key":        server.TotalKey,
		"total_path":       "",
		"timeout":          server.Timeout.String(),
		"log_enabled":      strconv.FormatBool(log.Enabled),
		"log_level":        log.Level,
		"log_format":       log.Format,
		"log_file":         "",
		"debug":            "false",
	}
}

func defaultPath() string {
	xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfigHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		xdgConfigHome = filepath.Join(home, ".config")
	}
	return filepath.Join(xdgConfigHome, "tablesource", "config"+FileExtTOML)
}

// loadFromFile reads a TOML file and merges its values. The [server] table
// maps onto the bare keys, [log] onto log_* keys and [server.headers] onto
// the static request headers.
func loadFromFile(path string, values, headers map[string]string) error {
	if ext := strings.ToLower(filepath.Ext(path)); ext != FileExtTOML {
		return fmt.Errorf("config: unsupported file extension %q", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	for k, v := range raw {
		key := strings.ToLower(k)
		switch table := v.(type) {
		case map[string]any:
			prefix := ""
			switch key {
			case "server":
			case "log":
				prefix = "log_"
			default:
				return fmt.Errorf("config: unknown table [%s]", key)
			}
			if err := mergeTable(prefix, table, values, headers); err != nil {
				return err
			}
		default:
			converted, ok := coerceConfigValue(v)
			if !ok {
				return fmt.Errorf("config: unsupported value type for %s: %T", key, v)
			}
			values[key] = converted
		}
	}
	return nil
}

func mergeTable(prefix string, table map[string]any, values, headers map[string]string) error {
	for k, v := range table {
		key := prefix + strings.ToLower(k)
		if nested, ok := v.(map[string]any); ok {
			if key != "headers" {
				return fmt.Errorf("config: unknown table %s", key)
			}
			for name, hv := range nested {
				converted, ok := coerceConfigValue(hv)
				if !ok {
					return fmt.Errorf("config: unsupported header value type for %s: %T", name, hv)
				}
				headers[name] = converted
			}
			continue
		}
		converted, ok := coerceConfigValue(v)
		if !ok {
			return fmt.Errorf("config: unsupported value type for %s: %T", key, v)
		}
		values[key] = converted
	}
	return nil
}

// coerceConfigValue converts a configuration value to its string representation.
// Supported types are string, int, int64, float64, and bool.
func coerceConfigValue(value any) (string, bool) {
	switch typed := value.(type) {
	case string:
		return typed, true
	case int:
		return strconv.Itoa(typed), true
	case int64:
		return strconv.FormatInt(typed, 10), true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(typed), true
	default:
		return "", false
	}
}

// envMap extracts TABLESOURCE_* variables keyed by their lowercased suffix.
func envMap(environ []string) map[string]string {
	out := make(map[string]string)
	for _, env := range environ {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		out[strings.ToLower(strings.TrimPrefix(name, EnvPrefix))] = value
	}
	return out
}

// validate normalizes values in place using the registered validators.
func validate(values map[string]string) error {
	defaultValues := defaults()

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		if _, known := defaultValues[key]; !known {
			errs = append(errs, fmt.Errorf("%w: unknown key %s", ErrInvalidValue, key))
			continue
		}
		validator, ok := validators[key]
		if !ok {
			continue
		}
		normalized, err := validator(key, values[key], defaultValues[key])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		values[key] = normalized
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func build(values map[string]string, headers map[string]string) *Config {
	// validated above
	timeout, _ := time.ParseDuration(values["timeout"])

	log := logging.DefaultConfig()
	log.Enabled = values["log_enabled"] == "true"
	log.Level = values["log_level"]
	log.Format = values["log_format"]
	log.File = values["log_file"]
	if values["debug"] == "true" {
		log.Level = "debug"
	}

	return &Config{
		Server: source.ServerConfig{
			Endpoint:       values["endpoint"],
			Method:         values["method"],
			SortFieldKey:   values["sort_field_key"],
			SortDirKey:     values["sort_dir_key"],
			FilterFieldKey: values["filter_field_key"],
			PagerPageKey:   values["pager_page_key"],
			PagerLimitKey:  values["pager_limit_key"],
			DataKey:        values["data_key"],
			TotalKey:       values["total_key"],
			TotalPath:      values["total_path"],
			Headers:        headers,
			Timeout:        timeout,
		},
		Log: log,
	}
}
