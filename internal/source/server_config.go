package source

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// FieldPlaceholder is replaced by the filtered field in FilterFieldKey.
const FieldPlaceholder = "#field#"

// ServerConfig describes how the query state maps onto the remote endpoint's
// parameters and how its response is read back.
type ServerConfig struct {
	Endpoint string
	Method   string

	SortFieldKey   string
	SortDirKey     string
	FilterFieldKey string
	PagerPageKey   string
	PagerLimitKey  string

	// DataKey is the dotted path of the rows array in the body; empty means
	// the body itself is the array.
	DataKey string
	// TotalKey is the response header carrying the total count.
	TotalKey string
	// TotalPath is the dotted body path of the total count. Defaults to TotalKey.
	TotalPath string

	Headers map[string]string
	// Timeout bounds background fetches started by setters.
	Timeout time.Duration
}

// DefaultServerConfig returns the defaults applied to every unset field.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Method:         http.MethodGet,
		SortFieldKey:   "sort",
		SortDirKey:     "sort_direction",
		FilterFieldKey: FieldPlaceholder,
		PagerPageKey:   "page",
		PagerLimitKey:  "per_page",
		TotalKey:       "x-total-count",
		Timeout:        30 * time.Second,
	}
}

func (c ServerConfig) withDefaults() ServerConfig {
	d := DefaultServerConfig()
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
	if c.Method == "" {
		c.Method = d.Method
	}
	if c.SortFieldKey == "" {
		c.SortFieldKey = d.SortFieldKey
	}
	if c.SortDirKey == "" {
		c.SortDirKey = d.SortDirKey
	}
	if c.FilterFieldKey == "" {
		c.FilterFieldKey = d.FilterFieldKey
	}
	if c.PagerPageKey == "" {
		c.PagerPageKey = d.PagerPageKey
	}
	if c.PagerLimitKey == "" {
		c.PagerLimitKey = d.PagerLimitKey
	}
	if c.TotalKey == "" {
		c.TotalKey = d.TotalKey
	}
	if c.TotalPath == "" {
		c.TotalPath = c.TotalKey
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	headers := make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		headers[k] = v
	}
	c.Headers = headers
	return c
}

// Validate checks a config after defaults were applied.
func (c ServerConfig) Validate() error {
	if c.Endpoint == "" {
		return ErrEndpointRequired
	}
	if c.Method != http.MethodGet && c.Method != http.MethodPost {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, c.Method)
	}
	return nil
}

// Resolve applies defaults and validates.
func (c ServerConfig) Resolve() (ServerConfig, error) {
	resolved := c.withDefaults()
	if err := resolved.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return resolved, nil
}
