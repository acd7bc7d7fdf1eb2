/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cristianoliveira/tablesource/internal/query"
	"github.com/cristianoliveira/tablesource/internal/source"
)

// ErrUnsupportedQuery is returned when the endpoint cannot express the
// requested filters and sorts.
var ErrUnsupportedQuery = errors.New("unsupported query: the endpoint accepts at most one filter and one sort, on the same field")

const fetchLong = `Fetch one page of rows from a remote endpoint.

Filters, sorting and paging are sent as request parameters. The endpoint
accepts at most one filter and one sort, and both must name the same field.
Flags override the [server] section of the config file.

EXAMPLES:
    tablesource fetch --endpoint https://api.example.com/users --data-key data
    tablesource fetch --endpoint http://localhost:8080/rows --filter name=an --sort name --per-page 5`

type serverFlags struct {
	endpoint  string
	method    string
	dataKey   string
	totalKey  string
	totalPath string
	headers   []string
	timeout   time.Duration
}

func (f *serverFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.endpoint, "endpoint", "", "Endpoint URL")
	cmd.Flags().StringVar(&f.method, "method", "", "HTTP method: GET, POST")
	cmd.Flags().StringVar(&f.dataKey, "data-key", "", "Dotted path of the rows array in the response")
	cmd.Flags().StringVar(&f.totalKey, "total-key", "", "Response header holding the total count")
	cmd.Flags().StringVar(&f.totalPath, "total-path", "", "Dotted body path holding the total count")
	cmd.Flags().StringArrayVar(&f.headers, "header", nil, "Request header as 'Name: value' (repeatable)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Request timeout")
}

// apply overrides cfg with the flags the user set.
func (f *serverFlags) apply(cmd *cobra.Command, cfg *source.ServerConfig) error {
	changed := cmd.Flags().Changed
	if changed("endpoint") {
		cfg.Endpoint = f.endpoint
	}
	if changed("method") {
		cfg.Method = f.method
	}
	if changed("data-key") {
		cfg.DataKey = f.dataKey
	}
	if changed("total-key") {
		cfg.TotalKey = f.totalKey
	}
	if changed("total-path") {
		cfg.TotalPath = f.totalPath
	}
	if changed("timeout") {
		cfg.Timeout = f.timeout
	}
	if len(f.headers) > 0 {
		headers := make(map[string]string, len(cfg.Headers)+len(f.headers))
		for k, v := range cfg.Headers {
			headers[k] = v
		}
		for _, h := range f.headers {
			name, value, ok := strings.Cut(h, ":")
			if !ok || strings.TrimSpace(name) == "" {
				return fmt.Errorf("invalid header %q: expected 'Name: value'", h)
			}
			headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
		cfg.Headers = headers
	}
	return nil
}

func newFetchCmd(g *globalOptions) *cobra.Command {
	var (
		sf  serverFlags
		q   queryOptions
		out outputOptions
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a page of rows from an HTTP endpoint",
		Long:  fetchLong,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			cfg := rt.cfg.Server
			if err := sf.apply(cmd, &cfg); err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := source.NewServer(cfg,
				source.WithLogger(rt.logger),
				source.WithBaseContext(ctx),
			)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := applyServerQuery(s, &q); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(ctx, s.Config().Timeout)
			defer cancel()
			page, err := s.Elements(ctx)
			if err != nil {
				return err
			}
			if page == nil {
				return ErrUnsupportedQuery
			}

			var paging *query.Paging
			if p, ok := s.Paging(); ok {
				paging = &p
			}
			return out.write(cmd.OutOrStdout(), page, s.Count(), paging)
		},
	}

	sf.register(cmd)
	q.register(cmd, false)
	out.register(cmd)

	return cmd
}

// applyServerQuery sets the query state of s without starting a fetch.
func applyServerQuery(s *source.Server, q *queryOptions) error {
	filters, err := q.parseFilters(nil)
	if err != nil {
		return err
	}
	for _, f := range filters {
		if err := s.SetFilter(f, false); err != nil {
			return err
		}
	}

	sorts, err := q.parseSorts()
	if err != nil {
		return err
	}
	if len(sorts) > 0 {
		if err := s.SetSort(sorts, false); err != nil {
			return err
		}
	}

	if q.perPage > 0 {
		return s.SetPaging(q.page, q.perPage, false)
	}
	return nil
}
