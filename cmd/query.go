/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cristianoliveira/tablesource/internal/query"
	"github.com/cristianoliveira/tablesource/internal/source"
)

const queryLong = `Filter, sort and page rows held in memory.

EXAMPLES:
    tablesource query --file people.json --filter name=an --sort age:desc
    tablesource query --db app.db --table users --page 2 --per-page 10
    tablesource query --file people.json --filter age=3 --filter name=b --mode or`

func newQueryCmd(g *globalOptions) *cobra.Command {
	var (
		in     inputOptions
		q      queryOptions
		out    outputOptions
		locale string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query rows from a JSON file or SQLite table",
		Long:  queryLong,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx := cmd.Context()
			rows, err := loadRows(ctx, &in, cmd.InOrStdin())
			if err != nil {
				return err
			}

			opts := []source.Option{source.WithLogger(rt.logger)}
			if locale != "" {
				opts = append(opts, source.WithLocale(locale))
			}
			local := source.NewLocal(rows, opts...)
			defer local.Close()

			if err := applyLocalQuery(local, &q); err != nil {
				return err
			}

			page, err := local.Elements(ctx)
			if err != nil {
				return err
			}
			var paging *query.Paging
			if p, ok := local.Paging(); ok {
				paging = &p
			}
			rt.logger.Debug("query done", "rows", len(page), "total", local.Count())
			return out.write(cmd.OutOrStdout(), page, local.Count(), paging)
		},
	}

	in.register(cmd)
	q.register(cmd, true)
	out.register(cmd)
	cmd.Flags().StringVar(&locale, "locale", "", "BCP 47 locale used to sort strings (e.g. sv, de)")

	return cmd
}

// applyLocalQuery replaces the query state of local without emitting events.
// A non-positive --per-page clears any page window already set.
func applyLocalQuery(local *source.Local, q *queryOptions) error {
	pred, err := q.predicate()
	if err != nil {
		return err
	}
	mode, err := q.filterMode()
	if err != nil {
		return err
	}
	filters, err := q.parseFilters(pred)
	if err != nil {
		return err
	}
	if err := local.SetFilters(filters, mode, false); err != nil {
		return err
	}

	sorts, err := q.parseSorts()
	if err != nil {
		return err
	}
	if len(sorts) > 0 {
		if err := local.SetSort(sorts, false); err != nil {
			return err
		}
	}

	if q.perPage > 0 {
		return local.SetPaging(q.page, q.perPage, false)
	}
	local.ClearPaging(false)
	return nil
}
