/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cristianoliveira/tablesource/internal/backend"
	"github.com/cristianoliveira/tablesource/internal/colors"
	"github.com/cristianoliveira/tablesource/internal/logging"
	"github.com/cristianoliveira/tablesource/internal/metrics"
	"github.com/cristianoliveira/tablesource/internal/notifier"
	"github.com/cristianoliveira/tablesource/internal/source"
)

const serveLong = `Serve rows over HTTP using the parameters fetch sends.

ROUTES:
    GET|POST /rows    Filtered, sorted and paged rows as {"data": [...], "total": N}
    GET /healthz      Liveness probe
    GET /metrics      Prometheus metrics

Parameter names follow the [server] section of the config file. With
--watch the input is reloaded when it changes on disk.`

const reloadDebounce = 100 * time.Millisecond

type serveOptions struct {
	addr   string
	watch  bool
	locale string
}

func newServeCmd(g *globalOptions) *cobra.Command {
	var (
		in   inputOptions
		q    queryOptions
		opts serveOptions
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a JSON file or SQLite table over HTTP",
		Long:  serveLong,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer rt.close()
			if in.file == "-" && opts.watch {
				return fmt.Errorf("--watch cannot be used with stdin")
			}

			pred, err := q.predicate()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rows, err := loadRows(ctx, &in, cmd.InOrStdin())
			if err != nil {
				return err
			}

			srcOpts := []source.Option{source.WithLogger(rt.logger)}
			if opts.locale != "" {
				srcOpts = append(srcOpts, source.WithLocale(opts.locale))
			}
			local := source.NewLocal(rows, srcOpts...)
			defer local.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			m := metrics.New(reg)

			handler := backend.NewRouter(local, backend.Config{
				Params:   rt.cfg.Server,
				Match:    pred,
				Gatherer: reg,
				Metrics:  m,
				Logger:   rt.logger,
			})
			colors.New(cmd.ErrOrStderr()).Info("serving", strconv.Itoa(local.Count()), "rows on", opts.addr)
			return serve(ctx, opts, &in, local, handler, rt.logger)
		},
	}

	in.register(cmd)
	cmd.Flags().StringVar(&q.match, "match", "substring", "Match strategy for filters")
	cmd.Flags().BoolVar(&q.caseSensitive, "case-sensitive", false, "Match filters case-sensitively")
	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "Listen address")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Reload the input when it changes")
	cmd.Flags().StringVar(&opts.locale, "locale", "", "BCP 47 locale used to sort strings")

	return cmd
}

// serve runs the HTTP server until ctx is cancelled.
func serve(ctx context.Context, opts serveOptions, in *inputOptions, local *source.Local, handler http.Handler, logger logging.Logger) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    opts.addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	sub := local.OnChanged()
	defer local.Unsubscribe(sub)
	eg.Go(func() error {
		logEvents(egctx, sub, logger)
		return nil
	})

	if opts.watch {
		eg.Go(func() error {
			return watchInput(egctx, in, local, logger)
		})
	}

	eg.Go(func() error {
		logger.Info("serving rows", "addr", opts.addr, "rows", local.Count())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		logger.Debug("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func logEvents(ctx context.Context, sub *notifier.Subscription[source.Event], logger logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			logger.Info("data changed", "action", ev.Action, "rows", len(ev.Elements), "seq", ev.Seq)
		}
	}
}

// watchInput reloads the input file into local when it changes. The parent
// directory is watched so editors that replace the file are still seen.
func watchInput(ctx context.Context, in *inputOptions, local *source.Local, logger logging.Logger) error {
	path := in.file
	if path == "" {
		path = in.db
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	reload := func() {
		rows, err := loadRows(ctx, in, nil)
		if err != nil {
			logger.Error("reload failed", "file", path, "error", err)
			return
		}
		logger.Debug("input changed, reloading", "file", path, "rows", len(rows))
		local.Load(rows)
	}

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(reloadDebounce, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "error", err)
		}
	}
}
