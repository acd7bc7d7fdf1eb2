/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cristianoliveira/tablesource/internal/colors"
	"github.com/cristianoliveira/tablesource/internal/config"
	"github.com/cristianoliveira/tablesource/internal/logging"
	"github.com/cristianoliveira/tablesource/internal/version"
)

const rootLong = `Query tabular data held in memory or served by a remote endpoint.

Rows come from a JSON file, a SQLite table or an HTTP endpoint. Filters,
sorting and paging are applied locally (query), delegated to the endpoint
(fetch), or exposed over HTTP for other clients (serve).`

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	debug      bool
	logFormat  string
}

// runtime is what a command needs once flags and configuration are resolved.
type runtime struct {
	cfg    *config.Config
	logger logging.Logger
}

func (g *globalOptions) setup(cmd *cobra.Command) (*runtime, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if g.debug {
		cfg.Log.Enabled = true
		cfg.Log.Level = "debug"
	}
	if g.logFormat != "" {
		cfg.Log.Format = strings.ToLower(g.logFormat)
	}
	cfg.Log.Command = cmd.Name()

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if cfg.Path != "" {
		logger.Debug("loaded config", "path", cfg.Path)
	}
	return &runtime{cfg: cfg, logger: logger}, nil
}

func (r *runtime) close() {
	_ = r.logger.Shutdown()
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:           "tablesource",
		Short:         "Filter, sort and page tabular data",
		Long:          rootLong,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.HiddenDefaultCmd = true
	root.SetVersionTemplate("tablesource version {{.Version}}\n")

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/tablesource/config.toml)")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format: text, json")

	root.AddCommand(
		newQueryCmd(g),
		newFetchCmd(g),
		newServeCmd(g),
		newVersionCmd(),
	)
	root.SetHelpCommand(newHelpCmd())
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != cmd.Root() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n%s", cmd.Long, cmd.UsageString())
			return
		}
		printHelpText(cmd)
	})

	return root
}

// Execute runs the root command until it returns or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		colors.New(os.Stderr).Error(err.Error())
	}
	return err
}
