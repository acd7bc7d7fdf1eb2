package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cristianoliveira/tablesource/internal/version"
)

var commandOrder = []string{
	"query",
	"fetch",
	"serve",
	"help",
	"version",
}

func newHelpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "help [command]",
		Short: "Show this help message",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := cmd.Root()
			if len(args) > 0 {
				found, _, err := target.Find(args)
				if err != nil {
					return err
				}
				target = found
			}
			return target.Help()
		},
	}
}

func printHelpText(cmd *cobra.Command) {
	var cmdLines []string
	for _, name := range commandOrder {
		var found *cobra.Command
		for _, c := range cmd.Commands() {
			if c.Name() == name {
				found = c
				break
			}
		}
		if found == nil {
			continue
		}
		cmdLines = append(cmdLines, fmt.Sprintf("    %-16s %s", found.Name(), found.Short))
	}

	fmt.Fprintf(cmd.OutOrStdout(), `tablesource %s

%s

USAGE:
    tablesource [COMMAND] [OPTIONS]

COMMANDS:
%s

OPTIONS:
%s`, version.String(), cmd.Long, strings.Join(cmdLines, "\n"), cmd.PersistentFlags().FlagUsages())
}
