// Package cli implements the eventhub command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/graaaaa/eventhub/internal/version"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string // empty selects the default data directory
	Verbose    bool
}

// NewRootCommand creates the root command for the eventhub CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "eventhub",
		Short:         "Unified catalog of official and community events",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to config.yaml (its directory holds all data files)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewSeedTagsCommand(opts))
	cmd.AddCommand(NewPruneLedgerCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}
