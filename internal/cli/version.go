package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graaaaa/eventhub/internal/appinfo"
	"github.com/graaaaa/eventhub/internal/version"
)

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appinfo.AppName, version.String())
		},
	}
}
