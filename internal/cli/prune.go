package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewPruneLedgerCommand creates the prune-ledger command.
func NewPruneLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	var vacuum bool

	cmd := &cobra.Command{
		Use:   "prune-ledger",
		Short: "Delete ledger rows nothing references",
		Long: `Delete event_cache rows that no tag, review, bookmark or registration
references. Rows are otherwise never removed, including rows of deleted
community events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.db.PruneLedger(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d ledger rows\n", n)

			if vacuum {
				done, err := rt.db.VacuumIfNeeded(ctx)
				if err != nil {
					return fmt.Errorf("vacuum: %w", err)
				}
				if done {
					fmt.Fprintln(cmd.OutOrStdout(), "database vacuumed")
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&vacuum, "vacuum", false, "also VACUUM the database if it is due")
	return cmd
}
