package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/graaaaa/eventhub/internal/app"
	"github.com/graaaaa/eventhub/internal/ingest"
)

// syncRunner is the runner surface the CLI drives.
type syncRunner interface {
	app.SyncRunner
	RunEvery(ctx context.Context, interval time.Duration, runNow bool) error
}

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Source string
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run connectors once and print their reports",
		Long: `Run every enabled connector once, then the statistics loader.

A running server holds the data directory; trigger its sync with
POST /api/v1/admin/sync instead.

Example:
  eventhub sync
  eventhub sync --source artsrepublic`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "run only this connector (or \"statistics\")")
	return cmd
}

func runSync(cmd *cobra.Command, opts *SyncOptions) error {
	paths, err := resolvePaths(opts.RootOptions)
	if err != nil {
		return err
	}
	release, err := lockDataDir(paths)
	if err != nil {
		return err
	}
	defer release()

	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	svc := &app.SyncService{Runner: rt.runner(), Runs: rt.db}
	if opts.Source == "" && len(svc.Sources()) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no sources enabled")
		return nil
	}
	results, err := svc.Trigger(ctx, opts.Source)
	printRuns(cmd.OutOrStdout(), results)
	return err
}

func printRuns(w io.Writer, results []ingest.RunResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tUPSERTED\tUPDATED\tUNCHANGED\tSKIPPED\tFAILED\tDURATION")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.Source,
			r.Report.Upserted,
			r.Report.Updated,
			r.Report.Unchanged,
			r.Report.Skipped,
			r.Report.Failed,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
		)
	}
	tw.Flush()
}
