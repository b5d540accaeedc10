package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graaaaa/eventhub/internal/event"
)

type tagEnsurer interface {
	EnsureTag(ctx context.Context, name string) (event.Tag, bool, error)
}

// NewSeedTagsCommand creates the seed-tags command.
func NewSeedTagsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-tags",
		Short: "Add the default tag vocabulary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			created, existing, err := seedTags(cmd.Context(), rt.db, event.DefaultTags)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d tags created, %d already present\n", created, existing)
			return nil
		},
	}
}

// seedTags ensures every name exists in the vocabulary.
func seedTags(ctx context.Context, st tagEnsurer, names []string) (created, existing int, err error) {
	for _, name := range names {
		_, isNew, err := st.EnsureTag(ctx, name)
		if err != nil {
			return created, existing, fmt.Errorf("ensure tag %q: %w", name, err)
		}
		if isNew {
			created++
		} else {
			existing++
		}
	}
	return created, existing, nil
}
