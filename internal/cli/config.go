package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/graaaaa/eventhub/internal/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}
	cmd.AddCommand(newConfigInitCommand(rootOpts))
	cmd.AddCommand(newConfigPathCommand(rootOpts))
	return cmd
}

func newConfigInitCommand(rootOpts *RootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write default config.yaml and admin credentials",
		Long: `Write config.yaml with defaults and create secrets.json with generated
admin credentials. Existing files are kept unless --force is given; an
existing secrets file only gains the credentials it lacks.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := resolvePaths(rootOpts)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(paths.Dir, 0700); err != nil {
				return fmt.Errorf("create data dir %q: %w", paths.Dir, err)
			}
			out := cmd.OutOrStdout()

			_, statErr := os.Stat(paths.Config())
			switch {
			case force || errors.Is(statErr, os.ErrNotExist):
				if err := config.SaveConfigTo(config.DefaultConfig(), paths.Config()); err != nil {
					return err
				}
				fmt.Fprintf(out, "wrote %s\n", paths.Config())
			case statErr != nil:
				return fmt.Errorf("stat config: %w", statErr)
			default:
				fmt.Fprintf(out, "kept %s\n", paths.Config())
			}

			sec, status, err := config.LoadSecretsFrom(paths.Secrets())
			if status == config.SecretsFallback {
				if !force {
					return fmt.Errorf("secrets file unreadable, rerun with --force to replace it: %w", err)
				}
				sec = config.DefaultSecrets()
			}
			updated, generated, err := config.EnsureAdminAuth(&sec)
			if err != nil {
				return err
			}
			if !updated {
				fmt.Fprintf(out, "kept %s\n", paths.Secrets())
				return nil
			}
			if err := config.SaveSecretsTo(sec, paths.Secrets()); err != nil {
				return err
			}
			fmt.Fprintf(out, "wrote %s\n", paths.Secrets())
			if generated != "" {
				pwPath, err := config.WritePasswordFile(paths.Dir, sec.AdminUsername, generated)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "admin credentials in %s (delete it after saving them)\n", pwPath)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}

func newConfigPathCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := resolvePaths(rootOpts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), paths.Dir)
			return nil
		},
	}
}
