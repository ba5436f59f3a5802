package main

import (
	"github.com/couchcryptid/icra-risk-service/internal/artifacts"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/spf13/cobra"
)

func newBundleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Inspect model bundles",
	}
	cmd.AddCommand(newBundleValidateCmd())
	return cmd
}

func newBundleValidateCmd() *cobra.Command {
	var (
		dir          string
		version      string
		requireModel bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load a bundle and report its schema and thresholds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := artifacts.Load(dir, version, requireModel)
			if err != nil {
				return err
			}
			return renderBundle(cmd.OutOrStdout(), b.Info())
		},
	}
	cmd.Flags().StringVar(&dir, "dir", sharedcfg.EnvOrDefault("MODEL_DIR", "models/icra"), "bundle directory")
	cmd.Flags().StringVar(&version, "version", sharedcfg.EnvOrDefault("MODEL_VERSION", "v1"), "bundle version")
	cmd.Flags().BoolVar(&requireModel, "require-model", false, "fail when the local model document is missing")
	return cmd
}
