package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-concierge/internal/intent"
)

func newConfigCmd(opts *options) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect runtime configuration",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and keyword table and report problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Keywords.Path != "" {
				if _, err := intent.LoadTable(cfg.Keywords.Path); err != nil {
					return fmt.Errorf("keywords.path: %w", err)
				}
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "config valid (runtime %s, assistant %s)\n", cfg.RuntimeName, cfg.Assistant.Endpoint)
			return err
		},
	})
	return configCmd
}
