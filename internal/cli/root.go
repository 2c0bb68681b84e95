// Package cli implements concierge-ctl, the operator tool for checking a
// configuration, trying keyword tables and poking a running daemon.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-concierge/internal/config"
)

type options struct {
	configPath string
	envFile    string
	verbose    bool
}

func Execute(version string) error {
	return NewRootCmd(version).Execute()
}

func NewRootCmd(version string) *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "concierge-ctl",
		Short:         "Operate a loqa concierge runtime",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&opts.envFile, "env", "e", ".env", "Dotenv file loaded before the configuration")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log to stderr")

	rootCmd.AddCommand(
		newVersionCmd(version),
		newConfigCmd(opts),
		newInterpretCmd(opts),
		newSendCmd(opts),
		newCommandCmd(opts),
	)
	return rootCmd
}

func (o *options) loadConfig() (config.Config, error) {
	if err := config.LoadEnv(o.envFile); err != nil {
		return config.Config{}, err
	}
	return config.Load(o.configPath)
}

func (o *options) logger(cmd *cobra.Command) *slog.Logger {
	var w io.Writer = io.Discard
	if o.verbose {
		w = cmd.ErrOrStderr()
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
