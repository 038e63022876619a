package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/crx-release/internal/config"
	"github.com/oshokin/crx-release/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel overrides the configured log level.
	logLevel string

	// rootCmd represents the base command grouping the release subcommands.
	rootCmd = &cobra.Command{
		Use:   "crx-release",
		Short: "Publish browser components to object storage.",
		Long: `Packs, versions and publishes signed browser components.

Each component of the work set is fetched or read locally, compared against the
ledger, repacked with its signing key when the content changed, diffed against
previous versions and uploaded together with its patches. The ledger is updated
last so a failed run is retried with the same version.`,
		SilenceUsage: true,
	}
)

// Execute runs the crx-release CLI and exits with non-zero status on error.
func Execute() {
	rootCmd.AddCommand(version.NewCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGTERM or SIGINT.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename,
		"path to configuration file; when the default file is absent only the environment is read")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}
