package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/crx-release/internal/service/pipeline"
)

var (
	// only restricts the run to the listed component names or identities.
	only []string
	// concurrency overrides the configured number of components in flight.
	concurrency int

	publishCmd = &cobra.Command{
		Use:   "publish [work-set]",
		Short: "Publish every changed component of the work set.",
		Long: `Publishes components listed in the work set (a local path or URL,
components.yaml by default). Unchanged components are skipped without uploads.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signalContext()
			defer stop()

			return pipeline.Run(ctx, newOptions(args))
		},
	}
)

// newOptions collects the shared flags and the optional work set argument.
func newOptions(args []string) *pipeline.Options {
	workSet := pipeline.DefaultWorkSetFilename
	if len(args) > 0 {
		workSet = args[0]
	}

	return &pipeline.Options{
		ConfigPath:  configPath,
		WorkSet:     workSet,
		Only:        only,
		Concurrency: concurrency,
		LogLevel:    logLevel,
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	publishCmd.Flags().StringSliceVar(&only, "only", nil, "restrict the run to these component names or identities")
	publishCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of components processed at once")

	rootCmd.AddCommand(publishCmd)
}
