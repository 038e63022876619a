package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/crx-release/internal/service/pipeline"
)

var (
	// fix re-applies latest tags that drifted from the ledger.
	fix bool

	reconcileCmd = &cobra.Command{
		Use:   "reconcile [work-set]",
		Short: "Compare storage tags against the ledger.",
		Long: `Checks that the artifact recorded in the ledger exists and is the only one
carrying the latest tag. With --fix the tags are rewritten; missing artifacts are
reported and never repaired.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signalContext()
			defer stop()

			options := newOptions(args)
			options.Fix = fix

			return pipeline.Reconcile(ctx, options)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	reconcileCmd.Flags().BoolVar(&fix, "fix", false, "rewrite drifted latest tags")
	reconcileCmd.Flags().StringSliceVar(&only, "only", nil, "restrict the run to these component names or identities")

	rootCmd.AddCommand(reconcileCmd)
}
