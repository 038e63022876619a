package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCommand returns the `version` subcommand printing build metadata.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Long:  "Print the release tool version together with the commit hash and build timestamp injected at build time.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), Full())
		},
	}
}
