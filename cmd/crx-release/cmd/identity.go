package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/crx-release/internal/domain/release"
)

var identityCmd = &cobra.Command{
	Use:   "identity <key-file>",
	Short: "Print the component identity derived from a signing key.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := release.IdentityFromKeyFile(args[0])
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), id)

		return err
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(identityCmd)
}
