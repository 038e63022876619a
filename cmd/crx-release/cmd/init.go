package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/crx-release/internal/config"
	"github.com/oshokin/crx-release/internal/service/pipeline"
)

// errWorkSetExists is returned instead of overwriting an existing work set.
var errWorkSetExists = errors.New("work set already exists")

var (
	// withWorkSet also writes a sample work set.
	withWorkSet bool

	initCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file with every default filled in.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) > 0 {
				path = args[0]
			}

			if err := config.Save(path, config.Default()); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)

			if !withWorkSet {
				return nil
			}

			return writeSampleWorkSet(cmd)
		},
	}
)

func writeSampleWorkSet(cmd *cobra.Command) error {
	if _, err := os.Stat(pipeline.DefaultWorkSetFilename); err == nil {
		return fmt.Errorf("%s: %w", pipeline.DefaultWorkSetFilename, errWorkSetExists)
	}

	sample := &pipeline.WorkSet{Components: []pipeline.Component{{
		Name:    "example",
		KeyFile: "keys/example.pem",
		Source:  "src/example",
	}}}

	data, err := yaml.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal work set: %w", err)
	}

	if err = os.WriteFile(pipeline.DefaultWorkSetFilename, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write work set: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", pipeline.DefaultWorkSetFilename)

	return nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	initCmd.Flags().BoolVar(&withWorkSet, "work-set", false, "also write a sample components.yaml")

	rootCmd.AddCommand(initCmd)
}
