package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewConfigCommand creates the config command, which prints the effective
// configuration after file, environment and defaults are merged.
func NewConfigCommand() *cobra.Command {
	cf := &configFlag{}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cf.load()
			if err != nil {
				return err
			}

			data, err := cfg.YAML()
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}

			_, err = cmd.OutOrStdout().Write(data)

			return err
		},
	}

	cf.register(cmd)

	return cmd
}
