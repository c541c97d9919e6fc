package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/tgen/internal/config"
)

// NewTgenCommand creates the root command for the tgen tool.
func NewTgenCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "tgen",
		Short: "Search-based unit test generation.",
		Long: `tgen evolves unit tests against a class set and keeps the best test
found for every coverage target in an archive.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: search configs/config.yaml)")

	load := func() (*config.Config, error) {
		cfg, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}

	cmd.AddCommand(NewRunCommand(load))
	cmd.AddCommand(NewInspectCommand(load))

	return cmd
}
