package main

import (
	"fmt"

	"github.com/ekisa-team/lector/internal/config"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
)

var configResolved bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the default configuration as YAML",
	Long: `Print the default configuration as YAML.

With --resolved the config file, environment overrides and validation are
applied first, so the output shows what "lector serve" would run with.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.Default()
		if configResolved {
			loaded, err := config.LoadAndValidate(configFile, schemaFile)
			if err != nil {
				return err
			}
			cfg = *loaded
			cfg.Synthesis.OpenAI.APIKey = ""
		}

		data, err := yaml.Marshal(&cfg)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	configCmd.Flags().BoolVar(&configResolved, "resolved", false, "apply the config file and environment overrides")
}
