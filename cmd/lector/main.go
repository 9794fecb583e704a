package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ekisa-team/lector/internal/config"
	"github.com/ekisa-team/lector/internal/envvar"
	"github.com/spf13/cobra"
)

var (
	configFile string
	schemaFile string
)

var rootCmd = &cobra.Command{
	Use:   "lector",
	Short: "Turn long-form text into segmented speech",
	Long: `lector splits text (typed or extracted from a PDF) into segments,
synthesizes each one through a speech provider, caches the audio on local
disk and merges finished segments into a single export.

Running lector without a subcommand starts the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", defaultConfigFile(), "path to config file")
	rootCmd.PersistentFlags().StringVar(&schemaFile, "schema", "", "path to a JSON schema overriding the embedded one")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(configCmd)
}

func defaultConfigFile() string {
	if path := os.Getenv(envvar.LectorConfigPath); path != "" {
		return path
	}
	return filepath.Join(config.DefaultConfigPath(), "config.yaml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
