// Package config implements the "halcyond config" command group.
package config

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/halcyonline/halcyon/internal/cli/output"
	"github.com/halcyonline/halcyon/pkg/config"
)

// Cmd is the parent command for configuration operations.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Inspect and validate the Halcyon configuration.

Examples:
  halcyond config show
  halcyond config validate
  halcyond config schema --output config.schema.json`,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Print the effective configuration after merging the config file,
environment overrides and defaults.`,
	RunE: runConfigShow,
}

func init() {
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(schemaCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	return output.PrintYAML(os.Stdout, cfg)
}
