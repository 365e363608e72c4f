package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/halcyonline/halcyon/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the Halcyon configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  halcyond config validate

  # Validate specific config file
  halcyond config validate --config /etc/halcyon/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if cfg.Server.AllowGuests {
		warnings = append(warnings, "guest access is enabled - anyone can log in as 'guest'")
	}
	if cfg.Server.AgreementPath == "" {
		warnings = append(warnings, "no agreement file configured - clients connect without one")
	}

	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Server name:     %s\n", cfg.Server.Name)
	fmt.Printf("  Control port:    %d\n", cfg.Server.Port)
	fmt.Printf("  Transfer port:   %d\n", cfg.Server.TransferPort)
	fmt.Printf("  File root:       %s\n", cfg.Files.Root)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
