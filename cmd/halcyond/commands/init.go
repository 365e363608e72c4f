package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/halcyonline/halcyon/internal/cli/prompt"
	"github.com/halcyonline/halcyon/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Write a default Halcyon configuration file.

By default the file is created at $XDG_CONFIG_HOME/halcyon/config.yaml.
Use --config to pick a custom path. An existing file is only replaced
after confirmation, or immediately with --force.

Examples:
  halcyond init
  halcyond init --config /etc/halcyon/config.yaml
  halcyond init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file without asking")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Config file %s exists, overwrite", path), initForce)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), path); err != nil {
		return fmt.Errorf("initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Create the file area and accounts directories named in the config")
	fmt.Println("  2. Add account files (see: halcyond accounts hash)")
	fmt.Println("  3. Start the server with: halcyond start")
	return nil
}
