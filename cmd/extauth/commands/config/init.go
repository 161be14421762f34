package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/extauth/cmd/extauth/cmdutil"
	"github.com/marmos91/extauth/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Write a sample extauth configuration file with one LDAP server and one
JWT validator to adapt.

By default, the file is created at $XDG_CONFIG_HOME/extauth/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  extauth config init

  # Force overwrite existing config
  extauth config init --config /etc/extauth/config.yaml --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := cmdutil.ConfigPath()

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := config.SaveConfig(config.GetSampleConfig(), path); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration file created at: %s\n", path)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Edit the provider sections for your directory and identity provider")
	fmt.Fprintf(out, "  2. Check them with: extauth config validate --config %s\n", path)
	fmt.Fprintf(out, "  3. Start the endpoint with: extauth serve --config %s\n", path)
	return nil
}
