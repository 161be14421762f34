// Package commands implements the extauth command line.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/extauth/cmd/extauth/cmdutil"
	"github.com/marmos91/extauth/cmd/extauth/commands/config"
	"github.com/marmos91/extauth/cmd/extauth/commands/jwt"
	"github.com/marmos91/extauth/cmd/extauth/commands/verify"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "extauth",
	Short: "extauth - pluggable external authentication",
	Long: `extauth verifies credentials against external identity providers:
LDAP directories, Kerberos, HTTP Basic authentication servers, JWT issuers
and OAuth access-token endpoints.

Run "extauth serve" to expose the verification endpoint, or use the verify
subcommands to check one credential against the configured providers.

Use "extauth [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "extauth %s (commit %s, built %s)\n", Version, Commit, Date)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cmdutil.Flags.ConfigFile, "config", "", "config file (default: $XDG_CONFIG_HOME/extauth/config.yaml)")
	flags.StringVarP(&cmdutil.Flags.Output, "output", "o", "table", "Output format (table|json|yaml)")
	flags.BoolVar(&cmdutil.Flags.NoColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(verify.Cmd)
	rootCmd.AddCommand(jwt.Cmd)
}
