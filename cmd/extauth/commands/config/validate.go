package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/extauth/cmd/extauth/cmdutil"
	"github.com/marmos91/extauth/pkg/auth"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Load the configuration, parse every provider entry and list the ones that
are usable. Broken entries are reported as warnings and skipped, exactly as
the running server would skip them on reload.

The command fails if the file itself is invalid or a provider section
appears twice.

Examples:
  extauth config validate
  extauth config validate --config /etc/extauth/config.yaml -o json`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	if err := cmdutil.InitLogger(cfg); err != nil {
		return err
	}

	// No keytab polling: the coordinator lives only for this command.
	a, err := cmdutil.NewAuthenticator(cfg, auth.WithKeytabPollInterval(0))
	if err != nil {
		return fmt.Errorf("invalid provider configuration: %w", err)
	}
	defer func() { _ = a.Close() }()

	summary := a.Providers()
	if err := cmdutil.PrintOutput(cmdutil.ProvidersTable(summary)); err != nil {
		return err
	}

	if len(cmdutil.ProvidersTable(summary).Rows()) == 0 {
		cmdutil.PrintVerdict(false, "No usable authentication provider configured")
	}
	return nil
}
