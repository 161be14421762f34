package config

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/extauth/cmd/extauth/cmdutil"
	"github.com/marmos91/extauth/internal/cli/output"
	"github.com/marmos91/extauth/pkg/config"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective extauth configuration with defaults applied,
provider sections included. Provider sections may hold secrets such as bind
passwords and HMAC keys.

Examples:
  # Show as YAML
  extauth config show

  # Show a specific config file as JSON
  extauth config show --config /etc/extauth/config.yaml -o json`,
	RunE: runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}

	format, err := cmdutil.OutputFormat()
	if err != nil {
		return err
	}
	if format == output.FormatJSON {
		doc, err := config.Document(cfg)
		if err != nil {
			return err
		}
		return output.PrintJSON(os.Stdout, doc)
	}

	data, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
