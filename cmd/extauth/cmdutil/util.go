// Package cmdutil provides shared utilities for extauth commands.
package cmdutil

import (
	"fmt"
	"os"

	"github.com/marmos91/extauth/internal/cli/output"
	"github.com/marmos91/extauth/internal/logger"
	"github.com/marmos91/extauth/pkg/auth"
	"github.com/marmos91/extauth/pkg/config"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ConfigFile string
	Output     string
	NoColor    bool
}

// LoadConfig loads the configuration named by --config, or the default one.
func LoadConfig() (*config.Config, error) {
	return config.MustLoad(Flags.ConfigFile)
}

// ConfigPath returns the file the configuration is read from.
func ConfigPath() string {
	if Flags.ConfigFile != "" {
		return Flags.ConfigFile
	}
	return config.GetDefaultConfigPath()
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// NewAuthenticator builds a coordinator sized by cfg.Cache and applies the
// provider sections of cfg. Broken entries are skipped with a warning; only
// whole-config errors such as a duplicated section fail.
func NewAuthenticator(cfg *config.Config, opts ...auth.Option) (*auth.Authenticator, error) {
	opts = append([]auth.Option{auth.WithAccessTokenCacheSize(cfg.Cache.AccessTokenEntries)}, opts...)
	a := auth.New(opts...)
	if err := a.SetConfiguration(cfg.Auth); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// OutputFormat parses the --output flag.
func OutputFormat() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// PrintOutput prints data in the format selected by --output.
func PrintOutput(data any) error {
	format, err := OutputFormat()
	if err != nil {
		return err
	}
	return output.Print(os.Stdout, format, data)
}

// PrintVerdict prints an authentication outcome line.
func PrintVerdict(ok bool, msg string) {
	output.Verdict(os.Stdout, ok, !Flags.NoColor, msg)
}

// ProvidersTable renders a coordinator summary.
type ProvidersTable auth.Summary

func (t ProvidersTable) Headers() []string {
	return []string{"Provider", "Name", "Details"}
}

func (t ProvidersTable) Rows() [][]string {
	var rows [][]string
	for _, name := range t.LDAPServers {
		rows = append(rows, []string{"ldap", name, ""})
	}
	if t.Kerberos {
		details := "no keytab"
		if t.KerberosAcceptor {
			details = "keytab loaded"
		}
		realm := t.KerberosRealm
		if realm == "" {
			realm = "(any realm)"
		}
		rows = append(rows, []string{"kerberos", realm, details})
	}
	for _, name := range t.HTTPServers {
		rows = append(rows, []string{"http", name, ""})
	}
	for i, name := range t.JWTValidators {
		rows = append(rows, []string{"jwt", name, fmt.Sprintf("order %d", i+1)})
	}
	for i, name := range t.AccessTokenProcessors {
		rows = append(rows, []string{"access_token", name, fmt.Sprintf("order %d", i+1)})
	}
	return rows
}
