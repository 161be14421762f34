// Package verify implements one-shot credential checks against the
// configured providers, without running the server.
package verify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/extauth/cmd/extauth/cmdutil"
	"github.com/marmos91/extauth/pkg/auth"
	"github.com/marmos91/extauth/pkg/settings"
)

// ErrRejected is returned when the provider answered and said no.
var ErrRejected = errors.New("authentication failed")

var timeout time.Duration

// Cmd is the verify subcommand.
var Cmd = &cobra.Command{
	Use:   "verify",
	Short: "Check one credential against the configured providers",
	Long: `Check one credential against the providers of the configuration file.

The command exits with status 1 when the credential is rejected or the
provider cannot be reached.

Subcommands:
  ldap      Bind to an LDAP server and run role searches
  http      Forward a user name and password to an HTTP authentication server
  jwt       Verify a JWT signature and optional claims
  token     Resolve an opaque access token
  kerberos  Accept a base64 SPNEGO or Kerberos AP-REQ token`,
}

func init() {
	Cmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Maximum time to wait for the provider")

	Cmd.AddCommand(ldapCmd)
	Cmd.AddCommand(httpCmd)
	Cmd.AddCommand(jwtCmd)
	Cmd.AddCommand(tokenCmd)
	Cmd.AddCommand(kerberosCmd)
}

// withAuthenticator loads the configuration, builds a short-lived
// coordinator and runs fn with it.
func withAuthenticator(cmd *cobra.Command, fn func(ctx context.Context, a *auth.Authenticator) (*Result, error)) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	if err := cmdutil.InitLogger(cfg); err != nil {
		return err
	}

	a, err := cmdutil.NewAuthenticator(cfg, auth.WithKeytabPollInterval(0))
	if err != nil {
		return fmt.Errorf("invalid provider configuration: %w", err)
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	res, err := fn(ctx, a)
	if err != nil {
		return err
	}
	if res == nil {
		cmdutil.PrintVerdict(false, "Rejected")
		return ErrRejected
	}

	cmdutil.PrintVerdict(true, "Authenticated")
	return cmdutil.PrintOutput(res)
}

// Result describes an accepted credential.
type Result struct {
	User      string         `json:"user" yaml:"user"`
	Realm     string         `json:"realm,omitempty" yaml:"realm,omitempty"`
	Groups    []string       `json:"groups,omitempty" yaml:"groups,omitempty"`
	Roles     [][]string     `json:"roles,omitempty" yaml:"roles,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Settings  map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// Pairs lists the populated fields, settings last and sorted by name.
func (r *Result) Pairs() [][2]string {
	rows := [][2]string{{"user", r.User}}
	if r.Realm != "" {
		rows = append(rows, [2]string{"realm", r.Realm})
	}
	if len(r.Groups) > 0 {
		rows = append(rows, [2]string{"groups", strings.Join(r.Groups, ", ")})
	}
	for i, roles := range r.Roles {
		rows = append(rows, [2]string{fmt.Sprintf("roles[%d]", i), strings.Join(roles, ", ")})
	}
	if r.ExpiresAt != nil {
		rows = append(rows, [2]string{"expires_at", r.ExpiresAt.Format(time.RFC3339)})
	}

	names := make([]string, 0, len(r.Settings))
	for name := range r.Settings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rows = append(rows, [2]string{"setting " + name, settings.FormatValue(r.Settings[name])})
	}
	return rows
}

func settingsMap(changes settings.Changes) map[string]any {
	if len(changes) == 0 {
		return nil
	}
	return changes.Map()
}
