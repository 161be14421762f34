package verify

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/marmos91/extauth/internal/cli/prompt"
	"github.com/marmos91/extauth/pkg/auth"
	"github.com/marmos91/extauth/pkg/credentials"
	"github.com/marmos91/extauth/pkg/settings"
)

var (
	httpUser     string
	httpPassword string
)

var httpCmd = &cobra.Command{
	Use:   "http <server>",
	Short: "Check a user name and password with an HTTP authentication server",
	Long: `Send --user and the password as HTTP Basic credentials to the named
HTTP authentication server. Settings returned by the server are printed.

Example:
  extauth verify http basic_server --user bob`,
	Args: cobra.ExactArgs(1),
	RunE: runHTTP,
}

func init() {
	httpCmd.Flags().StringVarP(&httpUser, "user", "u", "", "User name (required)")
	httpCmd.Flags().StringVarP(&httpPassword, "password", "p", "", "Password (prompted for if omitted)")
	_ = httpCmd.MarkFlagRequired("user")
}

func runHTTP(cmd *cobra.Command, args []string) error {
	server := args[0]

	password, err := prompt.Secret(httpPassword, "Password")
	if err != nil {
		return err
	}

	return withAuthenticator(cmd, func(ctx context.Context, a *auth.Authenticator) (*Result, error) {
		var changes settings.Changes
		ok, err := a.CheckHTTPBasicCredentials(ctx, server, credentials.NewBasic(httpUser, password), &changes)
		if err != nil || !ok {
			return nil, err
		}
		return &Result{User: httpUser, Settings: settingsMap(changes)}, nil
	})
}
