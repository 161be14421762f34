package verify

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/extauth/pkg/auth"
)

var (
	kerberosToken string
	kerberosRealm string
)

var kerberosCmd = &cobra.Command{
	Use:   "kerberos",
	Short: "Accept a Kerberos context token with the configured keytab",
	Long: `Accept a base64 SPNEGO, GSS-API or bare AP-REQ token, as found after
"Negotiate " in an HTTP Authorization header, with the keytab of the
kerberos section.

Example:
  extauth verify kerberos --token "$NEGOTIATE_TOKEN" --realm EXAMPLE.COM`,
	Args: cobra.NoArgs,
	RunE: runKerberos,
}

func init() {
	kerberosCmd.Flags().StringVarP(&kerberosToken, "token", "t", "", "Base64 context token (required)")
	kerberosCmd.Flags().StringVar(&kerberosRealm, "realm", "", "Required realm (default: any)")
	_ = kerberosCmd.MarkFlagRequired("token")
}

func runKerberos(cmd *cobra.Command, args []string) error {
	token, err := base64.StdEncoding.DecodeString(kerberosToken)
	if err != nil {
		return fmt.Errorf("token is not valid base64: %w", err)
	}

	return withAuthenticator(cmd, func(ctx context.Context, a *auth.Authenticator) (*Result, error) {
		creds, ok, err := a.AcceptKerberos(ctx, kerberosRealm, token)
		if err != nil || !ok {
			return nil, err
		}

		res := &Result{}
		res.User, _ = creds.UserName()
		res.Realm, _ = creds.Realm()
		return res, nil
	})
}
