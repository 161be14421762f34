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
	jwtToken  string
	jwtClaims string

	accessToken    string
	tokenProcessor string
)

var jwtCmd = &cobra.Command{
	Use:   "jwt",
	Short: "Verify a JWT signature and optional claims",
	Long: `Verify a JWT against the configured validators in order. With --claims the
payload must also match the given JSON object; array claims match when any
element matches.

Examples:
  extauth verify jwt --token "$TOKEN"
  extauth verify jwt --token "$TOKEN" --claims '{"groups":"admins"}'`,
	Args: cobra.NoArgs,
	RunE: runJWT,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Resolve an opaque access token",
	Long: `Resolve an OAuth access token with the configured processors. With
--processor only that processor is asked and the cache is bypassed.

Examples:
  extauth verify token --token "$ACCESS_TOKEN"
  extauth verify token --token "$ACCESS_TOKEN" --processor google`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	jwtCmd.Flags().StringVarP(&jwtToken, "token", "t", "", "Encoded JWT (prompted for if omitted)")
	jwtCmd.Flags().StringVar(&jwtClaims, "claims", "", "JSON object the payload must match")

	tokenCmd.Flags().StringVarP(&accessToken, "token", "t", "", "Access token (prompted for if omitted)")
	tokenCmd.Flags().StringVar(&tokenProcessor, "processor", "", "Only use this processor")
}

func tokenResult(tok *credentials.Token) *Result {
	res := &Result{}
	res.User, _ = tok.UserName()
	res.Groups, _ = tok.Groups()
	if exp, ok, err := tok.Expiry(); err == nil && ok {
		exp = exp.UTC()
		res.ExpiresAt = &exp
	}
	return res
}

func runJWT(cmd *cobra.Command, args []string) error {
	raw, err := prompt.Secret(jwtToken, "JWT")
	if err != nil {
		return err
	}

	return withAuthenticator(cmd, func(ctx context.Context, a *auth.Authenticator) (*Result, error) {
		tok := credentials.NewToken(raw)
		var changes settings.Changes

		var ok bool
		var err error
		if jwtClaims == "" {
			ok, err = a.ResolveJWTCredentials(ctx, tok, true)
		} else {
			ok, err = a.CheckJWTClaims(ctx, jwtClaims, tok, &changes)
		}
		if err != nil || !ok {
			return nil, err
		}

		res := tokenResult(tok)
		res.Settings = settingsMap(changes)
		return res, nil
	})
}

func runToken(cmd *cobra.Command, args []string) error {
	raw, err := prompt.Secret(accessToken, "Access token")
	if err != nil {
		return err
	}

	return withAuthenticator(cmd, func(ctx context.Context, a *auth.Authenticator) (*Result, error) {
		tok := credentials.NewToken(raw)

		var ok bool
		var err error
		if tokenProcessor == "" {
			ok, err = a.CheckAccessTokenCredentials(ctx, tok)
		} else {
			ok, err = a.CheckAccessTokenCredentialsByExactProcessor(ctx, tok, tokenProcessor)
		}
		if err != nil || !ok {
			return nil, err
		}
		return tokenResult(tok), nil
	})
}
