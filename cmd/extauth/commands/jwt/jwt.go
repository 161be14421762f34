// Package jwt implements token issuing with the keys of configured JWT
// validators.
package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/marmos91/extauth/cmd/extauth/cmdutil"
	"github.com/marmos91/extauth/pkg/auth"
	"github.com/marmos91/extauth/pkg/settings"
)

var (
	subject string
	claims  string
	ttl     time.Duration
)

// Cmd is the jwt subcommand.
var Cmd = &cobra.Command{
	Use:   "jwt",
	Short: "Work with JWT validators",
	Long: `Work with the JWT validators of the configuration file.

Subcommands:
  sign  Issue a token with a validator's own key`,
}

var signCmd = &cobra.Command{
	Use:   "sign <validator>",
	Short: "Issue a token with a validator's key",
	Long: `Issue a JWT signed with the key of a configured validator. Only validators
with an HMAC static_key or a private_key can sign. The token is written to
stdout, so it can be fed to "extauth verify jwt".

Examples:
  extauth jwt sign hmac --subject alice
  extauth jwt sign rs256 --subject alice --ttl 10m --claims '{"groups":["admins"]}'`,
	Args: cobra.ExactArgs(1),
	RunE: runSign,
}

func init() {
	signCmd.Flags().StringVar(&subject, "subject", "", "Value of the sub claim")
	signCmd.Flags().StringVar(&claims, "claims", "", "JSON object of additional claims")
	signCmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime; 0 issues a token without exp")
	_ = signCmd.MarkFlagRequired("subject")

	Cmd.AddCommand(signCmd)
}

func runSign(cmd *cobra.Command, args []string) error {
	payload, err := buildClaims(subject, claims, ttl, time.Now())
	if err != nil {
		return err
	}

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

	token, err := a.SignJWT(args[0], payload)
	if err != nil {
		return fmt.Errorf("failed to sign with validator %q: %w", args[0], err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

// buildClaims merges extra into the registered claims. sub, iat and exp
// always come from the flags.
func buildClaims(sub, extra string, ttl time.Duration, now time.Time) (jwt.MapClaims, error) {
	out := jwt.MapClaims{}
	if extra != "" {
		decoded, err := settings.DecodeJSON([]byte(extra))
		if err != nil {
			return nil, fmt.Errorf("invalid --claims: %w", err)
		}
		obj, ok := decoded.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid --claims: want a JSON object")
		}
		for k, v := range obj {
			out[k] = v
		}
	}

	out["sub"] = sub
	out["iat"] = now.Unix()
	if ttl > 0 {
		out["exp"] = now.Add(ttl).Unix()
	} else {
		delete(out, "exp")
	}
	return out, nil
}
