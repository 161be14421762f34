package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/extauth/internal/cli/prompt"
	"github.com/marmos91/extauth/pkg/auth"
	"github.com/marmos91/extauth/pkg/auth/ldap"
	"github.com/marmos91/extauth/pkg/credentials"
)

var (
	ldapUser       string
	ldapPassword   string
	ldapRoleSearch []string
)

var ldapCmd = &cobra.Command{
	Use:   "ldap <server>",
	Short: "Bind to an LDAP server and run role searches",
	Long: `Bind to the named LDAP server as --user and run the given role searches.

A role search is "base_dn|search_filter[|prefix]". The password is prompted
for when --password is omitted.

Examples:
  extauth verify ldap corp_ldap --user alice
  extauth verify ldap corp_ldap --user alice \
    --role-search 'ou=groups,dc=example,dc=com|(member={user_dn})|ch_'`,
	Args: cobra.ExactArgs(1),
	RunE: runLDAP,
}

func init() {
	ldapCmd.Flags().StringVarP(&ldapUser, "user", "u", "", "User name (required)")
	ldapCmd.Flags().StringVarP(&ldapPassword, "password", "p", "", "Password (prompted for if omitted)")
	ldapCmd.Flags().StringArrayVar(&ldapRoleSearch, "role-search", nil, "Role search as base_dn|search_filter[|prefix], repeatable")
	_ = ldapCmd.MarkFlagRequired("user")
}

// parseRoleSearch parses "base_dn|search_filter[|prefix]".
func parseRoleSearch(input string) (ldap.RoleSearchParams, error) {
	parts := strings.Split(input, "|")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return ldap.RoleSearchParams{}, fmt.Errorf("invalid role search %q: want base_dn|search_filter[|prefix]", input)
	}
	prefix := ""
	if len(parts) == 3 {
		prefix = parts[2]
	}
	return ldap.NewRoleSearchParams(parts[0], parts[1], prefix), nil
}

func runLDAP(cmd *cobra.Command, args []string) error {
	server := args[0]

	roleSearch := make([]ldap.RoleSearchParams, 0, len(ldapRoleSearch))
	for _, input := range ldapRoleSearch {
		rs, err := parseRoleSearch(input)
		if err != nil {
			return err
		}
		roleSearch = append(roleSearch, rs)
	}

	password, err := prompt.Secret(ldapPassword, "Password")
	if err != nil {
		return err
	}

	return withAuthenticator(cmd, func(ctx context.Context, a *auth.Authenticator) (*Result, error) {
		ok, results, err := a.CheckLDAPCredentials(ctx, server, credentials.NewBasic(ldapUser, password), roleSearch)
		if err != nil || !ok {
			return nil, err
		}

		res := &Result{User: ldapUser}
		for _, roles := range results {
			res.Roles = append(res.Roles, roles)
		}
		return res, nil
	})
}
