package kerberos

import (
	"os"
	"strings"
	"time"

	"github.com/marmos91/extauth/pkg/autherr"
	"github.com/marmos91/extauth/pkg/config"
)

// DefaultMaxClockSkew bounds the difference between the client
// authenticator timestamp and the local clock.
const DefaultMaxClockSkew = 5 * time.Minute

// Params is the parsed kerberos section.
type Params struct {
	// Realm, when set, is the only realm whose principals are accepted.
	Realm string

	// Principal is the service principal to accept for. Empty means any
	// principal present in the keytab.
	Principal string

	// Keytab is the service keytab path. Empty disables the acceptor; the
	// realm check still works for contexts established elsewhere.
	Keytab string

	// Krb5Conf is an optional krb5.conf used to qualify a principal that
	// carries no realm.
	Krb5Conf string

	MaxClockSkew time.Duration
}

type rawParams struct {
	Realm        string        `mapstructure:"realm"`
	Principal    string        `mapstructure:"principal"`
	Keytab       string        `mapstructure:"keytab"`
	Krb5Conf     string        `mapstructure:"krb5_conf"`
	MaxClockSkew time.Duration `mapstructure:"max_clock_skew"`
}

// ParseParams decodes the kerberos section. realm and principal are
// mutually exclusive, and neither may be given more than once.
func ParseParams(section config.AuthSection) (Params, error) {
	var realms, principals int
	for _, e := range section.Entries {
		switch strings.ToLower(e.Name) {
		case "realm":
			realms++
		case "principal":
			principals++
		}
	}

	cfgErr := func(key, format string, args ...any) error {
		return autherr.NewConfigError(config.SectionKerberos, "", key, format, args...)
	}

	switch {
	case realms > 0 && principals > 0:
		return Params{}, cfgErr("", "realm and principal name cannot be specified simultaneously")
	case realms > 1:
		return Params{}, cfgErr("realm", "multiple realm sections are not allowed")
	case principals > 1:
		return Params{}, cfgErr("principal", "multiple principal sections are not allowed")
	}

	values := make(map[string]any, len(section.Entries))
	for _, e := range section.Entries {
		values[strings.ToLower(e.Name)] = e.Value
	}

	var rp rawParams
	if _, err := config.DecodeEntry(values, &rp); err != nil {
		return Params{}, cfgErr("", "%v", err)
	}
	if rp.MaxClockSkew < 0 {
		return Params{}, cfgErr("max_clock_skew", "must not be negative")
	}

	p := Params{
		Realm:        rp.Realm,
		Principal:    resolveServicePrincipal(rp.Principal),
		Keytab:       resolveKeytabPath(rp.Keytab),
		Krb5Conf:     resolveKrb5ConfPath(rp.Krb5Conf),
		MaxClockSkew: rp.MaxClockSkew,
	}
	if p.MaxClockSkew == 0 {
		p.MaxClockSkew = DefaultMaxClockSkew
	}
	if p.Realm != "" && p.Principal != "" {
		return Params{}, cfgErr("principal", "realm and principal name cannot be specified simultaneously")
	}
	return p, nil
}

// resolveKeytabPath resolves the keytab path with environment variable override.
//
// Resolution order (highest priority first):
//  1. EXTAUTH_KERBEROS_KEYTAB env var
//  2. configPath from configuration file
func resolveKeytabPath(configPath string) string {
	if envPath := os.Getenv("EXTAUTH_KERBEROS_KEYTAB"); envPath != "" {
		return envPath
	}
	return configPath
}

// resolveServicePrincipal resolves the service principal with environment variable override.
func resolveServicePrincipal(configPrincipal string) string {
	if envSPN := os.Getenv("EXTAUTH_KERBEROS_PRINCIPAL"); envSPN != "" {
		return envSPN
	}
	return configPrincipal
}

// resolveKrb5ConfPath resolves the krb5.conf path. Unlike the keytab there
// is no fallback to /etc/krb5.conf: the file is only read when asked for.
func resolveKrb5ConfPath(configPath string) string {
	if envPath := os.Getenv("EXTAUTH_KERBEROS_KRB5CONF"); envPath != "" {
		return envPath
	}
	return configPath
}
