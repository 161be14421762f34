// Package ldap verifies user name and password pairs by binding to an LDAP
// directory, optionally searching for the user's roles, and caches
// successful verifications for a configurable cooldown.
package ldap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/extauth/pkg/autherr"
	"github.com/marmos91/extauth/pkg/config"
)

// TLSEnable selects how the connection is secured.
type TLSEnable int

const (
	TLSNo TLSEnable = iota
	TLSYesStartTLS
	TLSYes
)

func (t TLSEnable) String() string {
	switch t {
	case TLSNo:
		return "no"
	case TLSYesStartTLS:
		return "starttls"
	default:
		return "yes"
	}
}

// TLSProtocolVersion is the minimum accepted TLS protocol version.
type TLSProtocolVersion int

const (
	TLSVersionSSL2 TLSProtocolVersion = iota
	TLSVersionSSL3
	TLSVersion10
	TLSVersion11
	TLSVersion12
)

var tlsVersionNames = map[string]TLSProtocolVersion{
	"ssl2":   TLSVersionSSL2,
	"ssl3":   TLSVersionSSL3,
	"tls1.0": TLSVersion10,
	"tls1.1": TLSVersion11,
	"tls1.2": TLSVersion12,
}

// TLSRequireCert is the peer certificate policy, named after the OpenLDAP
// TLS_REQCERT levels.
type TLSRequireCert int

const (
	TLSRequireNever TLSRequireCert = iota
	TLSRequireAllow
	TLSRequireTry
	TLSRequireDemand
)

var tlsRequireCertNames = map[string]TLSRequireCert{
	"never":  TLSRequireNever,
	"allow":  TLSRequireAllow,
	"try":    TLSRequireTry,
	"demand": TLSRequireDemand,
}

// Scope is an LDAP search scope.
type Scope int

const (
	ScopeBase Scope = iota
	ScopeOneLevel
	ScopeSubtree
	ScopeChildren
)

var scopeNames = map[string]Scope{
	"base":      ScopeBase,
	"one_level": ScopeOneLevel,
	"subtree":   ScopeSubtree,
	"children":  ScopeChildren,
}

// Defaults for server entries.
const (
	DefaultPortTLS      = 636
	DefaultPort         = 389
	DefaultSearchLimit  = 256
	DefaultTimeout      = 30 * time.Second
	DefaultCipherSuite  = "ALL"
	userNamePlaceholder = "{user_name}"
)

// SearchParams describes one directory search.
type SearchParams struct {
	BaseDN       string
	SearchFilter string
	Attribute    string
	Scope        Scope
}

// RoleSearchParams is a search whose results name roles. Values starting
// with Prefix are kept with the prefix removed; other values are dropped.
type RoleSearchParams struct {
	SearchParams
	Prefix string
}

// NewRoleSearchParams returns role search params with default scope and
// attribute.
func NewRoleSearchParams(baseDN, filter, prefix string) RoleSearchParams {
	return RoleSearchParams{
		SearchParams: SearchParams{
			BaseDN:       baseDN,
			SearchFilter: filter,
			Attribute:    "cn",
			Scope:        ScopeSubtree,
		},
		Prefix: prefix,
	}
}

// SearchResults is the sorted, deduplicated set of values one search
// produced.
type SearchResults []string

// SearchResultsList holds one SearchResults per requested role search.
type SearchResultsList []SearchResults

// Clone returns a deep copy.
func (l SearchResultsList) Clone() SearchResultsList {
	if l == nil {
		return nil
	}
	out := make(SearchResultsList, len(l))
	for i, r := range l {
		out[i] = append(SearchResults(nil), r...)
	}
	return out
}

// Params is one configured LDAP server, plus the credentials being checked
// once merged by the caller.
type Params struct {
	Host string
	Port int

	// BindDN is a template; {user_name} is replaced with the escaped user
	// name.
	BindDN string

	UserDNDetection *SearchParams

	VerificationCooldown time.Duration

	EnableTLS                 TLSEnable
	TLSMinimumProtocolVersion TLSProtocolVersion
	TLSRequireCert            TLSRequireCert
	TLSCertFile               string
	TLSKeyFile                string
	TLSCACertFile             string
	TLSCACertDir              string
	TLSCipherSuite            string

	SearchLimit uint32
	Timeout     time.Duration

	User     string
	Password string
}

// WithCredentials returns a copy of p carrying user and password.
func (p Params) WithCredentials(user, password string) Params {
	p.User = user
	p.Password = password
	if p.UserDNDetection != nil {
		d := *p.UserDNDetection
		p.UserDNDetection = &d
	}
	return p
}

type rawSearchParams struct {
	BaseDN       *string `mapstructure:"base_dn"`
	SearchFilter *string `mapstructure:"search_filter"`
	Attribute    *string `mapstructure:"attribute"`
	Scope        *string `mapstructure:"scope"`
}

type rawParams struct {
	Host                      *string          `mapstructure:"host"`
	Port                      *int64           `mapstructure:"port"`
	BindDN                    *string          `mapstructure:"bind_dn"`
	AuthDNPrefix              *string          `mapstructure:"auth_dn_prefix"`
	AuthDNSuffix              *string          `mapstructure:"auth_dn_suffix"`
	UserDNDetection           *rawSearchParams `mapstructure:"user_dn_detection"`
	VerificationCooldown      *int64           `mapstructure:"verification_cooldown"`
	EnableTLS                 *string          `mapstructure:"enable_tls"`
	TLSMinimumProtocolVersion *string          `mapstructure:"tls_minimum_protocol_version"`
	TLSRequireCert            *string          `mapstructure:"tls_require_cert"`
	TLSCertFile               string           `mapstructure:"tls_cert_file"`
	TLSKeyFile                string           `mapstructure:"tls_key_file"`
	TLSCACertFile             string           `mapstructure:"tls_ca_cert_file"`
	TLSCACertDir              string           `mapstructure:"tls_ca_cert_dir"`
	TLSCipherSuite            *string          `mapstructure:"tls_cipher_suite"`
	SearchLimit               *int64           `mapstructure:"search_limit"`
}

// ParseParams decodes one ldap_servers entry.
func ParseParams(name string, raw any) (Params, error) {
	cfgErr := func(key, format string, args ...any) error {
		return autherr.NewConfigError(config.SectionLDAPServers, name, key, format, args...)
	}

	if name == "" {
		return Params{}, cfgErr("", "LDAP server name cannot be empty")
	}

	var rp rawParams
	if _, err := config.DecodeEntry(raw, &rp); err != nil {
		return Params{}, cfgErr("", "%v", err)
	}

	p := Params{
		BindDN:                    userNamePlaceholder,
		EnableTLS:                 TLSYes,
		TLSMinimumProtocolVersion: TLSVersion12,
		TLSRequireCert:            TLSRequireDemand,
		TLSCipherSuite:            DefaultCipherSuite,
		SearchLimit:               DefaultSearchLimit,
		Timeout:                   DefaultTimeout,
		TLSCertFile:               rp.TLSCertFile,
		TLSKeyFile:                rp.TLSKeyFile,
		TLSCACertFile:             rp.TLSCACertFile,
		TLSCACertDir:              rp.TLSCACertDir,
	}

	if rp.Host == nil {
		return Params{}, cfgErr("host", "missing entry")
	}
	if *rp.Host == "" {
		return Params{}, cfgErr("host", "empty entry")
	}
	p.Host = *rp.Host

	switch {
	case rp.BindDN != nil:
		if rp.AuthDNPrefix != nil || rp.AuthDNSuffix != nil {
			return Params{}, cfgErr("bind_dn", "deprecated auth_dn_prefix and auth_dn_suffix cannot be used with bind_dn")
		}
		p.BindDN = *rp.BindDN
	case rp.AuthDNPrefix != nil || rp.AuthDNSuffix != nil:
		p.BindDN = deref(rp.AuthDNPrefix) + userNamePlaceholder + deref(rp.AuthDNSuffix)
	}

	if rp.UserDNDetection != nil {
		sp := SearchParams{Attribute: "dn", Scope: ScopeSubtree}
		if err := applySearchParams(&sp, rp.UserDNDetection); err != nil {
			return Params{}, cfgErr("user_dn_detection", "%v", err)
		}
		p.UserDNDetection = &sp
	}

	if rp.VerificationCooldown != nil {
		if *rp.VerificationCooldown < 0 {
			return Params{}, cfgErr("verification_cooldown", "must not be negative")
		}
		p.VerificationCooldown = time.Duration(*rp.VerificationCooldown) * time.Second
	}

	if rp.EnableTLS != nil {
		v, err := parseEnableTLS(*rp.EnableTLS)
		if err != nil {
			return Params{}, cfgErr("enable_tls", "%v", err)
		}
		p.EnableTLS = v
	}

	if rp.TLSMinimumProtocolVersion != nil {
		v, ok := tlsVersionNames[strings.ToLower(*rp.TLSMinimumProtocolVersion)]
		if !ok {
			return Params{}, cfgErr("tls_minimum_protocol_version",
				"bad value %q, allowed values are: 'ssl2', 'ssl3', 'tls1.0', 'tls1.1', 'tls1.2'", *rp.TLSMinimumProtocolVersion)
		}
		p.TLSMinimumProtocolVersion = v
	}

	if rp.TLSRequireCert != nil {
		v, ok := tlsRequireCertNames[strings.ToLower(*rp.TLSRequireCert)]
		if !ok {
			return Params{}, cfgErr("tls_require_cert",
				"bad value %q, allowed values are: 'never', 'allow', 'try', 'demand'", *rp.TLSRequireCert)
		}
		p.TLSRequireCert = v
	}

	if rp.TLSCipherSuite != nil {
		p.TLSCipherSuite = *rp.TLSCipherSuite
	}

	if rp.Port != nil {
		if *rp.Port < 0 || *rp.Port > 65535 {
			return Params{}, cfgErr("port", "bad value %d", *rp.Port)
		}
		p.Port = int(*rp.Port)
	} else if p.EnableTLS == TLSYes {
		p.Port = DefaultPortTLS
	} else {
		p.Port = DefaultPort
	}

	if rp.SearchLimit != nil {
		if *rp.SearchLimit < 0 || *rp.SearchLimit > int64(^uint32(0)) {
			return Params{}, cfgErr("search_limit", "bad value %d", *rp.SearchLimit)
		}
		p.SearchLimit = uint32(*rp.SearchLimit)
	}

	return p, nil
}

// ParseRoleSearchParams decodes a role search definition as found in a
// user directory configuration.
func ParseRoleSearchParams(raw any) (RoleSearchParams, error) {
	var rs struct {
		BaseDN       *string `mapstructure:"base_dn"`
		SearchFilter *string `mapstructure:"search_filter"`
		Attribute    *string `mapstructure:"attribute"`
		Scope        *string `mapstructure:"scope"`
		Prefix       string  `mapstructure:"prefix"`
	}
	if _, err := config.DecodeEntry(raw, &rs); err != nil {
		return RoleSearchParams{}, err
	}

	p := NewRoleSearchParams("", "", rs.Prefix)
	search := rawSearchParams{
		BaseDN:       rs.BaseDN,
		SearchFilter: rs.SearchFilter,
		Attribute:    rs.Attribute,
		Scope:        rs.Scope,
	}
	if err := applySearchParams(&p.SearchParams, &search); err != nil {
		return RoleSearchParams{}, err
	}
	return p, nil
}

func applySearchParams(sp *SearchParams, raw *rawSearchParams) error {
	if raw.BaseDN != nil {
		sp.BaseDN = *raw.BaseDN
	}
	if raw.SearchFilter != nil {
		sp.SearchFilter = *raw.SearchFilter
	}
	if raw.Attribute != nil {
		sp.Attribute = *raw.Attribute
	}
	if raw.Scope != nil {
		scope, ok := scopeNames[strings.ToLower(*raw.Scope)]
		if !ok {
			return fmt.Errorf("invalid scope %q, must be one of 'base', 'one_level', 'subtree', or 'children'", *raw.Scope)
		}
		sp.Scope = scope
	}
	return nil
}

// parseEnableTLS accepts "starttls" or a boolean spelled the way config
// files usually spell it.
func parseEnableTLS(s string) (TLSEnable, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "starttls":
		return TLSYesStartTLS, nil
	case "yes", "on", "true":
		return TLSYes, nil
	case "no", "off", "false":
		return TLSNo, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n != 0 {
			return TLSYes, nil
		}
		return TLSNo, nil
	}
	return TLSNo, fmt.Errorf("cannot convert %q to bool", s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
