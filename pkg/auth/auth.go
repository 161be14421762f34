package auth

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/extauth/internal/logger"
	"github.com/marmos91/extauth/pkg/auth/accesstoken"
	"github.com/marmos91/extauth/pkg/auth/httpauth"
	"github.com/marmos91/extauth/pkg/auth/jwtauth"
	"github.com/marmos91/extauth/pkg/auth/kerberos"
	"github.com/marmos91/extauth/pkg/auth/ldap"
	"github.com/marmos91/extauth/pkg/autherr"
	"github.com/marmos91/extauth/pkg/config"
	"github.com/marmos91/extauth/pkg/metrics"
)

// Authenticator holds the live provider configuration and dispatches
// credential verification to it.
//
// Thread safety: all methods are safe for concurrent use. Verifications
// observe the provider tables either before or after a reload, never a mix.
type Authenticator struct {
	// mu guards tables, generation and both caches.
	mu         sync.Mutex
	tables     *tables
	generation uint64
	ldapCache  *ldap.Cache
	tokenCache *accesstoken.Cache

	// reloadMu serializes SetConfiguration calls so that parsing can run
	// without holding mu.
	reloadMu sync.Mutex

	ldapClient         ldap.Client
	now                func() time.Time
	metrics            *metrics.AuthMetrics
	httpOptions        []httpauth.Option
	keytabPollInterval time.Duration
}

// tables is one immutable configuration snapshot.
type tables struct {
	ldap         map[string]ldap.Params
	kerberos     *kerberos.Params
	acceptor     *kerberos.Acceptor
	http         map[string]*httpauth.BasicClient
	jwt          []*jwtauth.Validator
	accessTokens []accesstoken.Processor
}

func emptyTables() *tables {
	return &tables{
		ldap: make(map[string]ldap.Params),
		http: make(map[string]*httpauth.BasicClient),
	}
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithClock replaces time.Now for cache timestamps, token expiry and JWT
// time claims.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// WithLDAPClient replaces the directory client used for live binds.
func WithLDAPClient(c ldap.Client) Option {
	return func(a *Authenticator) { a.ldapClient = c }
}

func WithMetrics(m *metrics.AuthMetrics) Option {
	return func(a *Authenticator) { a.metrics = m }
}

// WithHTTPOptions are applied to every upstream HTTP client the
// configuration creates: Basic authentication servers, remote JWKS and
// access-token endpoints.
func WithHTTPOptions(opts ...httpauth.Option) Option {
	return func(a *Authenticator) { a.httpOptions = append(a.httpOptions, opts...) }
}

// WithKeytabPollInterval sets how often the Kerberos keytab is checked for
// changes. Zero disables hot reload.
func WithKeytabPollInterval(d time.Duration) Option {
	return func(a *Authenticator) { a.keytabPollInterval = d }
}

// WithAccessTokenCacheSize bounds the number of cached access tokens.
func WithAccessTokenCacheSize(n int) Option {
	return func(a *Authenticator) { a.tokenCache = accesstoken.NewCache(n) }
}

// New creates an Authenticator with no providers configured.
func New(opts ...Option) *Authenticator {
	a := &Authenticator{
		tables:             emptyTables(),
		ldapCache:          ldap.NewCache(),
		ldapClient:         ldap.NewDirectoryClient(),
		now:                time.Now,
		keytabPollInterval: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.tokenCache == nil {
		a.tokenCache = accesstoken.NewCache(accesstoken.DefaultCacheSize)
	}
	return a
}

// snapshot returns the current tables and their generation.
func (a *Authenticator) snapshot() (*tables, uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tables, a.generation
}

// SetConfiguration replaces every provider table with the ones described
// by cfg, and drops both caches.
//
// A section that appears more than once is a structural error: the call
// returns a ConfigError and the previous configuration stays in place. A
// malformed entry inside a section is logged and skipped, so one broken
// LDAP server does not keep the JWT validators from loading.
func (a *Authenticator) SetConfiguration(cfg config.AuthConfig) error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	for _, name := range config.AuthSectionNames {
		if cfg.Count(name) > 1 {
			err := autherr.NewConfigError(name, "", "", "multiple %s sections are not allowed", name)
			a.metrics.RecordReload(err)
			return err
		}
	}

	next := a.parseTables(cfg)

	a.mu.Lock()
	prev := a.tables
	a.tables = next
	a.generation++
	a.ldapCache.Reset()
	a.tokenCache.Purge()
	a.mu.Unlock()

	if prev.acceptor != nil && prev.acceptor != next.acceptor {
		_ = prev.acceptor.Close()
	}

	logger.Info("Authentication configuration loaded",
		"ldap_servers", len(next.ldap),
		"kerberos", next.kerberos != nil,
		"http_servers", len(next.http),
		"jwt_validators", len(next.jwt),
		"access_token_processors", len(next.accessTokens))
	a.metrics.RecordReload(nil)
	return nil
}

// parseTables builds a snapshot from cfg. It may read files (keytab,
// static JWKS) but never talks to the network.
func (a *Authenticator) parseTables(cfg config.AuthConfig) *tables {
	t := emptyTables()

	if s, ok := cfg.Section(config.SectionHTTPAuthServers); ok {
		for _, e := range s.Entries {
			if _, dup := t.http[e.Name]; dup {
				skipEntry(config.SectionHTTPAuthServers, e.Name, errDuplicateName(config.SectionHTTPAuthServers, e.Name))
				continue
			}
			p, err := httpauth.ParseParams(config.SectionHTTPAuthServers, e.Name, e.Value)
			if err != nil {
				skipEntry(config.SectionHTTPAuthServers, e.Name, err)
				continue
			}
			opts := slices.Concat([]httpauth.Option{httpauth.WithMetrics(a.metrics, metrics.ProviderHTTP)}, a.httpOptions)
			t.http[e.Name] = httpauth.NewBasicClient(p, opts...)
		}
	}

	if s, ok := cfg.Section(config.SectionLDAPServers); ok {
		for _, e := range s.Entries {
			if _, dup := t.ldap[e.Name]; dup {
				skipEntry(config.SectionLDAPServers, e.Name, errDuplicateName(config.SectionLDAPServers, e.Name))
				continue
			}
			p, err := ldap.ParseParams(e.Name, e.Value)
			if err != nil {
				skipEntry(config.SectionLDAPServers, e.Name, err)
				continue
			}
			t.ldap[e.Name] = p
		}
	}

	if s, ok := cfg.Section(config.SectionKerberos); ok {
		a.parseKerberos(t, s)
	}

	if s, ok := cfg.Section(config.SectionJWTValidators); ok {
		global := jwtauth.GlobalSettingsKey(s.Entries)
		opts := jwtauth.Options{Metrics: a.metrics, Now: a.now, HTTPOptions: a.httpOptions}
		seen := make(map[string]bool)
		for _, e := range s.Entries {
			if e.Name == jwtauth.SettingsKeyEntry {
				continue
			}
			if seen[e.Name] {
				skipEntry(config.SectionJWTValidators, e.Name, errDuplicateName(config.SectionJWTValidators, e.Name))
				continue
			}
			v, err := jwtauth.ParseValidator(e.Name, e.Value, global, opts)
			if err != nil {
				skipEntry(config.SectionJWTValidators, e.Name, err)
				continue
			}
			seen[e.Name] = true
			t.jwt = append(t.jwt, v)
		}
	}

	if s, ok := cfg.Section(config.SectionAccessTokenProcessors); ok {
		opts := accesstoken.Options{Metrics: a.metrics, HTTPOptions: a.httpOptions}
		seen := make(map[string]bool)
		for _, e := range s.Entries {
			if seen[e.Name] {
				skipEntry(config.SectionAccessTokenProcessors, e.Name, errDuplicateName(config.SectionAccessTokenProcessors, e.Name))
				continue
			}
			p, err := accesstoken.ParseProcessor(e.Name, e.Value, opts)
			if err != nil {
				skipEntry(config.SectionAccessTokenProcessors, e.Name, err)
				continue
			}
			seen[e.Name] = true
			t.accessTokens = append(t.accessTokens, p)
		}
	}

	return t
}

// parseKerberos fills in the Kerberos params and, when a keytab is
// configured, an acceptor for raw context tokens. A keytab that cannot be
// loaded disables the whole section.
func (a *Authenticator) parseKerberos(t *tables, s config.AuthSection) {
	p, err := kerberos.ParseParams(s)
	if err != nil {
		skipEntry(config.SectionKerberos, "", err)
		return
	}

	if p.Keytab != "" {
		acc, err := kerberos.NewAcceptor(p, kerberos.WithKeytabPollInterval(a.keytabPollInterval))
		if err != nil {
			skipEntry(config.SectionKerberos, "", err)
			return
		}
		t.acceptor = acc
	}
	t.kerberos = &p
}

func errDuplicateName(section, name string) error {
	return autherr.NewConfigError(section, name, "", "multiple entries with the same name are not allowed")
}

func skipEntry(section, name string, err error) {
	logger.Warn("Skipping invalid authentication entry",
		logger.KeySection, section,
		"entry", name,
		logger.Err(err))
}

// Summary lists what the current configuration provides.
type Summary struct {
	LDAPServers           []string `json:"ldap_servers" yaml:"ldap_servers"`
	Kerberos              bool     `json:"kerberos" yaml:"kerberos"`
	KerberosRealm         string   `json:"kerberos_realm,omitempty" yaml:"kerberos_realm,omitempty"`
	KerberosAcceptor      bool     `json:"kerberos_acceptor" yaml:"kerberos_acceptor"`
	HTTPServers           []string `json:"http_authentication_servers" yaml:"http_authentication_servers"`
	JWTValidators         []string `json:"jwt_validators" yaml:"jwt_validators"`
	AccessTokenProcessors []string `json:"access_token_processors" yaml:"access_token_processors"`
}

// Providers describes the current configuration. Named tables keyed by map
// are sorted; JWT validators and access-token processors keep their
// registration order.
func (a *Authenticator) Providers() Summary {
	t, _ := a.snapshot()

	s := Summary{
		LDAPServers:      sortedKeys(t.ldap),
		Kerberos:         t.kerberos != nil,
		KerberosAcceptor: t.acceptor != nil,
		HTTPServers:      sortedKeys(t.http),
	}
	if t.kerberos != nil {
		s.KerberosRealm = t.kerberos.Realm
	}
	for _, v := range t.jwt {
		s.JWTValidators = append(s.JWTValidators, v.Name())
	}
	for _, p := range t.accessTokens {
		s.AccessTokenProcessors = append(s.AccessTokenProcessors, p.Name())
	}
	return s
}

// IsJWTAllowed reports whether at least one JWT validator is configured.
func (a *Authenticator) IsJWTAllowed() bool {
	t, _ := a.snapshot()
	return len(t.jwt) > 0
}

// Close stops background work owned by the current configuration.
func (a *Authenticator) Close() error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	a.mu.Lock()
	t := a.tables
	a.tables = emptyTables()
	a.generation++
	a.mu.Unlock()

	if t.acceptor != nil {
		return t.acceptor.Close()
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
