package ldap

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"

	"github.com/marmos91/extauth/internal/logger"
	"github.com/marmos91/extauth/pkg/autherr"
)

const dnAttribute = "dn"

// DirectoryClient is the Client backed by a live directory server. A new
// connection is opened for every verification.
type DirectoryClient struct{}

// NewDirectoryClient creates a DirectoryClient.
func NewDirectoryClient() *DirectoryClient {
	return &DirectoryClient{}
}

// Authenticate binds as the user and runs the role searches.
func (c *DirectoryClient) Authenticate(ctx context.Context, params Params, roleSearch []RoleSearchParams) (bool, SearchResultsList, error) {
	// An empty password would be an unauthenticated bind.
	if params.Password == "" {
		return false, nil, nil
	}

	conn, err := dial(ctx, params)
	if err != nil {
		return false, nil, err
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	bindDN := strings.ReplaceAll(params.BindDN, userNamePlaceholder, goldap.EscapeDN(params.User))
	if err := conn.Bind(bindDN, params.Password); err != nil {
		if goldap.IsErrorWithCode(err, goldap.LDAPResultInvalidCredentials) {
			logger.DebugCtx(ctx, "LDAP bind rejected", logger.KeyUser, params.User, logger.KeyServer, params.Host)
			return false, nil, nil
		}
		return false, nil, classify(ctx, "bind", err)
	}

	subst := placeholders{userName: params.User, bindDN: bindDN, userDN: bindDN}

	if params.UserDNDetection != nil {
		values, err := search(conn, params, *params.UserDNDetection, subst)
		if err != nil {
			return false, nil, classify(ctx, "user DN detection", err)
		}
		if len(values) != 1 {
			logger.DebugCtx(ctx, "LDAP user DN detection did not yield exactly one value",
				logger.KeyUser, params.User, logger.KeyCount, len(values))
			return false, nil, nil
		}
		subst.userDN = values[0]
	}

	results := make(SearchResultsList, 0, len(roleSearch))
	for _, rs := range roleSearch {
		values, err := search(conn, params, rs.SearchParams, subst)
		if err != nil {
			return false, nil, classify(ctx, "role search", err)
		}
		results = append(results, filterRoles(values, rs.Prefix))
	}

	return true, results, nil
}

// placeholders holds the values substituted into search parameters.
type placeholders struct {
	userName string
	bindDN   string
	userDN   string
}

// baseDN expands the base DN template. {base_dn} is not available here.
func (p placeholders) baseDN(tmpl string) string {
	return strings.NewReplacer(
		"{user_name}", goldap.EscapeDN(p.userName),
		"{bind_dn}", p.bindDN,
		"{user_dn}", p.userDN,
	).Replace(tmpl)
}

// filter expands the search filter template with filter-escaped values.
func (p placeholders) filter(tmpl, baseDN string) string {
	return strings.NewReplacer(
		"{user_name}", goldap.EscapeFilter(p.userName),
		"{bind_dn}", goldap.EscapeFilter(p.bindDN),
		"{user_dn}", goldap.EscapeFilter(p.userDN),
		"{base_dn}", goldap.EscapeFilter(baseDN),
	).Replace(tmpl)
}

var ldapScopes = map[Scope]int{
	ScopeBase:     goldap.ScopeBaseObject,
	ScopeOneLevel: goldap.ScopeSingleLevel,
	ScopeSubtree:  goldap.ScopeWholeSubtree,
	ScopeChildren: goldap.ScopeChildren,
}

func search(conn *goldap.Conn, params Params, sp SearchParams, subst placeholders) ([]string, error) {
	baseDN := subst.baseDN(sp.BaseDN)
	filter := subst.filter(sp.SearchFilter, baseDN)
	if filter == "" {
		filter = "(objectClass=*)"
	}

	attrs := []string{sp.Attribute}
	if strings.EqualFold(sp.Attribute, dnAttribute) {
		attrs = []string{"1.1"}
	}

	req := goldap.NewSearchRequest(
		baseDN,
		ldapScopes[sp.Scope],
		goldap.NeverDerefAliases,
		int(params.SearchLimit),
		int(params.Timeout.Seconds()),
		false,
		filter,
		attrs,
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		switch {
		case goldap.IsErrorWithCode(err, goldap.LDAPResultNoSuchObject):
			return nil, nil
		case goldap.IsErrorWithCode(err, goldap.LDAPResultSizeLimitExceeded) && res != nil:
			// Keep what arrived before the limit.
		default:
			return nil, err
		}
	}

	var values []string
	for _, e := range res.Entries {
		if strings.EqualFold(sp.Attribute, dnAttribute) {
			values = append(values, e.DN)
			continue
		}
		values = append(values, e.GetEqualFoldAttributeValues(sp.Attribute)...)
	}
	return values, nil
}

// filterRoles keeps values carrying prefix, strips it, and returns the
// sorted set.
func filterRoles(values []string, prefix string) SearchResults {
	out := SearchResults{}
	for _, v := range values {
		role, ok := strings.CutPrefix(v, prefix)
		if !ok || role == "" {
			continue
		}
		out = append(out, role)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func dial(ctx context.Context, params Params) (*goldap.Conn, error) {
	tlsCfg, err := BuildTLSConfig(params)
	if err != nil {
		return nil, err
	}

	scheme := "ldap"
	if params.EnableTLS == TLSYes {
		scheme = "ldaps"
	}
	addr := scheme + "://" + net.JoinHostPort(params.Host, strconv.Itoa(params.Port))

	dialer := &net.Dialer{Timeout: params.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	conn, err := goldap.DialURL(addr, goldap.DialWithDialer(dialer), goldap.DialWithTLSConfig(tlsCfg))
	if err != nil {
		return nil, classify(ctx, "dial", err)
	}
	conn.SetTimeout(params.Timeout)

	if params.EnableTLS == TLSYesStartTLS {
		if err := conn.StartTLS(tlsCfg); err != nil {
			_ = conn.Close()
			return nil, classify(ctx, "starttls", err)
		}
	}
	return conn, nil
}

// classify wraps a directory error. Network level failures become
// autherr.ErrTransientIO; anything else is an unexpected protocol error.
func classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: ldap %s: %v", autherr.ErrTransientIO, op, ctx.Err())
	}
	var netErr net.Error
	if goldap.IsErrorWithCode(err, goldap.ErrorNetwork) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: ldap %s: %v", autherr.ErrTransientIO, op, err)
	}
	return fmt.Errorf("ldap %s: %w", op, err)
}

var tlsVersions = map[TLSProtocolVersion]uint16{
	// Go never negotiates SSL; the closest floor is TLS 1.0.
	TLSVersionSSL2: tls.VersionTLS10,
	TLSVersionSSL3: tls.VersionTLS10,
	TLSVersion10:   tls.VersionTLS10,
	TLSVersion11:   tls.VersionTLS11,
	TLSVersion12:   tls.VersionTLS12,
}

// BuildTLSConfig translates the server's TLS settings.
func BuildTLSConfig(params Params) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName: params.Host,
		MinVersion: tlsVersions[params.TLSMinimumProtocolVersion],
	}

	if params.TLSRequireCert != TLSRequireDemand {
		cfg.InsecureSkipVerify = true
	}

	if params.TLSCertFile != "" || params.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(params.TLSCertFile, params.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("ldap: load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if params.TLSCACertFile != "" || params.TLSCACertDir != "" {
		pool := x509.NewCertPool()
		if params.TLSCACertFile != "" {
			if err := appendCAFile(pool, params.TLSCACertFile); err != nil {
				return nil, err
			}
		}
		if params.TLSCACertDir != "" {
			entries, err := os.ReadDir(params.TLSCACertDir)
			if err != nil {
				return nil, fmt.Errorf("ldap: read CA directory: %w", err)
			}
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				// Hash links and unrelated files are common in CA dirs.
				_ = appendCAFile(pool, filepath.Join(params.TLSCACertDir, e.Name()))
			}
		}
		cfg.RootCAs = pool
	}

	suites, err := parseCipherSuites(params.TLSCipherSuite)
	if err != nil {
		return nil, err
	}
	cfg.CipherSuites = suites

	return cfg, nil
}

func appendCAFile(pool *x509.CertPool, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ldap: read CA file: %w", err)
	}
	if !pool.AppendCertsFromPEM(data) {
		return fmt.Errorf("ldap: no certificates in %s", path)
	}
	return nil
}

// parseCipherSuites reads a colon separated list of IANA suite names.
// "ALL" or an empty list selects the Go defaults.
func parseCipherSuites(spec string) ([]uint16, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" || strings.EqualFold(spec, DefaultCipherSuite) {
		return nil, nil
	}

	known := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		known[s.Name] = s.ID
	}
	for _, s := range tls.InsecureCipherSuites() {
		known[s.Name] = s.ID
	}

	var out []uint16
	for _, name := range strings.Split(spec, ":") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, ok := known[strings.ToUpper(name)]
		if !ok {
			return nil, fmt.Errorf("ldap: unknown cipher suite %q", name)
		}
		out = append(out, id)
	}
	return out, nil
}
