package kerberos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/service"
	"github.com/jcmturner/gokrb5/v8/spnego"

	"github.com/marmos91/extauth/internal/logger"
)

// spnegoOID is the ASN.1 encoded OID for SPNEGO (1.3.6.1.5.5.2):
// OID tag (0x06), length (0x06), then the OID bytes.
var spnegoOID = []byte{0x06, 0x06, 0x2b, 0x06, 0x01, 0x05, 0x05, 0x02}

// krb5OID is the ASN.1 encoded OID of the Kerberos V5 GSS mechanism
// (1.2.840.113554.1.2.2).
var krb5OID = []byte{0x06, 0x09, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x12, 0x01, 0x02, 0x02}

// ErrUnsupportedToken is returned for tokens that are neither SPNEGO nor
// Kerberos.
var ErrUnsupportedToken = errors.New("kerberos: unsupported context token")

// Acceptor verifies client context tokens against the service keytab.
//
// Thread Safety: All methods are safe for concurrent use. The keytab can be
// hot-reloaded at runtime via ReloadKeytab() without disrupting verifications
// in flight.
type Acceptor struct {
	params           Params
	servicePrincipal string
	keytabManager    *KeytabManager

	mu     sync.RWMutex
	keytab *keytab.Keytab
}

// AcceptorOption configures an Acceptor.
type AcceptorOption func(*acceptorOptions)

type acceptorOptions struct {
	pollInterval time.Duration
}

// WithKeytabPollInterval overrides how often the keytab is checked for
// changes. Zero disables hot reload.
func WithKeytabPollInterval(d time.Duration) AcceptorOption {
	return func(o *acceptorOptions) { o.pollInterval = d }
}

// NewAcceptor loads the keytab named by p and starts watching it.
func NewAcceptor(p Params, opts ...AcceptorOption) (*Acceptor, error) {
	o := acceptorOptions{pollInterval: keytabPollInterval}
	for _, opt := range opts {
		opt(&o)
	}

	if p.Keytab == "" {
		return nil, fmt.Errorf("kerberos keytab path not configured (set keytab or EXTAUTH_KERBEROS_KEYTAB)")
	}

	kt, err := loadKeytab(p.Keytab)
	if err != nil {
		return nil, fmt.Errorf("load keytab %s: %w", p.Keytab, err)
	}

	principal := p.Principal
	if principal != "" && p.Krb5Conf != "" {
		if _, realm := ParsePrincipal(principal); realm == "" {
			krbCfg, err := loadKrb5Conf(p.Krb5Conf)
			if err != nil {
				return nil, fmt.Errorf("load krb5.conf %s: %w", p.Krb5Conf, err)
			}
			if dr := krbCfg.LibDefaults.DefaultRealm; dr != "" {
				principal += "@" + dr
			}
		}
	}

	a := &Acceptor{
		params:           p,
		servicePrincipal: principal,
		keytab:           kt,
	}

	if o.pollInterval > 0 {
		km := NewKeytabManager(p.Keytab, a, o.pollInterval)
		if err := km.Start(); err != nil {
			logger.Warn("Keytab hot-reload failed to start, continuing without it",
				logger.KeyPath, p.Keytab, logger.Err(err))
		} else {
			a.keytabManager = km
		}
	}

	return a, nil
}

// Keytab returns the current keytab (thread-safe read).
func (a *Acceptor) Keytab() *keytab.Keytab {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.keytab
}

// ServicePrincipal returns the principal tokens are accepted for, if
// restricted.
func (a *Acceptor) ServicePrincipal() string {
	return a.servicePrincipal
}

// Params returns the parameters the acceptor was built from.
func (a *Acceptor) Params() Params {
	return a.params
}

// ReloadKeytab re-reads the keytab file and atomically swaps it. On failure
// the previous keytab stays active.
func (a *Acceptor) ReloadKeytab() error {
	kt, err := loadKeytab(a.params.Keytab)
	if err != nil {
		return fmt.Errorf("reload keytab %s: %w", a.params.Keytab, err)
	}

	a.mu.Lock()
	a.keytab = kt
	a.mu.Unlock()

	return nil
}

// Close stops the keytab poller. Safe to call multiple times.
func (a *Acceptor) Close() error {
	if a.keytabManager != nil {
		a.keytabManager.Stop()
	}
	return nil
}

// IsContextToken reports whether token looks like a Kerberos or SPNEGO
// context token. It does not parse the token.
//
//   - SPNEGO initiation tokens start with ASN.1 Application [0] (0x60) and
//     carry the SPNEGO OID
//   - SPNEGO responses start with context tag [1] (0xa1)
//   - Raw Kerberos AP-REQ tokens start with ASN.1 Application [14] (0x6E)
func IsContextToken(token []byte) bool {
	if len(token) < 2 {
		return false
	}
	switch token[0] {
	case 0x60:
		return bytes.Contains(token, spnegoOID) || bytes.Contains(token, krb5OID)
	case 0xa1, 0x6e:
		return true
	}
	return false
}

// Accept verifies one context token. Malformed or rejected tokens produce
// a failed context, never an error: the error return is reserved for
// tokens of an unknown mechanism.
func (a *Acceptor) Accept(ctx context.Context, token []byte) (*SecurityContext, error) {
	if !IsContextToken(token) {
		return nil, ErrUnsupportedToken
	}

	apReq, err := extractAPReq(token)
	if err != nil {
		logger.DebugCtx(ctx, "Kerberos context token rejected", logger.Err(err))
		return NewFailedContext(err.Error()), nil
	}

	opts := []func(*service.Settings){
		service.MaxClockSkew(a.params.MaxClockSkew),
		service.DecodePAC(false),
	}
	if a.servicePrincipal != "" {
		opts = append(opts, service.KeytabPrincipal(a.servicePrincipal))
	}
	settings := service.NewSettings(a.Keytab(), opts...)

	ok, creds, err := service.VerifyAPREQ(apReq, settings)
	if err != nil || !ok || creds == nil {
		reason := "AP-REQ verification failed"
		if err != nil {
			reason = err.Error()
		}
		logger.DebugCtx(ctx, "Kerberos AP-REQ rejected", "reason", reason)
		return NewFailedContext(reason), nil
	}

	logger.DebugCtx(ctx, "Kerberos context established",
		logger.KeyUser, creds.UserName(), logger.KeyRealm, creds.Realm())
	return NewEstablishedContext(creds.UserName(), creds.Realm()), nil
}

// extractAPReq unwraps the AP-REQ from a SPNEGO, GSS-API or raw token.
func extractAPReq(token []byte) (*messages.APReq, error) {
	mech := token

	switch {
	case token[0] == 0xa1 || (token[0] == 0x60 && bytes.Contains(token, spnegoOID)):
		var st spnego.SPNEGOToken
		if err := st.Unmarshal(token); err != nil {
			return nil, err
		}
		switch {
		case st.Init:
			mech = st.NegTokenInit.MechTokenBytes
		case st.Resp:
			mech = st.NegTokenResp.ResponseToken
		}
		if len(mech) == 0 {
			return nil, errors.New("SPNEGO token carries no mechanism token")
		}
	}

	if mech[0] == 0x6e {
		var req messages.APReq
		if err := req.Unmarshal(mech); err != nil {
			return nil, err
		}
		return &req, nil
	}

	var kt spnego.KRB5Token
	if err := kt.Unmarshal(mech); err != nil {
		return nil, err
	}
	if !kt.IsAPReq() {
		return nil, errors.New("mechanism token is not an AP-REQ")
	}
	return &kt.APReq, nil
}

// loadKeytab reads and parses a keytab file.
func loadKeytab(path string) (*keytab.Keytab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keytab file: %w", err)
	}

	kt := keytab.New()
	if err := kt.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("parse keytab: %w", err)
	}

	return kt, nil
}

// loadKrb5Conf reads and parses a Kerberos configuration file.
func loadKrb5Conf(path string) (*krb5config.Config, error) {
	cfg, err := krb5config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("parse krb5.conf: %w", err)
	}

	return cfg, nil
}
