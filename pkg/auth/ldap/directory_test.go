package ldap

import (
	"context"
	"crypto/tls"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/extauth/pkg/autherr"
)

func TestPlaceholders(t *testing.T) {
	p := placeholders{userName: "a*b", bindDN: "uid=a*b,dc=x", userDN: "cn=A,dc=x"}

	assert.Equal(t, "ou=a*b,cn=A,dc=x", p.baseDN("ou={user_name},{user_dn}"))
	assert.Equal(t,
		`(&(uid=a\2ab)(member=cn=A,dc=x)(base=ou=g))`,
		p.filter("(&(uid={user_name})(member={user_dn})(base={base_dn}))", "ou=g"),
	)
	assert.Equal(t, `ou=a\,b`, placeholders{userName: "a,b"}.baseDN("ou={user_name}"))
}

func TestFilterRoles(t *testing.T) {
	got := filterRoles([]string{"ch_b", "ch_a", "other", "ch_a", "ch_"}, "ch_")
	assert.Equal(t, SearchResults{"a", "b"}, got)

	assert.Equal(t, SearchResults{}, filterRoles(nil, "x"))
	assert.Equal(t, SearchResults{"x", "y"}, filterRoles([]string{"y", "x"}, ""))
}

func TestBuildTLSConfig(t *testing.T) {
	cfg, err := BuildTLSConfig(Params{Host: "ldap.example.com", TLSMinimumProtocolVersion: TLSVersion12, TLSRequireCert: TLSRequireDemand, TLSCipherSuite: "ALL"})
	require.NoError(t, err)
	assert.Equal(t, "ldap.example.com", cfg.ServerName)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Nil(t, cfg.CipherSuites)

	cfg, err = BuildTLSConfig(Params{TLSMinimumProtocolVersion: TLSVersionSSL3, TLSRequireCert: TLSRequireTry})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS10), cfg.MinVersion)
	assert.True(t, cfg.InsecureSkipVerify)

	cfg, err = BuildTLSConfig(Params{TLSCipherSuite: "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384"})
	require.NoError(t, err)
	assert.Equal(t, []uint16{tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384}, cfg.CipherSuites)

	_, err = BuildTLSConfig(Params{TLSCipherSuite: "NOT_A_SUITE"})
	assert.Error(t, err)

	_, err = BuildTLSConfig(Params{TLSCACertFile: "/nonexistent/ca.pem"})
	assert.Error(t, err)
}

func TestDirectoryClient_EmptyPasswordFails(t *testing.T) {
	ok, res, err := NewDirectoryClient().Authenticate(context.Background(), Params{Host: "127.0.0.1", Port: 1}, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, res)
}

func TestDirectoryClient_UnreachableIsTransient(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	params := Params{
		Host:      "127.0.0.1",
		Port:      port,
		EnableTLS: TLSNo,
		BindDN:    "{user_name}",
		Timeout:   time.Second,
		User:      "alice",
		Password:  "secret",
	}
	ok, _, err := NewDirectoryClient().Authenticate(context.Background(), params, nil)
	require.Error(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, err, autherr.ErrTransientIO)
}
