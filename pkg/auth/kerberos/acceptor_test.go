package kerberos

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/extauth/pkg/autherr"
	"github.com/marmos91/extauth/pkg/config"
)

func TestParseParams(t *testing.T) {
	t.Setenv("EXTAUTH_KERBEROS_KEYTAB", "")
	t.Setenv("EXTAUTH_KERBEROS_PRINCIPAL", "")
	t.Setenv("EXTAUTH_KERBEROS_KRB5CONF", "")

	section := func(entries ...config.AuthEntry) config.AuthSection {
		return config.AuthSection{Name: config.SectionKerberos, Entries: entries}
	}

	tests := []struct {
		name    string
		section config.AuthSection
		want    Params
		wantErr bool
	}{
		{
			name:    "empty section",
			section: section(),
			want:    Params{MaxClockSkew: DefaultMaxClockSkew},
		},
		{
			name:    "realm and keytab",
			section: section(config.AuthEntry{Name: "realm", Value: "EXAMPLE.COM"}, config.AuthEntry{Name: "keytab", Value: "/etc/krb5.keytab"}),
			want:    Params{Realm: "EXAMPLE.COM", Keytab: "/etc/krb5.keytab", MaxClockSkew: DefaultMaxClockSkew},
		},
		{
			name:    "principal and clock skew",
			section: section(config.AuthEntry{Name: "principal", Value: "HTTP/auth.example.com"}, config.AuthEntry{Name: "max_clock_skew", Value: "30s"}),
			want:    Params{Principal: "HTTP/auth.example.com", MaxClockSkew: 30_000_000_000},
		},
		{
			name:    "realm with principal",
			section: section(config.AuthEntry{Name: "realm", Value: "A"}, config.AuthEntry{Name: "principal", Value: "B"}),
			wantErr: true,
		},
		{
			name:    "realm twice",
			section: section(config.AuthEntry{Name: "realm", Value: "A"}, config.AuthEntry{Name: "REALM", Value: "B"}),
			wantErr: true,
		},
		{
			name:    "principal twice",
			section: section(config.AuthEntry{Name: "principal", Value: "A"}, config.AuthEntry{Name: "principal", Value: "B"}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseParams(tt.section)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, autherr.ErrConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseParams_EnvPrincipalConflictsWithRealm(t *testing.T) {
	t.Setenv("EXTAUTH_KERBEROS_PRINCIPAL", "HTTP/x@EXAMPLE.COM")

	_, err := ParseParams(config.AuthSection{
		Name:    config.SectionKerberos,
		Entries: []config.AuthEntry{{Name: "realm", Value: "EXAMPLE.COM"}},
	})
	assert.ErrorIs(t, err, autherr.ErrConfig)
}

func TestParsePrincipal(t *testing.T) {
	tests := []struct {
		in, name, realm string
	}{
		{"alice@EXAMPLE.COM", "alice", "EXAMPLE.COM"},
		{"HTTP/host@EXAMPLE.COM", "HTTP/host", "EXAMPLE.COM"},
		{"alice", "alice", ""},
		{"a@b@C", "a@b", "C"},
	}
	for _, tt := range tests {
		name, realm := ParsePrincipal(tt.in)
		assert.Equal(t, tt.name, name, tt.in)
		assert.Equal(t, tt.realm, realm, tt.in)
	}
}

func TestSecurityContext(t *testing.T) {
	ok := NewEstablishedContext("alice", "EXAMPLE.COM")
	assert.True(t, ok.IsReady())
	assert.False(t, ok.IsFailed())
	assert.Equal(t, "alice", ok.UserName())
	assert.Equal(t, "EXAMPLE.COM", ok.Realm())

	failed := NewFailedContext("bad token")
	assert.False(t, failed.IsReady())
	assert.True(t, failed.IsFailed())
	assert.Equal(t, "bad token", failed.FailureReason())
}

func TestIsContextToken(t *testing.T) {
	spnegoInit := append([]byte{0x60, 0x20}, spnegoOID...)
	gssKrb5 := append([]byte{0x60, 0x20}, krb5OID...)

	assert.True(t, IsContextToken(spnegoInit))
	assert.True(t, IsContextToken(gssKrb5))
	assert.True(t, IsContextToken([]byte{0x6e, 0x01}))
	assert.True(t, IsContextToken([]byte{0xa1, 0x01}))
	assert.False(t, IsContextToken([]byte{0x60, 0x00, 0x01}))
	assert.False(t, IsContextToken([]byte("NTLMSSP\x00")))
	assert.False(t, IsContextToken([]byte{0x60}))
}

func TestAcceptor_MalformedTokensFail(t *testing.T) {
	a := newTestAcceptor(t, createTestKeytab(t, t.TempDir()))

	tokens := map[string][]byte{
		"truncated spnego":     append([]byte{0x60, 0x7f}, spnegoOID...),
		"garbage ap-req":       {0x6e, 0x03, 0x01, 0x02, 0x03},
		"garbage negtokenresp": {0xa1, 0x02, 0x00, 0x00},
	}
	for name, tok := range tokens {
		t.Run(name, func(t *testing.T) {
			sc, err := a.Accept(context.Background(), tok)
			require.NoError(t, err)
			require.NotNil(t, sc)
			assert.True(t, sc.IsFailed())
			assert.False(t, sc.IsReady())
		})
	}

	_, err := a.Accept(context.Background(), []byte("plain text"))
	assert.ErrorIs(t, err, ErrUnsupportedToken)
}

func TestNewAcceptor_Errors(t *testing.T) {
	_, err := NewAcceptor(Params{}, WithKeytabPollInterval(0))
	assert.Error(t, err)

	_, err = NewAcceptor(Params{Keytab: "/nonexistent/keytab"}, WithKeytabPollInterval(0))
	assert.Error(t, err)
}
