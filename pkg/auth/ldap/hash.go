package ldap

import (
	"encoding/binary"
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// Hash is a 128-bit digest of everything that affects an authentication
// outcome: server connection settings, the credentials, and the requested
// role searches.
type Hash [16]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the zero value.
func (h Hash) IsZero() bool { return h == Hash{} }

// HashParams computes the digest of p and roleSearch. Every field is length
// prefixed so that adjacent values cannot run together. The cooldown and
// timeout are excluded: they change how long a result is reused, not
// whether it holds.
func HashParams(p Params, roleSearch []RoleSearchParams) Hash {
	h, err := blake2b.New(16, nil)
	if err != nil {
		// Only returned for an invalid size or key.
		panic(err)
	}

	e := hashEncoder{h: h}
	e.str(p.Host)
	e.int(int64(p.Port))
	e.str(p.BindDN)
	e.str(p.User)
	e.str(p.Password)

	if p.UserDNDetection != nil {
		e.int(1)
		e.search(*p.UserDNDetection)
	} else {
		e.int(0)
	}

	e.int(int64(p.EnableTLS))
	e.int(int64(p.TLSMinimumProtocolVersion))
	e.int(int64(p.TLSRequireCert))
	e.str(p.TLSCertFile)
	e.str(p.TLSKeyFile)
	e.str(p.TLSCACertFile)
	e.str(p.TLSCACertDir)
	e.str(p.TLSCipherSuite)
	e.int(int64(p.SearchLimit))

	e.int(int64(len(roleSearch)))
	for _, rs := range roleSearch {
		e.search(rs.SearchParams)
		e.str(rs.Prefix)
	}

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

type hashEncoder struct {
	h   hash.Hash
	buf [binary.MaxVarintLen64]byte
}

func (e *hashEncoder) int(v int64) {
	n := binary.PutVarint(e.buf[:], v)
	_, _ = e.h.Write(e.buf[:n])
}

func (e *hashEncoder) str(s string) {
	e.int(int64(len(s)))
	_, _ = e.h.Write([]byte(s))
}

func (e *hashEncoder) search(sp SearchParams) {
	e.str(sp.BaseDN)
	e.str(sp.SearchFilter)
	e.str(sp.Attribute)
	e.int(int64(sp.Scope))
}
