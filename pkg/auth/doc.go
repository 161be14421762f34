// Package auth is the external authentication coordinator.
//
// An Authenticator holds the live configuration of every provider kind and
// dispatches credential verification to them:
//
//   - ldap/: LDAP simple bind plus role search, with a cooldown cache
//   - kerberos/: keytab-backed Kerberos context acceptor
//   - httpauth/: HTTP Basic authentication servers
//   - jwtauth/: JWT validators over static keys or JSON Web Key Sets
//   - accesstoken/: opaque access-token processors (Google), with a cache
//
// All provider tables and both caches sit behind one mutex. Network I/O never
// runs under it: a verification copies what it needs, releases the lock,
// talks to the upstream, then re-locks to validate its assumptions before
// committing anything to a cache.
package auth
