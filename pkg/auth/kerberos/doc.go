// Package kerberos accepts Kerberos and SPNEGO security context tokens.
//
// It wraps the gokrb5 library to provide:
//   - Parsing of the kerberos configuration section (realm or principal,
//     keytab, optional krb5.conf) with environment variable overrides
//   - An Acceptor that verifies AP-REQ tokens, raw or wrapped in SPNEGO,
//     against the service keytab
//   - Hot reload of the keytab when key management tools rotate it
//
// The resulting SecurityContext implements credentials.GSSContext; the
// authenticator decides whether an established context satisfies a realm.
//
// References:
//   - RFC 4120: The Kerberos Network Authentication Service (V5)
//   - RFC 4121: The Kerberos Version 5 GSS-API Mechanism
//   - RFC 4178: SPNEGO
package kerberos
