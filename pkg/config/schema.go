package config

import (
	"github.com/invopop/jsonschema"
)

var authSectionDescriptions = map[string]string{
	SectionLDAPServers:           "LDAP servers by name: host, port, bind_dn or auth_dn_prefix/suffix, user_dn_detection, TLS settings",
	SectionKerberos:              "Kerberos acceptor: realm or principal, keytab",
	SectionHTTPAuthServers:       "HTTP Basic verification servers by name: uri, timeouts, retries",
	SectionJWTValidators:         "JWT validators by name (static_key, static_jwks, static_jwks_file or uri) plus the global settings_key",
	SectionAccessTokenProcessors: "Opaque access-token processors by name: provider, cache_invalidation_interval",
}

// Schema returns the JSON schema of the configuration file. Provider
// sections are free-form objects; their entries are checked when the
// coordinator loads them.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
	}

	schema := reflector.Reflect(&Config{})
	schema.Version = "https://json-schema.org/draft/2020-12/schema"
	schema.Title = "extauth Configuration"
	schema.Description = "Configuration schema for the extauth authentication engine"

	for _, name := range AuthSectionNames {
		schema.Properties.Set(name, &jsonschema.Schema{
			Type:        "object",
			Description: authSectionDescriptions[name],
		})
	}
	return schema
}
