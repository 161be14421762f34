package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Provider section names. Matching is case-insensitive.
const (
	SectionLDAPServers           = "ldap_servers"
	SectionKerberos              = "kerberos"
	SectionHTTPAuthServers       = "http_authentication_servers"
	SectionJWTValidators         = "jwt_validators"
	SectionAccessTokenProcessors = "access_token_processors"
)

// AuthSectionNames lists the provider sections in the order the
// authenticator parses them.
var AuthSectionNames = []string{
	SectionHTTPAuthServers,
	SectionLDAPServers,
	SectionKerberos,
	SectionJWTValidators,
	SectionAccessTokenProcessors,
}

// IsAuthSection reports whether a top-level key names a provider section.
func IsAuthSection(key string) bool {
	key = strings.ToLower(key)
	for _, name := range AuthSectionNames {
		if key == name {
			return true
		}
	}
	return false
}

// AuthEntry is one named child of a provider section, e.g. one LDAP server.
// Value is the decoded YAML: map[string]any for structured entries, or a
// scalar for plain keys such as jwt_validators.settings_key.
type AuthEntry struct {
	Name  string
	Value any
}

// AuthSection is one top-level provider section as it appeared in the file.
type AuthSection struct {
	Name    string
	Entries []AuthEntry
}

// Values returns the section's entries as a map. Used for flat sections
// like kerberos where entries are plain keys.
func (s AuthSection) Values() map[string]any {
	out := make(map[string]any, len(s.Entries))
	for _, e := range s.Entries {
		out[e.Name] = e.Value
	}
	return out
}

// AuthConfig holds every provider section in file order. Duplicate sections
// are preserved so that the authenticator can reject them.
type AuthConfig struct {
	Sections []AuthSection
}

// Count returns how many times a section appears (case-insensitive).
func (c AuthConfig) Count(name string) int {
	n := 0
	for _, s := range c.Sections {
		if strings.EqualFold(s.Name, name) {
			n++
		}
	}
	return n
}

// Section returns the first section with the given name.
func (c AuthConfig) Section(name string) (AuthSection, bool) {
	for _, s := range c.Sections {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return AuthSection{}, false
}

// Add appends a section built from ordered name/value pairs. It is meant for
// tests and programmatic configuration.
func (c *AuthConfig) Add(name string, entries ...AuthEntry) {
	c.Sections = append(c.Sections, AuthSection{Name: name, Entries: entries})
}

// ParseAuthConfig extracts the provider sections from a YAML document.
func ParseAuthConfig(data []byte) (AuthConfig, error) {
	auth, _, err := splitAuthSections(data)
	return auth, err
}

// splitAuthSections separates provider sections from the rest of the
// document. It works on the yaml.Node tree so that file order and duplicate
// top-level keys survive; decoding into a map would lose both.
func splitAuthSections(data []byte) (AuthConfig, []byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return AuthConfig{}, nil, err
	}

	if len(doc.Content) == 0 {
		return AuthConfig{}, data, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return AuthConfig{}, nil, fmt.Errorf("top-level YAML node must be a mapping")
	}

	var auth AuthConfig
	kept := make([]*yaml.Node, 0, len(root.Content))

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if !IsAuthSection(key.Value) {
			kept = append(kept, key, value)
			continue
		}

		section, err := decodeSection(key.Value, value)
		if err != nil {
			return AuthConfig{}, nil, err
		}
		auth.Sections = append(auth.Sections, section)
	}

	root.Content = kept
	rest, err := yaml.Marshal(&doc)
	if err != nil {
		return AuthConfig{}, nil, err
	}

	return auth, rest, nil
}

func decodeSection(name string, node *yaml.Node) (AuthSection, error) {
	section := AuthSection{Name: name}

	switch node.Kind {
	case yaml.MappingNode:
	case yaml.ScalarNode:
		if node.Tag == "!!null" || node.Value == "" {
			return section, nil
		}
		return section, fmt.Errorf("section %q must be a mapping", name)
	default:
		return section, fmt.Errorf("section %q must be a mapping", name)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		var value any
		if err := node.Content[i+1].Decode(&value); err != nil {
			return section, fmt.Errorf("section %q entry %q: %w", name, node.Content[i].Value, err)
		}
		section.Entries = append(section.Entries, AuthEntry{
			Name:  node.Content[i].Value,
			Value: value,
		})
	}

	return section, nil
}

// appendAuthSections adds provider sections to an encoded config document.
func appendAuthSections(doc *yaml.Node, auth AuthConfig) error {
	root := doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("config did not encode to a mapping")
	}

	for _, s := range auth.Sections {
		value := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, e := range s.Entries {
			var child yaml.Node
			if err := child.Encode(e.Value); err != nil {
				return err
			}
			value.Content = append(value.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Name},
				&child,
			)
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s.Name},
			value,
		)
	}
	return nil
}

// DecodeEntry decodes one raw provider entry into out, a pointer to a
// struct with mapstructure tags. Input is weakly typed so that "true",
// "1000" and similar strings coming from env-style configs are accepted.
// It returns the keys of raw that no field consumed.
func DecodeEntry(raw any, out any) ([]string, error) {
	if raw == nil {
		raw = map[string]any{}
	}

	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			durationDecodeHook(),
			stringifyScalarHook(),
		),
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, err
	}

	if err := dec.Decode(raw); err != nil {
		return nil, err
	}
	return md.Unused, nil
}

// HasKey reports whether a raw entry is a mapping that contains key.
func HasKey(raw any, key string) bool {
	m, ok := raw.(map[string]any)
	if !ok {
		return false
	}
	_, ok = m[key]
	return ok
}

// stringifyScalarHook renders bool and numeric YAML scalars as their literal
// text when the target is a string, so "enable_tls: yes" style values keep
// their spelling instead of becoming "1".
func stringifyScalarHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to.Kind() != reflect.String {
			return data, nil
		}
		switch v := data.(type) {
		case bool:
			return strconv.FormatBool(v), nil
		case int:
			return strconv.Itoa(v), nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		default:
			return data, nil
		}
	}
}
