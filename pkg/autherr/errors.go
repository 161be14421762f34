// Package autherr holds the error taxonomy shared by the authentication
// coordinator and every provider package.
//
// Providers wrap these sentinels with fmt.Errorf("...: %w", err) and callers
// classify failures with errors.Is. Only the coordinator decides whether an
// error is surfaced (configuration problems) or folded into a boolean
// authentication result.
package autherr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured indicates the requested provider kind or name has no
	// active configuration.
	ErrNotConfigured = errors.New("auth: provider not configured")

	// ErrConfig indicates a structural misconfiguration detected at reload:
	// duplicate sections, invalid enum values, missing or conflicting keys.
	ErrConfig = errors.New("auth: invalid configuration")

	// ErrAuthenticationFailed indicates credential verification failed.
	ErrAuthenticationFailed = errors.New("auth: authentication failed")

	// ErrNotReady indicates a credential identity field was read before any
	// provider populated it. This is a caller bug, not bad user input.
	ErrNotReady = errors.New("auth: credentials not ready")

	// ErrTransientIO indicates a network or timeout failure while talking to
	// an upstream identity source.
	ErrTransientIO = errors.New("auth: upstream unavailable")
)

// ConfigError describes one rejected configuration element. It matches
// ErrConfig under errors.Is.
type ConfigError struct {
	Section string // top-level section, e.g. "ldap_servers"
	Entry   string // named entry within the section, if any
	Key     string // offending key, if any
	Message string
}

func (e *ConfigError) Error() string {
	where := e.Section
	if e.Entry != "" {
		where += "." + e.Entry
	}
	if e.Key != "" {
		where += "." + e.Key
	}
	if where == "" {
		return "invalid configuration: " + e.Message
	}
	return fmt.Sprintf("invalid configuration %s: %s", where, e.Message)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// NewConfigError creates a ConfigError with a formatted message.
func NewConfigError(section, entry, key, format string, args ...any) *ConfigError {
	return &ConfigError{
		Section: section,
		Entry:   entry,
		Key:     key,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsConfigError returns true if err is or wraps a configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig)
}
