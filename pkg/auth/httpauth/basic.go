package httpauth

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/marmos91/extauth/internal/logger"
	"github.com/marmos91/extauth/pkg/settings"
)

// BasicClient checks credentials by sending them as HTTP Basic
// authentication to the configured URI. A 200 response accepts the user;
// any other status rejects it.
type BasicClient struct {
	client *Client
}

// NewBasicClient creates a BasicClient on top of a retrying Client.
func NewBasicClient(params Params, opts ...Option) *BasicClient {
	return &BasicClient{client: NewClient(params, opts...)}
}

// Authenticate returns whether the server accepted userName and password,
// plus any session settings the server attached to a successful response.
// The error is non-nil only when the server could not be reached.
func (b *BasicClient) Authenticate(ctx context.Context, userName, password string) (bool, settings.Changes, error) {
	resp, err := b.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.client.params.URI, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.SetBasicAuth(userName, password)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return false, nil, err
	}

	if resp.StatusCode != http.StatusOK {
		logger.TraceCtx(ctx, "HTTP authentication rejected",
			logger.KeyURI, b.client.params.URI,
			logger.KeyUser, userName,
			logger.KeyStatus, resp.StatusCode)
		return false, nil, nil
	}

	changes, err := ParseSettingsResponse(resp.Body)
	if err != nil {
		logger.WarnCtx(ctx, "Ignoring malformed settings in HTTP authentication response",
			logger.KeyURI, b.client.params.URI,
			logger.Err(err))
		return true, nil, nil
	}
	return true, changes, nil
}

// ParseSettingsResponse extracts session settings from a response body of
// the form {"settings": {"name": value, ...}}. An empty body, or one without
// a settings member, yields no changes.
func ParseSettingsResponse(body []byte) (settings.Changes, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	decoded, err := settings.DecodeJSON(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	doc, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("response must be an object, got %T", decoded)
	}

	raw, ok := doc["settings"]
	if !ok || raw == nil {
		return nil, nil
	}
	tree, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("settings must be an object, got %T", raw)
	}

	return settings.Flatten("", tree), nil
}
