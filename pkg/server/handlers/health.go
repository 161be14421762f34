package handlers

import (
	"net/http"
	"time"

	"github.com/marmos91/extauth/pkg/auth"
)

// Response represents the wrapper of health responses.
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func healthyResponse(data any) Response {
	return Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func unhealthyResponse(errMsg string) Response {
	return Response{
		Status:    "unhealthy",
		Timestamp: time.Now().UTC(),
		Error:     errMsg,
	}
}

// ProviderLister is implemented by *auth.Authenticator.
type ProviderLister interface {
	Providers() auth.Summary
}

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness: is the process serving HTTP?
//   - Readiness: is at least one provider configured?
type HealthHandler struct {
	providers ProviderLister
	startTime time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(providers ProviderLister) *HealthHandler {
	return &HealthHandler{
		providers: providers,
		startTime: time.Now(),
	}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	WriteJSONOK(w, healthyResponse(map[string]any{
		"service":    "extauth",
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	}))
}

// ProvidersResponse counts the configured providers. Names stay private:
// the endpoint is unauthenticated.
type ProvidersResponse struct {
	LDAPServers           int  `json:"ldap_servers"`
	Kerberos              bool `json:"kerberos"`
	HTTPServers           int  `json:"http_authentication_servers"`
	JWTValidators         int  `json:"jwt_validators"`
	AccessTokenProcessors int  `json:"access_token_processors"`
}

// NewProvidersResponse converts a coordinator summary.
func NewProvidersResponse(s auth.Summary) ProvidersResponse {
	return ProvidersResponse{
		LDAPServers:           len(s.LDAPServers),
		Kerberos:              s.Kerberos,
		HTTPServers:           len(s.HTTPServers),
		JWTValidators:         len(s.JWTValidators),
		AccessTokenProcessors: len(s.AccessTokenProcessors),
	}
}

func (p ProvidersResponse) empty() bool {
	return p == ProvidersResponse{}
}

// Readiness handles GET /health/ready. It returns 503 until a configuration
// with at least one provider has been applied.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	resp := NewProvidersResponse(h.providers.Providers())
	if resp.empty() {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("no authentication provider configured"))
		return
	}
	WriteJSONOK(w, healthyResponse(resp))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
