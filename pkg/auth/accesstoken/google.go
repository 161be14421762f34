package accesstoken

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/marmos91/extauth/internal/logger"
	"github.com/marmos91/extauth/pkg/auth/httpauth"
	"github.com/marmos91/extauth/pkg/autherr"
	"github.com/marmos91/extauth/pkg/credentials"
	"github.com/marmos91/extauth/pkg/settings"
)

// Google endpoints.
const (
	GoogleTokenInfoURI = "https://www.googleapis.com/oauth2/v3/tokeninfo"
	GoogleUserInfoURI  = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// GoogleProcessor resolves Google OAuth access tokens through the tokeninfo
// and userinfo endpoints.
type GoogleProcessor struct {
	name        string
	interval    time.Duration
	emailFilter *regexp.Regexp

	tokenInfo *httpauth.Client
	userInfo  *httpauth.Client
}

// NewGoogleProcessor creates a processor. A non-nil emailFilter must match
// the whole e-mail address returned by userinfo.
func NewGoogleProcessor(name string, interval time.Duration, emailFilter *regexp.Regexp, tokenInfo, userInfo *httpauth.Client) *GoogleProcessor {
	return &GoogleProcessor{
		name:        name,
		interval:    interval,
		emailFilter: emailFilter,
		tokenInfo:   tokenInfo,
		userInfo:    userInfo,
	}
}

func (p *GoogleProcessor) Name() string                             { return p.name }
func (p *GoogleProcessor) Provider() string                         { return ProviderGoogle }
func (p *GoogleProcessor) CacheInvalidationInterval() time.Duration { return p.interval }

// ResolveAndValidate implements Processor.
func (p *GoogleProcessor) ResolveAndValidate(ctx context.Context, tok *credentials.Token) (bool, error) {
	header := http.Header{"Authorization": []string{"Bearer " + tok.Token()}}

	info, err := p.fetch(ctx, p.tokenInfo, header, "resolve access token")
	if err != nil {
		return false, err
	}
	userName, _ := info["sub"].(string)
	if userName == "" {
		return false, fmt.Errorf("%w: access token resolved to no subject", autherr.ErrAuthenticationFailed)
	}

	user, err := p.fetch(ctx, p.userInfo, header, "get user info by access token")
	if err != nil {
		return false, err
	}
	email, ok := user["email"].(string)
	if !ok {
		return false, fmt.Errorf("%w: user %s: e-mail address not found in user data", autherr.ErrAuthenticationFailed, userName)
	}
	if _, ok := user["sub"].(string); !ok {
		return false, fmt.Errorf("%w: user %s: subject not found in user data", autherr.ErrAuthenticationFailed, userName)
	}

	if p.emailFilter != nil && !p.emailFilter.MatchString(email) {
		return false, fmt.Errorf("%w: user %s: e-mail address is not permitted", autherr.ErrAuthenticationFailed, userName)
	}

	tok.Populate(credentials.Identity{
		UserName: userName,
		Expiry:   tokenExpiry(info),
	})

	logger.DebugCtx(ctx, "Access token resolved",
		logger.KeyProcessor, p.name,
		logger.KeyUser, userName)
	return true, nil
}

func (p *GoogleProcessor) fetch(ctx context.Context, c *httpauth.Client, header http.Header, what string) (map[string]any, error) {
	resp, err := c.Get(ctx, header)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: failed to %s, code: %d", autherr.ErrAuthenticationFailed, what, resp.StatusCode)
	}

	decoded, err := settings.DecodeJSON(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to %s: %v", autherr.ErrAuthenticationFailed, what, err)
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: failed to %s: response is not an object", autherr.ErrAuthenticationFailed, what)
	}
	return obj, nil
}

// tokenExpiry reads the "exp" member of a tokeninfo response, which Google
// sends as a decimal string of Unix seconds.
func tokenExpiry(info map[string]any) time.Time {
	var secs int64
	switch v := info["exp"].(type) {
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}
		}
		secs = n
	case int64:
		secs = v
	case float64:
		secs = int64(v)
	default:
		return time.Time{}
	}
	if secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}
