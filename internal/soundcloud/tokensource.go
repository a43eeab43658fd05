package soundcloud

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// TokenSourceOption configures a TokenSource.
type TokenSourceOption func(*tokenSourceConfig)

// tokenSourceConfig holds configuration for NewTokenSource.
type tokenSourceConfig struct {
	baseTransport http.RoundTripper
}

// WithTransport sets a custom base transport for token refresh requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) TokenSourceOption {
	return func(c *tokenSourceConfig) {
		c.baseTransport = transport
	}
}

// TokenSource provides automatic token refresh for SoundCloud OAuth2 tokens.
type TokenSource struct {
	tokenSource oauth2.TokenSource
}

// Compile-time check to ensure TokenSource implements oauth2.TokenSource
var _ oauth2.TokenSource = (*TokenSource)(nil)

// NewTokenSource creates a TokenSource starting from a stored access token.
// With a refresh token the access token is refreshed once expired; without
// one the access token is used as is.
func NewTokenSource(cfg *oauth2.Config, accessToken, refreshToken string, opts ...TokenSourceOption) *TokenSource {
	tsCfg := &tokenSourceConfig{
		baseTransport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(tsCfg)
	}

	initialToken := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	}
	if refreshToken != "" {
		// Stored tokens carry no expiry; refresh on first use to learn it.
		initialToken.Expiry = time.Unix(1, 0)
	}

	httpClient := &http.Client{
		Timeout: 30 * time.Second, // Bounds token refresh even during shutdown (oauth2 uses context.Background internally)
		Transport: &acceptJSONTransport{
			base: tsCfg.baseTransport,
		},
	}
	// oauth2 package injects custom HTTP clients via context (oauth2.HTTPClient key).
	oauthCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)

	return &TokenSource{
		tokenSource: cfg.TokenSource(oauthCtx, initialToken),
	}
}

// Token returns a valid access token, automatically refreshing if expired.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	return ts.tokenSource.Token()
}

// acceptJSONTransport asks the token endpoint for JSON explicitly; SoundCloud
// otherwise may answer refresh requests in its legacy format.
type acceptJSONTransport struct {
	base http.RoundTripper
}

// Compile-time check that acceptJSONTransport implements http.RoundTripper.
var _ http.RoundTripper = (*acceptJSONTransport)(nil)

// RoundTrip sets the Accept header on a clone of the request.
func (t *acceptJSONTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	newReq := req.Clone(req.Context())
	newReq.Header.Set("Accept", "application/json; charset=utf-8")
	return t.base.RoundTrip(newReq)
}
