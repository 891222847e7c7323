package google

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// NewOAuthConfig returns the OAuth2 configuration used to refresh stored
// tokens. It returns nil when no client credentials are configured.
// tokenURL overrides Google's token endpoint when non-empty.
func NewOAuthConfig(clientID, clientSecret, tokenURL string) *oauth2.Config {
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(clientSecret) == "" {
		return nil
	}
	endpoint := google.Endpoint
	if tokenURL != "" {
		endpoint.TokenURL = tokenURL
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     endpoint,
		Scopes:       DriveScopes,
	}
}

// NewBaseTransport returns the transport underneath the OAuth layer.
// HTTP/2 is disabled to avoid stream errors on long Drive downloads.
func NewBaseTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ForceAttemptHTTP2 = false
	t.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	return t
}

// DefaultRefreshTimeout bounds a token refresh when no timeout is given.
const DefaultRefreshTimeout = 30 * time.Second

// TokenSource returns a token source for a stored token. With a nil conf,
// or a token without refresh token, the stored token is returned unchanged.
// Refresh requests go through base and are bounded by timeout.
//
// oauth2.Transport refreshes inside RoundTrip using ctx, not the context of
// the API request, so the deadline of the API call does not apply to it.
func TokenSource(ctx context.Context, conf *oauth2.Config, tok *oauth2.Token, base http.RoundTripper, timeout time.Duration) oauth2.TokenSource {
	if conf == nil || tok.RefreshToken == "" {
		return oauth2.StaticTokenSource(tok)
	}
	if base == nil {
		base = http.DefaultTransport
	}
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: base, Timeout: timeout})
	return conf.TokenSource(ctx, tok)
}

// NewHTTPClient returns an HTTP client that authorizes every request with ts.
func NewHTTPClient(ts oauth2.TokenSource, base http.RoundTripper) *http.Client {
	if base == nil {
		base = NewBaseTransport()
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   base,
		},
	}
}
