package google

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/driveproxy/internal/credstore"
)

// TokenProvider supplies OAuth token sources for linked accounts.
type TokenProvider interface {
	// TokenSourceFor returns a token source authorizing requests as account.
	// A refresh performed by the source is bounded by refreshTimeout.
	TokenSourceFor(ctx context.Context, account credstore.LinkedAccount, refreshTimeout time.Duration) oauth2.TokenSource
}

// StoredTokenProvider serves tokens from the stored token set of an account,
// refreshing through conf when it is set.
type StoredTokenProvider struct {
	conf *oauth2.Config
	base http.RoundTripper
}

// NewStoredTokenProvider creates a provider. conf may be nil.
func NewStoredTokenProvider(conf *oauth2.Config, base http.RoundTripper) *StoredTokenProvider {
	return &StoredTokenProvider{conf: conf, base: base}
}

// TokenSourceFor implements TokenProvider.
func (p *StoredTokenProvider) TokenSourceFor(ctx context.Context, account credstore.LinkedAccount, refreshTimeout time.Duration) oauth2.TokenSource {
	return TokenSource(ctx, p.conf, account.Tokens.Token(), p.base, refreshTimeout)
}

// CanRefresh reports whether expired tokens can be refreshed.
func (p *StoredTokenProvider) CanRefresh() bool {
	return p.conf != nil
}
