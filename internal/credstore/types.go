package credstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ErrNotFound is returned when no user record matches an identity.
var ErrNotFound = errors.New("credstore: user not found")

// ErrAmbiguous is returned when an identity matches more than one user record.
var ErrAmbiguous = errors.New("credstore: identity matches more than one user")

// Identity is the verified caller identity supplied by upstream authentication.
type Identity struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Valid reports whether both parts of the identity are present.
func (id Identity) Valid() bool {
	return strings.TrimSpace(id.Username) != "" && strings.TrimSpace(id.Email) != ""
}

// TokenSet is a stored OAuth token set for one linked Google account.
// Field names follow the token format written by the account-linking flow.
type TokenSet struct {
	AccessToken  string `json:"access_token" bson:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty" bson:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty" bson:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty" bson:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty" bson:"id_token,omitempty"`

	// ExpiryDate is the access token expiry in Unix milliseconds (0 = unknown).
	ExpiryDate int64 `json:"expiry_date,omitempty" bson:"expiry_date,omitempty"`
}

// Token converts the stored token set into an oauth2.Token.
func (t TokenSet) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
	}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	if t.ExpiryDate > 0 {
		tok.Expiry = time.UnixMilli(t.ExpiryDate)
	}
	if t.IDToken != "" {
		tok = tok.WithExtra(map[string]interface{}{"id_token": t.IDToken})
	}
	return tok
}

// LinkedAccount is one Google account linked to a user.
type LinkedAccount struct {
	// Email is the Google account address. Unique within one user's accounts.
	Email string `json:"email" bson:"email"`

	// Tokens is the OAuth token set authorizing Drive access for Email.
	Tokens TokenSet `json:"tokens" bson:"tokens"`

	// Home marks the account used for folder listing and uploads when the
	// caller does not select one explicitly.
	Home bool `json:"home,omitempty" bson:"home,omitempty"`
}

// User is a stored user record.
type User struct {
	Username          string          `json:"username" bson:"username"`
	Email             string          `json:"email" bson:"email"`
	GoogleCredentials []LinkedAccount `json:"google_credentials" bson:"google_credentials"`
}

// Identity returns the lookup key of the record.
func (u User) Identity() Identity {
	return Identity{Username: u.Username, Email: u.Email}
}

// Store looks up the Google accounts linked to an identity.
type Store interface {
	// LookupLinkedAccounts returns the accounts linked to id in linking order.
	// An empty slice is a valid result. ErrNotFound is returned when no
	// record matches id.
	LookupLinkedAccounts(ctx context.Context, id Identity) ([]LinkedAccount, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// Seeder is implemented by stores that accept user records at startup.
type Seeder interface {
	PutUser(ctx context.Context, user User) error
}

// Dedupe drops accounts whose email already appeared earlier in the list,
// comparing case-insensitively. The first link of an address wins.
func Dedupe(accounts []LinkedAccount) []LinkedAccount {
	if len(accounts) == 0 {
		return []LinkedAccount{}
	}
	seen := make(map[string]struct{}, len(accounts))
	out := make([]LinkedAccount, 0, len(accounts))
	for _, a := range accounts {
		key := NormalizeEmail(a.Email)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}

// NormalizeEmail returns the comparison form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
