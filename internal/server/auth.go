package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/teemow/driveproxy/internal/credstore"
	"github.com/teemow/driveproxy/internal/files"
	"github.com/teemow/driveproxy/internal/logging"
)

// ErrInvalidToken is returned for missing, malformed or unverifiable tokens.
var ErrInvalidToken = errors.New("invalid access token")

// jwtLeeway tolerates clock skew between token issuer and this service.
const jwtLeeway = 30 * time.Second

// userInfo is the nested identity claim written by the account service.
type userInfo struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// accessClaims accepts the identity either nested under UserInfo or as
// top-level claims.
type accessClaims struct {
	UserInfo *userInfo `json:"UserInfo,omitempty"`
	Username string    `json:"username,omitempty"`
	Email    string    `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (c *accessClaims) identity() credstore.Identity {
	if c.UserInfo != nil && c.UserInfo.Username != "" {
		return credstore.Identity{Username: c.UserInfo.Username, Email: c.UserInfo.Email}
	}
	return credstore.Identity{Username: c.Username, Email: c.Email}
}

// Authenticator verifies HMAC-signed bearer tokens.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
	logger *slog.Logger
}

// NewAuthenticator creates an Authenticator for tokens signed with secret.
// Every token must carry an expiry. A non-empty issuer is enforced on every
// token.
func NewAuthenticator(secret, issuer string, logger *slog.Logger) (*Authenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("access token secret is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(jwtLeeway),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	return &Authenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(opts...),
		logger: logger,
	}, nil
}

// Verify parses and verifies a raw token and returns the caller identity.
func (a *Authenticator) Verify(raw string) (credstore.Identity, error) {
	var claims accessClaims
	_, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return credstore.Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	id := claims.identity()
	if !id.Valid() {
		return credstore.Identity{}, fmt.Errorf("%w: username and email claims are required", ErrInvalidToken)
	}
	return id, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// verified identity in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r.Header.Get("Authorization"))
		if err == nil {
			var id credstore.Identity
			if id, err = a.Verify(raw); err == nil {
				next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
				return
			}
		}

		requestLogger(a.logger, r).DebugContext(r.Context(), "rejected request",
			slog.String("token", logging.SanitizeToken(raw)),
			logging.Err(err),
		)
		w.Header().Set("WWW-Authenticate", `Bearer realm="driveproxy"`)
		writeMessage(w, http.StatusUnauthorized, files.MsgUnauthorized)
	})
}

// bearerToken extracts the token of a Bearer authorization header.
func bearerToken(header string) (string, error) {
	scheme, token, _ := strings.Cut(header, " ")
	if scheme == "" {
		return "", fmt.Errorf("%w: missing authorization header", ErrInvalidToken)
	}
	if !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidToken, scheme)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	return token, nil
}
