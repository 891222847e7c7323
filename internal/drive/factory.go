package drive

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/teemow/driveproxy/internal/credstore"
	"github.com/teemow/driveproxy/internal/google"
	"github.com/teemow/driveproxy/internal/instrumentation"
)

// Default timeouts for Drive calls.
const (
	DefaultCallTimeout   = 30 * time.Second
	DefaultStreamTimeout = 10 * time.Minute
)

// GatewayFactory builds a Gateway for a linked account.
type GatewayFactory interface {
	ForAccount(ctx context.Context, account credstore.LinkedAccount) (Gateway, error)
}

// FactoryConfig configures a Factory.
type FactoryConfig struct {
	// Tokens supplies token sources for linked accounts. Required.
	Tokens google.TokenProvider

	// Transport is the round tripper under the OAuth layer. Defaults to
	// google.NewBaseTransport.
	Transport http.RoundTripper

	// Endpoint overrides the Drive API base URL.
	Endpoint string

	CallTimeout   time.Duration
	StreamTimeout time.Duration

	Metrics *instrumentation.Metrics
}

// Factory creates Drive clients from stored token sets. Clients are not
// cached; each request gets a client bound to its own account.
type Factory struct {
	config FactoryConfig
}

var _ GatewayFactory = (*Factory)(nil)

// NewFactory creates a Factory, applying defaults to unset fields.
func NewFactory(config FactoryConfig) (*Factory, error) {
	if config.Tokens == nil {
		return nil, fmt.Errorf("token provider is required")
	}
	if config.Transport == nil {
		config.Transport = google.NewBaseTransport()
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultCallTimeout
	}
	if config.StreamTimeout <= 0 {
		config.StreamTimeout = DefaultStreamTimeout
	}
	return &Factory{config: config}, nil
}

// ForAccount returns a Client authorized as account.
func (f *Factory) ForAccount(ctx context.Context, account credstore.LinkedAccount) (Gateway, error) {
	if account.Tokens.AccessToken == "" && account.Tokens.RefreshToken == "" {
		return nil, &APIError{Op: "authorize", Message: "linked account has no tokens", Err: ErrAuth}
	}

	ts := &refreshRecorder{
		src:     f.config.Tokens.TokenSourceFor(ctx, account, f.config.CallTimeout),
		last:    account.Tokens.AccessToken,
		metrics: f.config.Metrics,
	}

	opts := []option.ClientOption{option.WithHTTPClient(google.NewHTTPClient(ts, f.config.Transport))}
	if f.config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.config.Endpoint))
	}

	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	return &Client{
		service:       service,
		callTimeout:   f.config.CallTimeout,
		streamTimeout: f.config.StreamTimeout,
		metrics:       f.config.Metrics,
	}, nil
}

// refreshRecorder records token refreshes performed by the wrapped source.
// Refreshed tokens live only for the request and are never written back.
type refreshRecorder struct {
	src     oauth2.TokenSource
	metrics *instrumentation.Metrics

	mu   sync.Mutex
	last string
}

func (r *refreshRecorder) Token() (*oauth2.Token, error) {
	tok, err := r.src.Token()
	if err != nil {
		r.metrics.RecordTokenRefresh(context.Background(), instrumentation.RefreshFailure)
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if tok.AccessToken != r.last {
		r.last = tok.AccessToken
		r.metrics.RecordTokenRefresh(context.Background(), instrumentation.RefreshSuccess)
	}
	return tok, nil
}
