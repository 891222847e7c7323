package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/teemow/driveproxy/internal/credstore"
	"github.com/teemow/driveproxy/internal/logging"
)

type contextKey int

const (
	identityKey contextKey = iota
	requestIDKey
)

// ContextWithIdentity returns a context carrying the verified caller.
func ContextWithIdentity(ctx context.Context, id credstore.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the verified caller, if any.
func IdentityFromContext(ctx context.Context) (credstore.Identity, bool) {
	id, ok := ctx.Value(identityKey).(credstore.Identity)
	return id, ok
}

// ContextWithRequestID returns a context carrying the request id.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestLogger returns logger tagged with the request id of r.
func requestLogger(logger *slog.Logger, r *http.Request) *slog.Logger {
	return logging.WithRequestID(logger, RequestIDFromContext(r.Context()))
}
