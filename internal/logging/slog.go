package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

// Common log attribute keys.
const (
	KeyOperation = "operation"
	KeyService   = "service"
	KeyAccount   = "account_hash"
	KeyUserHash  = "user_hash"
	KeyDuration  = "duration"
	KeyStatus    = "status"
	KeyError     = "error"
	KeyFileID    = "file_id"
	KeyFolderID  = "folder_id"
	KeyRequestID = "request_id"
	KeyRoute     = "route"
)

// Status values. Duplicated in instrumentation, which imports this package.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithService returns a logger with the service attribute set.
func WithService(logger *slog.Logger, service string) *slog.Logger {
	return logger.With(slog.String(KeyService, service))
}

// WithRequestID returns a logger with the request ID attribute set.
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	if requestID == "" {
		return logger
	}
	return logger.With(RequestID(requestID))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Account returns a slog attribute with the hashed linked-account email.
func Account(email string) slog.Attr {
	return slog.String(KeyAccount, AnonymizeEmail(email))
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// FileID returns a slog attribute for a Drive file ID.
func FileID(id string) slog.Attr {
	return slog.String(KeyFileID, id)
}

// FolderID returns a slog attribute for a Drive folder ID.
func FolderID(id string) slog.Attr {
	return slog.String(KeyFolderID, id)
}

// RequestID returns a slog attribute for the request ID.
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Route returns a slog attribute for the matched route pattern.
func Route(pattern string) slog.Attr {
	return slog.String(KeyRoute, pattern)
}

// Err returns a slog attribute for an error. A nil err yields an empty
// group, which slog omits, so Err(maybeNil) is always safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail returns a stable hash of an email for log correlation.
// Addresses are compared case-insensitively, so they are hashed lowercased.
func AnonymizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(email))
	return "user:" + hex.EncodeToString(hash[:8])
}

// UserHash returns a slog attribute with the anonymized user email.
func UserHash(email string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeEmail(email))
}

// SanitizeToken returns a length indicator for a token without exposing
// any of its content.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// ExtractDomain extracts the domain part from an email address.
func ExtractDomain(email string) string {
	if email == "" {
		return ""
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}
