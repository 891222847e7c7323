package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/driveproxy/internal/logging"
)

// FileOperation captures one list, upload, retrieve or delete request for
// the audit trail.
//
// UserEmail and Account are PII. LogAttrs hashes them; LogAuditAttrs does not.
type FileOperation struct {
	Operation string

	// Caller identity from the verified JWT
	Username  string
	UserEmail string

	// Linked Google account that served the request, if one was selected
	Account string

	FileID   string
	FolderID string
	Files    int

	StartTime time.Time
	Duration  time.Duration
	Success   bool

	// Kind is the failure kind, empty on success.
	Kind  string
	Error string

	TraceID string
	SpanID  string
}

// NewFileOperation starts timing an operation. Call Complete when it finishes.
func NewFileOperation(op string) *FileOperation {
	return &FileOperation{
		Operation: op,
		StartTime: time.Now(),
	}
}

// WithUser sets the caller identity.
func (fo *FileOperation) WithUser(username, email string) *FileOperation {
	fo.Username = username
	fo.UserEmail = email
	return fo
}

// WithAccount sets the linked account that served the request.
func (fo *FileOperation) WithAccount(account string) *FileOperation {
	fo.Account = account
	return fo
}

// WithTarget sets the file and folder the operation acted on.
func (fo *FileOperation) WithTarget(folderID, fileID string) *FileOperation {
	fo.FolderID = folderID
	fo.FileID = fileID
	return fo
}

// WithFiles sets the number of files in an upload batch.
func (fo *FileOperation) WithFiles(n int) *FileOperation {
	fo.Files = n
	return fo
}

// WithSpanContext copies trace and span IDs from ctx.
func (fo *FileOperation) WithSpanContext(ctx context.Context) *FileOperation {
	fo.TraceID = GetTraceID(ctx)
	fo.SpanID = GetSpanID(ctx)
	return fo
}

// Complete stops timing. kind is empty for success.
func (fo *FileOperation) Complete(kind string, err error) *FileOperation {
	fo.Duration = time.Since(fo.StartTime)
	fo.Success = kind == ""
	fo.Kind = kind
	if err != nil {
		fo.Error = err.Error()
	}
	return fo
}

// Status returns "success" or the failure kind.
func (fo *FileOperation) Status() string {
	if fo.Success {
		return StatusSuccess
	}
	if fo.Kind != "" {
		return fo.Kind
	}
	return StatusError
}

// UserDomain returns the domain of the caller's email.
func (fo *FileOperation) UserDomain() string {
	return ExtractUserDomain(fo.UserEmail)
}

// LogAttrs returns attributes with hashed identities.
func (fo *FileOperation) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("operation", fo.Operation),
		logging.UserHash(fo.UserEmail),
		slog.String("user_domain", fo.UserDomain()),
		slog.Duration("duration", fo.Duration),
		slog.String("status", fo.Status()),
	}
	if fo.Account != "" {
		attrs = append(attrs, slog.String("account_hash", logging.AnonymizeEmail(fo.Account)))
	}
	return fo.appendTarget(attrs)
}

// LogAuditAttrs returns attributes with full identities.
func (fo *FileOperation) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("operation", fo.Operation),
		slog.String("username", fo.Username),
		slog.String("user", fo.UserEmail),
		slog.Duration("duration", fo.Duration),
		slog.String("status", fo.Status()),
	}
	if fo.Account != "" {
		attrs = append(attrs, slog.String("account", fo.Account))
	}
	return fo.appendTarget(attrs)
}

func (fo *FileOperation) appendTarget(attrs []slog.Attr) []slog.Attr {
	if fo.FolderID != "" {
		attrs = append(attrs, logging.FolderID(fo.FolderID))
	}
	if fo.FileID != "" {
		attrs = append(attrs, logging.FileID(fo.FileID))
	}
	if fo.Files > 0 {
		attrs = append(attrs, slog.Int("files", fo.Files))
	}
	if fo.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", fo.TraceID))
	}
	if fo.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", fo.SpanID))
	}
	if fo.Error != "" {
		attrs = append(attrs, slog.String("error", fo.Error))
	}
	return attrs
}

// AuditLogger writes one structured line per file operation.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger. A nil logger uses slog.Default.
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger.With(slog.String("log_type", "audit")),
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// Log writes fo. Failures log at WARN.
func (al *AuditLogger) Log(ctx context.Context, fo *FileOperation) {
	if al == nil || !al.enabled || fo == nil {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = fo.LogAuditAttrs()
	} else {
		attrs = fo.LogAttrs()
	}

	level := slog.LevelInfo
	msg := "file_operation"
	if !fo.Success {
		level = slog.LevelWarn
		msg = "file_operation_failed"
	}
	al.logger.LogAttrs(ctx, level, msg, attrs...)
}
