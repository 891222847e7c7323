package files

import (
	"errors"
	"fmt"

	"github.com/teemow/driveproxy/internal/drive"
)

// Kind classifies a failed operation.
type Kind string

const (
	KindUnauthorized  Kind = "unauthorized"
	KindNoCredentials Kind = "no_credentials"
	KindUnresolved    Kind = "unresolved"
	KindBadRequest    Kind = "bad_request"
	KindNotFound      Kind = "not_found"
	KindQuota         Kind = "quota"
	KindUpstream      Kind = "upstream"
	KindUploadFailed  Kind = "upload_failed"
	KindStream        Kind = "stream"
	KindInternal      Kind = "internal"
)

// Client-facing messages.
const (
	MsgUnauthorized      = "Unauthorized"
	MsgNoCredentials     = "No google credentials"
	MsgNoMatch           = "No matching credentials"
	MsgNoFiles           = "No files uploaded"
	MsgIDMismatch        = "File id mismatch"
	MsgInvalidBody       = "Invalid request body"
	MsgNotLinked         = "Account is not linked"
	MsgNotFound          = "File not found"
	MsgQuota             = "Drive quota exceeded"
	MsgUpstream          = "Drive request failed"
	MsgInternal          = "Internal Server Error"
	MsgFilesUploaded     = "Files uploaded"
	MsgFileRetrieved     = "File retrieved"
	MsgFileDeleted       = "File deleted"
	MsgTooManyFiles      = "Too many files"
	MsgFileTooLarge      = "File too large"
	MsgStreamInterrupted = "Stream interrupted"
	MsgNotDownloadable   = "File cannot be downloaded"
)

// Error is the typed failure of a file operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// gatewayError maps a classified Drive failure to an operation error.
func gatewayError(err error) *Error {
	switch {
	case errors.Is(err, drive.ErrAuth):
		return newError(KindUnauthorized, MsgUnauthorized, err)
	case errors.Is(err, drive.ErrNotFound):
		return newError(KindNotFound, MsgNotFound, err)
	case errors.Is(err, drive.ErrQuota):
		return newError(KindQuota, MsgQuota, err)
	case errors.Is(err, drive.ErrNotDownloadable):
		return newError(KindBadRequest, MsgNotDownloadable, err)
	default:
		return newError(KindUpstream, MsgUpstream, err)
	}
}
