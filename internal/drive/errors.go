package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/teemow/driveproxy/internal/instrumentation"
)

// Sentinel errors for Drive failure classification.
// Use errors.Is(err, drive.ErrQuota) to check.
var (
	ErrAuth      = errors.New("drive: not authorized")
	ErrQuota     = errors.New("drive: quota exceeded")
	ErrNotFound  = errors.New("drive: not found")
	ErrTransport = errors.New("drive: transport failure")

	// ErrNotDownloadable marks files whose content Drive will not serve,
	// such as oversized exports.
	ErrNotDownloadable = errors.New("drive: content not downloadable")
)

// quotaReasons are the 403 reasons Drive uses for rate limits and quota.
var quotaReasons = map[string]bool{
	"userRateLimitExceeded":             true,
	"rateLimitExceeded":                 true,
	"quotaExceeded":                     true,
	"storageQuotaExceeded":              true,
	"dailyLimitExceeded":                true,
	"sharingRateLimitExceeded":          true,
	"teamDriveFileLimitExceeded":        true,
	"downloadQuotaExceeded":             true,
	"numChildrenInNonRootLimitExceeded": true,
}

// notDownloadableReasons are the 403 reasons Drive uses when content cannot
// be downloaded or exported.
var notDownloadableReasons = map[string]bool{
	"fileNotDownloadable":       true,
	"cannotDownloadAbusiveFile": true,
	"exportSizeLimitExceeded":   true,
	"cannotExportFile":          true,
}

// APIError is a classified Drive failure. Err is one of the sentinel
// errors; Cause is the underlying error.
type APIError struct {
	Op         string
	StatusCode int
	Reason     string
	Message    string
	Err        error
	Cause      error
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Reason != "":
		return fmt.Sprintf("drive %s: HTTP %d (%s): %s", e.Op, e.StatusCode, e.Reason, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("drive %s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("drive %s: %s", e.Op, e.Message)
	}
}

func (e *APIError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// classify maps err to an *APIError. Errors that are already classified
// pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		reason := ""
		if len(gerr.Errors) > 0 {
			reason = gerr.Errors[0].Reason
		}
		return &APIError{
			Op:         op,
			StatusCode: gerr.Code,
			Reason:     reason,
			Message:    gerr.Message,
			Err:        classifyStatus(gerr),
			Cause:      err,
		}
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		code := 0
		if rerr.Response != nil {
			code = rerr.Response.StatusCode
		}
		return &APIError{
			Op:         op,
			StatusCode: code,
			Reason:     rerr.ErrorCode,
			Message:    "token refresh failed",
			Err:        ErrAuth,
			Cause:      err,
		}
	}

	return &APIError{Op: op, Message: err.Error(), Err: ErrTransport, Cause: err}
}

func classifyStatus(gerr *googleapi.Error) error {
	switch gerr.Code {
	case http.StatusUnauthorized:
		return ErrAuth
	case http.StatusForbidden:
		for _, item := range gerr.Errors {
			if quotaReasons[item.Reason] {
				return ErrQuota
			}
			if notDownloadableReasons[item.Reason] {
				return ErrNotDownloadable
			}
		}
		return ErrAuth
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrQuota
	default:
		return ErrTransport
	}
}

// Kind returns the metric label for a classified error.
func Kind(err error) string {
	switch {
	case err == nil:
		return instrumentation.StatusSuccess
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrQuota):
		return "quota"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotDownloadable):
		return "not_downloadable"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "transport"
	}
}
