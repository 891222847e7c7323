package instrumentation

import (
	"strings"

	"github.com/teemow/driveproxy/internal/logging"
)

// ExtractUserDomain extracts the domain part from an email address so
// metrics and general logs can carry a low-cardinality user label.
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("invalid")           // "unknown"
func ExtractUserDomain(email string) string {
	if domain := logging.ExtractDomain(email); domain != "" {
		return strings.ToLower(domain)
	}
	return "unknown"
}

// Drive API operation names.
const (
	OperationList     = "list"
	OperationGet      = "get"
	OperationDownload = "download"
	OperationExport   = "export"
	OperationCreate   = "create"
	OperationDelete   = "delete"
)

// File operation names used by audit logs and file operation metrics.
const (
	FileOpList     = "list"
	FileOpUpload   = "upload"
	FileOpRetrieve = "retrieve"
	FileOpDelete   = "delete"
)

// routeLabel collapses request paths into their route pattern so Drive IDs
// never become metric labels.
func routeLabel(pattern string) string {
	if pattern == "" {
		return "unmatched"
	}
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		return pattern[i+1:]
	}
	return pattern
}
