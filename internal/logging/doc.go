// Package logging provides structured logging utilities for driveproxy.
//
// It centralizes attribute naming so request, Drive and audit logs can be
// correlated, and keeps PII out of operational logs.
//
//	logger := logging.WithOperation(base, "files.retrieve")
//	logger.Info("file retrieved",
//	    logging.UserHash(identity.Email),
//	    logging.FileID(id))
//
// User and account emails are hashed with AnonymizeEmail. OAuth tokens are
// never logged; SanitizeToken reports only their length.
package logging
