// Package files coordinates credential lookup, account selection and Drive
// calls for the list, upload, retrieve and delete flows.
//
// Every flow starts from the caller identity verified upstream. Listing and
// uploading use the caller's home account, or the account named in the
// request. Retrieving and deleting by file id use the first declared owner
// that is linked to the caller. Failures are returned as *Error, whose Kind
// the HTTP layer maps to a status code.
package files
