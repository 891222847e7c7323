// Package credstore defines the read contract for linked Google credentials.
//
// A user record is keyed by the (username, email) pair supplied by upstream
// authentication and carries the ordered list of Google accounts the user has
// linked, each with its own OAuth token set. The package provides the Store
// interface, the record types shared by all backends and an in-memory
// implementation used for development and tests.
//
// Persistent backends live in sub-packages:
//   - mongostore: MongoDB collection of user documents
//   - sqlitestore: SQLite database with embedded goose migrations
//
// Stores never cache: every lookup reads the backend so that unlinked or
// revoked accounts stop being usable on the next request.
package credstore
