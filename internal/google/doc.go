// Package google builds authenticated HTTP clients for Google APIs from
// stored OAuth token sets.
//
// Tokens come from the credential store, never from local files. When OAuth
// client credentials are configured, expired access tokens are refreshed
// transparently with the stored refresh token; otherwise the stored access
// token is used as is and Google rejects it once it expires.
package google
