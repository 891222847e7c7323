// Package drive wraps the Google Drive v3 API for one linked account.
//
// A Gateway lists folders, reads metadata, streams content, uploads and
// deletes files. Gateways are built per request by a Factory from the token
// set of the linked account selected for that request:
//
//	gw, err := factory.ForAccount(ctx, account)
//	if err != nil {
//	    return err
//	}
//	files, err := gw.ListFolder(ctx, drive.RootFolder)
//
// Calls are never retried or cached. Every failure is an *APIError that
// matches exactly one of ErrAuth, ErrQuota, ErrNotFound or ErrTransport
// with errors.Is. Metadata calls run under the factory's call timeout;
// downloads run under the stream timeout until the stream is closed.
package drive
