// Package server exposes the file orchestrator over HTTP.
//
// Every route under /files requires a bearer JWT signed with the shared
// secret. The token names the caller by username and email, either as
// top-level claims or nested under UserInfo. Routes:
//
//	GET    /files, /files/, /files/home, /files/folders   list the home folder
//	GET    /files/folders/{folderId}                       list a folder
//	POST   /files/folders/{folderId}                       upload a multipart file set
//	GET    /files/{fileId}                                 stream a file
//	GET    /files/folders/{folderId}/{fileId}              stream a file
//	DELETE /files/{fileId}                                 delete a file
//
// Retrieve and Delete take a JSON body declaring the file id and owners.
// List and upload accept ?account=<email> to pick a linked account.
//
// The health endpoints /healthz, /readyz and /healthz/detailed are public.
// Metrics are served by MetricsServer on a separate port.
package server
