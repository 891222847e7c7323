package drive

import (
	"context"
	"io"
	"time"
)

// Gateway performs Drive calls authorized as one linked account.
type Gateway interface {
	// ListFolder returns the non-trashed children of folderID, single page.
	ListFolder(ctx context.Context, folderID string) ([]*FileInfo, error)

	// GetFile returns the metadata of a file.
	GetFile(ctx context.Context, fileID string) (*FileInfo, error)

	// Download opens the content of a file. The caller must close it.
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)

	// Export opens a Google Workspace file converted to mimeType. The
	// caller must close it.
	Export(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error)

	// Upload creates one file.
	Upload(ctx context.Context, name string, content io.Reader, options *UploadOptions) (*FileInfo, error)

	// Delete permanently deletes a file.
	Delete(ctx context.Context, fileID string) error
}

// FileInfo represents metadata about a file or folder in Google Drive
type FileInfo struct {
	// ID is the unique identifier for the file
	ID string `json:"id"`

	// Name is the name of the file
	Name string `json:"name"`

	// MimeType is the MIME type of the file
	MimeType string `json:"mimeType"`

	// Size is the size of the file in bytes (not populated for folders)
	Size int64 `json:"size,omitempty"`

	CreatedTime  time.Time `json:"createdTime"`
	ModifiedTime time.Time `json:"modifiedTime"`

	// WebViewLink is a link for opening the file in a relevant Google editor or viewer
	WebViewLink string `json:"webViewLink,omitempty"`

	// Parents are the IDs of the parent folders
	Parents []string `json:"parents,omitempty"`

	// Owners are the owners of the file, in the order Drive reports them
	Owners []User `json:"owners,omitempty"`

	Shared bool `json:"shared"`
}

// IsFolder reports whether f is a Drive folder.
func (f *FileInfo) IsFolder() bool {
	return f.MimeType == FolderMimeType
}

// User represents a Google Drive user reported as file owner
type User struct {
	DisplayName  string `json:"displayName,omitempty"`
	EmailAddress string `json:"emailAddress"`
}

// UploadOptions contains options for uploading a file
type UploadOptions struct {
	// ParentFolders are the IDs of parent folders where the file should be placed
	ParentFolders []string

	// MimeType is the MIME type of the file (e.g., "application/pdf", "image/png")
	// If not specified, Drive will attempt to detect it automatically
	MimeType string
}
