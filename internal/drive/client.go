package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/teemow/driveproxy/internal/instrumentation"
)

const (
	// FolderMimeType is the MIME type for Google Drive folders
	FolderMimeType = "application/vnd.google-apps.folder"

	// RootFolder is the alias of an account's top-level folder.
	RootFolder = "root"

	// listPageSize is the largest page Drive returns for files.list.
	listPageSize = 1000

	fileFields = "id, name, mimeType, size, createdTime, modifiedTime, webViewLink, parents, owners(displayName, emailAddress), shared"
)

// Client is the Gateway for one linked account.
type Client struct {
	service       *drive.Service
	callTimeout   time.Duration
	streamTimeout time.Duration
	metrics       *instrumentation.Metrics
}

var _ Gateway = (*Client)(nil)

// ListFolder lists the non-trashed children of folderID.
func (c *Client) ListFolder(ctx context.Context, folderID string) ([]*FileInfo, error) {
	if folderID == "" {
		folderID = RootFolder
	}

	var files []*FileInfo
	err := c.observe(ctx, instrumentation.OperationList, c.callTimeout, func(ctx context.Context) error {
		fileList, err := c.service.Files.List().
			Context(ctx).
			Q(FolderQuery(folderID)).
			PageSize(listPageSize).
			Fields(googleapi.Field("files(" + fileFields + ")")).
			Do()
		if err != nil {
			return err
		}
		files = make([]*FileInfo, len(fileList.Files))
		for i, f := range fileList.Files {
			files[i] = convertToFileInfo(f)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list folder %s: %w", folderID, err)
	}
	return files, nil
}

// GetFile retrieves metadata for a specific file
func (c *Client) GetFile(ctx context.Context, fileID string) (*FileInfo, error) {
	if fileID == "" {
		return nil, fmt.Errorf("fileID is required")
	}

	var info *FileInfo
	err := c.observe(ctx, instrumentation.OperationGet, c.callTimeout, func(ctx context.Context) error {
		file, err := c.service.Files.Get(fileID).
			Context(ctx).
			Fields(fileFields).
			Do()
		if err != nil {
			return err
		}
		info = convertToFileInfo(file)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", fileID, err)
	}
	return info, nil
}

// Download opens the content of a file. The returned stream stays bound to
// the stream timeout until it is closed.
func (c *Client) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if fileID == "" {
		return nil, fmt.Errorf("fileID is required")
	}
	rc, err := c.openStream(ctx, instrumentation.OperationDownload, func(ctx context.Context) (*http.Response, error) {
		return c.service.Files.Get(fileID).Context(ctx).Download()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	return rc, nil
}

// Export opens a Google Workspace file converted to mimeType.
func (c *Client) Export(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error) {
	if fileID == "" || mimeType == "" {
		return nil, fmt.Errorf("fileID and mimeType are required")
	}
	rc, err := c.openStream(ctx, instrumentation.OperationExport, func(ctx context.Context) (*http.Response, error) {
		return c.service.Files.Export(fileID, mimeType).Context(ctx).Download()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to export file %s as %s: %w", fileID, mimeType, err)
	}
	return rc, nil
}

func (c *Client) openStream(ctx context.Context, op string, open func(context.Context) (*http.Response, error)) (io.ReadCloser, error) {
	streamCtx, cancel := withTimeout(ctx, c.streamTimeout)

	var body io.ReadCloser
	err := c.observe(streamCtx, op, 0, func(ctx context.Context) error {
		resp, err := open(ctx)
		if err != nil {
			return err
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		cancel()
		return nil, err
	}

	return &stream{ctx: streamCtx, op: op, body: body, cancel: cancel, metrics: c.metrics}, nil
}

// Upload uploads a file to Google Drive
func (c *Client) Upload(ctx context.Context, name string, content io.Reader, options *UploadOptions) (*FileInfo, error) {
	if name == "" {
		return nil, fmt.Errorf("file name is required")
	}
	if content == nil {
		return nil, fmt.Errorf("file content is required")
	}

	file := &drive.File{
		Name: name,
	}

	var media []googleapi.MediaOption
	if options != nil {
		if len(options.ParentFolders) > 0 {
			file.Parents = options.ParentFolders
		}
		if options.MimeType != "" {
			file.MimeType = options.MimeType
			media = append(media, googleapi.ContentType(options.MimeType))
		}
	}

	var info *FileInfo
	err := c.observe(ctx, instrumentation.OperationCreate, c.callTimeout, func(ctx context.Context) error {
		driveFile, err := c.service.Files.Create(file).
			Context(ctx).
			Media(content, media...).
			Fields(fileFields).
			Do()
		if err != nil {
			return err
		}
		info = convertToFileInfo(driveFile)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload file %s: %w", name, err)
	}
	return info, nil
}

// Delete deletes a file from Google Drive, bypassing the trash.
func (c *Client) Delete(ctx context.Context, fileID string) error {
	if fileID == "" {
		return fmt.Errorf("fileID is required")
	}

	err := c.observe(ctx, instrumentation.OperationDelete, c.callTimeout, func(ctx context.Context) error {
		return c.service.Files.Delete(fileID).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("failed to delete file %s: %w", fileID, err)
	}
	return nil
}

// observe runs fn inside a client span and records the call. A positive
// timeout bounds fn. The returned error is classified.
func (c *Client) observe(ctx context.Context, op string, timeout time.Duration, fn func(context.Context) error) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceDrive, op)
	defer span.End()

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := classify(op, fn(callCtx))
	if err != nil {
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceDrive, op, Kind(err), time.Since(start))
	return err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// FolderQuery returns the files.list query selecting the non-trashed
// children of folderID.
func FolderQuery(folderID string) string {
	escaped := strings.ReplaceAll(folderID, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return fmt.Sprintf("'%s' in parents and trashed=false", escaped)
}

// stream is a download body that releases its timeout on Close.
type stream struct {
	ctx     context.Context
	op      string
	body    io.ReadCloser
	cancel  context.CancelFunc
	metrics *instrumentation.Metrics
	once    sync.Once
	err     error
}

func (s *stream) Read(p []byte) (int, error) {
	n, err := s.body.Read(p)
	s.metrics.AddStreamedBytes(s.ctx, int64(n))
	if err != nil && !errors.Is(err, io.EOF) {
		err = classify(s.op, err)
	}
	return n, err
}

func (s *stream) Close() error {
	s.once.Do(func() {
		s.err = s.body.Close()
		s.cancel()
	})
	return s.err
}

// convertToFileInfo converts a Drive API File to our FileInfo type
func convertToFileInfo(f *drive.File) *FileInfo {
	fileInfo := &FileInfo{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		Size:        f.Size,
		WebViewLink: f.WebViewLink,
		Parents:     f.Parents,
		Shared:      f.Shared,
	}

	// Parse timestamps
	if f.CreatedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.CreatedTime); err == nil {
			fileInfo.CreatedTime = t
		}
	}
	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			fileInfo.ModifiedTime = t
		}
	}

	for _, owner := range f.Owners {
		fileInfo.Owners = append(fileInfo.Owners, User{
			DisplayName:  owner.DisplayName,
			EmailAddress: owner.EmailAddress,
		})
	}

	return fileInfo
}
