package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/teemow/driveproxy/internal/drive"
	"github.com/teemow/driveproxy/internal/files"
	"github.com/teemow/driveproxy/internal/logging"
)

const (
	opList     = "list"
	opUpload   = "upload"
	opRetrieve = "retrieve"
	opDelete   = "delete"
)

// Response headers surfacing file metadata on Retrieve.
const (
	HeaderFileID   = "X-Drive-File-Id"
	HeaderFileName = "X-Drive-File-Name"
	HeaderOwner    = "X-Drive-Owner"
	HeaderMessage  = "X-Drive-Message"
)

const (
	// maxRefBodyBytes bounds the JSON file declaration of Retrieve and Delete.
	maxRefBodyBytes = 64 << 10
	// multipartOverhead allows for part headers and boundaries on top of
	// the file content of an upload.
	multipartOverhead = 1 << 20

	defaultContentType = "application/octet-stream"
)

// FileService is the orchestrator the handlers delegate to.
type FileService interface {
	List(ctx context.Context, req files.ListRequest) ([]*drive.FileInfo, error)
	Upload(ctx context.Context, req files.UploadRequest) (*files.UploadResult, error)
	Retrieve(ctx context.Context, req files.FileRequest, start func(info *drive.FileInfo, account string) io.Writer) (*files.RetrieveResult, error)
	Delete(ctx context.Context, req files.FileRequest) error
	NewBatch() *files.Batch
	Limits() files.Limits
}

var _ FileService = (*files.Service)(nil)

type handlers struct {
	files  FileService
	logger *slog.Logger
}

// registerFileRoutes mounts the file API on mux behind auth.
func registerFileRoutes(mux *http.ServeMux, h *handlers, auth func(http.Handler) http.Handler) {
	list := auth(http.HandlerFunc(h.list))
	for _, pattern := range []string{
		"GET /files",
		"GET /files/{$}",
		"GET /files/home",
		"GET /files/folders",
		"GET /files/folders/{folderId}",
	} {
		mux.Handle(pattern, list)
	}
	mux.Handle("POST /files/folders/{folderId}", auth(http.HandlerFunc(h.upload)))
	mux.Handle("GET /files/folders/{folderId}/{fileId}", auth(http.HandlerFunc(h.retrieve)))
	mux.Handle("GET /files/{fileId}", auth(http.HandlerFunc(h.retrieve)))
	mux.Handle("DELETE /files/{fileId}", auth(http.HandlerFunc(h.remove)))
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	result, err := h.files.List(r.Context(), files.ListRequest{
		Caller:   caller,
		FolderID: r.PathValue("folderId"),
		Account:  r.URL.Query().Get("account"),
	})
	if err != nil {
		h.fail(w, r, opList, err)
		return
	}
	if result == nil {
		result = []*drive.FileInfo{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) upload(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	b, err := h.readBatch(w, r)
	if err != nil {
		h.fail(w, r, opUpload, err)
		return
	}

	result, err := h.files.Upload(r.Context(), files.UploadRequest{
		Caller:   caller,
		FolderID: r.PathValue("folderId"),
		Account:  r.URL.Query().Get("account"),
		Batch:    b,
	})
	if err != nil {
		if result != nil && files.KindOf(err) == files.KindUploadFailed {
			writeJSON(w, http.StatusBadRequest, result)
			return
		}
		h.fail(w, r, opUpload, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// readBatch reads every file part of a multipart body into a batch. A body
// that is not multipart yields an empty batch.
func (h *handlers) readBatch(w http.ResponseWriter, r *http.Request) (*files.Batch, error) {
	b := h.files.NewBatch()
	limits := h.files.Limits()

	r.Body = http.MaxBytesReader(w, r.Body, int64(limits.MaxFiles)*limits.MaxFileBytes+multipartOverhead)
	mr, err := r.MultipartReader()
	if errors.Is(err, http.ErrNotMultipart) {
		return b, nil
	}
	if err != nil {
		return nil, &files.Error{Kind: files.KindBadRequest, Message: files.MsgInvalidBody, Err: err}
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return b, nil
		}
		if err != nil {
			return nil, bodyError(err)
		}
		if part.FileName() == "" {
			part.Close()
			continue
		}

		payload, err := readPart(part, limits.MaxFileBytes)
		part.Close()
		if err != nil {
			return nil, bodyError(err)
		}
		if err := b.Add(payload); err != nil {
			return nil, err
		}
	}
}

func readPart(part *multipart.Part, maxBytes int64) (files.Payload, error) {
	content, err := io.ReadAll(io.LimitReader(part, maxBytes+1))
	if err != nil {
		return files.Payload{}, err
	}
	contentType := part.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	return files.Payload{
		Name:     part.FileName(),
		MimeType: contentType,
		Content:  content,
	}, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &files.Error{Kind: files.KindBadRequest, Message: files.MsgFileTooLarge, Err: err}
	}
	return &files.Error{Kind: files.KindBadRequest, Message: files.MsgInvalidBody, Err: err}
}

func (h *handlers) retrieve(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	ref, err := decodeRef(w, r)
	if err != nil {
		h.fail(w, r, opRetrieve, err)
		return
	}

	started := false
	_, err = h.files.Retrieve(r.Context(), files.FileRequest{
		Caller: caller,
		PathID: r.PathValue("fileId"),
		Ref:    ref,
	}, func(info *drive.FileInfo, account string) io.Writer {
		started = true
		writeFileHeaders(w.Header(), info, account)
		w.WriteHeader(http.StatusOK)
		return w
	})
	if err == nil {
		return
	}
	if started {
		requestLogger(h.logger, r).WarnContext(r.Context(), "aborting response",
			logging.Err(err),
		)
		panic(http.ErrAbortHandler)
	}
	h.fail(w, r, opRetrieve, err)
}

func writeFileHeaders(header http.Header, info *drive.FileInfo, account string) {
	contentType := info.MimeType
	if contentType == "" {
		contentType = defaultContentType
	}
	header.Set("Content-Type", contentType)
	if info.Size > 0 {
		header.Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if info.Name != "" {
		if cd := mime.FormatMediaType("attachment", map[string]string{"filename": info.Name}); cd != "" {
			header.Set("Content-Disposition", cd)
		}
		header.Set(HeaderFileName, mime.QEncoding.Encode("utf-8", info.Name))
	}
	header.Set(HeaderFileID, info.ID)
	header.Set(HeaderOwner, account)
	header.Set(HeaderMessage, files.MsgFileRetrieved)
}

func (h *handlers) remove(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	ref, err := decodeRef(w, r)
	if err != nil {
		h.fail(w, r, opDelete, err)
		return
	}

	err = h.files.Delete(r.Context(), files.FileRequest{
		Caller: caller,
		PathID: r.PathValue("fileId"),
		Ref:    ref,
	})
	if err != nil {
		h.fail(w, r, opDelete, err)
		return
	}
	writeMessage(w, http.StatusOK, files.MsgFileDeleted)
}

func decodeRef(w http.ResponseWriter, r *http.Request) (files.FileRef, error) {
	var ref files.FileRef
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRefBodyBytes))
	if err := dec.Decode(&ref); err != nil {
		return files.FileRef{}, &files.Error{Kind: files.KindBadRequest, Message: files.MsgInvalidBody, Err: err}
	}
	return ref, nil
}

// fail writes the response of a failed operation. Internal errors are
// logged and reported without detail.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, message := statusFor(op, err)
	if status >= http.StatusInternalServerError {
		requestLogger(h.logger, r).ErrorContext(r.Context(), "request failed",
			logging.Operation(op),
			slog.Int("status", status),
			logging.Err(err),
		)
	}
	writeMessage(w, status, message)
}
