package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/teemow/driveproxy/internal/account"
	"github.com/teemow/driveproxy/internal/batch"
	"github.com/teemow/driveproxy/internal/credstore"
	"github.com/teemow/driveproxy/internal/drive"
	"github.com/teemow/driveproxy/internal/instrumentation"
	"github.com/teemow/driveproxy/internal/logging"
)

// Config holds the collaborators of a Service.
type Config struct {
	Store    credstore.Store
	Gateways drive.GatewayFactory
	Limits   Limits

	Logger  *slog.Logger
	Audit   *instrumentation.AuditLogger
	Metrics *instrumentation.Metrics
}

// Service runs file operations on behalf of authenticated callers.
type Service struct {
	store    credstore.Store
	gateways drive.GatewayFactory
	limits   Limits
	logger   *slog.Logger
	audit    *instrumentation.AuditLogger
	metrics  *instrumentation.Metrics
}

// NewService creates a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if cfg.Gateways == nil {
		return nil, fmt.Errorf("gateway factory is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    cfg.Store,
		gateways: cfg.Gateways,
		limits:   cfg.Limits.withDefaults(),
		logger:   logging.WithService(logger, "files"),
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
	}, nil
}

// Limits returns the upload limits of the service.
func (s *Service) Limits() Limits {
	return s.limits
}

// NewBatch returns an empty batch bounded by the service's limits.
func (s *Service) NewBatch() *Batch {
	return NewBatch(s.limits)
}

// List returns the children of a folder in the selected account.
func (s *Service) List(ctx context.Context, req ListRequest) (files []*drive.FileInfo, err error) {
	folderID := req.FolderID
	if folderID == "" {
		folderID = drive.RootFolder
	}

	ctx, fo, done := s.begin(ctx, instrumentation.FileOpList, req.Caller)
	fo.WithTarget(folderID, "")
	defer func() { done(err) }()

	accounts, err := s.linkedAccounts(ctx, req.Caller)
	if err != nil {
		return nil, err
	}
	acct, err := selectAccount(accounts, req.Account)
	if err != nil {
		return nil, err
	}
	fo.WithAccount(acct.Email)

	gw, err := s.gatewayFor(ctx, acct)
	if err != nil {
		return nil, err
	}
	files, err = gw.ListFolder(ctx, folderID)
	if err != nil {
		return nil, gatewayError(err)
	}
	return files, nil
}

// Upload creates every file of the batch in a folder of the selected
// account. Files are uploaded concurrently and independently. When any file
// fails the result is returned together with a KindUploadFailed error.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (result *UploadResult, err error) {
	if req.Batch.Len() == 0 {
		return nil, newError(KindBadRequest, MsgNoFiles, nil)
	}

	folderID := req.FolderID
	if folderID == "" {
		folderID = drive.RootFolder
	}

	ctx, fo, done := s.begin(ctx, instrumentation.FileOpUpload, req.Caller)
	fo.WithTarget(folderID, "").WithFiles(req.Batch.Len())
	defer func() { done(err) }()

	accounts, err := s.linkedAccounts(ctx, req.Caller)
	if err != nil {
		return nil, err
	}
	acct, err := selectAccount(accounts, req.Account)
	if err != nil {
		return nil, err
	}
	fo.WithAccount(acct.Email)

	gw, err := s.gatewayFor(ctx, acct)
	if err != nil {
		return nil, err
	}

	payloads := req.Batch.Payloads()
	names := make([]string, len(payloads))
	for i, p := range payloads {
		names[i] = p.Name
	}

	results := batch.Process(ctx, names, s.limits.Workers, func(ctx context.Context, i int) (*drive.FileInfo, error) {
		p := payloads[i]
		return gw.Upload(ctx, p.Name, bytes.NewReader(p.Content), &drive.UploadOptions{
			ParentFolders: []string{folderID},
			MimeType:      p.MimeType,
		})
	})

	report := batch.NewReport(results)
	s.metrics.RecordUploadedFiles(ctx, report.Successful, report.Failed)

	if report.Failed == 0 {
		return &UploadResult{Message: MsgFilesUploaded, Report: report}, nil
	}

	first, _ := report.FirstError()
	message := fmt.Sprintf("Failed to upload %d of %d files", report.Failed, report.Total)
	s.logger.WarnContext(ctx, "upload batch partially failed",
		logging.FolderID(folderID),
		slog.Int("failed", report.Failed),
		slog.Int("total", report.Total),
		logging.Err(first.Err()),
	)
	return &UploadResult{Message: message, Report: report}, newError(KindUploadFailed, message, first.Err())
}

// Retrieve streams the content of a file owned by one of the caller's
// linked accounts. start is called once with the file metadata and the
// serving account before any content is written, and returns the
// destination of the content. The Drive
// stream is closed on every path.
func (s *Service) Retrieve(ctx context.Context, req FileRequest, start func(info *drive.FileInfo, account string) io.Writer) (result *RetrieveResult, err error) {
	if req.Ref.ID == "" || req.Ref.ID != req.PathID {
		return nil, newError(KindBadRequest, MsgIDMismatch, nil)
	}

	ctx, fo, done := s.begin(ctx, instrumentation.FileOpRetrieve, req.Caller)
	fo.WithTarget("", req.PathID)
	defer func() { done(err) }()

	acct, err := s.resolveOwner(ctx, req)
	if err != nil {
		return nil, err
	}
	fo.WithAccount(acct.Email)

	gw, err := s.gatewayFor(ctx, acct)
	if err != nil {
		return nil, err
	}

	info, err := gw.GetFile(ctx, req.PathID)
	if err != nil {
		return nil, gatewayError(err)
	}

	rc, info, err := openContent(ctx, gw, req.PathID, info)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	s.metrics.IncrementActiveStreams(ctx)
	defer s.metrics.DecrementActiveStreams(ctx)

	n, err := io.Copy(start(info, acct.Email), rc)
	if err != nil {
		s.logger.WarnContext(ctx, "content stream interrupted",
			logging.FileID(req.PathID),
			slog.Int64("bytes", n),
			logging.Err(err),
		)
		return nil, newError(KindStream, MsgStreamInterrupted, err)
	}

	return &RetrieveResult{File: info, Account: acct.Email, Bytes: n}, nil
}

// openContent opens the content of a file. Workspace files are exported and the
// returned metadata describes the exported form.
func openContent(ctx context.Context, gw drive.Gateway, fileID string, info *drive.FileInfo) (io.ReadCloser, *drive.FileInfo, error) {
	if info.IsFolder() {
		return nil, nil, newError(KindBadRequest, MsgNotDownloadable, fmt.Errorf("%s is a folder", fileID))
	}
	if !info.IsWorkspace() {
		rc, err := gw.Download(ctx, fileID)
		if err != nil {
			return nil, nil, gatewayError(err)
		}
		return rc, info, nil
	}

	format, ok := drive.ExportFormatFor(info.MimeType)
	if !ok {
		return nil, nil, newError(KindBadRequest, MsgNotDownloadable, fmt.Errorf("no export format for %s", info.MimeType))
	}
	rc, err := gw.Export(ctx, fileID, format.MimeType)
	if err != nil {
		return nil, nil, gatewayError(err)
	}

	exported := *info
	exported.MimeType = format.MimeType
	exported.Name = drive.ExportName(info.Name, format)
	exported.Size = 0
	return rc, &exported, nil
}

// Delete permanently deletes a file owned by one of the caller's linked
// accounts.
func (s *Service) Delete(ctx context.Context, req FileRequest) (err error) {
	if req.Ref.ID == "" || req.Ref.ID != req.PathID {
		return newError(KindBadRequest, MsgIDMismatch, nil)
	}

	ctx, fo, done := s.begin(ctx, instrumentation.FileOpDelete, req.Caller)
	fo.WithTarget("", req.PathID)
	defer func() { done(err) }()

	acct, err := s.resolveOwner(ctx, req)
	if err != nil {
		return err
	}
	fo.WithAccount(acct.Email)

	gw, err := s.gatewayFor(ctx, acct)
	if err != nil {
		return err
	}
	if err := gw.Delete(ctx, req.PathID); err != nil {
		return gatewayError(err)
	}
	return nil
}

// begin starts the span and audit record of an operation. The returned
// function completes both and must be called exactly once.
func (s *Service) begin(ctx context.Context, op string, caller credstore.Identity) (context.Context, *instrumentation.FileOperation, func(error)) {
	ctx, span := instrumentation.StartFileOpSpan(ctx, op)
	fo := instrumentation.NewFileOperation(op).
		WithUser(caller.Username, caller.Email).
		WithSpanContext(ctx)

	return ctx, fo, func(err error) {
		defer span.End()

		kind := ""
		if err != nil {
			kind = string(KindOf(err))
			instrumentation.SetSpanError(span, err)
			if kind == string(KindInternal) {
				s.logger.ErrorContext(ctx, "file operation failed", logging.Operation(op), logging.Err(err))
			}
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		fo.Complete(kind, err)

		s.audit.Log(ctx, fo)
		s.metrics.RecordFileOperation(ctx, op, fo.Status(), fo.Account, fo.Duration)
	}
}

// linkedAccounts reads the caller's linked accounts. Unknown callers are
// unauthorized; callers without linked accounts have no credentials.
func (s *Service) linkedAccounts(ctx context.Context, caller credstore.Identity) ([]credstore.LinkedAccount, error) {
	if !caller.Valid() {
		return nil, newError(KindUnauthorized, MsgUnauthorized, nil)
	}

	accounts, err := s.store.LookupLinkedAccounts(ctx, caller)
	switch {
	case errors.Is(err, credstore.ErrNotFound), errors.Is(err, credstore.ErrAmbiguous):
		s.metrics.RecordCredentialLookup(ctx, instrumentation.LookupNotFound)
		return nil, newError(KindUnauthorized, MsgUnauthorized, err)
	case err != nil:
		s.metrics.RecordCredentialLookup(ctx, instrumentation.LookupError)
		return nil, newError(KindInternal, MsgInternal, fmt.Errorf("lookup linked accounts: %w", err))
	}
	s.metrics.RecordCredentialLookup(ctx, instrumentation.LookupFound)

	if len(accounts) == 0 {
		return nil, newError(KindNoCredentials, MsgNoCredentials, nil)
	}
	return accounts, nil
}

// resolveOwner picks the linked account of the first declared owner.
func (s *Service) resolveOwner(ctx context.Context, req FileRequest) (credstore.LinkedAccount, error) {
	accounts, err := s.linkedAccounts(ctx, req.Caller)
	if err != nil {
		return credstore.LinkedAccount{}, err
	}
	acct, err := account.Resolve(req.Ref.OwnerEmails(), accounts)
	if err != nil {
		return credstore.LinkedAccount{}, newError(KindUnresolved, MsgNoMatch, err)
	}
	return acct, nil
}

func (s *Service) gatewayFor(ctx context.Context, acct credstore.LinkedAccount) (drive.Gateway, error) {
	gw, err := s.gateways.ForAccount(ctx, acct)
	if err != nil {
		if errors.Is(err, drive.ErrAuth) {
			return nil, gatewayError(err)
		}
		return nil, newError(KindInternal, MsgInternal, fmt.Errorf("create gateway: %w", err))
	}
	return gw, nil
}

func selectAccount(accounts []credstore.LinkedAccount, email string) (credstore.LinkedAccount, error) {
	acct, err := account.Select(accounts, email)
	switch {
	case errors.Is(err, account.ErrNoHome):
		return credstore.LinkedAccount{}, newError(KindNoCredentials, MsgNoCredentials, err)
	case errors.Is(err, account.ErrNotLinked):
		return credstore.LinkedAccount{}, newError(KindBadRequest, MsgNotLinked, err)
	case err != nil:
		return credstore.LinkedAccount{}, newError(KindInternal, MsgInternal, err)
	}
	return acct, nil
}
