package files

import (
	"fmt"

	"github.com/teemow/driveproxy/internal/batch"
	"github.com/teemow/driveproxy/internal/credstore"
	"github.com/teemow/driveproxy/internal/drive"
)

// Default upload limits.
const (
	DefaultUploadWorkers = 4
	DefaultMaxFiles      = 20
	DefaultMaxFileBytes  = 25 << 20
)

// Limits bounds upload batches.
type Limits struct {
	// Workers is the number of files uploaded concurrently.
	Workers int
	// MaxFiles is the largest number of files in one batch.
	MaxFiles int
	// MaxFileBytes is the largest accepted file.
	MaxFileBytes int64
}

// DefaultLimits returns the default upload limits.
func DefaultLimits() Limits {
	return Limits{
		Workers:      DefaultUploadWorkers,
		MaxFiles:     DefaultMaxFiles,
		MaxFileBytes: DefaultMaxFileBytes,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.Workers <= 0 {
		l.Workers = d.Workers
	}
	if l.MaxFiles <= 0 {
		l.MaxFiles = d.MaxFiles
	}
	if l.MaxFileBytes <= 0 {
		l.MaxFileBytes = d.MaxFileBytes
	}
	return l
}

// Payload is one file of an upload batch.
type Payload struct {
	Name     string
	MimeType string
	Content  []byte
}

// Batch is an ordered, bounded set of files uploaded together.
type Batch struct {
	limits   Limits
	payloads []Payload
}

// NewBatch returns an empty batch bounded by limits.
func NewBatch(limits Limits) *Batch {
	return &Batch{limits: limits.withDefaults()}
}

// Add appends p, rejecting it when the batch is full or p is too large.
func (b *Batch) Add(p Payload) error {
	if len(b.payloads) >= b.limits.MaxFiles {
		return newError(KindBadRequest, MsgTooManyFiles, fmt.Errorf("batch holds at most %d files", b.limits.MaxFiles))
	}
	if int64(len(p.Content)) > b.limits.MaxFileBytes {
		return newError(KindBadRequest, MsgFileTooLarge, fmt.Errorf("%s exceeds %d bytes", p.Name, b.limits.MaxFileBytes))
	}
	b.payloads = append(b.payloads, p)
	return nil
}

// Len returns the number of files in the batch. A nil batch is empty.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.payloads)
}

// Payloads returns the files in submission order.
func (b *Batch) Payloads() []Payload {
	if b == nil {
		return nil
	}
	return b.payloads
}

// Owner is a file owner as declared by the caller.
type Owner struct {
	EmailAddress string `json:"emailAddress"`
}

// FileRef is the caller's declaration of the file to act on.
type FileRef struct {
	ID     string  `json:"id"`
	Name   string  `json:"name,omitempty"`
	Owners []Owner `json:"owners"`
}

// OwnerEmails returns the declared owner emails in order.
func (r FileRef) OwnerEmails() []string {
	emails := make([]string, 0, len(r.Owners))
	for _, o := range r.Owners {
		emails = append(emails, o.EmailAddress)
	}
	return emails
}

// ListRequest lists a folder.
type ListRequest struct {
	Caller   credstore.Identity
	FolderID string
	// Account selects a linked account by email. Empty means home.
	Account string
}

// UploadRequest uploads a batch into a folder.
type UploadRequest struct {
	Caller   credstore.Identity
	FolderID string
	Account  string
	Batch    *Batch
}

// UploadResult is the outcome of an upload batch.
type UploadResult struct {
	Message string `json:"message"`
	batch.Report
}

// FileRequest targets one file by id. PathID comes from the URL and must
// equal the declared Ref.ID.
type FileRequest struct {
	Caller credstore.Identity
	PathID string
	Ref    FileRef
}

// RetrieveResult describes a completed download.
type RetrieveResult struct {
	File    *drive.FileInfo
	Account string
	Bytes   int64
}
