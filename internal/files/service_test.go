package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/driveproxy/internal/credstore"
	"github.com/teemow/driveproxy/internal/drive"
	"github.com/teemow/driveproxy/internal/instrumentation"
	"github.com/teemow/driveproxy/internal/logging"
)

var (
	alice = credstore.Identity{Username: "alice", Email: "alice@example.com"}
	bob   = credstore.Identity{Username: "bob", Email: "bob@example.com"}
	carol = credstore.Identity{Username: "carol", Email: "carol@example.com"}
)

// fakeStream records whether it was closed and can fail after n bytes.
// With reading set, the first Read closes it and blocks until ctx ends.
type fakeStream struct {
	r       io.Reader
	failAt  int
	read    int
	closed  bool
	failErr error

	ctx     context.Context
	reading chan struct{}
}

func (s *fakeStream) Read(p []byte) (int, error) {
	if s.reading != nil {
		close(s.reading)
		s.reading = nil
		<-s.ctx.Done()
		return 0, s.ctx.Err()
	}
	if s.failErr != nil && s.read >= s.failAt {
		return 0, s.failErr
	}
	if s.failErr != nil && len(p) > s.failAt-s.read {
		p = p[:s.failAt-s.read]
	}
	n, err := s.r.Read(p)
	s.read += n
	return n, err
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeGateway struct {
	mu sync.Mutex

	account   string
	files     map[string]*drive.FileInfo
	content   map[string]string
	listErr   error
	getErr    error
	deleteErr error
	streamErr error
	failAt    int
	reading   chan struct{}
	uploadErr map[string]error

	uploaded []string
	deleted  []string
	exported []string
	streams  []*fakeStream
}

func (g *fakeGateway) ListFolder(ctx context.Context, folderID string) ([]*drive.FileInfo, error) {
	if g.listErr != nil {
		return nil, g.listErr
	}
	var out []*drive.FileInfo
	for _, f := range g.files {
		for _, p := range f.Parents {
			if p == folderID {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func (g *fakeGateway) GetFile(ctx context.Context, fileID string) (*drive.FileInfo, error) {
	if g.getErr != nil {
		return nil, g.getErr
	}
	f, ok := g.files[fileID]
	if !ok {
		return nil, &drive.APIError{Op: "get", StatusCode: 404, Err: drive.ErrNotFound}
	}
	return f, nil
}

func (g *fakeGateway) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	s := &fakeStream{r: strings.NewReader(g.content[fileID]), failAt: g.failAt, failErr: g.streamErr, ctx: ctx, reading: g.reading}
	g.mu.Lock()
	g.streams = append(g.streams, s)
	g.mu.Unlock()
	return s, nil
}

func (g *fakeGateway) Export(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error) {
	g.mu.Lock()
	g.exported = append(g.exported, mimeType)
	g.mu.Unlock()
	return g.Download(ctx, fileID)
}

func (g *fakeGateway) Upload(ctx context.Context, name string, content io.Reader, options *drive.UploadOptions) (*drive.FileInfo, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.uploadErr[name]; err != nil {
		return nil, err
	}
	g.uploaded = append(g.uploaded, name)
	return &drive.FileInfo{
		ID:       "new-" + name,
		Name:     name,
		MimeType: options.MimeType,
		Size:     int64(len(data)),
		Parents:  options.ParentFolders,
	}, nil
}

func (g *fakeGateway) Delete(ctx context.Context, fileID string) error {
	if g.deleteErr != nil {
		return g.deleteErr
	}
	if _, ok := g.files[fileID]; !ok {
		return &drive.APIError{Op: "delete", StatusCode: 404, Err: drive.ErrNotFound}
	}
	g.deleted = append(g.deleted, fileID)
	return nil
}

type fakeFactory struct {
	mu       sync.Mutex
	gateways map[string]*fakeGateway
	tokens   []string
	err      error
}

func (f *fakeFactory) ForAccount(ctx context.Context, acct credstore.LinkedAccount) (drive.Gateway, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, acct.Tokens.AccessToken)
	if f.err != nil {
		return nil, f.err
	}
	gw, ok := f.gateways[acct.Email]
	if !ok {
		gw = &fakeGateway{account: acct.Email}
		f.gateways[acct.Email] = gw
	}
	return gw, nil
}

func (f *fakeFactory) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

// countingStore counts lookups and can inject a store failure.
type countingStore struct {
	credstore.Store
	lookups int
	err     error
}

func (s *countingStore) LookupLinkedAccounts(ctx context.Context, id credstore.Identity) ([]credstore.LinkedAccount, error) {
	s.lookups++
	if s.err != nil {
		return nil, s.err
	}
	return s.Store.LookupLinkedAccounts(ctx, id)
}

type fixture struct {
	svc     *Service
	store   *countingStore
	factory *fakeFactory
	audit   *bytes.Buffer
}

func linkedAccount(email string, home bool) credstore.LinkedAccount {
	return credstore.LinkedAccount{
		Email:  email,
		Home:   home,
		Tokens: credstore.TokenSet{AccessToken: "tok-" + email},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	mem := credstore.NewMemoryStore()
	require.NoError(t, mem.PutUser(ctx, credstore.User{
		Username: alice.Username,
		Email:    alice.Email,
		GoogleCredentials: []credstore.LinkedAccount{
			linkedAccount("alice@g.com", true),
			linkedAccount("alice.work@g.com", false),
		},
	}))
	require.NoError(t, mem.PutUser(ctx, credstore.User{Username: bob.Username, Email: bob.Email}))
	require.NoError(t, mem.PutUser(ctx, credstore.User{
		Username: carol.Username,
		Email:    carol.Email,
		GoogleCredentials: []credstore.LinkedAccount{
			linkedAccount("carol.a@g.com", false),
			linkedAccount("carol.b@g.com", false),
		},
	}))

	factory := &fakeFactory{gateways: map[string]*fakeGateway{
		"alice@g.com": {
			account: "alice@g.com",
			files: map[string]*drive.FileInfo{
				"F1": {ID: "F1", Name: "report.pdf", MimeType: "application/pdf", Size: 11, Parents: []string{"root"}},
				"F2": {ID: "F2", Name: "notes.txt", MimeType: "text/plain", Parents: []string{"D1"}},
				"G1": {ID: "G1", Name: "Budget", MimeType: "application/vnd.google-apps.spreadsheet", Parents: []string{"archive"}},
				"D1": {ID: "D1", Name: "Projects", MimeType: drive.FolderMimeType, Parents: []string{"archive"}},
			},
			content: map[string]string{"F1": "hello world", "G1": "PK-sheet"},
		},
		"alice.work@g.com": {
			account: "alice.work@g.com",
			files: map[string]*drive.FileInfo{
				"W1": {ID: "W1", Name: "plan.doc", Parents: []string{"root"}},
			},
			content: map[string]string{"W1": "work"},
		},
	}}

	store := &countingStore{Store: mem}
	audit := &bytes.Buffer{}
	svc, err := NewService(Config{
		Store:    store,
		Gateways: factory,
		Limits:   Limits{Workers: 2, MaxFiles: 3, MaxFileBytes: 64},
		Logger:   logging.Discard(),
		Audit:    instrumentation.NewAuditLogger(slog.New(slog.NewJSONHandler(audit, nil)), instrumentation.AuditLoggingConfig{Enabled: true}),
	})
	require.NoError(t, err)

	return &fixture{svc: svc, store: store, factory: factory, audit: audit}
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	require.Equal(t, kind, fe.Kind, "error: %v", err)
	return fe
}

func ref(id string, owners ...string) FileRef {
	r := FileRef{ID: id}
	for _, o := range owners {
		r.Owners = append(r.Owners, Owner{EmailAddress: o})
	}
	return r
}

func batchOf(t *testing.T, svc *Service, names ...string) *Batch {
	t.Helper()
	b := svc.NewBatch()
	for _, n := range names {
		require.NoError(t, b.Add(Payload{Name: n, MimeType: "text/plain", Content: []byte("data-" + n)}))
	}
	return b
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(Config{Gateways: &fakeFactory{}})
	assert.Error(t, err)
	_, err = NewService(Config{Store: credstore.NewMemoryStore()})
	assert.Error(t, err)
}

func TestUnknownIdentity_IsUnauthorizedEverywhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stranger := credstore.Identity{Username: "mallory", Email: "mallory@example.com"}

	_, err := f.svc.List(ctx, ListRequest{Caller: stranger})
	requireKind(t, err, KindUnauthorized)

	_, err = f.svc.Upload(ctx, UploadRequest{Caller: stranger, Batch: batchOf(t, f.svc, "a.txt")})
	requireKind(t, err, KindUnauthorized)

	_, err = f.svc.Retrieve(ctx, FileRequest{Caller: stranger, PathID: "F1", Ref: ref("F1", "alice@g.com")}, func(*drive.FileInfo, string) io.Writer { return io.Discard })
	requireKind(t, err, KindUnauthorized)

	err = f.svc.Delete(ctx, FileRequest{Caller: stranger, PathID: "F1", Ref: ref("F1", "alice@g.com")})
	requireKind(t, err, KindUnauthorized)

	// Username and email must both match.
	_, err = f.svc.List(ctx, ListRequest{Caller: credstore.Identity{Username: "alice", Email: "bob@example.com"}})
	requireKind(t, err, KindUnauthorized)

	_, err = f.svc.List(ctx, ListRequest{})
	requireKind(t, err, KindUnauthorized)

	assert.Zero(t, f.factory.calls())
}

func TestNoLinkedAccounts_NoDriveCalls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.List(ctx, ListRequest{Caller: bob})
	requireKind(t, err, KindNoCredentials)

	_, err = f.svc.Upload(ctx, UploadRequest{Caller: bob, Batch: batchOf(t, f.svc, "a.txt")})
	requireKind(t, err, KindNoCredentials)

	_, err = f.svc.Retrieve(ctx, FileRequest{Caller: bob, PathID: "F1", Ref: ref("F1", "alice@g.com")}, func(*drive.FileInfo, string) io.Writer { return io.Discard })
	requireKind(t, err, KindNoCredentials)

	err = f.svc.Delete(ctx, FileRequest{Caller: bob, PathID: "F1", Ref: ref("F1", "alice@g.com")})
	requireKind(t, err, KindNoCredentials)

	assert.Zero(t, f.factory.calls())
	assert.Equal(t, 4, f.store.lookups)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	files, err := f.svc.List(ctx, ListRequest{Caller: alice})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "F1", files[0].ID)
	assert.Equal(t, []string{"tok-alice@g.com"}, f.factory.tokens)

	files, err = f.svc.List(ctx, ListRequest{Caller: alice, FolderID: "D1"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "F2", files[0].ID)

	files, err = f.svc.List(ctx, ListRequest{Caller: alice, Account: "Alice.Work@g.com"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "W1", files[0].ID)

	_, err = f.svc.List(ctx, ListRequest{Caller: alice, Account: "stranger@g.com"})
	fe := requireKind(t, err, KindBadRequest)
	assert.Equal(t, MsgNotLinked, fe.Message)
}

func TestList_NoHomeAmongSeveral(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.List(context.Background(), ListRequest{Caller: carol})
	requireKind(t, err, KindNoCredentials)
	assert.Zero(t, f.factory.calls())

	// An explicit selection still works.
	_, err = f.svc.List(context.Background(), ListRequest{Caller: carol, Account: "carol.b@g.com"})
	require.NoError(t, err)
}

func TestList_GatewayErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"auth", &drive.APIError{StatusCode: 401, Err: drive.ErrAuth}, KindUnauthorized},
		{"not found", &drive.APIError{StatusCode: 404, Err: drive.ErrNotFound}, KindNotFound},
		{"quota", &drive.APIError{StatusCode: 429, Err: drive.ErrQuota}, KindQuota},
		{"transport", &drive.APIError{Err: drive.ErrTransport}, KindUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.factory.gateways["alice@g.com"].listErr = fmt.Errorf("list: %w", tt.err)

			_, err := f.svc.List(context.Background(), ListRequest{Caller: alice, FolderID: "D9"})
			requireKind(t, err, tt.want)
		})
	}
}

func TestList_StoreFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	f.store.err = errors.New("connection refused")

	_, err := f.svc.List(context.Background(), ListRequest{Caller: alice})
	fe := requireKind(t, err, KindInternal)
	assert.Equal(t, MsgInternal, fe.Message)
}

func TestList_GatewayFactoryFailure(t *testing.T) {
	f := newFixture(t)
	f.factory.err = &drive.APIError{Op: "authorize", Err: drive.ErrAuth}

	_, err := f.svc.List(context.Background(), ListRequest{Caller: alice})
	requireKind(t, err, KindUnauthorized)

	f.factory.err = errors.New("bad endpoint")
	_, err = f.svc.List(context.Background(), ListRequest{Caller: alice})
	requireKind(t, err, KindInternal)
}

func TestUpload_EmptyBatchRejectedBeforeLookup(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Upload(context.Background(), UploadRequest{Caller: alice, Batch: f.svc.NewBatch()})
	fe := requireKind(t, err, KindBadRequest)
	assert.Equal(t, MsgNoFiles, fe.Message)

	_, err = f.svc.Upload(context.Background(), UploadRequest{Caller: alice})
	requireKind(t, err, KindBadRequest)

	assert.Zero(t, f.store.lookups)
	assert.Zero(t, f.factory.calls())
}

func TestUpload(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Upload(context.Background(), UploadRequest{
		Caller:   alice,
		FolderID: "D1",
		Batch:    batchOf(t, f.svc, "a.txt", "b.txt", "c.txt"),
	})
	require.NoError(t, err)
	assert.Equal(t, MsgFilesUploaded, result.Message)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Successful)
	assert.Zero(t, result.Failed)

	for i, name := range []string{"a.txt", "b.txt", "c.txt"} {
		assert.Equal(t, name, result.Results[i].Name)
		assert.Equal(t, []string{"D1"}, result.Results[i].File.Parents)
	}
	assert.ElementsMatch(t, []string{"a.txt", "b.txt", "c.txt"}, f.factory.gateways["alice@g.com"].uploaded)
}

func TestUpload_PartialFailure(t *testing.T) {
	f := newFixture(t)
	f.factory.gateways["alice@g.com"].uploadErr = map[string]error{
		"b.txt": &drive.APIError{StatusCode: 403, Reason: "storageQuotaExceeded", Err: drive.ErrQuota},
	}

	result, err := f.svc.Upload(context.Background(), UploadRequest{
		Caller: alice,
		Batch:  batchOf(t, f.svc, "a.txt", "b.txt", "c.txt"),
	})
	fe := requireKind(t, err, KindUploadFailed)
	assert.ErrorIs(t, err, drive.ErrQuota)

	require.NotNil(t, result)
	assert.Equal(t, fe.Message, result.Message)
	assert.Equal(t, "Failed to upload 1 of 3 files", result.Message)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, "error", result.Results[1].Status)
	assert.Equal(t, []string{"root"}, result.Results[0].File.Parents)
}

func TestBatchLimits(t *testing.T) {
	b := NewBatch(Limits{MaxFiles: 2, MaxFileBytes: 4})

	require.NoError(t, b.Add(Payload{Name: "a", Content: []byte("1234")}))
	fe := requireKind(t, b.Add(Payload{Name: "b", Content: []byte("12345")}), KindBadRequest)
	assert.Equal(t, MsgFileTooLarge, fe.Message)
	require.NoError(t, b.Add(Payload{Name: "c"}))
	fe = requireKind(t, b.Add(Payload{Name: "d"}), KindBadRequest)
	assert.Equal(t, MsgTooManyFiles, fe.Message)

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, "c", b.Payloads()[1].Name)

	var nilBatch *Batch
	assert.Zero(t, nilBatch.Len())
	assert.Nil(t, nilBatch.Payloads())
}

func TestRetrieve(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	var begun *drive.FileInfo

	result, err := f.svc.Retrieve(context.Background(), FileRequest{
		Caller: alice,
		PathID: "F1",
		Ref:    ref("F1", "alice@g.com"),
	}, func(info *drive.FileInfo, account string) io.Writer {
		begun = info
		assert.Equal(t, "alice@g.com", account)
		return &buf
	})
	require.NoError(t, err)

	assert.Equal(t, "hello world", buf.String())
	assert.Equal(t, int64(11), result.Bytes)
	assert.Equal(t, "alice@g.com", result.Account)
	require.NotNil(t, begun)
	assert.Equal(t, "report.pdf", begun.Name)
	assert.Equal(t, []string{"tok-alice@g.com"}, f.factory.tokens)

	streams := f.factory.gateways["alice@g.com"].streams
	require.Len(t, streams, 1)
	assert.True(t, streams[0].closed)

	assert.Contains(t, f.audit.String(), `"operation":"retrieve"`)
	assert.NotContains(t, f.audit.String(), "alice@g.com")
}

func TestRetrieve_WorkspaceFileIsExported(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	var begun *drive.FileInfo

	result, err := f.svc.Retrieve(context.Background(), FileRequest{Caller: alice, PathID: "G1", Ref: ref("G1", "alice@g.com")},
		func(info *drive.FileInfo, _ string) io.Writer {
			begun = info
			return &buf
		})
	require.NoError(t, err)

	gw := f.factory.gateways["alice@g.com"]
	assert.Equal(t, []string{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"}, gw.exported)
	assert.Equal(t, "PK-sheet", buf.String())
	assert.Equal(t, "Budget.xlsx", begun.Name)
	assert.Equal(t, "Budget.xlsx", result.File.Name)
	assert.Zero(t, begun.Size)
	assert.Equal(t, "application/vnd.google-apps.spreadsheet", gw.files["G1"].MimeType, "stored metadata is not modified")
}

func TestRetrieve_FolderIsNotDownloadable(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Retrieve(context.Background(), FileRequest{Caller: alice, PathID: "D1", Ref: ref("D1", "alice@g.com")},
		func(*drive.FileInfo, string) io.Writer {
			t.Fatal("begin must not be called")
			return nil
		})
	fe := requireKind(t, err, KindBadRequest)
	assert.Equal(t, MsgNotDownloadable, fe.Message)
	assert.Empty(t, f.factory.gateways["alice@g.com"].streams)
}

func TestRetrieve_IDMismatchBeforeLookup(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Retrieve(context.Background(), FileRequest{Caller: alice, PathID: "F1", Ref: ref("F2", "alice@g.com")},
		func(*drive.FileInfo, string) io.Writer { return io.Discard })
	fe := requireKind(t, err, KindBadRequest)
	assert.Equal(t, MsgIDMismatch, fe.Message)

	err = f.svc.Delete(context.Background(), FileRequest{Caller: alice, PathID: "F1", Ref: ref("", "alice@g.com")})
	requireKind(t, err, KindBadRequest)

	assert.Zero(t, f.store.lookups)
	assert.Zero(t, f.factory.calls())
}

func TestRetrieve_Unresolved(t *testing.T) {
	f := newFixture(t)

	for _, owners := range [][]string{nil, {"mallory@g.com"}} {
		_, err := f.svc.Retrieve(context.Background(), FileRequest{Caller: alice, PathID: "F1", Ref: ref("F1", owners...)},
			func(*drive.FileInfo, string) io.Writer { return io.Discard })
		fe := requireKind(t, err, KindUnresolved)
		assert.Equal(t, MsgNoMatch, fe.Message)
	}
	assert.Zero(t, f.factory.calls(), "no foreign token may be used")
}

func TestRetrieve_FirstDeclaredOwnerWins(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Retrieve(context.Background(), FileRequest{
		Caller: alice,
		PathID: "W1",
		Ref:    ref("W1", "ALICE.WORK@g.com", "alice@g.com"),
	}, func(*drive.FileInfo, string) io.Writer { return io.Discard })
	require.NoError(t, err)
	assert.Equal(t, "alice.work@g.com", result.Account)
	assert.Equal(t, []string{"tok-alice.work@g.com"}, f.factory.tokens)
}

func TestRetrieve_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Retrieve(context.Background(), FileRequest{Caller: alice, PathID: "X", Ref: ref("X", "alice@g.com")},
		func(*drive.FileInfo, string) io.Writer {
			t.Fatal("begin must not be called")
			return nil
		})
	requireKind(t, err, KindNotFound)
}

func TestRetrieve_UpstreamStreamError(t *testing.T) {
	f := newFixture(t)
	gw := f.factory.gateways["alice@g.com"]
	gw.streamErr = &drive.APIError{Op: "download", Err: drive.ErrTransport}
	gw.failAt = 5

	var buf bytes.Buffer
	_, err := f.svc.Retrieve(context.Background(), FileRequest{Caller: alice, PathID: "F1", Ref: ref("F1", "alice@g.com")},
		func(*drive.FileInfo, string) io.Writer { return &buf })
	requireKind(t, err, KindStream)
	assert.Equal(t, "hello", buf.String())

	require.Len(t, gw.streams, 1)
	assert.True(t, gw.streams[0].closed)
}

type brokenWriter struct{}

func (brokenWriter) Write(p []byte) (int, error) {
	return 0, errors.New("write: broken pipe")
}

func TestRetrieve_ClientDisconnectClosesStream(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Retrieve(context.Background(), FileRequest{Caller: alice, PathID: "F1", Ref: ref("F1", "alice@g.com")},
		func(*drive.FileInfo, string) io.Writer { return brokenWriter{} })
	requireKind(t, err, KindStream)

	gw := f.factory.gateways["alice@g.com"]
	require.Len(t, gw.streams, 1)
	assert.True(t, gw.streams[0].closed)
	assert.Empty(t, gw.uploaded)
	assert.Empty(t, gw.deleted)
}

func TestRetrieve_CanceledWhileReadingClosesStream(t *testing.T) {
	f := newFixture(t)
	gw := f.factory.gateways["alice@g.com"]
	reading := make(chan struct{})
	gw.reading = reading

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-reading
		cancel()
	}()

	var buf bytes.Buffer
	_, err := f.svc.Retrieve(ctx, FileRequest{Caller: alice, PathID: "F1", Ref: ref("F1", "alice@g.com")},
		func(*drive.FileInfo, string) io.Writer { return &buf })
	requireKind(t, err, KindStream)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())

	require.Len(t, gw.streams, 1)
	assert.True(t, gw.streams[0].closed)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Delete(ctx, FileRequest{Caller: alice, PathID: "F1", Ref: ref("F1", "alice@g.com")}))
	assert.Equal(t, []string{"F1"}, f.factory.gateways["alice@g.com"].deleted)

	err := f.svc.Delete(ctx, FileRequest{Caller: alice, PathID: "ZZ", Ref: ref("ZZ", "alice@g.com")})
	requireKind(t, err, KindNotFound)

	err = f.svc.Delete(ctx, FileRequest{Caller: alice, PathID: "F1", Ref: ref("F1", "someone@g.com")})
	requireKind(t, err, KindUnresolved)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindQuota, KindOf(fmt.Errorf("wrapped: %w", newError(KindQuota, MsgQuota, nil))))
	assert.Contains(t, newError(KindUpstream, MsgUpstream, errors.New("reset")).Error(), "reset")
}
