package drive

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/driveproxy/internal/credstore"
	"github.com/teemow/driveproxy/internal/google"
)

var testAccount = credstore.LinkedAccount{
	Email:  "alice@gmail.com",
	Tokens: credstore.TokenSet{AccessToken: "tok-alice", TokenType: "Bearer"},
}

// newTestClient returns a Gateway talking to a fake Drive API served by h.
func newTestClient(t *testing.T, h http.HandlerFunc) Gateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	factory, err := NewFactory(FactoryConfig{
		Tokens:      google.NewStoredTokenProvider(nil, nil),
		Transport:   http.DefaultTransport,
		Endpoint:    srv.URL + "/drive/v3/",
		CallTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	gw, err := factory.ForAccount(context.Background(), testAccount)
	require.NoError(t, err)
	return gw
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    status,
			"message": http.StatusText(status),
			"errors":  []map[string]string{{"domain": "global", "reason": reason, "message": http.StatusText(status)}},
		},
	})
}

func TestListFolder(t *testing.T) {
	gw := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/files"), r.URL.Path)
		assert.Equal(t, "Bearer tok-alice", r.Header.Get("Authorization"))
		assert.Equal(t, "'root' in parents and trashed=false", r.URL.Query().Get("q"))

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"files": []map[string]interface{}{
				{
					"id":           "F1",
					"name":         "report.pdf",
					"mimeType":     "application/pdf",
					"size":         "1024",
					"createdTime":  "2023-01-01T10:00:00Z",
					"modifiedTime": "2023-01-02T15:30:00Z",
					"owners":       []map[string]string{{"emailAddress": "alice@gmail.com", "displayName": "Alice"}},
				},
				{"id": "D1", "name": "Photos", "mimeType": FolderMimeType},
			},
		})
	})

	files, err := gw.ListFolder(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "F1", files[0].ID)
	assert.Equal(t, int64(1024), files[0].Size)
	require.Len(t, files[0].Owners, 1)
	assert.Equal(t, "alice@gmail.com", files[0].Owners[0].EmailAddress)
	assert.Equal(t, time.Date(2023, 1, 2, 15, 30, 0, 0, time.UTC), files[0].ModifiedTime)
	assert.False(t, files[0].IsFolder())
	assert.True(t, files[1].IsFolder())
}

func TestListFolder_NotFound(t *testing.T) {
	gw := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusNotFound, "notFound")
	})

	_, err := gw.ListFolder(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "notFound", apiErr.Reason)
	assert.Equal(t, "list", apiErr.Op)
}

func TestFolderQuery(t *testing.T) {
	assert.Equal(t, "'root' in parents and trashed=false", FolderQuery("root"))
	assert.Equal(t, `'it\'s' in parents and trashed=false`, FolderQuery("it's"))
	assert.Equal(t, `'a\\b' in parents and trashed=false`, FolderQuery(`a\b`))
}

func TestGetFile(t *testing.T) {
	gw := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/files/F1"), r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("alt"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":       "F1",
			"name":     "notes.txt",
			"mimeType": "text/plain",
			"size":     "5",
			"owners":   []map[string]string{{"emailAddress": "bob@gmail.com"}, {"emailAddress": "alice@gmail.com"}},
		})
	})

	info, err := gw.GetFile(context.Background(), "F1")
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", info.Name)
	require.Len(t, info.Owners, 2)
	assert.Equal(t, "bob@gmail.com", info.Owners[0].EmailAddress)
	assert.Equal(t, "alice@gmail.com", info.Owners[1].EmailAddress)

	_, err = gw.GetFile(context.Background(), "")
	assert.Error(t, err)
}

func TestDownload(t *testing.T) {
	gw := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/files/F1"), r.URL.Path)
		assert.Equal(t, "media", r.URL.Query().Get("alt"))
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{0x00, 0x01, 0xFF, 'h', 'i'})
	})

	rc, err := gw.Download(context.Background(), "F1")
	require.NoError(t, err)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0xFF, 'h', 'i'}, data)

	require.NoError(t, rc.Close())
	assert.NoError(t, rc.Close(), "close must be idempotent")
}

func TestExport(t *testing.T) {
	const pdf = "application/pdf"
	gw := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/files/G1/export"), r.URL.Path)
		assert.Equal(t, pdf, r.URL.Query().Get("mimeType"))
		w.Header().Set("Content-Type", pdf)
		_, _ = w.Write([]byte("%PDF"))
	})

	rc, err := gw.Export(context.Background(), "G1", pdf)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	_, err = gw.Export(context.Background(), "G1", "")
	assert.Error(t, err)
}

func TestExport_TooLarge(t *testing.T) {
	gw := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusForbidden, "exportSizeLimitExceeded")
	})

	_, err := gw.Export(context.Background(), "G1", "application/pdf")
	assert.ErrorIs(t, err, ErrNotDownloadable)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "exportSizeLimitExceeded", apiErr.Reason)
}

func TestDownload_Forbidden(t *testing.T) {
	gw := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusForbidden, "insufficientFilePermissions")
	})

	rc, err := gw.Download(context.Background(), "F1")
	assert.Nil(t, rc)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestDownload_StreamTimeoutCoversBody(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	factory, err := NewFactory(FactoryConfig{
		Tokens:        google.NewStoredTokenProvider(nil, nil),
		Transport:     http.DefaultTransport,
		Endpoint:      srv.URL + "/drive/v3/",
		StreamTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	gw, err := factory.ForAccount(context.Background(), testAccount)
	require.NoError(t, err)

	rc, err := gw.Download(context.Background(), "F1")
	require.NoError(t, err)
	defer rc.Close()

	_, err = io.ReadAll(rc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestUpload(t *testing.T) {
	gw := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/files"), r.URL.Path)
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		require.Equal(t, "multipart/related", mediaType)

		mr := multipart.NewReader(r.Body, params["boundary"])

		metaPart, err := mr.NextPart()
		require.NoError(t, err)
		var meta struct {
			Name     string   `json:"name"`
			Parents  []string `json:"parents"`
			MimeType string   `json:"mimeType"`
		}
		require.NoError(t, json.NewDecoder(metaPart).Decode(&meta))
		assert.Equal(t, "hello.txt", meta.Name)
		assert.Equal(t, []string{"D1"}, meta.Parents)
		assert.Equal(t, "text/plain", meta.MimeType)

		mediaPart, err := mr.NextPart()
		require.NoError(t, err)
		body, err := io.ReadAll(mediaPart)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(body))
		assert.Equal(t, "text/plain", mediaPart.Header.Get("Content-Type"))

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":       "NEW1",
			"name":     meta.Name,
			"mimeType": meta.MimeType,
			"parents":  meta.Parents,
		})
	})

	info, err := gw.Upload(context.Background(), "hello.txt", strings.NewReader("hello world"), &UploadOptions{
		ParentFolders: []string{"D1"},
		MimeType:      "text/plain",
	})
	require.NoError(t, err)
	assert.Equal(t, "NEW1", info.ID)
	assert.Equal(t, []string{"D1"}, info.Parents)
}

func TestUpload_Validation(t *testing.T) {
	gw := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	})

	_, err := gw.Upload(context.Background(), "", strings.NewReader("x"), nil)
	assert.Error(t, err)
	_, err = gw.Upload(context.Background(), "a.txt", nil, nil)
	assert.Error(t, err)
}

func TestUpload_StorageQuota(t *testing.T) {
	gw := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		writeAPIError(w, http.StatusForbidden, "storageQuotaExceeded")
	})

	_, err := gw.Upload(context.Background(), "big.bin", strings.NewReader("data"), nil)
	assert.ErrorIs(t, err, ErrQuota)
}

func TestDelete(t *testing.T) {
	var calls atomic.Int32
	gw := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodDelete, r.Method)
		if strings.HasSuffix(r.URL.Path, "/files/F1") {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeAPIError(w, http.StatusNotFound, "notFound")
	})

	require.NoError(t, gw.Delete(context.Background(), "F1"))
	assert.ErrorIs(t, gw.Delete(context.Background(), "F2"), ErrNotFound)
	assert.Error(t, gw.Delete(context.Background(), ""))
	assert.Equal(t, int32(2), calls.Load())
}

func TestForAccount_NoTokens(t *testing.T) {
	factory, err := NewFactory(FactoryConfig{Tokens: google.NewStoredTokenProvider(nil, nil)})
	require.NoError(t, err)

	_, err = factory.ForAccount(context.Background(), credstore.LinkedAccount{Email: "empty@gmail.com"})
	assert.ErrorIs(t, err, ErrAuth)
}

func TestNewFactory_RequiresTokens(t *testing.T) {
	_, err := NewFactory(FactoryConfig{})
	assert.Error(t, err)
}

func TestForAccount_RefreshFailureIsAuth(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
	}))
	defer tokenServer.Close()

	var driveCalls atomic.Int32
	driveServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		driveCalls.Add(1)
	}))
	defer driveServer.Close()

	factory, err := NewFactory(FactoryConfig{
		Tokens:    google.NewStoredTokenProvider(google.NewOAuthConfig("id", "secret", tokenServer.URL), http.DefaultTransport),
		Transport: http.DefaultTransport,
		Endpoint:  driveServer.URL + "/drive/v3/",
	})
	require.NoError(t, err)

	expired := credstore.LinkedAccount{
		Email: "alice@gmail.com",
		Tokens: credstore.TokenSet{
			AccessToken:  "stale",
			RefreshToken: "revoked",
			ExpiryDate:   time.Now().Add(-time.Hour).UnixMilli(),
		},
	}
	gw, err := factory.ForAccount(context.Background(), expired)
	require.NoError(t, err)

	_, err = gw.ListFolder(context.Background(), RootFolder)
	assert.ErrorIs(t, err, ErrAuth)
	assert.Zero(t, driveCalls.Load())
}

func TestForAccount_SlowRefreshHonorsCallTimeout(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer tokenServer.Close()

	var driveCalls atomic.Int32
	driveServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		driveCalls.Add(1)
	}))
	defer driveServer.Close()

	factory, err := NewFactory(FactoryConfig{
		Tokens:      google.NewStoredTokenProvider(google.NewOAuthConfig("id", "secret", tokenServer.URL), http.DefaultTransport),
		Transport:   http.DefaultTransport,
		Endpoint:    driveServer.URL + "/drive/v3/",
		CallTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	expired := credstore.LinkedAccount{
		Email: "alice@gmail.com",
		Tokens: credstore.TokenSet{
			AccessToken:  "stale",
			RefreshToken: "refresh",
			ExpiryDate:   time.Now().Add(-time.Hour).UnixMilli(),
		},
	}
	gw, err := factory.ForAccount(context.Background(), expired)
	require.NoError(t, err)

	start := time.Now()
	_, err = gw.ListFolder(context.Background(), RootFolder)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Zero(t, driveCalls.Load())
}
