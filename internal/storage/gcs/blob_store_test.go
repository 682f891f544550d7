package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "crawl-bucket"})
	require.NoError(t, err)
	return store
}

func TestPutObject_MultipartUpload(t *testing.T) {
	t.Parallel()

	key := "prod/example.com/level_0/abc/2024-05-01/logs/run.log"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/crawl-bucket/o")
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "log line")
		assert.Contains(t, string(body), key)

		fmt.Fprintln(w, `{"name":"`+key+`","bucket":"crawl-bucket"}`)
	})

	store := newTestStore(t, handler)
	uri, err := store.PutObject(context.Background(), key, "text/plain", strings.NewReader("log line"))
	require.NoError(t, err)
	assert.Equal(t, "gs://crawl-bucket/"+key, uri)
}

type failingReader struct {
	sent bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "partial warc"), nil
	}
	return 0, errors.New("disk read failed")
}

func TestPutObject_SourceErrorCommitsNothing(t *testing.T) {
	t.Parallel()

	var committed atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			return
		}
		committed.Add(1)
		fmt.Fprintln(w, `{"name":"k","bucket":"crawl-bucket"}`)
	})

	store := newTestStore(t, handler)
	_, err := store.PutObject(context.Background(), "k", "application/gzip", &failingReader{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk read failed")
	assert.Zero(t, committed.Load())
}

func TestPutObject_ServerError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	_, err := store.PutObject(context.Background(), "k", "", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	assert.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	_, err = New(client, Config{})
	assert.Error(t, err)
}
