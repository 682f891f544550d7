package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "path/a.warc.gz", "application/gzip", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://path/a.warc.gz", uri)

	payload[0] = 'C'
	stored, ok := store.Get("path/a.warc.gz")
	require.True(t, ok)
	require.Equal(t, "content", string(stored))
	require.Equal(t, []string{"path/a.warc.gz"}, store.Keys())
}

func TestBlobStoreFailKey(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	boom := errors.New("boom")
	store.FailKey("bad", boom)

	_, err := store.PutObject(context.Background(), "bad", "", bytes.NewReader(nil))
	require.ErrorIs(t, err, boom)
	_, ok := store.Get("bad")
	require.False(t, ok)
}
