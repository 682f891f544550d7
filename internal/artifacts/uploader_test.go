package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/broadcrawl-worker/internal/clock/system"
	"github.com/JakeFAU/broadcrawl-worker/internal/crawler"
	"github.com/JakeFAU/broadcrawl-worker/internal/storage/memory"
)

var (
	testJob   = crawler.Job{URL: "https://example.com", Domain: "example.com", Level: 1, Collection: "c0ffee"}
	testClock = system.Fixed{At: time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC)}
)

const testPrefix = "dev/example.com/level_1/c0ffee/2024-05-01/"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func seedCollection(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "c0ffee")
	writeFile(t, filepath.Join(dir, "a.warc.gz"), "warc")
	writeFile(t, filepath.Join(dir, "logs", "run.log"), "log")
	writeFile(t, filepath.Join(dir, "pages", "page1.json"), `{"p":1}`)
	writeFile(t, filepath.Join(dir, "crawl_control.tmp"), "ctl")
	return dir
}

func TestPrefix(t *testing.T) {
	t.Parallel()

	u := NewUploader(memory.NewBlobStore(), "dev", testClock, nil)
	assert.Equal(t, testPrefix, u.Prefix(testJob))
}

func TestUploadAndClean_UploadsQualifyingFiles(t *testing.T) {
	t.Parallel()

	dir := seedCollection(t)
	writeFile(t, filepath.Join(dir, "logs", "crawl-internal.log"), "skip")
	writeFile(t, filepath.Join(dir, "pages", "nested", "deep.json"), "skip")
	writeFile(t, filepath.Join(dir, "notes.txt"), "skip")

	store := memory.NewBlobStore()
	u := NewUploader(store, "dev", testClock, nil)

	report, err := u.UploadAndClean(context.Background(), testJob, dir)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		testPrefix + "a.warc.gz",
		testPrefix + "logs/run.log",
		testPrefix + "pages/page1.json",
	}, store.Keys())
	assert.Equal(t, []string{
		testPrefix + "a.warc.gz",
		testPrefix + "logs/run.log",
		testPrefix + "pages/page1.json",
	}, report.Uploaded)
	assert.Empty(t, report.Failed)
	assert.Equal(t, "memory://"+testPrefix, report.BaseURI)

	data, ok := store.Get(testPrefix + "a.warc.gz")
	require.True(t, ok)
	assert.Equal(t, "warc", string(data))

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "collection dir should be removed")
}

func TestUploadAndClean_FailureDoesNotStopBatchOrCleanup(t *testing.T) {
	t.Parallel()

	dir := seedCollection(t)
	store := memory.NewBlobStore()
	store.FailKey(testPrefix+"a.warc.gz", errors.New("throttled"))
	u := NewUploader(store, "dev", testClock, nil)

	report, err := u.UploadAndClean(context.Background(), testJob, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{testPrefix + "a.warc.gz"}, report.Failed)
	assert.Len(t, report.Uploaded, 2)

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestUploadAndClean_MissingDirIsNoop(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "never-created")
	store := memory.NewBlobStore()
	u := NewUploader(store, "dev", testClock, nil)

	report, err := u.UploadAndClean(context.Background(), testJob, dir)
	require.NoError(t, err)
	assert.Empty(t, report.Uploaded)
	assert.Empty(t, report.BaseURI)
	assert.Empty(t, store.Keys())

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "missing dir must not be created")
}

func TestUploadAndClean_EmptyDirHasNoBaseURI(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	report, err := NewUploader(memory.NewBlobStore(), "dev", testClock, nil).
		UploadAndClean(context.Background(), testJob, dir)
	require.NoError(t, err)
	assert.Empty(t, report.BaseURI)

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestClean(t *testing.T) {
	t.Parallel()

	dir := seedCollection(t)
	require.NoError(t, Clean(dir))
	require.NoError(t, Clean(dir))
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestContentType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "application/gzip", contentType("a.warc.gz"))
	assert.Equal(t, "text/plain; charset=utf-8", contentType("run.log"))
	assert.Equal(t, "application/json", contentType("page1.json"))
	assert.Equal(t, "application/octet-stream", contentType("blob"))
}

func TestUploaderClean_LogsDiscardedFiles(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	u := NewUploader(memory.NewBlobStore(), "dev", testClock, zap.New(core))

	dir := seedCollection(t)
	require.NoError(t, u.Clean(dir))
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	entries := logs.FilterMessage("discarding crawl output without upload").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(4), entries[0].ContextMap()["files"])

	require.NoError(t, u.Clean(dir))
	assert.Equal(t, 1, logs.Len(), "an absent directory is not reported")
}
