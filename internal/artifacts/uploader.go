// Package artifacts ships a crawl's output directory to object storage and
// removes it afterwards.
//
// Objects are keyed <env>/<domain>/level_<n>/<collection>/<date>/ followed by
// the file's path inside the collection: WARC files sit directly under the
// date, logs/ and pages/ files keep their directory (.../<date>/logs/run.log)
// so equal names in the two directories never overwrite each other.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/broadcrawl-worker/internal/crawler"
	"github.com/JakeFAU/broadcrawl-worker/internal/metrics"
)

const (
	warcSuffix     = ".warc.gz"
	excludedPrefix = "crawl"
	datePartition  = "2006-01-02"
)

// subdirs are uploaded flat after the top-level WARC files.
var subdirs = []string{"logs", "pages"}

// Uploader walks a collection directory and uploads qualifying files.
type Uploader struct {
	store       crawler.BlobStore
	environment string
	clock       crawler.Clock
	logger      *zap.Logger
}

// NewUploader builds an Uploader writing under the environment prefix.
func NewUploader(store crawler.BlobStore, environment string, clock crawler.Clock, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Uploader{store: store, environment: environment, clock: clock, logger: logger}
}

// Prefix returns the key prefix for job's artifacts on the current date.
func (u *Uploader) Prefix(job crawler.Job) string {
	return fmt.Sprintf("%s/%s/level_%d/%s/%s/",
		u.environment, job.Domain, job.Level, job.Collection, u.clock.Now().UTC().Format(datePartition))
}

// UploadAndClean uploads the top-level WARC files, then the flat contents of
// logs/ and pages/ except crawl-prefixed files, then deletes dir. Individual
// upload failures are logged and recorded in the report; they never stop
// the batch or the deletion. A missing dir is a no-op.
func (u *Uploader) UploadAndClean(ctx context.Context, job crawler.Job, dir string) (crawler.UploadReport, error) {
	prefix := u.Prefix(job)
	report := crawler.UploadReport{Prefix: prefix}

	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		u.logger.Info("collection directory absent, nothing to upload", zap.String("dir", dir))
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("stat collection dir: %w", err)
	}
	if !info.IsDir() {
		return report, fmt.Errorf("collection path %s is not a directory", dir)
	}

	for _, name := range u.list(dir, func(n string) bool { return strings.HasSuffix(n, warcSuffix) }) {
		u.upload(ctx, filepath.Join(dir, name), prefix+name, &report)
	}
	for _, sub := range subdirs {
		keep := func(n string) bool { return !strings.HasPrefix(n, excludedPrefix) }
		for _, name := range u.list(filepath.Join(dir, sub), keep) {
			u.upload(ctx, filepath.Join(dir, sub, name), prefix+path.Join(sub, name), &report)
		}
	}

	if len(report.Uploaded) > 0 {
		report.BaseURI = u.store.URI(prefix)
	}
	if err := Clean(dir); err != nil {
		return report, err
	}
	u.logger.Info("artifacts uploaded",
		zap.String("prefix", prefix),
		zap.Int("uploaded", len(report.Uploaded)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// Clean removes dir without uploading anything. Files found there are
// counted and reported as discarded.
func (u *Uploader) Clean(dir string) error {
	if n := countFiles(dir); n > 0 {
		u.logger.Warn("discarding crawl output without upload",
			zap.String("dir", dir),
			zap.Int("files", n),
		)
	}
	return Clean(dir)
}

// countFiles returns the number of regular files below dir.
func countFiles(dir string) int {
	n := 0
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			n++
		}
		return nil
	})
	return n
}

// Clean removes dir and everything below it. A missing dir is not an error.
func Clean(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove collection dir: %w", err)
	}
	return nil
}

// list returns regular files directly inside dir accepted by keep. A missing
// or unreadable dir yields nothing.
func (u *Uploader) list(dir string, keep func(string) bool) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			u.logger.Warn("read artifact dir", zap.String("dir", dir), zap.Error(err))
		}
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && keep(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names
}

func (u *Uploader) upload(ctx context.Context, file, key string, report *crawler.UploadReport) {
	err := u.put(ctx, file, key)
	metrics.ObserveUpload(err == nil)
	if err != nil {
		u.logger.Error("artifact upload failed", zap.String("file", file), zap.String("key", key), zap.Error(err))
		report.Failed = append(report.Failed, key)
		return
	}
	report.Uploaded = append(report.Uploaded, key)
}

func (u *Uploader) put(ctx context.Context, file, key string) error {
	// #nosec G304 -- file comes from listing the collection directory.
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open %s: %w", file, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := u.store.PutObject(ctx, key, contentType(file), f); err != nil {
		return err
	}
	return nil
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(name, ".log"):
		return "text/plain; charset=utf-8"
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
