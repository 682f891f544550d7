package worker

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/broadcrawl-worker/internal/crawlargs"
	"github.com/JakeFAU/broadcrawl-worker/internal/crawler"
	"github.com/JakeFAU/broadcrawl-worker/internal/metrics"
)

// Reporter emits lifecycle events for a job.
type Reporter interface {
	PublishProcessing(ctx context.Context, job crawler.Job) error
	PublishTerminal(ctx context.Context, job crawler.Job, success bool, s3Path string, chain []string) error
}

// Uploader ships or discards a job's collection directory.
type Uploader interface {
	UploadAndClean(ctx context.Context, job crawler.Job, dir string) (crawler.UploadReport, error)
	Clean(dir string) error
}

// ExecutorConfig controls how a job is turned into a crawl.
type ExecutorConfig struct {
	CollectionsDir string
	Static         crawlargs.Static
	// OnState, when set, observes each phase transition.
	OnState func(State)
}

// Result describes one executed job.
type Result struct {
	Job    crawler.Job
	Crawl  crawler.CrawlResult
	Upload crawler.UploadReport
	Event  crawler.EventType
}

// Executor runs a single claimed job: crawl, upload, terminal event, cleanup.
// It is shared by the queue loop and the HTTP ingress.
type Executor struct {
	runner   crawler.Runner
	reporter Reporter
	uploader Uploader
	hasher   crawler.Hasher
	ids      crawler.IDGenerator
	cfg      ExecutorConfig
	logger   *zap.Logger
}

// NewExecutor constructs an Executor.
func NewExecutor(
	runner crawler.Runner,
	reporter Reporter,
	uploader Uploader,
	hasher crawler.Hasher,
	ids crawler.IDGenerator,
	cfg ExecutorConfig,
	logger *zap.Logger,
) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Executor{
		runner:   runner,
		reporter: reporter,
		uploader: uploader,
		hasher:   hasher,
		ids:      ids,
		cfg:      cfg,
		logger:   logger,
	}
}

// Prepare fills the derived fields of job: the collection hash of its URL
// and a crawl ID when none was supplied.
func (e *Executor) Prepare(job crawler.Job) (crawler.Job, error) {
	if job.Collection == "" {
		digest, err := e.hasher.Hash([]byte(job.URL))
		if err != nil {
			return job, fmt.Errorf("derive collection: %w", err)
		}
		job.Collection = digest
	}
	if job.ID == "" {
		id, err := e.ids.NewID()
		if err != nil {
			return job, fmt.Errorf("generate crawl id: %w", err)
		}
		job.ID = id
	}
	return job, nil
}

// Announce publishes the PROCESSING event for job.
func (e *Executor) Announce(ctx context.Context, job crawler.Job) error {
	e.transition(StateProcessing)
	return e.reporter.PublishProcessing(ctx, job)
}

// CollectionDir is where the crawl writes job's artifacts.
func (e *Executor) CollectionDir(job crawler.Job) string {
	return filepath.Join(e.cfg.CollectionsDir, job.Collection)
}

// Execute runs the crawl for an announced job and reports its outcome. When
// ctx is canceled during the crawl no terminal event is sent and the
// collection directory is left in place.
func (e *Executor) Execute(ctx context.Context, job crawler.Job) (Result, error) {
	log := e.logger.With(
		zap.String("crawl_id", job.ID),
		zap.String("url", job.URL),
		zap.String("collection", job.Collection),
	)
	result := Result{Job: job}

	e.transition(StateRunningCrawl)
	metrics.IncActiveCrawls()
	crawl, err := e.runner.Run(ctx, crawlargs.Build(job, e.cfg.Static))
	metrics.DecActiveCrawls()
	if err != nil {
		log.Error("crawl could not run", zap.Error(err))
		crawl.Outcome = crawler.OutcomeFailure
	}
	result.Crawl = crawl
	if ctx.Err() != nil {
		log.Warn("crawl interrupted", zap.Error(ctx.Err()))
		return result, ctx.Err()
	}
	log.Info("crawl finished",
		zap.Int("exit_code", crawl.ExitCode),
		zap.Stringer("outcome", crawl.Outcome),
		zap.Bool("timed_out", crawl.TimedOut),
		zap.Duration("duration", crawl.Duration),
	)

	dir := e.CollectionDir(job)
	if crawl.Outcome == crawler.OutcomeArtifactsReady {
		e.transition(StateUploading)
		report, upErr := e.uploader.UploadAndClean(ctx, job, dir)
		if upErr != nil {
			log.Error("artifact pass failed", zap.Error(upErr))
		}
		result.Upload = report
	} else if cleanErr := e.uploader.Clean(dir); cleanErr != nil {
		log.Warn("collection cleanup failed", zap.Error(cleanErr))
	}

	e.transition(StatePublishingResult)
	result.Event = crawler.EventFailure
	if crawl.Outcome.Succeeded() {
		result.Event = crawler.EventSuccess
	}
	metrics.ObserveJob(crawl.Outcome.String(), crawl.Duration)
	if err := e.reporter.PublishTerminal(ctx, job, crawl.Outcome.Succeeded(), result.Upload.BaseURI, nil); err != nil {
		log.Error("terminal event not published", zap.Error(err))
		return result, err
	}
	return result, nil
}

func (e *Executor) transition(s State) {
	if e.cfg.OnState != nil {
		e.cfg.OnState(s)
	}
}
