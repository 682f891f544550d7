// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/broadcrawl-worker/internal/api"
	"github.com/JakeFAU/broadcrawl-worker/internal/artifacts"
	"github.com/JakeFAU/broadcrawl-worker/internal/clock/system"
	"github.com/JakeFAU/broadcrawl-worker/internal/config"
	"github.com/JakeFAU/broadcrawl-worker/internal/crawlargs"
	"github.com/JakeFAU/broadcrawl-worker/internal/crawler"
	"github.com/JakeFAU/broadcrawl-worker/internal/events"
	"github.com/JakeFAU/broadcrawl-worker/internal/hash/md5"
	"github.com/JakeFAU/broadcrawl-worker/internal/id/uuid"
	"github.com/JakeFAU/broadcrawl-worker/internal/instance"
	redislock "github.com/JakeFAU/broadcrawl-worker/internal/lock/redis"
	kafkapublisher "github.com/JakeFAU/broadcrawl-worker/internal/publisher/kafka"
	pubsubpublisher "github.com/JakeFAU/broadcrawl-worker/internal/publisher/pubsub"
	redispublisher "github.com/JakeFAU/broadcrawl-worker/internal/publisher/redis"
	redisqueue "github.com/JakeFAU/broadcrawl-worker/internal/queue/redis"
	gcsstore "github.com/JakeFAU/broadcrawl-worker/internal/storage/gcs"
	localstore "github.com/JakeFAU/broadcrawl-worker/internal/storage/local"
	s3store "github.com/JakeFAU/broadcrawl-worker/internal/storage/s3"
	"github.com/JakeFAU/broadcrawl-worker/internal/supervisor"
	"github.com/JakeFAU/broadcrawl-worker/internal/worker"
)

// Mode selects which entry point the container is built for.
type Mode int

const (
	// ModeWorker builds the queue loop: broker, lock, publisher, storage.
	ModeWorker Mode = iota
	// ModeServe builds the HTTP ingress. Redis is only dialed when events go there.
	ModeServe
)

// ErrWrongMode is returned when a component is requested from a container
// built for the other entry point.
var ErrWrongMode = errors.New("component not available in this mode")

// App holds all the shared, long-lived services for the application.
// It is built once at startup and closed when the command finishes.
type App struct {
	cfg    config.Config
	mode   Mode
	logger *zap.Logger

	redis      *goredis.Client
	queue      crawler.Queue
	locker     crawler.Locker
	publisher  crawler.Publisher
	store      crawler.BlobStore
	supervisor *supervisor.Supervisor
	executor   *worker.Executor
	instanceID string

	closers []func() error
}

// New builds every service the selected mode needs. It fails fast and
// releases whatever was already opened when any step errors.
func New(ctx context.Context, cfg config.Config, mode Mode, logger *zap.Logger) (a *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a = &App{cfg: cfg, mode: mode, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	logger.Info("initializing application services",
		zap.String("events_provider", cfg.Events.Provider),
		zap.String("storage_provider", cfg.Storage.Provider),
	)

	if mode == ModeWorker || cfg.Events.Provider == "redis" {
		if err := a.connectRedis(ctx); err != nil {
			return a, err
		}
	}
	if mode == ModeWorker {
		a.locker = redislock.NewLocker(a.redis, uuid.New(), logger.Named("lock"))
	}

	if err := a.buildPublisher(ctx); err != nil {
		return a, err
	}
	if err := a.buildStore(ctx); err != nil {
		return a, err
	}

	a.instanceID = instance.NewResolver(instance.Options{
		ID:         cfg.Instance.ID,
		FallbackID: cfg.Instance.FallbackID,
		Timeout:    cfg.Instance.MetadataTimeout,
	}, logger.Named("instance")).Resolve(ctx)

	var static crawlargs.Static
	if cfg.Crawl.ArgsFile != "" {
		static, err = crawlargs.Load(cfg.Crawl.ArgsFile)
		if err != nil {
			return a, err
		}
	}

	a.supervisor = supervisor.New(supervisor.Options{
		Executable: cfg.Crawl.Executable,
		Timeout:    cfg.Crawl.Timeout,
	}, logger.Named("supervisor"))

	reporter := events.NewReporter(a.publisher, cfg.Queue.Status, a.instanceID, logger.Named("events"))
	uploader := artifacts.NewUploader(a.store, cfg.Storage.Environment, system.New(), logger.Named("artifacts"))
	a.executor = worker.NewExecutor(
		a.supervisor,
		reporter,
		uploader,
		md5.New(),
		uuid.New(),
		worker.ExecutorConfig{CollectionsDir: cfg.Crawl.CollectionsDir, Static: static},
		logger.Named("executor"),
	)

	logger.Info("application services initialized", zap.String("instance_id", a.instanceID))
	return a, nil
}

func (a *App) connectRedis(ctx context.Context) error {
	client, err := redisqueue.Connect(ctx, redisqueue.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		Retries:  a.cfg.Redis.ConnectRetries,
		Backoff:  a.cfg.Redis.ConnectBackoff,
	}, a.logger.Named("redis"))
	if err != nil {
		return fmt.Errorf("connect redis %s: %w", a.cfg.Redis.Addr, err)
	}
	a.redis = client
	a.queue = redisqueue.NewQueue(client, a.logger.Named("queue"))
	a.closers = append(a.closers, client.Close)
	return nil
}

func (a *App) buildPublisher(ctx context.Context) error {
	switch a.cfg.Events.Provider {
	case "redis":
		a.publisher = redispublisher.New(a.queue)
	case "kafka":
		p := kafkapublisher.New(a.cfg.KafkaBrokerList())
		a.publisher = p
		a.closers = append(a.closers, p.Close)
	case "pubsub":
		client, err := pubsub.NewClient(ctx, a.cfg.Events.ProjectID)
		if err != nil {
			return fmt.Errorf("create pubsub client: %w", err)
		}
		p := pubsubpublisher.New(client)
		a.publisher = p
		a.closers = append(a.closers, func() error {
			p.Close()
			return client.Close()
		})
	default:
		return fmt.Errorf("unknown events provider: %s", a.cfg.Events.Provider)
	}
	a.logger.Info("status events configured",
		zap.String("provider", a.cfg.Events.Provider),
		zap.String("topic", a.cfg.Queue.Status),
	)
	return nil
}

func (a *App) buildStore(ctx context.Context) error {
	var err error
	switch a.cfg.Storage.Provider {
	case "s3":
		a.store, err = s3store.New(ctx, s3store.Config{
			Bucket:   a.cfg.Storage.Bucket,
			Region:   a.cfg.Storage.Region,
			Endpoint: a.cfg.Storage.Endpoint,
			Retries:  a.cfg.Storage.Retries,
			Timeout:  a.cfg.Storage.Timeout,
		}, a.logger.Named("s3"))
	case "gcs":
		var client *gcsclient.Client
		client, err = gcsclient.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.store, err = gcsstore.New(client, gcsstore.Config{Bucket: a.cfg.Storage.Bucket})
	case "local":
		a.store, err = localstore.New(localstore.Config{BaseDir: a.cfg.Storage.LocalDir})
	default:
		return fmt.Errorf("unknown storage provider: %s", a.cfg.Storage.Provider)
	}
	if err != nil {
		return fmt.Errorf("initialize %s storage: %w", a.cfg.Storage.Provider, err)
	}
	a.logger.Info("artifact storage configured", zap.String("uri", a.store.URI("")))
	return nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the container was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// InstanceID returns the identifier stamped on status events.
func (a *App) InstanceID() string {
	return a.instanceID
}

// Executor returns the job executor shared by both entry points.
func (a *App) Executor() *worker.Executor {
	return a.executor
}

// NewWorker builds the queue loop.
func (a *App) NewWorker() (*worker.Worker, error) {
	if a.mode != ModeWorker {
		return nil, fmt.Errorf("worker: %w", ErrWrongMode)
	}
	return worker.New(a.queue, a.locker, a.executor, a.supervisor, worker.Config{
		JobsQueue:         a.cfg.Queue.Jobs,
		LockName:          a.cfg.Lock.Name,
		LockExpiry:        a.cfg.Lock.Expiry,
		DequeueTimeout:    a.cfg.Queue.DequeueTimeout,
		PollInterval:      a.cfg.Lock.PollInterval,
		ExitOnEmpty:       a.cfg.Queue.ExitOnEmpty,
		MaxBrokerFailures: a.cfg.Queue.MaxBrokerFailures,
	}, a.logger.Named("worker")), nil
}

// NewServer builds the HTTP ingress.
func (a *App) NewServer() *api.Server {
	return api.NewServer(a.executor, a.logger.Named("api"))
}

// Close shuts down every opened client in reverse order and flushes the logger.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	// Sync fails on non-file sinks such as a terminal; nothing useful to do about it.
	_ = a.logger.Sync()
}
