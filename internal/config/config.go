// Package config loads and validates worker configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Lock     LockConfig     `mapstructure:"lock"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Events   EventsConfig   `mapstructure:"events"`
	Server   ServerConfig   `mapstructure:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Instance InstanceConfig `mapstructure:"instance"`
}

// RedisConfig controls the broker connection shared by the queue and the lock.
type RedisConfig struct {
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	ConnectRetries int           `mapstructure:"connect_retries"`
	ConnectBackoff time.Duration `mapstructure:"connect_backoff"`
}

// QueueConfig names the job and status queues.
type QueueConfig struct {
	Jobs              string        `mapstructure:"jobs"`
	Status            string        `mapstructure:"status"`
	DequeueTimeout    time.Duration `mapstructure:"dequeue_timeout"`
	ExitOnEmpty       bool          `mapstructure:"exit_on_empty"`
	MaxBrokerFailures int           `mapstructure:"max_broker_failures"`
}

// LockConfig governs the claim lock.
type LockConfig struct {
	Name         string        `mapstructure:"name"`
	Expiry       time.Duration `mapstructure:"expiry"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// CrawlConfig describes how the crawl executable is invoked.
type CrawlConfig struct {
	Executable     string        `mapstructure:"executable"`
	ArgsFile       string        `mapstructure:"args_file"`
	CollectionsDir string        `mapstructure:"collections_dir"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// StorageConfig selects the artifact upload target.
type StorageConfig struct {
	Provider    string        `mapstructure:"provider"`
	Environment string        `mapstructure:"environment"`
	Bucket      string        `mapstructure:"bucket"`
	Region      string        `mapstructure:"region"`
	Endpoint    string        `mapstructure:"endpoint"`
	LocalDir    string        `mapstructure:"local_dir"`
	Retries     int           `mapstructure:"retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// EventsConfig selects where status events are published.
type EventsConfig struct {
	Provider     string `mapstructure:"provider"`
	KafkaBrokers string `mapstructure:"kafka_brokers"`
	ProjectID    string `mapstructure:"project_id"`
}

// ServerConfig controls the HTTP ingress.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// MetricsConfig controls the worker-mode metrics listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// InstanceConfig controls how the worker identifies itself in status events.
type InstanceConfig struct {
	ID              string        `mapstructure:"id"`
	FallbackID      string        `mapstructure:"fallback_id"`
	MetadataTimeout time.Duration `mapstructure:"metadata_timeout"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 3)
	v.SetDefault("redis.connect_backoff", "3s")
	v.SetDefault("queue.jobs", "test_queue:start_urls")
	v.SetDefault("queue.status", "crawlStatus")
	v.SetDefault("queue.dequeue_timeout", "120s")
	v.SetDefault("queue.exit_on_empty", false)
	v.SetDefault("queue.max_broker_failures", 5)
	v.SetDefault("lock.name", "broadcrawl:claim")
	v.SetDefault("lock.expiry", "150s")
	v.SetDefault("lock.poll_interval", "500ms")
	v.SetDefault("crawl.executable", "crawl")
	v.SetDefault("crawl.args_file", "/app/config.yaml")
	v.SetDefault("crawl.collections_dir", "/crawls/collections")
	v.SetDefault("crawl.timeout", "0s")
	v.SetDefault("storage.provider", "s3")
	v.SetDefault("storage.environment", "dev")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.local_dir", "data/artifacts")
	v.SetDefault("storage.retries", 3)
	v.SetDefault("storage.timeout", "60s")
	v.SetDefault("events.provider", "redis")
	v.SetDefault("events.kafka_brokers", "")
	v.SetDefault("events.project_id", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("logging.development", true)
	v.SetDefault("instance.id", "")
	v.SetDefault("instance.fallback_id", "dev-testing")
	v.SetDefault("instance.metadata_timeout", "2s")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be set")
	}
	if c.Redis.ConnectRetries <= 0 {
		return fmt.Errorf("redis.connect_retries must be > 0")
	}
	if c.Queue.Jobs == "" || c.Queue.Status == "" {
		return fmt.Errorf("queue.jobs and queue.status must be set")
	}
	if c.Queue.DequeueTimeout <= 0 {
		return fmt.Errorf("queue.dequeue_timeout must be > 0")
	}
	if c.Queue.MaxBrokerFailures <= 0 {
		return fmt.Errorf("queue.max_broker_failures must be > 0")
	}
	if c.Lock.Name == "" {
		return fmt.Errorf("lock.name must be set")
	}
	if c.Lock.Expiry <= 0 {
		return fmt.Errorf("lock.expiry must be > 0")
	}
	// The lock is held across the blocking dequeue.
	if c.Lock.Expiry <= c.Queue.DequeueTimeout {
		return fmt.Errorf("lock.expiry (%s) must exceed queue.dequeue_timeout (%s)", c.Lock.Expiry, c.Queue.DequeueTimeout)
	}
	if c.Crawl.Executable == "" {
		return fmt.Errorf("crawl.executable must be set")
	}
	if c.Crawl.CollectionsDir == "" {
		return fmt.Errorf("crawl.collections_dir must be set")
	}
	if c.Crawl.Timeout < 0 {
		return fmt.Errorf("crawl.timeout must be >= 0")
	}
	switch c.Storage.Provider {
	case "s3", "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for provider %q", c.Storage.Provider)
		}
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for provider local")
		}
	default:
		return fmt.Errorf("storage.provider %q is not supported", c.Storage.Provider)
	}
	if c.Storage.Environment == "" {
		return fmt.Errorf("storage.environment must be set")
	}
	switch c.Events.Provider {
	case "redis":
	case "kafka":
		if c.Events.KafkaBrokers == "" {
			return fmt.Errorf("events.kafka_brokers must be set for provider kafka")
		}
	case "pubsub":
		if c.Events.ProjectID == "" {
			return fmt.Errorf("events.project_id must be set for provider pubsub")
		}
	default:
		return fmt.Errorf("events.provider %q is not supported", c.Events.Provider)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// KafkaBrokerList splits the comma-separated broker setting.
func (c Config) KafkaBrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.Events.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
