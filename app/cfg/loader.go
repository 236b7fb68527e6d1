package cfg

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

const (
	LeaseBackendSQLite = "sqlite"
	LeaseBackendRedis  = "redis"
)

type rawCfg struct {
	// Storage
	DBPath       string `long:"db-path" env:"DB_PATH" default:"./data/alerts.db" description:"Path to the SQLite snapshot database"`
	ArtifactsDir string `long:"artifacts-dir" env:"ARTIFACTS_DIR" default:"./public" description:"Directory the published feeds are written to"`
	SettingsFile string `long:"settings" env:"SETTINGS_FILE" default:"./settings.yml" description:"Pipeline settings file (source, collaborators, notifications)"`

	// Run lease
	LeaseBackend  string        `long:"lease-backend" env:"LEASE_BACKEND" default:"sqlite" choice:"sqlite" choice:"redis" description:"Where the single-run lease is held"`
	LeaseTTL      time.Duration `long:"lease-ttl" env:"LEASE_TTL" default:"15m" description:"How long a run lease lasts before another process may take it"`
	RedisAddr     string        `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address for the redis lease backend"`
	RedisPassword string        `long:"redis-password" env:"REDIS_PASSWORD" description:"Redis password"`
	RedisDB       int           `long:"redis-db" env:"REDIS_DB" default:"0" description:"Redis database number"`

	// Publishing
	S3Bucket           string `long:"s3-bucket" env:"S3_BUCKET" description:"Mirror published feeds to this S3 bucket (optional)"`
	S3Prefix           string `long:"s3-prefix" env:"S3_PREFIX" description:"Key prefix inside the S3 bucket"`
	PublishConcurrency int    `long:"publish-concurrency" env:"PUBLISH_CONCURRENCY" default:"8" description:"Artifacts written in parallel"`
	PublishAttempts    int    `long:"publish-attempts" env:"PUBLISH_ATTEMPTS" default:"3" description:"Write attempts per artifact"`

	// Application configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	WorkerCount  int    `long:"worker-count" env:"WORKER_COUNT" default:"1" description:"Number of background workers running pipeline tasks"`
	Schedule     string `long:"schedule" env:"SCHEDULE" default:"@every 10m" description:"Cron schedule for pipeline runs, empty to disable"`
	Once         bool   `long:"once" env:"ONCE" description:"Run the pipeline once and exit"`
	Republish    bool   `long:"republish" env:"REPUBLISH" description:"Rewrite every artifact from the snapshot and exit"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Service Alerts/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"Africa/Johannesburg" description:"Timezone for local timestamps"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
	LogFormat string `long:"log-format" env:"LOG_FORMAT" default:"text" choice:"text" choice:"json" description:"Log output format"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs parses args and the environment. It returns nil, nil when help was requested.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:             raw.DBPath,
		ArtifactsDir:       raw.ArtifactsDir,
		SettingsFile:       raw.SettingsFile,
		LeaseBackend:       raw.LeaseBackend,
		LeaseTTL:           raw.LeaseTTL,
		RedisAddr:          raw.RedisAddr,
		RedisPassword:      raw.RedisPassword,
		RedisDB:            raw.RedisDB,
		S3Bucket:           raw.S3Bucket,
		S3Prefix:           raw.S3Prefix,
		PublishConcurrency: raw.PublishConcurrency,
		PublishAttempts:    raw.PublishAttempts,
		Port:               raw.Port,
		APIAccessKey:       raw.APIAccessKey,
		WorkerCount:        raw.WorkerCount,
		Schedule:           raw.Schedule,
		Once:               raw.Once,
		Republish:          raw.Republish,
		UserAgent:          raw.UserAgent,
		Timezone:           raw.Timezone,
		Debug:              raw.Debug,
		LogFormat:          raw.LogFormat,
		Version:            GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func validate(cfg *Cfg) error {
	if cfg.Once && cfg.Republish {
		return fmt.Errorf("--once and --republish are mutually exclusive")
	}
	if cfg.LeaseTTL <= 0 {
		return fmt.Errorf("lease TTL must be positive")
	}
	if cfg.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if cfg.PublishConcurrency < 1 {
		return fmt.Errorf("publish concurrency must be at least 1")
	}
	if cfg.PublishAttempts < 1 {
		return fmt.Errorf("publish attempts must be at least 1")
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return err
		}
		time.Local = loc
	}
	return nil
}
