package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/coct-data/service-alerts/app/api"
	"github.com/coct-data/service-alerts/app/augment"
	"github.com/coct-data/service-alerts/app/cfg"
	"github.com/coct-data/service-alerts/app/metrics"
	"github.com/coct-data/service-alerts/app/notify"
	"github.com/coct-data/service-alerts/app/pipeline"
	"github.com/coct-data/service-alerts/app/publish"
	"github.com/coct-data/service-alerts/app/reconcile"
	"github.com/coct-data/service-alerts/app/settings"
	"github.com/coct-data/service-alerts/app/snapshot"
	"github.com/coct-data/service-alerts/app/source"
	"github.com/coct-data/service-alerts/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	setupLogger(appCfg)

	os.Exit(run(appCfg))
}

func setupLogger(c *cfg.Cfg) {
	level := slog.LevelInfo
	if c.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if c.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func run(c *cfg.Cfg) int {
	slog.Info("Starting Service Alerts", "version", c.Version, "mode", c.Mode())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newComponents(ctx, c)
	if err != nil {
		slog.Error("Failed to start", "error", err)
		return 1
	}
	defer app.Close()

	switch c.Mode() {
	case "once":
		return exitCode(app.pipeline.Run(ctx))
	case "republish":
		return exitCode(app.pipeline.Republish(ctx))
	}

	return serve(ctx, c, app)
}

// exitCode maps a one-shot run to the process exit status. Degraded runs still succeed.
func exitCode(report *pipeline.Report, err error) int {
	switch {
	case err == nil:
		return 0
	case pipeline.Refused(err):
		slog.Warn("Another run is in progress, nothing done")
	case pipeline.Unavailable(err):
		slog.Error("Store or source unavailable", "error", err)
	default:
		slog.Error("Run failed", "run_id", report.RunID, "error", err)
	}
	return 1
}

func serve(ctx context.Context, c *cfg.Cfg, app *components) int {
	scheduler, err := tasks.NewScheduler(app.pipeline, c.Schedule, c.WorkerCount)
	if err != nil {
		slog.Error("Failed to create scheduler", "error", err)
		return 1
	}

	slog.Info("Starting background scheduler", "workers", c.WorkerCount, "schedule", c.Schedule)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(app.store, app.files, app.pipeline, app.pipeline, scheduler, app.metrics.Handler())
	router := api.NewServer(handler, c.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + c.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", c.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	exit := 0
	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
		exit = 1
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	return exit
}

type components struct {
	store    *snapshot.Store
	files    *publish.FileStore
	metrics  *metrics.Metrics
	pipeline *pipeline.Pipeline
	closers  []func() error
}

func (a *components) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("Shutdown error", "error", err)
		}
	}
}

func newComponents(ctx context.Context, c *cfg.Cfg) (*components, error) {
	a := &components{metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	slog.Info("Loading pipeline settings", "path", c.SettingsFile)
	s, err := settings.Load(c.SettingsFile)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(c.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	a.store, err = snapshot.Open(c.DBPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)
	slog.Info("Opened snapshot store", "path", c.DBPath)

	lease, err := newLease(ctx, c, a)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{}

	src, err := source.New(s.Source, httpClient, c.UserAgent)
	if err != nil {
		return nil, err
	}

	a.files, err = publish.NewFileStore(c.ArtifactsDir)
	if err != nil {
		return nil, err
	}

	var store publish.ArtifactStore = a.files
	if c.S3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
		}
		store = publish.MirrorStore{a.files, publish.NewS3StoreFromConfig(awsCfg, c.S3Bucket, c.S3Prefix)}
		slog.Info("Mirroring artifacts to S3", "bucket", c.S3Bucket, "prefix", c.S3Prefix)
	}

	publisher := publish.NewPublisher(store, c.PublishConcurrency).
		WithRetry(c.PublishAttempts, time.Second, 30*time.Second)

	notifier, err := newNotifier(ctx, s.Notifications, a)
	if err != nil {
		return nil, err
	}

	contract, err := notify.ParseContract(s.Notifications.Contract)
	if err != nil {
		return nil, err
	}

	a.pipeline = pipeline.New(src, reconcile.NewReconciler(a.store, lease), publisher, pipeline.Options{
		Augmenter: newAugmenter(s, httpClient, c.UserAgent),
		Notifier:  notifier,
		Contract:  contract,
		Metrics:   a.metrics,
	})

	ok = true
	return a, nil
}

func newLease(ctx context.Context, c *cfg.Cfg, a *components) (snapshot.Lease, error) {
	if c.LeaseBackend != cfg.LeaseBackendRedis {
		return snapshot.NewSQLiteLease(a.store.DB(), snapshot.DefaultLeaseName, c.LeaseTTL), nil
	}

	client, err := snapshot.NewRedisClient(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	slog.Info("Using Redis run lease", "addr", c.RedisAddr)

	return snapshot.NewRedisLease(client, snapshot.DefaultLeaseName, c.LeaseTTL), nil
}

func newAugmenter(s *settings.Settings, httpClient *http.Client, userAgent string) *augment.Augmenter {
	var geocoder augment.Geocoder
	if s.Geocoder.Enabled {
		geocoder = augment.NewNominatimGeocoder(s.Geocoder.URL, httpClient, userAgent)
	}

	var summariser augment.Summariser
	if s.Summariser.Enabled {
		summariser = augment.NewOpenAISummariser(s.Summariser.APIKey, s.Summariser.BaseURL, s.Summariser.Model, s.Summariser.MaxLength)
	}

	slog.Debug("Collaborators configured", "geocoder", s.Geocoder.Enabled, "summariser", s.Summariser.Enabled)

	return augment.NewAugmenter(geocoder, summariser, augment.Options{
		Concurrency:       s.Augment.Concurrency,
		GeocodeTimeout:    time.Duration(s.Geocoder.Timeout) * time.Second,
		SummariseTimeout:  time.Duration(s.Summariser.Timeout) * time.Second,
		Hashtags:          s.Hashtags,
		ExcludedAreaTypes: s.Geocoder.ExcludedAreaTypes,
	})
}

func newNotifier(ctx context.Context, s settings.NotificationSettings, a *components) (notify.Notifier, error) {
	var notifiers notify.Multi

	if s.Kafka != nil {
		kafka := notify.NewKafkaNotifier(s.Kafka.Brokers, s.Kafka.Topic)
		a.closers = append(a.closers, kafka.Close)
		notifiers = append(notifiers, kafka)
	}

	if s.SNS != nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
		}
		notifiers = append(notifiers, notify.NewSNSNotifierFromConfig(awsCfg, s.SNS.TopicArn))
	}

	if s.Slack != nil {
		notifiers = append(notifiers, notify.NewSlackNotifier(s.Slack.Token, s.Slack.Channel))
	}

	if len(notifiers) == 0 {
		slog.Info("No notification channels configured")
		return nil, nil
	}

	slog.Info("Notification channels configured", "channels", notifiers.Name(), "contract", s.Contract)
	return notifiers, nil
}
