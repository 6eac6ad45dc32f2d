// Package server builds the application graph and runs the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/private-sauna-availability/internal/api"
	"github.com/JakeFAU/private-sauna-availability/internal/availability"
	"github.com/JakeFAU/private-sauna-availability/internal/challenge"
	"github.com/JakeFAU/private-sauna-availability/internal/clock/system"
	"github.com/JakeFAU/private-sauna-availability/internal/config"
	"github.com/JakeFAU/private-sauna-availability/internal/events"
	eventsinks "github.com/JakeFAU/private-sauna-availability/internal/events/sinks"
	collyfetcher "github.com/JakeFAU/private-sauna-availability/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/private-sauna-availability/internal/fetcher/headless"
	"github.com/JakeFAU/private-sauna-availability/internal/hash/sha256"
	"github.com/JakeFAU/private-sauna-availability/internal/headless/detector"
	"github.com/JakeFAU/private-sauna-availability/internal/health"
	"github.com/JakeFAU/private-sauna-availability/internal/id/uuid"
	"github.com/JakeFAU/private-sauna-availability/internal/logging"
	"github.com/JakeFAU/private-sauna-availability/internal/notify"
	"github.com/JakeFAU/private-sauna-availability/internal/orchestrator"
	"github.com/JakeFAU/private-sauna-availability/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/private-sauna-availability/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/private-sauna-availability/internal/publisher/pubsub"
	"github.com/JakeFAU/private-sauna-availability/internal/session"
	"github.com/JakeFAU/private-sauna-availability/internal/sources"
	gcsstorage "github.com/JakeFAU/private-sauna-availability/internal/storage/gcs"
	localstorage "github.com/JakeFAU/private-sauna-availability/internal/storage/local"
	memorystorage "github.com/JakeFAU/private-sauna-availability/internal/storage/memory"
	"github.com/JakeFAU/private-sauna-availability/internal/telemetry"
	"github.com/JakeFAU/private-sauna-availability/internal/trigger"
)

// App contains the application's dependencies.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	apiServer    *api.Server
	orchestrator *orchestrator.Orchestrator
	scheduler    *orchestrator.Scheduler
	subscriber   *trigger.Subscriber
	eventHub     *events.Hub
	browser      *headlessfetcher.Browser
	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher
	storage      *storage.Client
	tracer       *sdktrace.TracerProvider
}

// Run starts the scheduler and HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		a.scheduler.Run(ctx)
	}()

	subscriberDone := make(chan struct{})
	go func() {
		defer close(subscriberDone)
		if a.subscriber == nil {
			return
		}
		if err := a.subscriber.Run(ctx); err != nil {
			a.logger.Error("refresh subscriber stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("scheduler did not stop before the shutdown deadline")
	}
	select {
	case <-subscriberDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("refresh subscriber did not stop before the shutdown deadline")
	}

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.browser != nil {
		a.browser.Close()
	}
	if a.eventHub != nil {
		if err := a.eventHub.Close(ctx); err != nil {
			a.logger.Warn("event hub close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	// Sync fails on stderr/stdout in most terminals; there is nothing to do about it.
	_ = a.logger.Sync()
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.Strings("sources", cfg.Sources.Enabled),
		zap.String("timezone", cfg.Scraper.Timezone),
	)
	for _, d := range cfg.Degradations() {
		logger.Warn("feature degraded", zap.Error(d))
	}

	if cfg.Tracing.Enabled {
		app.tracer, err = telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: cfg.Tracing.ServiceName,
			Logger:      logger.Named("trace"),
		})
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
	}

	artifacts, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	emitter, err := setupEvents(app, publisher)
	if err != nil {
		return nil, err
	}
	sessions, err := setupSessions(app, artifacts)
	if err != nil {
		return nil, err
	}

	solver := challenge.New(challenge.Config{URL: cfg.Challenge.URL}, logger.Named("challenge"))
	registry := sources.NewRegistry(sources.Deps{
		Settle:       cfg.Settle(),
		UserAgent:    cfg.Scraper.UserAgent,
		Solver:       solver,
		SolveTimeout: cfg.ChallengeTimeout(),
		Logger:       logger.Named("sources"),
	})
	adapters, err := registry.Enabled(cfg.Sources.Enabled)
	if err != nil {
		return nil, fmt.Errorf("select sources: %w", err)
	}
	srcs := make([]availability.Source, 0, len(adapters))
	for _, a := range adapters {
		srcs = append(srcs, a.Source())
	}

	clock := system.NewInLocation(cfg.Location())
	notifier := notify.New(notify.Config{
		Enabled:     cfg.Notify.Enabled,
		APIToken:    cfg.Notify.APIToken,
		RoomID:      cfg.Notify.RoomID,
		BaseURL:     cfg.Notify.BaseURL,
		Timeout:     cfg.NotifyTimeout(),
		Location:    cfg.NotifyLocation(),
		TitlePrefix: cfg.Notify.TitlePrefix,
	}, logger.Named("notify"))

	app.orchestrator, err = orchestrator.New(orchestrator.Config{
		Concurrency:   cfg.Scraper.Concurrency,
		SourceTimeout: cfg.SourceTimeout(),
		HorizonDays:   cfg.Scraper.HorizonDays,
		Location:      cfg.Location(),
	}, orchestrator.Deps{
		Adapters: adapters,
		Sessions: sessions,
		Store:    memorystorage.NewResultStore(sha256.New(), srcs...),
		Health:   health.NewTracker(cfg.Health.AlertThreshold, clock.Now),
		Notifier: notifier,
		Events:   emitter,
		IDs:      uuid.New(),
		Clock:    clock,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}
	app.scheduler = orchestrator.NewScheduler(app.orchestrator, orchestrator.SchedulerConfig{
		StartupRun: cfg.Schedule.StartupRun,
		Interval:   cfg.ScheduleInterval(),
	}, logger)
	app.subscriber, err = setupSubscriber(ctx, app)
	if err != nil {
		return nil, err
	}
	app.apiServer = api.NewServer(app.orchestrator, clock, *cfg, logger)
	return app, nil
}

func setupSubscriber(ctx context.Context, app *App) (*trigger.Subscriber, error) {
	name := app.cfg.PubSub.RefreshSubscription
	if name == "" || app.cfg.PubSub.ProjectID == "" {
		return nil, nil
	}
	if app.pubsubClient == nil {
		var err error
		app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
	}
	sub := app.pubsubClient.Subscription(name)
	// Runs never overlap, so there is no point holding more than one request.
	sub.ReceiveSettings.MaxOutstandingMessages = 1
	app.logger.Info("Pub/Sub refresh trigger initialized", zap.String("subscription", name))
	return trigger.NewSubscriber(sub, app.orchestrator, app.logger), nil
}

func setupStorage(ctx context.Context, app *App) (availability.BlobStore, error) {
	switch app.cfg.Artifacts.Backend {
	case "gcs":
		app.logger.Info("using GCS artifact backend")
		var err error
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobStore, err := gcsstorage.New(app.storage, gcsstorage.Config{Bucket: app.cfg.Artifacts.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Debug("GCS artifact backend", zap.String("bucket", app.cfg.Artifacts.Bucket))
		return blobStore, nil
	case "local":
		app.logger.Info("using local artifact backend")
		blobStore, err := localstorage.New(app.cfg.Artifacts.Local)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Debug("local artifact backend", zap.String("path", app.cfg.Artifacts.Local.BaseDir))
		return blobStore, nil
	case "none":
		app.logger.Info("failure artifacts disabled")
		return nil, nil
	default:
		app.logger.Info("using in-memory artifact backend", zap.Int("limit", memorystorage.DefaultBlobLimit))
		return memorystorage.NewBlobStore(), nil
	}
}

func setupPublisher(ctx context.Context, app *App) (availability.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Info("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.publisher = gcppublisher.New(app.pubsubClient.Topic(app.cfg.PubSub.TopicName))
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.publisher, nil
}

func setupEvents(app *App, publisher availability.Publisher) (events.Emitter, error) {
	if !app.cfg.Events.Enabled {
		app.logger.Info("run events disabled")
		return nil, nil
	}
	promSink, err := eventsinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList := []events.Sink{
		promSink,
		eventsinks.NewPublisherSink(publisher, app.cfg.PubSub.TopicName),
	}
	if app.cfg.Events.LogEnabled {
		sinkList = append(sinkList, eventsinks.NewLogSink(app.logger.Named("events_log")))
	}
	hubCfg := events.Config{
		BufferSize:     app.cfg.Events.BufferSize,
		MaxBatchEvents: app.cfg.Events.MaxBatchEvents,
		MaxBatchWait:   time.Duration(app.cfg.Events.MaxBatchWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(app.cfg.Events.SinkTimeoutMs) * time.Millisecond,
		Logger:         app.logger.Named("events_hub"),
	}
	app.eventHub = events.NewHub(hubCfg, sinkList...)
	app.logger.Info("event hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return app.eventHub, nil
}

func setupSessions(app *App, artifacts availability.BlobStore) (*session.Manager, error) {
	cfg := app.cfg
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.RateLimit.DefaultRPS,
			DefaultBurst: cfg.RateLimit.DefaultBurst,
		})
		app.logger.Info("rate limiter enabled",
			zap.Float64("default_rps", cfg.RateLimit.DefaultRPS),
			zap.Int("default_burst", cfg.RateLimit.DefaultBurst),
		)
	} else {
		app.logger.Info("rate limiter disabled")
	}

	static := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Scraper.UserAgent,
		Timeout:   time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
	}, limiter)
	app.logger.Info("using colly static fetcher", zap.String("user_agent", cfg.Scraper.UserAgent))

	var browser session.BrowserPages
	if cfg.Headless.Enabled {
		var err error
		app.browser, err = headlessfetcher.NewBrowser(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Scraper.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			ExecPath:          cfg.Headless.ExecPath,
		}, limiter)
		if err != nil {
			return nil, fmt.Errorf("headless browser init failed: %w", err)
		}
		browser = session.Browser(app.browser)
		app.logger.Info("using headless browser", zap.Int("max_parallel", cfg.Headless.MaxParallel))
	} else {
		app.logger.Warn("headless browser disabled; script-rendered sources will fail")
	}

	return session.NewManager(
		session.Config{ArtifactPrefix: cfg.Artifacts.Prefix},
		browser,
		session.Static(static),
		detector.NewHeuristic(cfg.Headless.PromotionThresh),
		artifacts,
		app.logger.Named("session"),
	), nil
}
