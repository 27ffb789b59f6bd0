// Package app initializes and holds long-lived application services, acting as
// a dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/api"
	"github.com/JakeFAU/directory-crawler/internal/checkpoint"
	"github.com/JakeFAU/directory-crawler/internal/clock/system"
	"github.com/JakeFAU/directory-crawler/internal/config"
	"github.com/JakeFAU/directory-crawler/internal/controller"
	"github.com/JakeFAU/directory-crawler/internal/crawler"
	"github.com/JakeFAU/directory-crawler/internal/dedup"
	"github.com/JakeFAU/directory-crawler/internal/detail"
	"github.com/JakeFAU/directory-crawler/internal/diagnostics"
	collyfetcher "github.com/JakeFAU/directory-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/directory-crawler/internal/fetcher/detector"
	"github.com/JakeFAU/directory-crawler/internal/identity"
	"github.com/JakeFAU/directory-crawler/internal/listing"
	"github.com/JakeFAU/directory-crawler/internal/logging"
	"github.com/JakeFAU/directory-crawler/internal/pagination"
	"github.com/JakeFAU/directory-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/directory-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/directory-crawler/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/directory-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/directory-crawler/internal/site"
	"github.com/JakeFAU/directory-crawler/internal/storage"
	pgstore "github.com/JakeFAU/directory-crawler/internal/storage/postgres"
	"github.com/JakeFAU/directory-crawler/internal/table"
	"github.com/JakeFAU/directory-crawler/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	fs         afero.Fs
	clock      *system.Clock
	registerer prometheus.Registerer
	out        io.Writer

	checkpoints *checkpoint.Store

	// Populated by Crawl and released by closeInfrastructure.
	progressHub    *progress.Hub
	blobCloser     io.Closer
	recordStore    *pgstore.RecordStore
	redisMirror    *dedup.RedisMirror
	publisher      *pubsubpublisher.Publisher
	tracerShutdown func(context.Context) error
}

// Option customizes App construction.
type Option func(*App)

// WithFs replaces the OS filesystem, mainly for tests.
func WithFs(fsys afero.Fs) Option {
	return func(a *App) { a.fs = fsys }
}

// WithLogger replaces the configured logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithRegisterer sets the registry for the progress Prometheus collectors.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// WithOutput sets where the progress bar renders.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// New builds the cheap, local services shared by every command: logger,
// filesystem, clock and checkpoint store.
func New(cfg config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:        cfg,
		fs:         afero.NewOsFs(),
		clock:      system.New(),
		registerer: prometheus.DefaultRegisterer,
		out:        os.Stderr,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		logger, err := logging.New(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
		a.logger = logger
	}
	a.checkpoints = checkpoint.NewStore(
		a.fs,
		cfg.Files.CheckpointPath,
		cfg.Files.BackupPath,
		cfg.Crawler.StartRegion,
		a.clock,
		a.logger.Named("checkpoint"),
	)
	return a, nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Regions returns the configured region list in crawl order.
func (a *App) Regions() []crawler.Region {
	return a.cfg.Crawler.Regions
}

// CheckpointPath returns where the primary checkpoint is stored.
func (a *App) CheckpointPath() string {
	return a.checkpoints.Path()
}

// Status loads the persisted checkpoint without touching the network.
func (a *App) Status(ctx context.Context) (crawler.Checkpoint, error) {
	cp, err := a.checkpoints.Load(ctx)
	if err != nil {
		return crawler.Checkpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}
	return cp, nil
}

// Reset deletes the checkpoint, its backup and the processed-id cache.
func (a *App) Reset(ctx context.Context) error {
	if err := a.checkpoints.Reset(ctx); err != nil {
		return fmt.Errorf("reset checkpoint: %w", err)
	}
	if err := a.fs.Remove(a.cfg.Files.ProcessedPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", a.cfg.Files.ProcessedPath, err)
	}
	a.logger.Info("crawl state reset",
		zap.String("checkpoint", a.cfg.Files.CheckpointPath),
		zap.String("processed", a.cfg.Files.ProcessedPath))
	return nil
}

// Crawl wires the crawl pipeline, serves the optional status endpoint and
// runs the controller until it completes, aborts or ctx is canceled.
func (a *App) Crawl(ctx context.Context) error {
	defer a.closeInfrastructure(context.WithoutCancel(ctx))

	ctrl, err := a.build(ctx)
	if err != nil {
		return err
	}

	if a.cfg.Server.Addr != "" {
		srv := &http.Server{
			Addr:              a.cfg.Server.Addr,
			Handler:           api.NewServer(ctrl, a.logger.Named("api")).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("status server started", zap.String("addr", a.cfg.Server.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("status server error", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("status server shutdown error", zap.Error(err))
			}
		}()
	}

	return ctrl.Run(ctx)
}

// Close flushes the logger and any observability exporters.
func (a *App) Close(ctx context.Context) error {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracerShutdown = nil
	}
	// Sync commonly fails on terminals; the error carries no information.
	_ = a.logger.Sync()
	return nil
}

func (a *App) build(ctx context.Context) (*controller.Controller, error) {
	cfg := a.cfg
	a.logger.Info("building crawl pipeline",
		zap.Int("regions", len(cfg.Crawler.Regions)),
		zap.String("base_url", cfg.Site.BaseURL),
		zap.String("diagnostics", cfg.Diagnostics.Backend))

	if err := a.setupTracing(ctx); err != nil {
		return nil, err
	}

	layout, err := site.New(cfg.Site)
	if err != nil {
		return nil, fmt.Errorf("site layout: %w", err)
	}
	inferrer, err := pagination.NewInferrer(cfg.Site, layout)
	if err != nil {
		return nil, fmt.Errorf("pagination inferrer: %w", err)
	}

	rng := newRand(cfg.Crawler.Seed, a.clock.Now())
	sessions, err := a.setupFetcher(ctx, layout, rng)
	if err != nil {
		return nil, err
	}

	dedupSet := a.setupDedup()
	sink, err := a.setupTable(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	reporter, err := a.setupProgress()
	if err != nil {
		return nil, err
	}

	deps := controller.Deps{
		Regions:     cfg.Crawler.Regions,
		Layout:      layout,
		Sessions:    sessions,
		Listing:     listing.NewParser(cfg.Site, layout),
		Records:     detail.NewParser(cfg.Site.DetailSelector),
		Pagination:  inferrer,
		Dedup:       dedupSet,
		Checkpoints: a.checkpoints,
		Table:       sink,
		Reporter:    reporter,
		Clock:       a.clock,
		Sleeper:     a.clock,
		Rand:        rng,
		Logger:      a.logger.Named("controller"),
	}
	if publisher != nil {
		deps.Publisher = publisher
	}
	ctrl, err := controller.New(controller.Config{
		MaxAttempts:         cfg.Crawler.MaxAttempts,
		CheckpointEvery:     cfg.Crawler.CheckpointEvery,
		MaxFallbackAdvances: cfg.Crawler.MaxFallbackAdvances,
		PageSize:            cfg.Site.PageSize,
		FlakyPageIndex:      cfg.Site.FlakyPageIndex,
		PageDelay:           cfg.PageDelay(),
		RecordDelay:         cfg.RecordDelay(),
		Topic:               cfg.PubSub.TopicName,
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("controller init failed: %w", err)
	}
	return ctrl, nil
}

func (a *App) setupTracing(ctx context.Context) error {
	if !a.cfg.Tracing.Enabled {
		return nil
	}
	tp, err := telemetry.InitTracerProvider(ctx, a.cfg.Tracing.ServiceName)
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracerShutdown = tp.Shutdown
	a.logger.Info("tracing enabled", zap.String("service", a.cfg.Tracing.ServiceName))
	return nil
}

func (a *App) setupFetcher(ctx context.Context, layout *site.Layout, rng *rand.Rand) (*collyfetcher.Client, error) {
	cfg := a.cfg
	pool, err := identity.NewPool(cfg.Identity.UserAgents, cfg.Identity.Headers, cfg.Site.BaseURL, rng)
	if err != nil {
		return nil, fmt.Errorf("identity pool: %w", err)
	}

	blobStore, closer, err := storage.Open(ctx, cfg.Diagnostics, a.fs)
	if err != nil {
		return nil, err
	}
	a.blobCloser = closer
	recorder := diagnostics.NewRecorder(blobStore, a.clock, layout.PageParam(), a.logger.Named("diagnostics"))

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.Crawler.RequestsPerSecond,
		Burst:             cfg.Crawler.Burst,
	})
	client := collyfetcher.New(
		collyfetcher.Config{Timeout: cfg.Timeout(), Backoff: cfg.Backoff()},
		pool,
		detector.NewChallenge(cfg.Site.BlockMarkers, 0),
		collyfetcher.WithLimiter(limiter),
		collyfetcher.WithSleeper(a.clock),
		collyfetcher.WithRecorder(recorder),
		collyfetcher.WithLogger(a.logger.Named("fetcher")),
	)
	a.logger.Debug("fetcher ready",
		zap.Int("identities", pool.Size()),
		zap.Duration("timeout", cfg.Timeout()),
		zap.Float64("requests_per_second", cfg.Crawler.RequestsPerSecond))
	return client, nil
}

func (a *App) setupDedup() *dedup.Set {
	opts := []dedup.Option{dedup.WithLogger(a.logger.Named("dedup"))}
	if a.cfg.Dedup.RedisAddr != "" {
		a.redisMirror = dedup.NewRedisMirror(a.cfg.Dedup.RedisAddr, a.cfg.Dedup.RedisDB, a.cfg.Dedup.RedisKey)
		opts = append(opts, dedup.WithMirror(a.redisMirror))
		a.logger.Info("processed ids mirrored to redis",
			zap.String("addr", a.cfg.Dedup.RedisAddr),
			zap.String("key", a.cfg.Dedup.RedisKey))
	}
	return dedup.New(a.fs, a.cfg.Files.ProcessedPath, a.clock, opts...)
}

func (a *App) setupTable(ctx context.Context) (crawler.TableSink, error) {
	out := a.cfg.Output
	sinks := table.Multi{table.NewCSVSink(a.fs, out.Dir, out.PerRegion, out.CombinedName, a.logger.Named("table"))}
	if a.cfg.Postgres.DSN == "" {
		return sinks, nil
	}
	store, err := pgstore.NewRecordStore(ctx, pgstore.RecordStoreConfig{
		DSN:   a.cfg.Postgres.DSN,
		Table: a.cfg.Postgres.Table,
	})
	if err != nil {
		return nil, fmt.Errorf("record store init failed: %w", err)
	}
	a.recordStore = store
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	a.logger.Info("records mirrored to postgres", zap.String("table", a.cfg.Postgres.Table))
	// The SQL copy is best effort; only the CSV table gates checkpoints.
	return append(sinks, &table.Mirror{Sink: store, Name: "postgres", Logger: a.logger.Named("table")}), nil
}

func (a *App) setupPublisher(ctx context.Context) (*pubsubpublisher.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" {
		return nil, nil
	}
	pub, err := pubsubpublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.publisher = pub
	a.logger.Info("region notifications enabled",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName))
	return pub, nil
}

func (a *App) setupProgress() (*progress.Reporter, error) {
	sinkList := []progress.Sink{progresssinks.NewLogSink(a.logger.Named("progress"))}
	promSink, err := progresssinks.NewPrometheusSink(a.registerer)
	if err != nil {
		return nil, fmt.Errorf("progress metrics: %w", err)
	}
	sinkList = append(sinkList, promSink)
	if a.cfg.Progress.Bar {
		sinkList = append(sinkList, progresssinks.NewBarSink(a.out))
	}
	a.progressHub = progress.NewHub(progress.Config{Logger: a.logger.Named("progress_hub")}, sinkList...)
	return progress.NewReporter(a.progressHub, uuid.New(), a.clock.Now), nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		a.progressHub = nil
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
		a.publisher = nil
	}
	if a.recordStore != nil {
		a.recordStore.Close()
		a.recordStore = nil
	}
	if a.redisMirror != nil {
		if err := a.redisMirror.Close(); err != nil {
			a.logger.Warn("redis mirror close failed", zap.Error(err))
		}
		a.redisMirror = nil
	}
	if a.blobCloser != nil {
		if err := a.blobCloser.Close(); err != nil {
			a.logger.Warn("diagnostics store close failed", zap.Error(err))
		}
		a.blobCloser = nil
	}
}

// newRand returns the PRNG behind delays and identity choice. A zero seed is
// replaced by the current time.
func newRand(seed uint64, now time.Time) *rand.Rand {
	if seed == 0 {
		seed = uint64(now.UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
