// Package app builds the long-lived services of the audit service and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/prelaunch-audit/internal/ai/anthropic"
	"github.com/JakeFAU/prelaunch-audit/internal/api"
	"github.com/JakeFAU/prelaunch-audit/internal/audit"
	"github.com/JakeFAU/prelaunch-audit/internal/checks"
	"github.com/JakeFAU/prelaunch-audit/internal/clock/system"
	"github.com/JakeFAU/prelaunch-audit/internal/config"
	"github.com/JakeFAU/prelaunch-audit/internal/crawler"
	"github.com/JakeFAU/prelaunch-audit/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/prelaunch-audit/internal/fetcher/colly"
	"github.com/JakeFAU/prelaunch-audit/internal/hash/sha256"
	"github.com/JakeFAU/prelaunch-audit/internal/id/uuid"
	"github.com/JakeFAU/prelaunch-audit/internal/policy/ratelimit"
	"github.com/JakeFAU/prelaunch-audit/internal/progress"
	progresssinks "github.com/JakeFAU/prelaunch-audit/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/prelaunch-audit/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/prelaunch-audit/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/prelaunch-audit/internal/queue/memory"
	"github.com/JakeFAU/prelaunch-audit/internal/storage"
	memorystorage "github.com/JakeFAU/prelaunch-audit/internal/storage/memory"
	pgstore "github.com/JakeFAU/prelaunch-audit/internal/storage/postgres"
	"github.com/JakeFAU/prelaunch-audit/internal/worker"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
	defaultWorkers    = 1
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	direct    *worker.Worker
	hub       *progress.Hub
	queue     *queuememory.Queue
	runs      audit.RunStore
	pgStore   *pgstore.RunStore
	gcp       *gcppublisher.Publisher
	blobClose func() error
}

// Build creates the application's dependencies from cfg. reg receives the progress
// collectors; nil means the default registerer.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Provider),
		zap.Bool("postgres", cfg.DB.DSN != ""),
		zap.Bool("pubsub", cfg.PubSub.ProjectID != ""),
	)

	runner, err := a.setupRunner()
	if err != nil {
		return nil, err
	}
	if err := a.setupRunStore(ctx); err != nil {
		return nil, err
	}
	blobs, blobClose, err := storage.New(ctx, cfg.Storage, logger.Named("storage"))
	if err != nil {
		a.closeInfrastructure(ctx)
		return nil, fmt.Errorf("storage init failed: %w", err)
	}
	a.blobClose = blobClose
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		a.closeInfrastructure(ctx)
		return nil, err
	}
	snapshots, err := a.setupProgress(reg)
	if err != nil {
		a.closeInfrastructure(ctx)
		return nil, err
	}

	clock := system.New()
	deps := worker.Deps{
		Runner:    runner,
		Runs:      a.runs,
		Blobs:     blobs,
		Publisher: publisher,
		Hasher:    sha256.New(),
		Clock:     clock,
		Emitter:   a.hub,
	}
	workerCfg := worker.Config{Topic: cfg.PubSub.TopicName}

	a.queue = queuememory.NewQueue(cfg.Queue.Depth)
	deps.Queue = a.queue
	count := cfg.Queue.Workers
	if count <= 0 {
		count = defaultWorkers
	}
	workers := make([]*worker.Worker, 0, count)
	for i := 0; i < count; i++ {
		workers = append(workers, worker.New(deps, workerCfg, logger.Named("worker").With(zap.Int("index", i))))
	}
	a.direct = worker.New(deps, workerCfg, logger.Named("worker").With(zap.String("mode", "direct")))
	a.dispatch = dispatcher.New(a.queue, workers, a.runs, uuid.New(), clock, logger.Named("dispatcher"))
	a.apiServer = api.NewServer(a.runs, a.dispatch, snapshots, a.ready, cfg, logger.Named("api"))
	return a, nil
}

func (a *App) setupRunner() (*audit.Runner, error) {
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Crawler.UserAgent,
		Timeout:   a.cfg.CrawlTimeout(),
	}, a.logger.Named("fetcher"))
	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: a.cfg.Crawler.RatePerSecond})
	crawl, err := crawler.New(crawler.Config{
		MaxPages:        a.cfg.Crawler.MaxPages,
		ExcludePatterns: a.cfg.Crawler.ExcludePatterns,
	}, fetcher, limiter, a.logger.Named("crawler"))
	if err != nil {
		return nil, fmt.Errorf("crawler init failed: %w", err)
	}
	analyzer := anthropic.New(anthropic.Config{
		APIKey:    a.cfg.AI.APIKey,
		Model:     a.cfg.AI.Model,
		MaxTokens: a.cfg.AI.MaxTokens,
		BaseURL:   a.cfg.AI.BaseURL,
		Timeout:   time.Duration(a.cfg.AI.TimeoutSeconds) * time.Second,
	}, a.logger.Named("ai"))
	if !analyzer.Available() {
		a.logger.Warn("no analyzer credential configured; AI review is disabled")
	}
	clock := system.New()
	builder := checks.NewBuilder(a.cfg, analyzer, clock, a.logger.Named("checks"))
	return audit.NewRunner(
		audit.RunnerConfig{MaxWorkers: a.cfg.Crawler.MaxWorkers},
		crawl,
		fetcher,
		builder,
		clock,
		a.logger.Named("runner"),
	), nil
}

func (a *App) setupRunStore(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no DSN specified for database, using in-memory run store")
		a.runs = memorystorage.NewRunStore()
		return nil
	}
	store, err := pgstore.NewRunStore(ctx, pgstore.Config{
		DSN:          a.cfg.DB.DSN,
		RunsTable:    a.cfg.DB.RunsTable,
		ResultsTable: a.cfg.DB.ResultsTable,
	})
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return fmt.Errorf("run store migrate failed: %w", err)
	}
	a.pgStore = store
	a.runs = store
	a.logger.Info("postgres run store initialized",
		zap.String("runs_table", a.cfg.DB.RunsTable),
		zap.String("results_table", a.cfg.DB.ResultsTable),
	)
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (audit.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	publisher, err := gcppublisher.NewFromProject(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub init failed: %w", err)
	}
	a.gcp = publisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return publisher, nil
}

func (a *App) setupProgress(reg prometheus.Registerer) (*progresssinks.SnapshotSink, error) {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("progress metrics init failed: %w", err)
	}
	snapshots := progresssinks.NewSnapshotSink()
	a.hub = progress.NewHub(
		progress.Config{Logger: a.logger.Named("progress_hub")},
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
		snapshots,
	)
	return snapshots, nil
}

// ready reports whether the run store answers.
func (a *App) ready(ctx context.Context) error {
	if a.pgStore == nil {
		return nil
	}
	return a.pgStore.Ping(ctx)
}

// Config returns the configuration the application was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Execute runs one request synchronously, bypassing the queue.
func (a *App) Execute(ctx context.Context, request audit.Request) (worker.Result, error) {
	if request.RunID == "" {
		id, err := uuid.New().NewID()
		if err != nil {
			return worker.Result{}, fmt.Errorf("generate run id: %w", err)
		}
		request.RunID = id
	}
	return a.direct.Execute(ctx, request)
}

// Run serves the HTTP API and drains the run queue until ctx is canceled or a
// termination signal arrives, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not stop before the shutdown deadline")
	}

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure(ctx)
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		a.hub = nil
	}
	if a.gcp != nil {
		if err := a.gcp.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.gcp = nil
	}
	if a.blobClose != nil {
		if err := a.blobClose(); err != nil {
			a.logger.Warn("blob store close failed", zap.Error(err))
		}
		a.blobClose = nil
	}
	if a.pgStore != nil {
		a.pgStore.Close()
		a.pgStore = nil
	}
}
