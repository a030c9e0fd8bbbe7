// Package app builds the extractor's long-lived services from configuration
// and runs the queue worker and ad-hoc crawls on top of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-extractor/internal/api"
	"github.com/JakeFAU/product-extractor/internal/apidiscovery"
	"github.com/JakeFAU/product-extractor/internal/artifacts"
	"github.com/JakeFAU/product-extractor/internal/catalog"
	"github.com/JakeFAU/product-extractor/internal/config"
	"github.com/JakeFAU/product-extractor/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/product-extractor/internal/fetcher/colly"
	"github.com/JakeFAU/product-extractor/internal/fetcher/headless"
	"github.com/JakeFAU/product-extractor/internal/manifest"
	"github.com/JakeFAU/product-extractor/internal/pipeline"
	"github.com/JakeFAU/product-extractor/internal/policy/ratelimit"
	"github.com/JakeFAU/product-extractor/internal/publisher"
	amqppublisher "github.com/JakeFAU/product-extractor/internal/publisher/amqp"
	gcppublisher "github.com/JakeFAU/product-extractor/internal/publisher/pubsub"
	"github.com/JakeFAU/product-extractor/internal/queue"
	queuememory "github.com/JakeFAU/product-extractor/internal/queue/memory"
	"github.com/JakeFAU/product-extractor/internal/retry"
	blobstorage "github.com/JakeFAU/product-extractor/internal/storage"
	gcsstorage "github.com/JakeFAU/product-extractor/internal/storage/gcs"
	localstorage "github.com/JakeFAU/product-extractor/internal/storage/local"
	pgstore "github.com/JakeFAU/product-extractor/internal/storage/postgres"
	redisstore "github.com/JakeFAU/product-extractor/internal/storage/redis"
)

// ErrNoTaskStore is returned by RunQueue when no database is reachable.
var ErrNoTaskStore = errors.New("task store unavailable: set db.dsn to a reachable database")

// RunOptions override the queue section for a single run. Zero values keep
// the configured ones.
type RunOptions struct {
	BatchSize  int
	MaxBatches int
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	controller *pipeline.Controller
	tasks      queue.TaskStore

	pool        *pgxpool.Pool
	renderer    *headless.Chromedp
	gcsClient   *storage.Client
	redisClient *goredis.Client
	manifest    *manifest.Writer
	notifier    interface{ Close() error }
}

// Build creates the application's dependencies. Missing optional backends
// (database, Redis, headless browser) are logged and degraded rather than
// treated as fatal.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	a.logger.Info("building application dependencies")

	policy := a.retryPolicy()
	writer, err := a.setupDatabase(ctx, policy)
	if err != nil {
		a.Close()
		return nil, err
	}

	blobs, err := a.setupArtifacts(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	recorder, err := a.setupRecorders(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	fetch := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	a.logger.Info("using colly fetcher", zap.String("user_agent", cfg.Crawler.UserAgent))

	var artifactWriter *artifacts.Writer
	if blobs != nil {
		artifactWriter = artifacts.NewWriter(blobs)
	}

	a.controller, err = pipeline.NewController(cfg.Pipeline(), pipeline.Deps{
		Fetcher:    fetch,
		Renderer:   a.setupRenderer(),
		Discoverer: apidiscovery.NewClient(fetch, policy, cfg.APITimeout(), logger),
		Writer:     writer,
		Gates: ratelimit.NewGates(ratelimit.GatesConfig{
			Global:    cfg.Crawler.GlobalConcurrency,
			PerDomain: cfg.Crawler.PerDomainLimit,
			Heavy:     cfg.Crawler.HeavyConcurrency,
			DomainRPS: cfg.Crawler.DomainRPS,
		}),
		Artifacts: artifactWriter,
		Recorder:  recorder,
		Logger:    logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}
	return a, nil
}

func (a *App) retryPolicy() *retry.Policy {
	initial, maxDelay := a.cfg.Backoff()
	return retry.New(a.cfg.HTTP.MaxAttempts, initial, maxDelay)
}

func (a *App) setupDatabase(ctx context.Context, policy *retry.Policy) (*catalog.Writer, error) {
	pool, err := pgstore.Connect(ctx, pgstore.Config{
		DSN:      a.cfg.DB.DSN,
		MaxConns: a.cfg.DB.MaxConns,
		MinConns: a.cfg.DB.MinConns,
	})
	if err != nil {
		if !errors.Is(err, pgstore.ErrUnavailable) {
			return nil, fmt.Errorf("database init failed: %w", err)
		}
		a.logger.Warn("database unavailable, products will not be saved", zap.Error(err))
		return catalog.NewWriter(nil, a.logger), nil
	}
	a.pool = pool

	tasks, err := pgstore.NewTaskStore(pool, a.cfg.DB.TasksTable)
	if err != nil {
		return nil, fmt.Errorf("task store init failed: %w", err)
	}
	a.tasks = tasks
	products, err := pgstore.NewProductStore(pool, a.cfg.DB.ProductsTable, policy, a.logger)
	if err != nil {
		return nil, fmt.Errorf("product store init failed: %w", err)
	}
	a.logger.Info("database connected",
		zap.String("tasks_table", a.cfg.DB.TasksTable),
		zap.String("products_table", a.cfg.DB.ProductsTable),
	)

	var opts []catalog.Option
	if a.cfg.Redis.Addr != "" {
		client, err := redisstore.Dial(ctx, redisstore.Config{Addr: a.cfg.Redis.Addr})
		if err != nil {
			a.logger.Warn("redis unavailable, cross-worker dedup disabled", zap.Error(err))
		} else {
			a.redisClient = client
			opts = append(opts, catalog.WithSeenSet(redisstore.NewSeenSet(client, a.cfg.SeenTTL())))
			a.logger.Info("redis seen-set enabled", zap.String("addr", a.cfg.Redis.Addr))
		}
	}
	return catalog.NewWriter(products, a.logger, opts...), nil
}

func (a *App) setupArtifacts(ctx context.Context) (blobstorage.BlobStore, error) {
	if !a.cfg.Output.SaveFiles {
		return nil, nil
	}
	if a.cfg.Output.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		store, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.Output.GCSBucket,
			Prefix: a.cfg.Output.GCSPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("saving artifacts to GCS", zap.String("bucket", a.cfg.Output.GCSBucket))
		return store, nil
	}
	store, err := localstorage.New(localstorage.Config{Dir: a.cfg.Output.Dir})
	if err != nil {
		return nil, fmt.Errorf("local blob store init failed: %w", err)
	}
	a.logger.Info("saving artifacts to disk", zap.String("dir", store.Dir()))
	return store, nil
}

func (a *App) setupRecorders(ctx context.Context) (pipeline.Recorder, error) {
	var recorders pipeline.Recorders
	if a.cfg.Output.SaveFiles && a.cfg.Output.Dir != "" {
		m, err := manifest.Open(a.cfg.Output.Dir, a.cfg.Output.ManifestName)
		if err != nil {
			return nil, fmt.Errorf("manifest init failed: %w", err)
		}
		a.manifest = m
		recorders = append(recorders, m)
	}

	var pub publisher.Publisher
	switch a.cfg.Notify.Kind {
	case config.NotifyLog:
		pub = publisher.NewLogPublisher(a.logger)
	case config.NotifyPubSub:
		p, err := gcppublisher.Dial(ctx, gcppublisher.Config{
			ProjectID: a.cfg.Notify.ProjectID,
			Topic:     a.cfg.Notify.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.notifier = p
		pub = p
	case config.NotifyAMQP:
		p, err := amqppublisher.Dial(amqppublisher.Config{
			URL:        a.cfg.Notify.AMQPURL,
			Exchange:   a.cfg.Notify.Exchange,
			RoutingKey: a.cfg.Notify.RoutingKey,
		})
		if err != nil {
			return nil, fmt.Errorf("amqp publisher init failed: %w", err)
		}
		a.notifier = p
		pub = p
	}
	if pub != nil {
		recorders = append(recorders, publisher.NewNotifier(pub, a.logger))
		a.logger.Info("outcome notifications enabled", zap.String("kind", a.cfg.Notify.Kind))
	}

	if len(recorders) == 0 {
		return nil, nil
	}
	return recorders, nil
}

func (a *App) setupRenderer() pipeline.Renderer {
	if !a.cfg.Headless.Enabled {
		a.logger.Info("headless rendering disabled")
		return headless.NewNoop()
	}
	r, err := headless.NewChromedp(headless.Config{UserAgent: a.cfg.Crawler.UserAgent})
	if err != nil {
		a.logger.Warn("headless renderer init failed", zap.Error(err))
		return headless.NewNoop()
	}
	a.renderer = r
	a.logger.Info("using headless renderer", zap.Int("heavy_concurrency", a.cfg.Crawler.HeavyConcurrency))
	return r
}

// RunQueue claims batches from the task table until it drains, the batch
// limit is hit or ctx ends.
func (a *App) RunQueue(ctx context.Context, opts RunOptions) (dispatcher.Summary, error) {
	if a.tasks == nil {
		return dispatcher.Summary{}, ErrNoTaskStore
	}
	coord := queue.NewCoordinator(a.tasks, a.cfg.Queue.WorkerID, a.logger,
		queue.WithStaleAfter(a.cfg.StaleAfter()))

	stopAdmin := a.startAdmin(coord)
	defer stopAdmin()

	return a.dispatch(ctx, coord, opts)
}

// Crawl runs urls through the pipeline without the task table.
func (a *App) Crawl(ctx context.Context, urls []string) (dispatcher.Summary, error) {
	store := queuememory.NewStore()
	for _, u := range urls {
		store.Add(u, nil)
	}
	coord := queue.NewCoordinator(store, a.cfg.Queue.WorkerID, a.logger)
	return a.dispatch(ctx, coord, RunOptions{})
}

func (a *App) dispatch(ctx context.Context, coord *queue.Coordinator, opts RunOptions) (dispatcher.Summary, error) {
	dcfg := dispatcher.Config{
		BatchSize:  a.cfg.Queue.BatchSize,
		MaxBatches: a.cfg.Queue.MaxBatches,
		Pause:      a.cfg.BatchPause(),
	}
	if opts.BatchSize > 0 {
		dcfg.BatchSize = opts.BatchSize
	}
	if opts.MaxBatches > 0 {
		dcfg.MaxBatches = opts.MaxBatches
	}
	sum, err := dispatcher.New(coord, a.controller, dcfg, a.logger).Run(ctx)
	if err != nil {
		return sum, fmt.Errorf("run dispatcher: %w", err)
	}
	return sum, nil
}

// startAdmin serves the admin API when admin.port is set and returns a
// function that shuts it down.
func (a *App) startAdmin(coord *queue.Coordinator) func() {
	if a.cfg.Admin.Port == 0 {
		return func() {}
	}
	server := api.NewServer(coord, coord, api.Config{APIKey: a.cfg.Admin.APIKey}, a.logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Admin.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("admin server started", zap.Int("port", a.cfg.Admin.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("admin server error", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("admin server shutdown error", zap.Error(err))
		}
	}
}

// Close releases every backend Build opened. It is safe on a partially
// built App.
func (a *App) Close() {
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.manifest != nil {
		if err := a.manifest.Close(); err != nil {
			a.logger.Warn("manifest close failed", zap.Error(err))
		}
	}
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.logger.Warn("notifier close failed", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	a.logger.Info("shutdown complete")
}
