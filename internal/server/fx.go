// Package server builds the application's dependencies from configuration
// and runs them until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/linkloader/internal/api"
	"github.com/JakeFAU/linkloader/internal/canonical"
	"github.com/JakeFAU/linkloader/internal/clock/system"
	"github.com/JakeFAU/linkloader/internal/config"
	"github.com/JakeFAU/linkloader/internal/extract"
	"github.com/JakeFAU/linkloader/internal/fetch"
	"github.com/JakeFAU/linkloader/internal/id/uuid"
	"github.com/JakeFAU/linkloader/internal/lifecycle"
	"github.com/JakeFAU/linkloader/internal/logging"
	"github.com/JakeFAU/linkloader/internal/media"
	"github.com/JakeFAU/linkloader/internal/metrics"
	"github.com/JakeFAU/linkloader/internal/policy/ratelimit"
	"github.com/JakeFAU/linkloader/internal/pool"
	"github.com/JakeFAU/linkloader/internal/preferences"
	memorypublisher "github.com/JakeFAU/linkloader/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/linkloader/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/linkloader/internal/storage/gcs"
	localstorage "github.com/JakeFAU/linkloader/internal/storage/local"
	memorystorage "github.com/JakeFAU/linkloader/internal/storage/memory"
	pgstore "github.com/JakeFAU/linkloader/internal/storage/postgres"
	redisstore "github.com/JakeFAU/linkloader/internal/storage/redis"
	"github.com/JakeFAU/linkloader/internal/transport/artifact"
)

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	apiServer *api.Server
	manager   *lifecycle.Manager
	pool      *pool.Pool

	storage         *storage.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	pgCache         *pgstore.CacheStore
	redisCache      *redisstore.CacheStore
	checks          map[string]api.ReadinessCheck
}

// Handler exposes the HTTP router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Manager exposes the lifecycle manager for callers that feed links directly.
func (a *App) Manager() *lifecycle.Manager {
	return a.manager
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return build(ctx, cfg, logger)
}

func build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (app *App, err error) {
	metrics.Init()
	app = &App{cfg: cfg, logger: logger, checks: map[string]api.ReadinessCheck{}}
	defer func() {
		if err != nil {
			app.closeInfrastructure()
		}
	}()
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("blob_backend", cfg.Blob.Backend),
		zap.String("preferences_backend", cfg.Preferences.Backend),
		zap.String("events_backend", cfg.Events.Backend),
	)

	clock := system.New()
	ids := uuid.NewUUIDGenerator()

	if cfg.NeedsGCS() {
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
	}

	cache, err := setupCache(ctx, app, clock)
	if err != nil {
		return nil, err
	}
	prefs, err := setupPreferences(app)
	if err != nil {
		return nil, err
	}
	blobs, err := setupBlobStore(app)
	if err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	transport, err := artifact.New(blobs, ids, clock, logger.Named("transport"))
	if err != nil {
		return nil, fmt.Errorf("transport init failed: %w", err)
	}

	canon := canonical.New(canonical.Config{
		ProbeTimeout: cfg.Canonical.ProbeTimeout,
		UserAgent:    cfg.Canonical.UserAgent,
	}, nil, logger.Named("canonical"))

	app.pool = pool.New(pool.Config{
		Workers:    cfg.Pool.Workers,
		QueueSize:  cfg.Pool.QueueSize,
		JobTimeout: cfg.Pool.JobTimeout,
	}, logger.Named("pool"))
	runner := extract.NewRunner(extractCommands(cfg.Extract), cfg.Extract.Timeout, logger.Named("extract"))
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.RateLimit.DefaultRPS,
		DefaultBurst: cfg.RateLimit.DefaultBurst,
		HostRPS:      cfg.RateLimit.HostRPS(),
	})
	orchestrator := fetch.New(runner, app.pool, limiter, ids, logger.Named("fetch"))

	requests := memorystorage.NewRequestStore()
	app.manager, err = lifecycle.New(lifecycle.Config{
		BaseDir:        cfg.Workspace.BaseDir,
		CleanupGrace:   cfg.Workspace.CleanupGrace,
		OperatorChatID: cfg.Operator.ChatID,
		EventTopic:     cfg.Events.TopicName,
	}, lifecycle.Deps{
		Canonicalizer: canon,
		Cache:         cache,
		Preferences:   prefs,
		Fetcher:       orchestrator,
		Transport:     transport,
		Publisher:     publisher,
		Requests:      requests,
		Clock:         clock,
		Logger:        logger.Named("lifecycle"),
	})
	if err != nil {
		return nil, fmt.Errorf("lifecycle init failed: %w", err)
	}

	apiKey := ""
	if cfg.Auth.Enabled {
		apiKey = cfg.Auth.APIKey
	}
	app.apiServer, err = api.NewServer(api.Config{
		APIKey:         apiKey,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, api.Deps{
		Links:       canon,
		Jobs:        app.manager,
		Requests:    requests,
		Preferences: prefs,
		IDs:         ids,
		Clock:       clock,
		Checks:      app.checks,
		Logger:      logger.Named("api"),
	})
	if err != nil {
		return nil, fmt.Errorf("api init failed: %w", err)
	}
	return app, nil
}

// Run starts the application and blocks until the context is canceled or a
// component fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.pool.Start()
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer cancel()
		return a.shutdown(shutdownCtx, srv)
	})

	err := g.Wait()
	a.closeInfrastructure()
	if syncErr := a.logger.Sync(); syncErr != nil {
		a.logger.Debug("logger sync failed", zap.Error(syncErr))
	}
	a.logger.Info("shutdown complete")
	return err
}

// shutdown stops intake first, then lets accepted links finish before the
// pool is drained.
func (a *App) shutdown(ctx context.Context, srv *http.Server) error {
	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.apiServer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	a.pool.Close()
	return errors.Join(errs...)
}

// Close releases everything Build opened without running the server.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	a.closeInfrastructure()
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 30 * time.Second
}

func (a *App) closeInfrastructure() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
		a.pubsubPublisher = nil
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsubClient = nil
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.storage = nil
	}
	if a.pgCache != nil {
		a.pgCache.Close()
		a.pgCache = nil
	}
	if a.redisCache != nil {
		if err := a.redisCache.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
		a.redisCache = nil
	}
}

func setupCache(ctx context.Context, app *App, clock media.Clock) (media.CacheStore, error) {
	cfg := app.cfg.Cache
	switch cfg.Backend {
	case config.BackendPostgres:
		store, err := pgstore.NewCacheStore(ctx, pgstore.Config{
			DSN:             cfg.Postgres.DSN,
			Table:           cfg.Postgres.Table,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			Retention:       cfg.Retention,
		}, clock)
		if err != nil {
			return nil, fmt.Errorf("postgres cache init failed: %w", err)
		}
		app.pgCache = store
		if cfg.Postgres.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("postgres cache schema: %w", err)
			}
		}
		app.logger.Info("using postgres cache", zap.String("table", cfg.Postgres.Table))
		return store, nil
	case config.BackendRedis:
		rcfg := redisstore.Config{
			Addr:      cfg.Redis.Addr,
			Username:  cfg.Redis.Username,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Retention: cfg.Retention,
		}
		client, err := redisstore.NewClient(ctx, rcfg)
		if err != nil {
			return nil, fmt.Errorf("redis cache init failed: %w", err)
		}
		store, err := redisstore.NewCacheStore(client, rcfg, clock)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis cache init failed: %w", err)
		}
		app.redisCache = store
		app.checks["redis"] = pingCheck(client)
		app.logger.Info("using redis cache", zap.String("addr", cfg.Redis.Addr))
		return store, nil
	default:
		app.logger.Info("using in-memory cache")
		return memorystorage.NewCacheStore(clock, cfg.Retention), nil
	}
}

func setupPreferences(app *App) (*preferences.Store, error) {
	cfg := app.cfg.Preferences
	logger := app.logger.Named("preferences")
	if cfg.Backend == config.BackendGCS {
		doc, err := gcsstorage.NewDocument(app.storage, cfg.GCSBucket, cfg.GCSObject)
		if err != nil {
			return nil, fmt.Errorf("gcs preference document init failed: %w", err)
		}
		app.logger.Info("using gcs preferences",
			zap.String("bucket", cfg.GCSBucket), zap.String("object", cfg.GCSObject))
		return preferences.NewStore(doc, logger), nil
	}
	app.logger.Info("using file preferences", zap.String("path", cfg.Path))
	return preferences.NewStore(preferences.NewFileDocument(cfg.Path), logger), nil
}

func setupBlobStore(app *App) (media.BlobStore, error) {
	cfg := app.cfg.Blob
	switch cfg.Backend {
	case config.BackendGCS:
		store, err := gcsstorage.New(app.storage, gcsstorage.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("using gcs blob store", zap.String("bucket", cfg.GCSBucket))
		return store, nil
	case config.BackendLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local blob store", zap.String("path", cfg.LocalDir))
		return store, nil
	default:
		app.logger.Info("using in-memory blob store")
		return memorystorage.NewBlobStore(), nil
	}
}

func setupPublisher(ctx context.Context, app *App) (media.Publisher, error) {
	cfg := app.cfg.Events
	if cfg.Backend != config.BackendPubSub {
		app.logger.Info("using in-memory event publisher")
		return memorypublisher.New(), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = app.pubsubClient.Publisher(cfg.TopicName)
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", cfg.ProjectID),
		zap.String("topic", cfg.TopicName),
	)
	return gcppublisher.New(app.pubsubPublisher), nil
}

func extractCommands(cfg config.ExtractConfig) map[media.JobKind]extract.Command {
	out := make(map[media.JobKind]extract.Command, len(cfg.Commands))
	for mode, c := range cfg.Commands {
		out[media.JobKind(mode)] = extract.Command{Binary: c.Binary, Args: append([]string(nil), c.Args...)}
	}
	return out
}

func pingCheck(client goredis.UniversalClient) api.ReadinessCheck {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		return nil
	}
}
