// Package app wires the gateway together: deployment, dispatch, the
// connection router, cluster sync, metrics and the HTTP surfaces.
package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mediation-router/internal/apitable"
	"mediation-router/internal/circuitbreaker"
	"mediation-router/internal/clustersync"
	"mediation-router/internal/common/errors"
	"mediation-router/internal/common/logging"
	"mediation-router/internal/common/utils"
	"mediation-router/internal/config"
	"mediation-router/internal/connpool"
	"mediation-router/internal/deployer"
	"mediation-router/internal/handlers"
	"mediation-router/internal/metrics"
	"mediation-router/internal/proxy"
	"mediation-router/internal/redis"
	"mediation-router/internal/routing"
)

// App holds all the application dependencies
type App struct {
	Config    *config.Config
	Logger    logging.Logger
	Metrics   *metrics.Metrics
	Table     *apitable.Table
	Deployer  *deployer.Deployer
	Engine    *routing.Engine
	Pool      *connpool.Pool
	Breakers  *circuitbreaker.Manager
	Connector *connpool.Connector
	Handlers  *handlers.Handlers

	RedisClient *redis.Client
	Syncer      *clustersync.Syncer

	watcher   *deployer.Watcher
	scheduler *cron.Cron
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a new application instance with all dependencies. Nothing runs
// until Start.
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config:  cfg,
		Logger:  logging.GetGlobalLogger().WithFields(logging.String("component", "app")),
		Metrics: metrics.New(cfg.MetricsEnabled),
	}

	app.Table = apitable.New(app.Logger)
	app.Deployer = deployer.New(app.Table, app.Logger, deployer.WithObserver(app.Metrics))

	engine, err := routing.NewEngine(app.Table,
		routing.WithObserver(app.Metrics),
		routing.WithLogger(app.Logger),
	)
	if err != nil {
		return nil, err
	}
	app.Engine = engine

	app.initializePool()

	app.Handlers = handlers.New(app.Engine, app.Deployer, app.Pool, app.Breakers, app.mediator(), app.Logger)
	return app, nil
}

func (app *App) initializePool() {
	cfg := app.Config
	app.Pool = connpool.New(connpool.Config{
		MaxPerRoute: cfg.PoolMaxPerRoute,
		IdleTimeout: cfg.PoolIdleTimeout,
		MaxLifetime: cfg.PoolMaxLifetime,
		StaleProbe:  connpool.DefaultConfig().StaleProbe,
	}, app.Logger, connpool.WithObserver(app.Metrics))

	app.Breakers = circuitbreaker.NewManager(circuitbreaker.DefaultConfig(), app.Logger)
	app.Connector = connpool.NewConnector(app.Pool, app.Breakers, cfg.PoolConnectTimeout, app.Logger)

	app.Metrics.RegisterPool(app.Pool)
	app.Metrics.RegisterBreakers(app.Breakers)

	app.Logger.Info("Connection router ready",
		logging.Int("max_per_route", app.Pool.MaxPerRoute()),
		logging.Duration("idle_timeout", cfg.PoolIdleTimeout),
		logging.Duration("connect_timeout", cfg.PoolConnectTimeout),
	)
}

// mediator forwards resources that name an endpoint and echoes the rest
func (app *App) mediator() handlers.Mediator {
	forwarder := proxy.NewForwarder(app.Connector, app.Config.UpstreamTimeout, app.Logger)
	echo := handlers.EchoMediator{}
	return handlers.MediatorFunc(func(w http.ResponseWriter, r *http.Request, res *routing.Resolution) error {
		if res.Resource.Endpoint == "" {
			return echo.Mediate(w, r, res)
		}
		return forwarder.Mediate(w, r, res)
	})
}

// Start deploys the definitions directory and starts the background work:
// the directory watcher, cluster sync and idle eviction.
func (app *App) Start(ctx context.Context) error {
	ctx, app.cancel = context.WithCancel(ctx)

	app.loadDefinitions()

	if err := app.initializeClusterSync(ctx); err != nil {
		return err
	}

	if err := app.startScheduler(); err != nil {
		return err
	}
	return nil
}

func (app *App) loadDefinitions() {
	dir := app.Config.DefinitionsDir
	result, err := app.Deployer.LoadDir(dir)
	if err != nil {
		app.Logger.Warn("API definitions directory not loaded, starting without file deployments",
			logging.String("dir", dir),
			logging.Err(err),
		)
		return
	}
	for file, ferr := range result.Failed {
		app.Logger.Error("API definition rejected", ferr, logging.String("file", file))
	}

	if !app.Config.AutoReload {
		return
	}
	app.watcher = deployer.NewWatcher(app.Deployer, dir, app.Config.ReloadDebounce, app.Logger)
	if err := app.watcher.Start(); err != nil {
		app.Logger.Warn("Auto reload disabled", logging.Err(err))
		app.watcher = nil
	}
}

func (app *App) initializeClusterSync(ctx context.Context) error {
	cfg := app.Config
	if !cfg.ClusterSyncEnabled {
		app.Logger.Info("Cluster sync: Not configured")
		return nil
	}

	client, err := redis.NewClient(&redis.Config{
		Address:  cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return err
	}
	app.RedisClient = client
	app.Handlers.AddHealthCheck("redis", client.Health)

	app.Syncer = clustersync.New(client, app.Deployer, cfg.NodeID, cfg.ClusterSyncChannel, app.Logger)
	app.Deployer.SetNotifier(app.Syncer)

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.runClusterSync(ctx)
	}()

	select {
	case <-app.Syncer.Ready():
	case <-time.After(5 * time.Second):
		app.Logger.Warn("Cluster sync subscription not confirmed, bootstrapping anyway")
	}

	if _, err := app.Syncer.Bootstrap(ctx); err != nil {
		app.Logger.Warn("Cluster bootstrap failed", logging.Err(err))
	}

	app.Logger.Info("Cluster sync: Enabled",
		logging.String("address", cfg.RedisAddress),
		logging.String("channel", cfg.ClusterSyncChannel),
		logging.String("node", cfg.NodeID),
	)
	return nil
}

// runClusterSync keeps the subscription alive, backing off while Redis is unreachable
func (app *App) runClusterSync(ctx context.Context) {
	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = 0
	retry.RetryableErrors = errors.IsRetryable
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		app.Logger.Warn("Cluster sync disconnected, retrying",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Err(err),
		)
	}

	err := utils.RetryWithBackoff(ctx, retry, func() error {
		return app.Syncer.Run(ctx)
	})
	if err != nil && ctx.Err() == nil {
		app.Logger.Error("Cluster sync stopped", err)
	}
}

func (app *App) startScheduler() error {
	app.scheduler = cron.New()
	_, err := app.scheduler.AddFunc(app.Config.PoolEvictSchedule, func() {
		if evicted := app.Pool.EvictIdle(); evicted > 0 {
			app.Logger.Debug("Evicted idle connections", logging.Int("count", evicted))
		}
	})
	if err != nil {
		return err
	}
	app.scheduler.Start()
	return nil
}

// Shutdown stops the background work and closes every pooled connection
func (app *App) Shutdown(ctx context.Context) error {
	if app.cancel != nil {
		app.cancel()
	}
	if app.scheduler != nil {
		<-app.scheduler.Stop().Done()
	}
	if app.watcher != nil {
		if err := app.watcher.Close(); err != nil {
			app.Logger.Warn("Error stopping definitions watcher", logging.Err(err))
		}
	}

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		app.Logger.Warn("Background work did not stop in time")
	}

	return app.Pool.Close()
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
}
