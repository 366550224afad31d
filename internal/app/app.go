// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/jobrunner/hospigeo/internal/adapters/bleveindex"
	"github.com/jobrunner/hospigeo/internal/adapters/elasticsearch"
	httpAdapter "github.com/jobrunner/hospigeo/internal/adapters/http"
	"github.com/jobrunner/hospigeo/internal/adapters/metrics"
	"github.com/jobrunner/hospigeo/internal/adapters/mongodb"
	"github.com/jobrunner/hospigeo/internal/adapters/rediscache"
	"github.com/jobrunner/hospigeo/internal/adapters/sqlite"
	"github.com/jobrunner/hospigeo/internal/adapters/storage"
	tlsAdapter "github.com/jobrunner/hospigeo/internal/adapters/tls"
	"github.com/jobrunner/hospigeo/internal/adapters/watcher"
	"github.com/jobrunner/hospigeo/internal/application"
	"github.com/jobrunner/hospigeo/internal/config"
	"github.com/jobrunner/hospigeo/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Mongo    *mongodb.Client
	Engine   output.SearchEngine
	Cache    output.BoundaryCache
	Ledger   output.ReindexLedger
	Storage  output.DatasetStorage
	Metrics  *metrics.Collector
	Reindex  *application.ReindexService
	Spatial  *application.SpatialIndexService
	Resolver *application.ResolverService
	Repair   *application.RepairService
	Importer *application.DatasetImporter
	Sync     *application.SyncService
	Health   *application.HealthService

	HTTPServer *httpAdapter.Server
	TLS        *tlsAdapter.Manager
	Watcher    *watcher.Watcher

	// closers release backends in reverse order of acquisition.
	closers []func(context.Context) error
}

// New creates and initializes a new application. Backends that fail to
// connect abort initialization and release what was already acquired.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	defer func() {
		if err != nil {
			_ = app.close(context.WithoutCancel(ctx))
		}
	}()

	// Initialize metrics
	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector(cfg.Metrics.Namespace)
		metricsCollector = app.Metrics
	}

	if err := app.initBackends(ctx); err != nil {
		return nil, err
	}

	collections := application.BoundaryCollections{
		Prefix: cfg.Geo.CollectionPrefix,
		Search: cfg.Geo.SearchCollection,
	}
	boundaries := app.Mongo.Boundaries()

	// Search index lifecycle
	registry := application.NewIndexRegistry(app.Mongo.Source(), logger)
	loader := application.NewBulkLoader(app.Engine, cfg.Reindex.BatchSize, logger)
	app.Reindex = application.NewReindexService(
		registry,
		app.Engine,
		loader,
		application.NewStatusTracker(),
		app.Ledger,
		metricsCollector,
		cfg.Reindex.Timeout,
		logger,
	)

	// Boundary services
	app.Spatial = application.NewSpatialIndexService(boundaries, collections, logger)
	app.Repair = application.NewRepairService(
		boundaries,
		app.Cache,
		metricsCollector,
		collections,
		cfg.Geo.RepairBatchSize,
		cfg.Geo.RepairFlushSize,
		logger,
	)
	app.Resolver = application.NewResolverService(
		boundaries,
		app.Cache,
		metricsCollector,
		cfg.Geo.CollectionPrefix,
		cfg.Geo.CacheTTL,
		logger,
	)

	// Dataset import
	if cfg.Storage.StorageEnabled() {
		store, err := initStorage(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
		app.Storage = storage.NewInstrumented(store, metricsCollector)
		app.Importer = application.NewDatasetImporter(app.Storage, boundaries, app.Cache, app.Spatial, collections, logger)
		app.Sync = application.NewSyncService(app.Importer, cfg.Storage.SyncInterval, logger)
	}

	app.Health = application.NewHealthService(app.healthDeps())

	if app.TLS, err = tlsAdapter.NewManager(tlsAdapter.Config{
		Enabled:  cfg.TLS.Enabled,
		Domains:  cfg.TLS.Domains,
		Email:    cfg.TLS.Email,
		CacheDir: cfg.TLS.CacheDir,
		Staging:  cfg.TLS.Staging,
		DNS: tlsAdapter.DNSConfig{
			SubscriptionID:    cfg.TLS.DNS.SubscriptionID,
			ResourceGroupName: cfg.TLS.DNS.ResourceGroupName,
			ClientID:          cfg.TLS.DNS.ClientID,
		},
	}, logger); err != nil {
		return nil, fmt.Errorf("initializing TLS: %w", err)
	}

	app.HTTPServer = httpAdapter.NewServer(
		cfg.Server,
		app.services(),
		cfg.Metrics.Path,
		app.TLS.TLSConfig(),
		logger,
	)

	// Initialize file watcher for dataset hot-reload
	if cfg.Storage.Type == "local" && cfg.Storage.Watch {
		w, err := watcher.New(
			watcher.Config{
				Paths: []string{cfg.Storage.LocalPath},
				Match: storage.IsDataset,
			},
			app.handleFileEvent,
			logger,
		)
		if err != nil {
			logger.Warn("failed to initialize file watcher", "error", err)
		} else {
			app.Watcher = w
		}
	}

	return app, nil
}

// initBackends connects the document store, search engine, cache and ledger.
func (a *App) initBackends(ctx context.Context) error {
	cfg := a.Config

	client, err := mongodb.Connect(ctx, mongodb.Config{
		URI:            cfg.Mongo.URI,
		Database:       cfg.Mongo.Database,
		ConnectTimeout: cfg.Mongo.ConnectTimeout,
		BatchSize:      cfg.Mongo.BatchSize,
		Collections: mongodb.Collections{
			Hospitals:     cfg.Mongo.Collections.Hospitals,
			Pharmacies:    cfg.Mongo.Collections.Pharmacies,
			MapFeatures:   cfg.Mongo.Collections.MapFeatures,
			SigunguCoords: cfg.Mongo.Collections.SigunguCoords,
			Boundaries:    cfg.Geo.SearchCollection,
		},
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("initializing mongodb: %w", err)
	}
	a.Mongo = client
	a.closers = append(a.closers, client.Close)

	switch cfg.Search.Engine {
	case config.EngineBleve:
		engine, err := bleveindex.New(cfg.Search.Bleve.Path, a.Logger)
		if err != nil {
			return fmt.Errorf("initializing bleve: %w", err)
		}
		a.Engine = engine
		a.closers = append(a.closers, func(context.Context) error { return engine.Close() })
	default:
		engine, err := elasticsearch.New(elasticsearch.Config{
			Addresses: cfg.Search.Elasticsearch.Addresses,
			Username:  cfg.Search.Elasticsearch.Username,
			Password:  cfg.Search.Elasticsearch.Password,
			Shards:    cfg.Search.Elasticsearch.Shards,
			Replicas:  cfg.Search.Elasticsearch.Replicas,
			Tokenizer: cfg.Search.Elasticsearch.Tokenizer,
		}, a.Logger)
		if err != nil {
			return fmt.Errorf("initializing elasticsearch: %w", err)
		}
		a.Engine = engine
	}

	a.Cache = output.NoOpCache{}
	if cfg.Redis.Enabled {
		cache := rediscache.New(rediscache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := cache.Ping(ctx); err != nil {
			a.Logger.Warn("redis unreachable, lookups will miss until it recovers", "addr", cfg.Redis.Addr, "error", err)
		}
		a.Cache = cache
		a.closers = append(a.closers, func(context.Context) error { return cache.Close() })
	}

	a.Ledger = output.NoOpLedger{}
	if cfg.Ledger.Path != "" {
		ledger, err := sqlite.Open(ctx, cfg.Ledger.Path)
		if err != nil {
			return fmt.Errorf("initializing ledger: %w", err)
		}
		a.Ledger = ledger
		a.closers = append(a.closers, func(context.Context) error { return ledger.Close() })
	}

	return nil
}

func (a *App) healthDeps() map[string]application.Pinger {
	deps := map[string]application.Pinger{
		"mongodb": a.Mongo,
		"search":  a.Engine,
	}
	if p, ok := a.Cache.(application.Pinger); ok {
		deps["redis"] = p
	}
	if p, ok := a.Ledger.(application.Pinger); ok {
		deps["ledger"] = p
	}
	return deps
}

func (a *App) services() httpAdapter.Services {
	svc := httpAdapter.Services{
		Reindex:  a.Reindex,
		Spatial:  a.Spatial,
		Resolver: a.Resolver,
		Repair:   a.Repair,
		Health:   a.Health,
	}
	if a.Sync != nil {
		svc.Sync = a.Sync
	}
	if a.Metrics != nil {
		svc.Metrics = a.Metrics
	}
	return svc
}

// Start starts all application components and blocks while the HTTP server
// runs.
func (a *App) Start(ctx context.Context) error {
	if err := a.TLS.ManageCertificates(ctx); err != nil {
		return err
	}

	if a.Sync != nil {
		// Import datasets present at startup without delaying the server
		go func() {
			if _, err := a.Sync.SyncNow(ctx); err != nil {
				a.Logger.Warn("initial dataset sync failed", "error", err)
			}
		}()
		if a.Config.Storage.SyncInterval > 0 {
			a.Sync.Start(ctx)
		}
	}

	// Start file watcher
	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start file watcher", "error", err)
		}
	}

	return a.HTTPServer.Start()
}

// Shutdown gracefully shuts down all components. The context passed to
// Start must be cancelled first so background loops can exit.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	var errs []error

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}

	if a.Watcher != nil {
		if err := a.Watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("watcher: %w", err))
		}
	}

	if a.Sync != nil {
		a.Sync.Stop()
	}

	errs = append(errs, a.close(ctx))
	return errors.Join(errs...)
}

// Close releases backends without touching servers, for one-shot commands.
func (a *App) Close(ctx context.Context) error {
	return a.close(ctx)
}

func (a *App) close(ctx context.Context) error {
	var errs []error
	for _, closeFn := range slices.Backward(a.closers) {
		if err := closeFn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// handleFileEvent imports a changed dataset file or forgets a removed one.
func (a *App) handleFileEvent(ctx context.Context, event watcher.Event) error {
	key, err := datasetKey(a.Config.Storage.LocalPath, event.Path)
	if err != nil {
		return err
	}

	a.Logger.Info("dataset event", "key", key, "operation", event.Operation.String())

	switch event.Operation {
	case watcher.OpCreate, watcher.OpModify:
		if _, err := a.Importer.Import(ctx, key); err != nil {
			return fmt.Errorf("importing %s: %w", key, err)
		}
	case watcher.OpDelete:
		// Imported boundaries stay; a re-added file imports again
		a.Importer.Forget(key)
	}
	return nil
}

// datasetKey converts a watched file path into its storage key.
func datasetKey(base, path string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%s is outside %s", path, base)
	}
	return filepath.ToSlash(rel), nil
}

// initStorage initializes the dataset storage adapter.
func initStorage(ctx context.Context, cfg config.StorageConfig) (output.DatasetStorage, error) {
	switch cfg.Type {
	case "local":
		return storage.NewLocalStorage(cfg.LocalPath), nil

	case "s3":
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	case "azure":
		return storage.NewAzureStorage(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	case "http":
		return storage.NewHTTPStorage(storage.HTTPConfig{
			BaseURL:   cfg.HTTP.BaseURL,
			IndexFile: cfg.HTTP.IndexFile,
			Timeout:   cfg.HTTP.Timeout,
			Username:  cfg.HTTP.Username,
			Password:  cfg.HTTP.Password,
		}), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
