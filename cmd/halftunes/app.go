package main

import (
	"fmt"

	"github.com/vertextoedge/halftunes/internal/adapter/filesystem"
	"github.com/vertextoedge/halftunes/internal/adapter/httptransport"
	"github.com/vertextoedge/halftunes/internal/adapter/itunes"
	"github.com/vertextoedge/halftunes/internal/adapter/sqlite"
	"github.com/vertextoedge/halftunes/internal/config"
	"github.com/vertextoedge/halftunes/internal/domain/event"
	"github.com/vertextoedge/halftunes/internal/logger"
	"github.com/vertextoedge/halftunes/internal/port"
	"github.com/vertextoedge/halftunes/internal/service/catalog"
	"github.com/vertextoedge/halftunes/internal/service/downloader"
	"go.uber.org/zap"
)

// app holds the components shared by every command
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	storage    *filesystem.Manager
	store      *sqlite.Store
	transport  *httptransport.Transport
	dispatcher *event.InMemoryDispatcher
	metrics    *event.MetricsHandler
	manager    *downloader.Manager
	catalog    *catalog.Service
}

// newApp loads configuration, initializes logging and wires the
// download manager and catalog service. The caller must call close.
func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zapLogger := logger.GetZapLogger()

	fsManager, err := filesystem.NewManager(cfg.Storage.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem manager: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  zapLogger,
		storage: fsManager,
	}

	if cfg.Database.Path != "" {
		store, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
		}
		a.store = store
	} else {
		zapLogger.Info("search cache disabled")
	}

	a.transport = httptransport.New(&httptransport.Config{
		UserAgent:             cfg.Transport.UserAgent,
		ProgressInterval:      cfg.Transport.GetProgressInterval(),
		ResponseHeaderTimeout: cfg.Transport.GetResponseHeaderTimeout(),
		BufferSize:            cfg.Transport.GetBufferSize(),
	}, fsManager, zapLogger)

	a.metrics = event.NewMetricsHandler()
	a.dispatcher = event.NewQueuedDispatcher(cfg.Manager.EventBuffer, zapLogger)
	a.dispatcher.Subscribe(event.NewLoggingHandler(zapLogger.Named("transfers")))
	a.dispatcher.Subscribe(a.metrics)

	a.manager = downloader.New(&downloader.Config{
		RegistryShards: cfg.Manager.RegistryShards,
		EventShards:    cfg.Manager.EventShards,
		EventBuffer:    cfg.Manager.EventBuffer,
	}, a.transport, fsManager, a.dispatcher, zapLogger)

	client := itunes.NewClient(&itunes.Config{
		BaseURL:   cfg.Catalog.BaseURL,
		Timeout:   cfg.Catalog.GetTimeout(),
		UserAgent: cfg.Transport.UserAgent,
		Country:   cfg.Catalog.Country,
	}, zapLogger)

	a.catalog = catalog.New(&catalog.Config{
		Limit:    cfg.Catalog.Limit,
		CacheTTL: cfg.Catalog.GetCacheTTL(),
	}, client, a.searchCache(), zapLogger)

	return a, nil
}

// searchCache returns the store as a port.SearchCache, or a nil
// interface when the cache is disabled
func (a *app) searchCache() port.SearchCache {
	if a.store == nil {
		return nil
	}
	return a.store
}

// close flushes pending events and releases the transport and the
// database. The manager must have stopped first.
func (a *app) close() {
	a.dispatcher.Close()
	a.transport.Close()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close database", zap.Error(err))
		}
	}
	_ = logger.Sync()
}
