package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/vertextoedge/halftunes/internal/service/maintenance"
	"github.com/vertextoedge/halftunes/internal/service/server"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the download manager behind an HTTP API until interrupted.
Active downloads are cancelled on shutdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	a.logger.Info("starting halftunes",
		zap.String("version", version),
		zap.String("config", configPath),
	)

	maintenanceService := maintenance.New(&maintenance.Config{
		CleanupInterval: cfg.Maintenance.GetCleanupInterval(),
		TempFileMaxAge:  cfg.Storage.GetTempFileMaxAge(),
		SearchMaxAge:    cfg.Catalog.GetCacheTTL(),
	}, a.storage, a.searchCache(), a.manager, a.logger)

	httpServer := server.New(&server.Config{
		BindAddr:     cfg.HTTP.BindAddr,
		ReadTimeout:  cfg.HTTP.GetReadTimeout(),
		WriteTimeout: cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:  cfg.HTTP.GetIdleTimeout(),
	}, server.Dependencies{
		Transfers:   a.manager,
		Catalog:     a.catalog,
		Storage:     a.storage,
		SearchCache: a.searchCache(),
		Metrics:     a.metrics,
	}, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.manager.Run(ctx)
	})
	g.Go(func() error {
		return maintenanceService.Start(ctx)
	})
	g.Go(func() error {
		return httpServer.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutdown signal received, stopping services...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		a.catalog.Cancel()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			a.logger.Error("failed to stop HTTP server gracefully", zap.Error(err))
		}
		return nil
	})

	a.logger.Info("application started successfully",
		zap.String("http_addr", cfg.HTTP.BindAddr),
		zap.String("storage_dir", cfg.Storage.RootDir),
	)

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("application stopped successfully")
	return nil
}
