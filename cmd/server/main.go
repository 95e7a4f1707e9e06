package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/crm/internal/config"
	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/database"
	"github.com/JonMunkholm/crm/internal/export"
	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/i18n"
	"github.com/JonMunkholm/crm/internal/logging"
	"github.com/JonMunkholm/crm/internal/repository"
	"github.com/JonMunkholm/crm/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"export_max_prepared_per_user", cfg.Export.MaxPreparedPerUser,
		"import_max_file_size", cfg.Import.MaxFileSize,
		"require_auth", cfg.Security.RequireAuth,
	)

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database.URL); err != nil {
			slog.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	bundle, err := i18n.NewBundle(cfg.I18n.DefaultLocale)
	if err != nil {
		slog.Error("failed to load message catalogs", "error", err)
		os.Exit(1)
	}

	registry := field.DefaultRegistry()
	modules := core.Modules()
	slog.Info("modules registered", "count", len(modules), "field_types", len(registry.Types()))
	for _, m := range modules {
		slog.Debug("module", "key", m.Key, "table", m.Table, "export_type", m.ExportType)
	}
	repos := repository.New(pool)
	logs := core.NewOperationLogger(repos.Logs, registry, bundle)
	batches := core.NewBatchLimiter(cfg.Batch.MaxConcurrent, cfg.Batch.MaxWait)

	pipeline := export.NewPipeline(export.Config{
		BaseDir:            cfg.Export.BaseDir,
		PageSize:           cfg.Export.PageSize,
		SelectBatchSize:    cfg.Export.SelectBatchSize,
		MaxPreparedPerUser: cfg.Export.MaxPreparedPerUser,
	}, export.NewTaskStore(pool), export.NewSupervisor(), registry, bundle, logs)

	services := core.NewServices(core.Deps{
		DB:              pool,
		Tx:              database.NewTxRunner(pool),
		Repos:           repository.New,
		Registry:        registry,
		Forms:           core.NewFormProvider(repos.Forms, cfg.Cache.FormConfigSize, cfg.Cache.FormConfigTTL),
		Translator:      bundle,
		Logs:            logs,
		Exports:         pipeline,
		Batches:         batches,
		ImportBatchSize: cfg.Import.BatchSize,
	})

	server := web.NewServer(web.NewAPI(services, pipeline, pool.Ping), bundle, cfg)

	// Background jobs stop when jobCtx is cancelled
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go core.StartExportSweeper(jobCtx, pipeline, core.SweepConfig{
		StaleAfter: cfg.Export.StaleAfter,
		Interval:   cfg.Export.SweepInterval,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		if active := batches.Active(); active > 0 {
			slog.Info("waiting for batch operations", "active", active)
			if err := batches.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("batch operations did not complete in time", "error", err)
			}
		}

		status := pipeline.Supervisor().Status()
		if status.Active > 0 {
			slog.Info("waiting for exports to complete", "active", status.Active)
		}
		if err := pipeline.Shutdown(shutdownCtx); err != nil {
			slog.Warn("exports interrupted", "error", err)
		} else {
			slog.Info("all exports completed")
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		cancelJobs()
		return
	}
	<-done
}
