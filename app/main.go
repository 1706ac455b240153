package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/shelter-sync/app/api"
	"github.com/lysyi3m/shelter-sync/app/cache"
	"github.com/lysyi3m/shelter-sync/app/cfg"
	"github.com/lysyi3m/shelter-sync/app/ckan"
	"github.com/lysyi3m/shelter-sync/app/database"
	"github.com/lysyi3m/shelter-sync/app/metrics"
	"github.com/lysyi3m/shelter-sync/app/shelter"
	"github.com/lysyi3m/shelter-sync/app/tasks"
)

func main() {
	os.Exit(run())
}

func run() int {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if appCfg == nil {
		// Help was shown
		return 0
	}

	setupLogger(appCfg.Debug)

	slog.Info("Starting Shelter Sync", "version", appCfg.Version, "driver", appCfg.DBDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, appCfg.DBDriver, appCfg.DSN())
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		return 1
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return 1
	}
	slog.Debug("Database migrations applied", "version", version, "dirty", dirty)

	source, err := ckan.LoadSource(appCfg.SourceFile)
	if err != nil {
		slog.Error("Failed to load source configuration", "file", appCfg.SourceFile, "error", err)
		return 1
	}

	locationRepo := database.NewLocationRepository(db)
	programRepo := database.NewProgramRepository(db)
	metadataRepo := database.NewMetadataRepository(db)
	runRepo := database.NewRunRepository(db)

	recorder := metrics.NewRecorder()
	observers := []shelter.Observer{recorder}

	var responseCache api.ResponseCache
	if appCfg.RedisAddr != "" {
		redisCache, err := cache.NewCache(ctx, appCfg.RedisAddr, time.Duration(appCfg.CacheTTL)*time.Second)
		if err != nil {
			slog.Error("Failed to connect to response cache", "addr", appCfg.RedisAddr, "error", err)
			return 1
		}
		defer redisCache.Close()

		responseCache = redisCache
		observers = append(observers, redisCache)
	}

	pipeline := shelter.NewPipeline(
		ckan.NewClient(source, &http.Client{}, appCfg.UserAgent),
		shelter.NewResolver(locationRepo),
		shelter.NewBatchUpserter(programRepo, appCfg.BatchSize),
		shelter.NewReporter(metadataRepo, observers...),
		runRepo,
	)

	if appCfg.Once {
		if _, err := pipeline.Run(ctx); err != nil {
			return 1
		}
		return 0
	}

	scheduler := tasks.NewScheduler(pipeline, metadataRepo,
		time.Duration(appCfg.SchedulerInterval)*time.Second,
		time.Duration(appCfg.RefreshInterval)*time.Second,
		appCfg.WorkerCount)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(locationRepo, programRepo, metadataRepo, runRepo, scheduler, responseCache)
	server := api.NewServer(handler, appCfg.APIAccessKey, recorder.Handler())

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	return exitCode
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
