package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/iconidentify/grabba-media/internal/api"
	"github.com/iconidentify/grabba-media/internal/api/handler"
	"github.com/iconidentify/grabba-media/internal/config"
	"github.com/iconidentify/grabba-media/internal/connectivity"
	"github.com/iconidentify/grabba-media/internal/downloader"
	"github.com/iconidentify/grabba-media/internal/metrics"
	"github.com/iconidentify/grabba-media/internal/progress"
	"github.com/iconidentify/grabba-media/internal/repository"
	"github.com/iconidentify/grabba-media/internal/resume"
	"github.com/iconidentify/grabba-media/internal/service"
	"github.com/iconidentify/grabba-media/internal/worker"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	envFile := flag.String("env", "", "Path to .env file (default: .env if present)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("grabba-media %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting grabba-media",
		"version", Version,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Ensure the download directory exists
	if err := os.MkdirAll(cfg.Storage.RecentPath(), 0755); err != nil {
		logger.Error("failed to create download directory", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	bucket, err := openBucket(ctx, cfg.Storage)
	if err != nil {
		logger.Error("failed to open file bucket", "error", err)
		os.Exit(1)
	}
	defer bucket.Close()

	media, closeMedia, err := openCatalog(ctx, cfg.Catalog)
	if err != nil {
		logger.Error("failed to open media catalog", "error", err)
		os.Exit(1)
	}
	defer closeMedia()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Progress store and its janitor
	store := progress.NewMemoryStore()
	tracker := progress.NewTracker(store)
	janitor, err := progress.NewJanitor(store, cfg.Progress.TTL, cfg.Progress.SweepSchedule, logger)
	if err != nil {
		logger.Error("failed to schedule progress janitor", "error", err)
		os.Exit(1)
	}
	janitor.Start()

	// Resume controller
	prober := connectivity.NewHTTPProber(cfg.Probe, logger)
	dl := downloader.NewYTDLPDownloader(cfg.Download)
	dl.SetLogger(logger)

	controller := resume.NewController(prober, dl, tracker, resume.OptionsFromConfig(cfg.Download), logger)
	controller.SetRecorder(m)

	// Initialize worker pool
	pool := worker.NewPool(
		worker.Config{
			Workers:   cfg.Worker.Count,
			QueueSize: cfg.Worker.QueueSize,
		},
		logger,
	)
	pool.SetDepthReporter(m)
	pool.Start()

	// Initialize services
	jobRepo := repository.NewInMemoryJobRepository()
	downloadSvc := service.NewDownloadService(
		cfg.Storage,
		cfg.Download,
		controller,
		pool,
		tracker,
		jobRepo,
		media,
		logger,
	)
	downloadSvc.SetRecorder(m)

	// Initialize handlers
	downloadHandler := handler.NewDownloadHandler(downloadSvc, logger)
	fileHandler := handler.NewFileHandler(bucket, cfg.Storage.PublicPrefix, logger)
	healthHandler := handler.NewHealthHandler(downloadSvc, cfg.Storage.BasePath)

	// Setup router
	router := api.NewRouter(
		cfg.Server,
		downloadHandler,
		fileHandler,
		healthHandler,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	)

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Graceful shutdown. In-flight download requests hold their
	// connections until the job finishes or the deadline passes.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Download.Deadline+30*time.Second)
	defer cancel()

	// Stop accepting new requests
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := pool.Stop(25 * time.Second); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	janitor.Stop(shutdownCtx)

	logger.Info("shutdown complete")
}

// openBucket opens the bucket completed files are served from.
func openBucket(ctx context.Context, cfg config.StorageConfig) (*blob.Bucket, error) {
	if cfg.BucketURL != "" {
		return blob.OpenBucket(ctx, cfg.BucketURL)
	}
	return fileblob.OpenBucket(cfg.RecentPath(), nil)
}

// openCatalog opens the completed-media catalog for the configured driver.
func openCatalog(ctx context.Context, cfg config.CatalogConfig) (repository.MediaRepository, func(), error) {
	if cfg.Driver == "memory" {
		return repository.NewInMemoryMediaRepository(), func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
		return nil, nil, fmt.Errorf("create catalog directory: %w", err)
	}
	repo, err := repository.NewSQLiteMediaRepository(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	return repo, func() {
		if err := repo.Close(); err != nil {
			slog.Error("failed to close media catalog", "error", err)
		}
	}, nil
}
