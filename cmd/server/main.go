package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tokbox/tokbox/internal/api"
	"github.com/tokbox/tokbox/internal/api/handler"
	"github.com/tokbox/tokbox/internal/auth"
	"github.com/tokbox/tokbox/internal/config"
	"github.com/tokbox/tokbox/internal/domain"
	"github.com/tokbox/tokbox/internal/downloader"
	"github.com/tokbox/tokbox/internal/mood"
	"github.com/tokbox/tokbox/internal/quota"
	"github.com/tokbox/tokbox/internal/repository"
	"github.com/tokbox/tokbox/internal/service"
	"github.com/tokbox/tokbox/internal/storage"
	"github.com/tokbox/tokbox/internal/worker"
	"github.com/tokbox/tokbox/pkg/crypto"
	"github.com/tokbox/tokbox/pkg/framesvc"
	"github.com/tokbox/tokbox/pkg/grok"
	"github.com/tokbox/tokbox/pkg/openai"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tokbox %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting tokbox",
		"version", Version,
		"build_time", BuildTime,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	db, err := repository.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	events := service.NewEventService(cfg.Events, db, logger)
	defer events.Close()

	store, fsStore, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeStore()

	validator, err := auth.NewValidator(auth.Config{
		SigningSecret: []byte(cfg.Auth.JWTSecret),
		Issuer:        cfg.Auth.Issuer,
		CookieName:    cfg.Auth.CookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}

	analyses := repository.NewSQLAnalysisRepository(db)
	profiles := repository.NewSQLProfileRepository(db)
	moods := mood.Default()

	gateway := quota.NewGateway(analyses, cfg.Quota.AllowOnCheckFailure, logger, quota.WithEvents(events))
	uploadSvc := service.NewUploadService(store, cfg.Storage, logger)

	analysisSvc := service.NewAnalysisService(service.AnalysisDeps{
		Quota:    gateway,
		Frames:   framesvc.NewClient(cfg.Frames),
		Uploader: uploadSvc,
		Store:    store,
		Fetcher:  downloader.NewHTTPFetcher(cfg.Fetch, logger),
		Analyzer: openai.NewClient(cfg.OpenAI),
		Writer:   grok.NewClient(cfg.Grok),
		Recorder: analyses,
		Moods:    moods,
		Events:   events,
	}, logger)

	handlers := api.Handlers{
		Analyze: handler.NewAnalyzeHandler(analysisSvc, cfg.Storage.MaxVideoSize, logger),
		Upload:  handler.NewUploadHandler(uploadSvc, logger),
		Account: handler.NewAccountHandler(
			service.NewUsageService(gateway, logger),
			service.NewHistoryService(analyses, logger),
			logger,
		),
		Moods:  handler.NewMoodHandler(moods),
		Health: handler.NewHealthHandler(db, service.NewStatsService(analyses, events, cfg.Storage.BasePath), logger),
		Events: handler.NewEventHandler(events, logger),
	}
	if fsStore != nil {
		handlers.Objects = handler.NewObjectHandler(fsStore, logger)
	}

	router := api.NewRouter(handlers, api.RouterConfig{
		OpsAPIKey:      cfg.Server.OpsAPIKey,
		AllowedOrigin:  cfg.Server.AllowedOrigin,
		RequestTimeout: cfg.Server.RequestTimeout,
		Sessions:       validator,
		Profiles:       profiles,
		IPHasher:       crypto.NewIPHasher(cfg.Quota.IPHashKey),
	}, logger)

	pool := worker.NewPool(maintenanceTasks(cfg, events, fsStore, logger), logger)
	pool.Start()

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr, "storage", cfg.Storage.Backend, "database", cfg.Database.Driver)
		events.EmitInfo(domain.EventCategorySystem, "server", "server started", domain.EventMetadata{"version": Version})
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		pool.Stop(5 * time.Second)
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := pool.Stop(10 * time.Second); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// openStore returns the configured object store. fsStore is non-nil only for
// the filesystem backend, which also needs the /uploads routes.
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, *storage.FilesystemStore, func(), error) {
	switch cfg.Backend {
	case "gcs":
		gcs, err := storage.NewGCSStore(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		return gcs, nil, func() { gcs.Close() }, nil
	default:
		fs, err := storage.NewFilesystemStore(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		return fs, fs, func() {}, nil
	}
}

func maintenanceTasks(cfg *config.Config, events *service.EventService, fsStore *storage.FilesystemStore, logger *slog.Logger) []worker.Task {
	var tasks []worker.Task

	if cfg.Events.Persist {
		tasks = append(tasks, worker.Task{
			Name:       "events-retention",
			Interval:   6 * time.Hour,
			Timeout:    time.Minute,
			RunAtStart: true,
			Run:        events.CleanupOldEvents,
		})
	}

	if fsStore != nil {
		tasks = append(tasks, worker.Task{
			Name:     "upload-temp-sweep",
			Interval: 30 * time.Minute,
			Run: func(context.Context) error {
				n, err := fsStore.SweepTemp(time.Hour)
				if n > 0 {
					logger.Info("removed stale partial uploads", "count", n)
				}
				return err
			},
		})
	}

	return tasks
}
