package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/convertarr/internal/config"
	"github.com/jmylchreest/convertarr/internal/convert"
	"github.com/jmylchreest/convertarr/internal/database"
	"github.com/jmylchreest/convertarr/internal/ffmpeg"
	internalhttp "github.com/jmylchreest/convertarr/internal/http"
	"github.com/jmylchreest/convertarr/internal/http/handlers"
	"github.com/jmylchreest/convertarr/internal/metrics"
	"github.com/jmylchreest/convertarr/internal/observability"
	"github.com/jmylchreest/convertarr/internal/progress"
	"github.com/jmylchreest/convertarr/internal/repository"
	"github.com/jmylchreest/convertarr/internal/scheduler"
	"github.com/jmylchreest/convertarr/internal/startup"
	"github.com/jmylchreest/convertarr/internal/storage"
	"github.com/jmylchreest/convertarr/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the convertarr server",
	Long: `Start the convertarr HTTP server.

The server provides:
- Web UI at /
- Upload endpoints at /convert/video-to-mp3 and /convert/audio-to-video
- Artifact downloads at /download/{filename}
- REST API for status, history and progress under /api
- Health check endpoint and Prometheus metrics
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("data-dir", "./data", "Base directory for uploads and outputs")
	serveCmd.Flags().String("max-upload-size", "500MB", "Maximum upload size")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("storage.base_dir", serveCmd.Flags().Lookup("data-dir"))
	mustBindPFlag("storage.max_upload_size", serveCmd.Flags().Lookup("max-upload-size"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.Default()

	db, err := database.New(cfg.Database, observability.WithComponent(logger, "database"))
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("closing database", slog.String("error", err.Error()))
		}
	}()

	if err := db.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	conversionRepo := repository.NewConversionRepository(db.DB)

	layout, err := storage.NewLayout(cfg.Storage)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	// Workspaces left behind by a previous crash.
	if _, err := startup.CleanupOrphanedWorkspaces(logger, layout, startup.DefaultCleanupAge); err != nil {
		logger.Warn("failed to clean orphaned workspaces", slog.String("error", err.Error()))
	}

	tools := ffmpeg.NewToolchain(cfg.FFmpeg, cfg.Convert, observability.WithComponent(logger, "ffmpeg"))
	if info, err := tools.Check(cmd.Context()); err != nil {
		// Not fatal: the UI reports ffmpeg as unavailable and conversions fail cleanly.
		logger.Warn("ffmpeg not available", slog.String("error", err.Error()))
	} else {
		logger.Info("ffmpeg detected",
			slog.String("path", info.FFmpegPath),
			slog.String("version", info.Version),
		)
	}

	m := metrics.New()

	progressService := progress.NewService(observability.WithComponent(logger, "progress"))
	progressService.Start()
	defer progressService.Stop()

	converter := convert.NewConverter(cfg, layout, tools).
		WithLogger(observability.WithComponent(logger, "convert")).
		WithRecorder(conversionRepo).
		WithMetrics(m).
		WithProgressService(progressService)

	server := internalhttp.NewServer(cfg.Server, logger, version.Version)
	registerHandlers(server, cfg, converter, layout, tools, db, conversionRepo, progressService, m, logger)

	retention := scheduler.NewScheduler(layout, cfg.Storage.OutputRetention, cfg.Storage.RetentionSchedule).
		WithLogger(observability.WithComponent(logger, "scheduler")).
		WithHistory(conversionRepo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := retention.Start(ctx); err != nil {
		return fmt.Errorf("starting retention scheduler: %w", err)
	}
	defer retention.Stop()

	logger.Info("starting convertarr server",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("version", version.Version),
		slog.String("max_upload_size", cfg.Storage.MaxUploadSize.String()),
	)

	return server.ListenAndServe(ctx)
}

func registerHandlers(
	server *internalhttp.Server,
	cfg *config.Config,
	converter *convert.Converter,
	layout *storage.Layout,
	tools *ffmpeg.Toolchain,
	db *database.DB,
	conversionRepo repository.ConversionRepository,
	progressService *progress.Service,
	m *metrics.Metrics,
	logger *slog.Logger,
) {
	router := server.Router()
	api := server.API()

	handlers.NewConvertHandler(converter, cfg.Storage.MaxUploadSize).
		WithLogger(logger).
		WithTimeouts(cfg.Server.UploadTimeout, cfg.Server.WriteTimeout).
		RegisterRoutes(router)
	handlers.NewDownloadHandler(layout).
		WithLogger(logger).
		RegisterRoutes(router)

	handlers.NewStatusHandler(tools).WithLogger(logger).Register(api)
	handlers.NewHealthHandler(version.Version).
		WithDB(db.DB).
		WithTools(tools).
		WithOutputDir(layout.OutputDir()).
		Register(api)
	handlers.NewConversionHandler(conversionRepo).Register(api)

	progressHandler := handlers.NewProgressHandler(progressService).WithLogger(logger)
	progressHandler.Register(api)
	progressHandler.RegisterSSE(router)

	router.Handle("/metrics", m.Handler())

	handlers.NewStaticHandler().RegisterRoutes(router)
}
