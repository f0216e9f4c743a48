package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mattborg/galleryedge/internal/analytics"
	"github.com/mattborg/galleryedge/internal/backend"
	"github.com/mattborg/galleryedge/internal/cache"
	"github.com/mattborg/galleryedge/internal/database"
	"github.com/mattborg/galleryedge/internal/ffmpeg"
	"github.com/mattborg/galleryedge/internal/httpserver"
	"github.com/mattborg/galleryedge/internal/httpserver/handlers"
	"github.com/mattborg/galleryedge/internal/listing"
	"github.com/mattborg/galleryedge/internal/observability"
	"github.com/mattborg/galleryedge/internal/transform"
	"github.com/mattborg/galleryedge/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the galleryedge HTTP server",
	Long: `Start the galleryedge HTTP server.

Serves share listings, image previews, video proxies, and per-share
download analytics for a configured upstream Backend.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "host to bind to (overrides config)")
	serveCmd.Flags().Int("port", 0, "port to listen on (overrides config)")
	serveCmd.Flags().String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	serveCmd.Flags().String("log-format", "", "log format: json, text (overrides config)")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("logging.level", serveCmd.Flags().Lookup("log-level"))
	mustBindPFlag("logging.format", serveCmd.Flags().Lookup("log-format"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	observability.SetDefault(logger)
	logger.Info("starting galleryedge-server", slog.String("version", version.Version))

	analyticsStore, err := analytics.Open(database.Config{Path: cfg.Analytics.DBPath, LogLevel: "silent"},
		cfg.Analytics.RetentionDays, cfg.Analytics.RetentionInterval.Duration(), logger)
	if err != nil {
		return fmt.Errorf("opening analytics store: %w", err)
	}
	defer analyticsStore.Close()
	analyticsStore.StartRetentionSweep()
	defer analyticsStore.StopRetentionSweep()

	backendClient := backend.New(cfg.Backend.BaseURL, cfg.Backend.Timeout.Duration())

	renditionCache, err := cache.New(cfg.Cache.Dir)
	if err != nil {
		return fmt.Errorf("opening rendition cache: %w", err)
	}

	listingCache := listing.New(backendClient, cfg.Listing.TTL.Duration(), cfg.Listing.Capacity)

	binaries, err := ffmpeg.ResolveBinaries(context.Background(), cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
	if err != nil {
		return fmt.Errorf("resolving ffmpeg binaries: %w", err)
	}
	logger.Info("resolved ffmpeg binaries",
		slog.String("ffmpeg", binaries.FFmpegPath),
		slog.String("ffprobe", binaries.FFprobePath),
		slog.String("version", binaries.Version))

	transformService := transform.New(cfg, renditionCache, binaries.FFmpegPath, binaries.FFprobePath, logger)

	h := handlers.New(cfg, backendClient, listingCache, transformService, analyticsStore, renditionCache, logger)

	router := httpserver.NewRouter(logger, cfg.Server.CORSOrigins)
	handlers.Routes(router, h)

	serverConfig := httpserver.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout.Duration(),
		WriteTimeout:    cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:     httpserver.DefaultServerConfig().IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
		CORSOrigins:     cfg.Server.CORSOrigins,
	}
	server := httpserver.NewServer(serverConfig, logger, router)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("listening", slog.String("address", cfg.Server.Address()))
	return server.ListenAndServe(ctx)
}
