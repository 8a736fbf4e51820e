package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bitrix24-connector/internal/adapters/http/middleware"
	"bitrix24-connector/internal/adapters/http/routes"
	"bitrix24-connector/internal/adapters/persistence/models"
	"bitrix24-connector/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg)

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("Server exited")
		os.Exit(1)
	}
}

// run starts the server; deferred cleanup runs on every return path.
func run(cfg *config.Config) error {
	// Connect to database
	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer config.CloseDatabase()

	if err := models.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	log.Info().Msg("Database migration completed")

	svc := routes.NewServices(db, cfg, nil)

	// Background refresh and backup of stored credentials
	if err := svc.Maintenance.Start(); err != nil {
		return fmt.Errorf("failed to start token maintenance: %w", err)
	}
	defer svc.Maintenance.Stop()

	app := fiber.New(fiber.Config{
		AppName:      "Bitrix24 Connector",
		ErrorHandler: middleware.CustomErrorHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Bitrix.Timeout + 30*time.Second,
	})

	middleware.Setup(app, cfg)
	routes.Setup(app, cfg, svc)

	go gracefulShutdown(app)

	log.Info().Str("port", cfg.Port).Str("mode", cfg.AppMode).Msg("Server starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

// setupLogger switches to a console writer in dev and applies LOG_LEVEL
func setupLogger(cfg *config.Config) {
	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// gracefulShutdown handles graceful shutdown
func gracefulShutdown(app *fiber.App) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
	log.Info().Msg("Server stopped gracefully")
}
