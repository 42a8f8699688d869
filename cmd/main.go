package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whereabouts/internal/api"
	"whereabouts/internal/authz"
	"whereabouts/internal/broadcast"
	"whereabouts/internal/config"
	"whereabouts/internal/daemon"
	"whereabouts/internal/database"
	"whereabouts/internal/group"
	"whereabouts/internal/i18n"
	"whereabouts/internal/monitoring"
	"whereabouts/internal/person"
	"whereabouts/internal/presence"
	"whereabouts/internal/ratelimit"
	"whereabouts/internal/snapshot"
	"whereabouts/internal/storage"
	"whereabouts/internal/transfer"

	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("Fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	cfg := config.NewConfig()

	// Set up telemetry; its slog bridge becomes the application logger.
	telemetry, err := monitoring.NewOpenTelemetry(cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shut down telemetry", "error", err)
		}
	}()
	logger := telemetry.Logger()

	// Set up i18n translator
	translator := i18n.NewTranslator(i18n.HE)
	if err := translator.LoadTranslations(); err != nil {
		logger.Error("Failed to load translations", "error", err)
	}

	// Set up Postgres connection
	db := database.NewDatabase()
	if err := db.Connect(ctx, cfg.DatabaseURL()); err != nil {
		logger.Error("Failed to initialize database", "error", err)
		return err
	}
	defer db.Close()

	// Set up Redis connection
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Set up snapshot storage
	store, err := storage.New(cfg.Storage)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		return err
	}

	deriver := authz.NewDeriver(logger, &db)
	groupManager := group.NewManager(logger, &db)
	personManager := person.NewManager(logger, &db)
	transferManager := transfer.NewManager(logger, &db, &deriver)
	presenceCache := presence.NewCache(logger, redisClient)
	hub := broadcast.NewHub(logger)
	limiter := ratelimit.NewLimiter(redisClient, 30, time.Minute)

	app := api.NewApp(cfg, api.Deps{
		Logger:     logger,
		DB:         &db,
		Translator: &translator,
		Telemetry:  telemetry,
		Groups:     &groupManager,
		Persons:    &personManager,
		Transfers:  &transferManager,
		Deriver:    &deriver,
		Presence:   &presenceCache,
		Hub:        hub,
		Limiter:    limiter,
	})

	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		logger.Info("Starting HTTP server...", "addr", addr)
		if err := app.Listen(addr); err != nil {
			logger.Error("HTTP server stopped", "error", err)
			cancel()
		}
	}()

	archiver := snapshot.NewArchiver(logger, &db, store)

	manager := daemon.NewManager(logger)
	manager.Add("transfer-janitor", daemon.JanitorTask(&db, logger))
	manager.Add("snapshot-archiver", archiver.Task(cfg.Snapshot.Interval))

	logger.Info("Starting supervised daemons...")
	manager.Start(ctx)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
	}
	cancel()

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("Failed to shut down HTTP server", "error", err)
	}
	manager.Wait()
	logger.Info("Shutdown complete")

	return nil
}
