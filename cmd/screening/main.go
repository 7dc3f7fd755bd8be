package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Aidin1998/watchlist_screening/internal/infrastructure/config"
	"github.com/Aidin1998/watchlist_screening/internal/infrastructure/telemetry"
	"github.com/Aidin1998/watchlist_screening/internal/screening/api"
	"github.com/Aidin1998/watchlist_screening/internal/screening/providers"
	"github.com/Aidin1998/watchlist_screening/pkg/logger"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	bootLogger, err := logger.NewLogger(os.Getenv("SCREENING_LOGGING_LEVEL"))
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	cm := config.NewConfigManager(bootLogger)
	var paths []string
	if *configPath != "" {
		paths = append(paths, *configPath)
	}
	cfg, err := cm.LoadConfig(paths...)
	if err != nil {
		bootLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	zapLogger, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	if err := run(cm, cfg, zapLogger); err != nil {
		zapLogger.Fatal("Screening service stopped with error", zap.Error(err))
	}
}

func run(cm *config.ConfigManager, cfg *config.Config, zapLogger *zap.Logger) error {
	ctx := context.Background()
	sugar := zapLogger.Sugar()

	shutdownTracing, err := telemetry.Setup(cfg.Tracing, os.Stdout)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	app, err := build(ctx, cfg, zapLogger)
	if err != nil {
		return err
	}

	if err := providers.SyncConfigs(ctx, app.store, cfg.Providers, app.invalidator, sugar); err != nil {
		return fmt.Errorf("providers: %w", err)
	}
	if err := app.seed(ctx, cfg.Screening); err != nil {
		return err
	}

	cm.AddReloadCallback(func(_, newConfig *config.Config) error {
		return providers.SyncConfigs(context.Background(), app.store, newConfig.Providers, app.invalidator, sugar)
	})
	cm.Watch()

	if _, err := app.service.RecoverInterrupted(ctx); err != nil {
		return err
	}
	app.dispatcher.Start()

	server := api.NewServer(api.ServerConfig{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ServiceName:  cfg.Tracing.ServiceName,
		AllowOrigins: cfg.Server.AllowOrigins,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,

		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		RequestBurst:      cfg.Server.RequestBurst,
	}, app.handlers, app.registry, app.checks, zapLogger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		zapLogger.Info("Shutting down screening service", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			zapLogger.Error("API server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if err := app.dispatcher.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher: %w", err))
	}
	for _, closer := range app.closers {
		if err := closer(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	return errors.Join(errs...)
}
