package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"project-hub-backend/pkg/config"
	"project-hub-backend/pkg/database"
	"project-hub-backend/pkg/logger"
	"project-hub-backend/pkg/server"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// 2. Init store
	db, err := database.NewDatabase(database.DatabaseConfig{
		UseLocalDB:   cfg.UseLocalDB,
		LocalDataDir: cfg.LocalDataDir,
		PostgresDSN:  cfg.PostgresDSN,
		Debug:        cfg.Debug,
	}, logger)
	if err != nil {
		logger.Fatal("Database initialization failed", zap.Error(err))
	}
	defer db.Close()

	// 3. Init services, cache and publisher
	ctx := context.Background()
	app, err := server.New(ctx, cfg, logger, db)
	if err != nil {
		logger.Fatal("Application initialization failed", zap.Error(err))
	}

	if err := app.Services.Auth.EnsureDefaultPM(ctx); err != nil {
		logger.Fatal("Failed to seed default project manager", zap.Error(err))
	}

	// 4. Run server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.NewRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting project hub server",
			zap.String("port", cfg.Port),
			zap.String("environment", cfg.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		logger.Info("HTTP server stopped")
	}

	if err := app.Close(); err != nil {
		logger.Error("Failed to release resources", zap.Error(err))
	}
}
