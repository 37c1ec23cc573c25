// Package server assembles the application: it builds the collaborators
// shared by the services and mounts the HTTP routes.
package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"project-hub-backend/pkg/cache"
	"project-hub-backend/pkg/config"
	"project-hub-backend/pkg/database"
	"project-hub-backend/pkg/effects"
	"project-hub-backend/pkg/events"
	"project-hub-backend/pkg/rollup"
	"project-hub-backend/pkg/services"
	"project-hub-backend/pkg/storage"
	"project-hub-backend/pkg/utils"
)

// App holds everything a router needs.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       database.DatabaseInterface
	Services *services.Services
	Effects  *effects.Runner

	// Serverless enables the path normalization needed behind a function
	// gateway.
	Serverless bool

	statusCache cache.StatusCache
	publisher   events.Publisher
}

// New wires the services on top of db. Redis and RabbitMQ are used when
// configured; without them the status cache lives in memory and activity
// events are dropped.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, db database.DatabaseInterface) (*App, error) {
	uploads, err := storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload directory: %w", err)
	}

	app := &App{
		Config:      cfg,
		Logger:      logger,
		DB:          db,
		statusCache: newStatusCache(ctx, cfg, logger),
		publisher:   newPublisher(cfg, logger),
	}

	app.Effects = effects.NewRunner(cfg.EffectsAsync, logger)
	app.Services = services.New(&services.Deps{
		Config: cfg,
		Store:  db,
		Rollup: rollup.NewEngine(db, logger),
		Blobs:  uploads,
		Status: cache.NewResolver(app.statusCache, db, logger),
		Events: app.publisher,
		JWT:    utils.NewJWTService(cfg.JWTSecret, cfg.JWTTTL),
		Logger: logger,
	})
	return app, nil
}

func newStatusCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) cache.StatusCache {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryCache(cfg.StatusCacheTTL)
	}
	rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.StatusCacheTTL,
	})
	if err != nil {
		logger.Warn("Redis unavailable, using in-memory status cache", zap.Error(err))
		return cache.NewMemoryCache(cfg.StatusCacheTTL)
	}
	logger.Info("Using Redis status cache", zap.String("addr", cfg.RedisAddr))
	return rc
}

func newPublisher(cfg *config.Config, logger *zap.Logger) events.Publisher {
	if cfg.MQURL == "" {
		return events.NopPublisher{}
	}
	p, err := events.NewAMQPPublisher(cfg.MQURL)
	if err != nil {
		logger.Warn("RabbitMQ unavailable, activity events disabled", zap.Error(err))
		return events.NopPublisher{}
	}
	logger.Info("Publishing activity events", zap.String("exchange", events.ExchangeName))
	return p
}

// Close waits for in-flight side effects, then releases the cache and the
// publisher. The database is owned by the caller.
func (a *App) Close() error {
	a.Effects.Wait()
	var first error
	if err := a.publisher.Close(); err != nil {
		first = err
	}
	if err := a.statusCache.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
