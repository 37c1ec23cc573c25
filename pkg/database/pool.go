package database

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DatabasePool caches one backend across invocations of a serverless
// handler, where every cold start would otherwise open a new pool.
type DatabasePool struct {
	instance DatabaseInterface
	config   DatabaseConfig
	mu       sync.RWMutex
	lastUsed time.Time
}

const poolMaxAge = 30 * time.Minute

var (
	globalPool *DatabasePool
	poolMutex  sync.Mutex
)

// GetDatabase returns the cached backend for config, reopening it when the
// configuration changed, it sat unused too long, or it fails a health check.
func GetDatabase(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (DatabaseInterface, error) {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool != nil && !shouldRecreateConnection(ctx, globalPool, config, logger) {
		globalPool.mu.Lock()
		globalPool.lastUsed = time.Now()
		globalPool.mu.Unlock()
		return globalPool.instance, nil
	}

	if globalPool != nil && globalPool.instance != nil {
		globalPool.instance.Close()
	}
	globalPool = nil

	logger.Info("Creating new database connection")
	instance, err := NewDatabase(config, logger)
	if err != nil {
		return nil, err
	}
	globalPool = &DatabasePool{
		instance: instance,
		config:   config,
		lastUsed: time.Now(),
	}
	return instance, nil
}

func shouldRecreateConnection(ctx context.Context, pool *DatabasePool, newConfig DatabaseConfig, logger *zap.Logger) bool {
	if pool.instance == nil {
		return true
	}
	if pool.config != newConfig {
		logger.Info("Database configuration changed, recreating connection")
		return true
	}

	pool.mu.RLock()
	expired := time.Since(pool.lastUsed) > poolMaxAge
	pool.mu.RUnlock()
	if expired {
		logger.Info("Database connection expired, recreating")
		return true
	}

	if err := pool.instance.HealthCheck(ctx); err != nil {
		logger.Warn("Database health check failed, recreating", zap.Error(err))
		return true
	}
	return false
}

// ClosePool closes and forgets the cached backend.
func ClosePool() error {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool == nil {
		return nil
	}
	err := globalPool.instance.Close()
	globalPool = nil
	return err
}
