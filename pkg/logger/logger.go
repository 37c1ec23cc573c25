package logger

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"project-hub-backend/pkg/config"
)

// New builds the process logger: human-readable output in development or
// debug mode, JSON everywhere else.
func New(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() || cfg.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// WithRequest adds the chi request id (if any) to logger.
func WithRequest(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		return logger.With(zap.String("request_id", reqID))
	}
	return logger
}
