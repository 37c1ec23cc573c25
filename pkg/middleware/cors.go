package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"project-hub-backend/pkg/config"
)

// CORS builds the CORS middleware from the configured origins.
func CORS(cfg *config.Config) func(http.Handler) http.Handler {
	corsOptions := cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
			http.MethodPatch,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Requested-With",
			"Cache-Control",
		},
		ExposedHeaders: []string{
			"Link",
			"X-Request-Id",
		},
		AllowCredentials: true,
		MaxAge:           300,
	}

	// Credentials cannot be combined with a wildcard origin.
	if cfg.IsDevelopment() || contains(cfg.AllowedOrigins, "*") {
		corsOptions.AllowedOrigins = []string{"*"}
		corsOptions.AllowCredentials = false
	}

	return cors.Handler(corsOptions)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
