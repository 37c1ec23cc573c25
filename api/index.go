package handler

import (
	"net/http"
	"sync"

	"go.uber.org/zap"

	"project-hub-backend/pkg/config"
	"project-hub-backend/pkg/database"
	"project-hub-backend/pkg/logger"
	"project-hub-backend/pkg/server"
	"project-hub-backend/pkg/utils"
)

var (
	mu       sync.Mutex
	cachedDB database.DatabaseInterface
	app      *server.App
	router   http.Handler
	log      *zap.Logger
)

// Handler is the serverless entry point. The router and its collaborators
// survive across warm invocations and are rebuilt when the pooled database
// connection is replaced.
func Handler(w http.ResponseWriter, r *http.Request) {
	cfg, err := config.GetCached()
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error", err.Error())
		return
	}
	if err := cfg.Validate(); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error", err.Error())
		return
	}

	h, err := currentRouter(r, cfg)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Service unavailable", "")
		return
	}
	h.ServeHTTP(w, r)
}

func currentRouter(r *http.Request, cfg *config.Config) (http.Handler, error) {
	mu.Lock()
	defer mu.Unlock()

	if log == nil {
		l, err := logger.New(cfg)
		if err != nil {
			return nil, err
		}
		log = l
	}

	db, err := database.GetDatabase(r.Context(), database.DatabaseConfig{
		UseLocalDB:   cfg.UseLocalDB,
		LocalDataDir: cfg.LocalDataDir,
		PostgresDSN:  cfg.PostgresDSN,
		Debug:        cfg.Debug,
	}, log)
	if err != nil {
		log.Error("Database unavailable", zap.Error(err))
		return nil, err
	}
	if router != nil && db == cachedDB {
		return router, nil
	}

	// The function may be frozen as soon as the response is written, so side
	// effects run before it is.
	fnCfg := *cfg
	fnCfg.EffectsAsync = false

	next, err := server.New(r.Context(), &fnCfg, log, db)
	if err != nil {
		log.Error("Application initialization failed", zap.Error(err))
		return nil, err
	}
	next.Serverless = true
	if err := next.Services.Auth.EnsureDefaultPM(r.Context()); err != nil {
		log.Warn("Failed to seed default project manager", zap.Error(err))
	}
	if app != nil {
		app.Close()
	}

	app, cachedDB = next, db
	router = server.NewRouter(app)
	return router, nil
}
