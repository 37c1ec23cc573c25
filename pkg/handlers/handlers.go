// Package handlers adapts HTTP requests to service commands and writes the
// JSON envelope.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"project-hub-backend/pkg/config"
	"project-hub-backend/pkg/database"
	"project-hub-backend/pkg/effects"
	"project-hub-backend/pkg/logger"
	"project-hub-backend/pkg/middleware"
	"project-hub-backend/pkg/services"
	"project-hub-backend/pkg/utils"
)

// base is shared by every handler.
type base struct {
	config  *config.Config
	svc     *services.Services
	effects *effects.Runner
	logger  *zap.Logger
}

// Handlers groups the per-resource handlers mounted by the router.
type Handlers struct {
	Auth         *AuthHandler
	Users        *UsersHandler
	Projects     *ProjectsHandler
	Milestones   *MilestonesHandler
	Tasks        *TasksHandler
	Subtasks     *SubtasksHandler
	Discussion   *DiscussionHandler
	TaskRequests *TaskRequestsHandler
	Activities   *ActivitiesHandler
	Portals      *PortalsHandler
	Health       *HealthHandler
}

func New(cfg *config.Config, svc *services.Services, runner *effects.Runner, db database.DatabaseInterface, log *zap.Logger) *Handlers {
	b := &base{config: cfg, svc: svc, effects: runner, logger: log}
	return &Handlers{
		Auth:         &AuthHandler{b},
		Users:        &UsersHandler{b},
		Projects:     &ProjectsHandler{b},
		Milestones:   &MilestonesHandler{b},
		Tasks:        &TasksHandler{b},
		Subtasks:     &SubtasksHandler{b},
		Discussion:   &DiscussionHandler{b},
		TaskRequests: &TaskRequestsHandler{b},
		Activities:   &ActivitiesHandler{b},
		Portals:      &PortalsHandler{b},
		Health:       &HealthHandler{base: b, db: db},
	}
}

// actor returns the authenticated user or writes a 401.
func (b *base) actor(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return services.Actor{}, false
	}
	return actor, true
}

// decode parses a JSON body or writes a 400.
func (b *base) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := utils.ParseJSONBody(r, v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return false
	}
	return true
}

// dispatch hands the effects of a command to the runner.
func (b *base) dispatch(r *http.Request, list effects.List) {
	if len(list) > 0 {
		b.effects.Dispatch(r.Context(), list)
	}
}

// writeError maps a service error onto its HTTP status.
func (b *base) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var se *services.Error
	if errors.As(err, &se) {
		switch se.Kind {
		case services.KindValidation:
			if len(se.Fields) > 0 {
				fields := make([]utils.FieldError, 0, len(se.Fields))
				for _, f := range se.Fields {
					fields = append(fields, utils.FieldError{Field: f.Field, Message: f.Message})
				}
				utils.WriteValidationErrorResponse(w, se.Message, fields)
				return
			}
			utils.WriteBadRequestResponse(w, se.Message)
			return
		case services.KindUnauthorized:
			utils.WriteUnauthorizedResponse(w, se.Message)
			return
		case services.KindForbidden:
			utils.WriteForbiddenResponse(w, se.Message)
			return
		case services.KindNotFound:
			utils.WriteNotFoundResponse(w, se.Message)
			return
		case services.KindConflict:
			utils.WriteConflictResponse(w, se.Message)
			return
		}
	}

	logger.WithRequest(r.Context(), b.logger).Error("Request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	detail := ""
	if b.config.IsDevelopment() {
		detail = err.Error()
	}
	utils.WriteInternalServerErrorResponse(w, "Internal server error", detail)
}

// query returns the trimmed query parameter key.
func query(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}
