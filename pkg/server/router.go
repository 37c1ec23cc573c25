package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"project-hub-backend/pkg/handlers"
	customMiddleware "project-hub-backend/pkg/middleware"
	"project-hub-backend/pkg/models"
	"project-hub-backend/pkg/utils"
)

// multipartOverhead is the allowance for form fields and part headers on top
// of the file payload of an upload.
const multipartOverhead = 1 << 20

// NewRouter mounts every route of the API on a chi router.
func NewRouter(app *App) http.Handler {
	router := chi.NewRouter()
	setupMiddleware(router, app)
	setupRoutes(router, app)
	return router
}

func setupMiddleware(router *chi.Mux, app *App) {
	cfg := app.Config

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	if app.Serverless {
		router.Use(customMiddleware.Normalize())
	}
	router.Use(customMiddleware.Logger(app.Logger))
	router.Use(customMiddleware.Recovery(cfg, app.Logger))
	router.Use(customMiddleware.CORS(cfg))
	router.Use(middleware.Compress(5))
	if cfg.RequestTimeout > 0 {
		router.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

func setupRoutes(router *chi.Mux, app *App) {
	h := handlers.New(app.Config, app.Services, app.Effects, app.DB, app.Logger)

	router.Get("/health", h.Health.Live)
	router.Get("/ready", h.Health.Ready)
	router.Handle("/metrics", promhttp.Handler())

	bodyLimit := app.Config.MaxUploadBytes*int64(max(app.Config.MaxUploadFiles, 1)) + multipartOverhead

	router.Route("/api", func(r chi.Router) {
		r.Use(customMiddleware.ContentTypeJSON)
		r.Use(customMiddleware.MaxBodySize(bodyLimit))

		r.Post("/auth/login", h.Auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.AuthMiddleware(app.Services.Auth))

			r.Route("/auth", func(r chi.Router) {
				r.Post("/logout", h.Auth.Logout)
				r.Post("/refresh", h.Auth.Refresh)
				r.Get("/me", h.Auth.Me)
				r.Put("/profile", h.Auth.UpdateProfile)
				r.Put("/password", h.Auth.ChangePassword)
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(customMiddleware.RequireRole(models.RolePM))
				r.Get("/", h.Users.List)
				r.Post("/", h.Users.Create)
				r.Get("/employees", h.Users.ByRole(models.RoleEmployee))
				r.Get("/customers", h.Users.ByRole(models.RoleCustomer))
				r.Get("/{id}", h.Users.Get)
				r.Put("/{id}", h.Users.Update)
				r.Delete("/{id}", h.Users.Delete)
			})

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", h.Projects.List)
				r.Post("/", h.Projects.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Projects.Get)
					r.Put("/", h.Projects.Update)
					r.Delete("/", h.Projects.Delete)
					r.Post("/team", h.Projects.AddTeamMember)
					r.Delete("/team/{userId}", h.Projects.RemoveTeamMember)
					r.Get("/stats", h.Projects.Stats)
					r.Post("/recalculate-progress", h.Projects.RecalculateProgress)
					r.Get("/activities", h.Activities.ForProject)
					h.Discussion.Mount(r, models.ParentProject)
				})
			})

			r.Route("/milestones", func(r chi.Router) {
				r.Get("/", h.Milestones.List)
				r.Post("/", h.Milestones.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Milestones.Get)
					r.Put("/", h.Milestones.Update)
					r.Delete("/", h.Milestones.Delete)
					h.Discussion.Mount(r, models.ParentMilestone)
				})
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", h.Tasks.List)
				r.Post("/", h.Tasks.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Tasks.Get)
					r.Put("/", h.Tasks.Update)
					r.Delete("/", h.Tasks.Delete)
					r.Patch("/status", h.Tasks.UpdateStatus)
					r.Put("/assign", h.Tasks.Assign)
					r.Get("/subtasks", h.Tasks.Subtasks)
					h.Discussion.Mount(r, models.ParentTask)
				})
			})

			r.Route("/subtasks", func(r chi.Router) {
				r.Get("/", h.Subtasks.List)
				r.Post("/", h.Subtasks.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Subtasks.Get)
					r.Put("/", h.Subtasks.Update)
					r.Delete("/", h.Subtasks.Delete)
					r.Patch("/status", h.Subtasks.UpdateStatus)
					h.Discussion.Mount(r, models.ParentSubtask)
				})
			})

			r.Route("/task-requests", func(r chi.Router) {
				r.Get("/", h.TaskRequests.List)
				r.Post("/", h.TaskRequests.Create)
				r.Get("/{id}", h.TaskRequests.Get)
				r.Put("/{id}/approve", h.TaskRequests.Approve)
				r.Put("/{id}/reject", h.TaskRequests.Reject)
			})

			r.Get("/activities", h.Activities.List)

			r.Route("/customer", func(r chi.Router) {
				r.Use(customMiddleware.RequireRole(models.RoleCustomer))
				r.Get("/projects", h.Projects.List)
				r.Get("/projects/{id}", h.Projects.Get)
				r.Get("/dashboard", h.Portals.CustomerDashboard)
			})

			r.Route("/employee", func(r chi.Router) {
				r.Use(customMiddleware.RequireRole(models.RoleEmployee))
				r.Get("/tasks", h.Portals.EmployeeTasks)
				r.Patch("/tasks/{id}/status", h.Tasks.UpdateStatus)
				r.Get("/projects", h.Projects.List)
				r.Get("/dashboard", h.Portals.EmployeeDashboard)
			})
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponse(w, http.StatusMethodNotAllowed,
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path))
	})
}
