package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"project-hub-backend/pkg/models"
	"project-hub-backend/pkg/services"
	"project-hub-backend/pkg/utils"
)

type ProjectsHandler struct {
	*base
}

func projectFilter(r *http.Request) models.ProjectFilter {
	return models.ProjectFilter{
		Status:   models.ProjectStatus(query(r, "status")),
		Priority: models.Priority(query(r, "priority")),
		Search:   query(r, "search"),
		Page:     utils.GetPage(r),
	}
}

// GET /api/projects?status=&priority=&search=&page=&limit=
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter := projectFilter(r)
	projects, total, err := h.svc.Projects.List(r.Context(), actor, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WritePaginatedResponse(w, projects, filter.Page, total)
}

// GET /api/projects/{id}
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	project, err := h.svc.Projects.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, project)
}

// POST /api/projects
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.ProjectInput
	if !h.decode(w, r, &in) {
		return
	}
	project, list, err := h.svc.Projects.Create(r.Context(), actor, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteCreatedResponse(w, "Project created", project)
}

// PUT /api/projects/{id}
func (h *ProjectsHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.ProjectInput
	if !h.decode(w, r, &in) {
		return
	}
	project, list, err := h.svc.Projects.Update(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteMessageResponse(w, "Project updated", project)
}

// DELETE /api/projects/{id}
func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	list, err := h.svc.Projects.Delete(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteMessageResponse(w, "Project deleted", nil)
}

// POST /api/projects/{id}/team  {"userId": "..."}
func (h *ProjectsHandler) AddTeamMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"userId"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	project, list, err := h.svc.Projects.AddTeamMember(r.Context(), actor, chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteMessageResponse(w, "Team member added", project)
}

// DELETE /api/projects/{id}/team/{userId}
func (h *ProjectsHandler) RemoveTeamMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	project, list, err := h.svc.Projects.RemoveTeamMember(r.Context(), actor, chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteMessageResponse(w, "Team member removed", project)
}

// GET /api/projects/{id}/stats
func (h *ProjectsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	stats, err := h.svc.Projects.Stats(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, stats)
}

// POST /api/projects/{id}/recalculate-progress
func (h *ProjectsHandler) RecalculateProgress(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	progress, err := h.svc.Projects.RecalculateProgress(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteMessageResponse(w, "Progress recalculated", map[string]int{"progress": progress})
}
