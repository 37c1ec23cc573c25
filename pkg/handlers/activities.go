package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"project-hub-backend/pkg/models"
	"project-hub-backend/pkg/utils"
)

type ActivitiesHandler struct {
	*base
}

func (h *ActivitiesHandler) list(w http.ResponseWriter, r *http.Request, projectID string) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter := models.ActivityFilter{
		ProjectID: projectID,
		ActorID:   query(r, "userId"),
		Page:      utils.GetPage(r),
	}
	activities, total, err := h.svc.Activities.List(r.Context(), actor, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WritePaginatedResponse(w, activities, filter.Page, total)
}

// GET /api/activities?projectId=&userId=&page=&limit=
func (h *ActivitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, query(r, "projectId"))
}

// GET /api/projects/{id}/activities
func (h *ActivitiesHandler) ForProject(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, chi.URLParam(r, "id"))
}
