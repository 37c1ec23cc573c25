package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"project-hub-backend/pkg/models"
	"project-hub-backend/pkg/services"
	"project-hub-backend/pkg/utils"
)

// TaskRequestsHandler serves the customer task request workflow.
type TaskRequestsHandler struct {
	*base
}

// GET /api/task-requests?status=&projectId=&page=&limit=
func (h *TaskRequestsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter := models.TaskRequestFilter{
		ProjectID: query(r, "projectId"),
		Status:    models.TaskRequestStatus(query(r, "status")),
		Page:      utils.GetPage(r),
	}
	requests, total, err := h.svc.TaskRequests.List(r.Context(), actor, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WritePaginatedResponse(w, requests, filter.Page, total)
}

// GET /api/task-requests/{id}
func (h *TaskRequestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, err := h.svc.TaskRequests.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, req)
}

// POST /api/task-requests
func (h *TaskRequestsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.TaskRequestInput
	if !h.decode(w, r, &in) {
		return
	}
	req, list, err := h.svc.TaskRequests.Create(r.Context(), actor, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteCreatedResponse(w, "Task request submitted", req)
}

// PUT /api/task-requests/{id}/approve
func (h *TaskRequestsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.ReviewInput
	if r.ContentLength != 0 && !h.decode(w, r, &in) {
		return
	}
	req, task, list, err := h.svc.TaskRequests.Approve(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteMessageResponse(w, "Task request approved", map[string]interface{}{
		"taskRequest": req,
		"task":        task,
	})
}

// PUT /api/task-requests/{id}/reject  {"reviewNote": "..."}
func (h *TaskRequestsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.ReviewInput
	if !h.decode(w, r, &in) {
		return
	}
	req, list, err := h.svc.TaskRequests.Reject(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteMessageResponse(w, "Task request rejected", req)
}
