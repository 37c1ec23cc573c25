package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"project-hub-backend/pkg/models"
	"project-hub-backend/pkg/services"
	"project-hub-backend/pkg/utils"
)

type TasksHandler struct {
	*base
}

type statusRequest struct {
	Status string `json:"status"`
}

func taskFilter(r *http.Request) models.TaskFilter {
	return models.TaskFilter{
		ProjectID:   query(r, "projectId"),
		MilestoneID: query(r, "milestoneId"),
		Status:      models.TaskStatus(query(r, "status")),
		Priority:    models.Priority(query(r, "priority")),
		AssignedTo:  query(r, "assignedTo"),
		Search:      query(r, "search"),
		Page:        utils.GetPage(r),
	}
}

// GET /api/tasks?projectId=&milestoneId=&status=&priority=&assignedTo=&page=&limit=
func (h *TasksHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter := taskFilter(r)
	tasks, total, err := h.svc.Tasks.List(r.Context(), actor, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WritePaginatedResponse(w, tasks, filter.Page, total)
}

// GET /api/tasks/{id}
func (h *TasksHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	task, err := h.svc.Tasks.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, task)
}

// POST /api/tasks
func (h *TasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.TaskInput
	if !h.decode(w, r, &in) {
		return
	}
	task, list, err := h.svc.Tasks.Create(r.Context(), actor, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteCreatedResponse(w, "Task created", task)
}

// PUT /api/tasks/{id}
func (h *TasksHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.TaskInput
	if !h.decode(w, r, &in) {
		return
	}
	task, list, err := h.svc.Tasks.Update(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteMessageResponse(w, "Task updated", task)
}

// PATCH /api/tasks/{id}/status  {"status": "..."}
func (h *TasksHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	task, list, err := h.svc.Tasks.UpdateStatus(r.Context(), actor, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteMessageResponse(w, "Task status updated", task)
}

// PUT /api/tasks/{id}/assign  {"assignedTo": ["..."]}
func (h *TasksHandler) Assign(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req struct {
		AssignedTo []string `json:"assignedTo"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	task, list, err := h.svc.Tasks.Assign(r.Context(), actor, chi.URLParam(r, "id"), req.AssignedTo)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteMessageResponse(w, "Task assigned", task)
}

// DELETE /api/tasks/{id}
func (h *TasksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	list, err := h.svc.Tasks.Delete(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteMessageResponse(w, "Task deleted", nil)
}

// GET /api/tasks/{id}/subtasks
func (h *TasksHandler) Subtasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	subtasks, err := h.svc.Tasks.Subtasks(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, subtasks)
}
