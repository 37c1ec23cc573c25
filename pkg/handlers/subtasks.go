package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"project-hub-backend/pkg/services"
	"project-hub-backend/pkg/utils"
)

type SubtasksHandler struct {
	*base
}

// GET /api/subtasks?taskId=
func (h *SubtasksHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	subtasks, err := h.svc.Subtasks.List(r.Context(), actor, query(r, "taskId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, subtasks)
}

// GET /api/subtasks/{id}
func (h *SubtasksHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	st, err := h.svc.Subtasks.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, st)
}

// POST /api/subtasks
func (h *SubtasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.SubtaskInput
	if !h.decode(w, r, &in) {
		return
	}
	st, list, err := h.svc.Subtasks.Create(r.Context(), actor, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteCreatedResponse(w, "Subtask created", st)
}

// PUT /api/subtasks/{id}
func (h *SubtasksHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.SubtaskInput
	if !h.decode(w, r, &in) {
		return
	}
	st, list, err := h.svc.Subtasks.Update(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteMessageResponse(w, "Subtask updated", st)
}

// PATCH /api/subtasks/{id}/status
func (h *SubtasksHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	st, list, err := h.svc.Subtasks.UpdateStatus(r.Context(), actor, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteMessageResponse(w, "Subtask status updated", st)
}

// DELETE /api/subtasks/{id}
func (h *SubtasksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	list, err := h.svc.Subtasks.Delete(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteMessageResponse(w, "Subtask deleted", nil)
}
