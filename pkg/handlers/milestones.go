package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"project-hub-backend/pkg/services"
	"project-hub-backend/pkg/utils"
)

type MilestonesHandler struct {
	*base
}

// GET /api/milestones?projectId=
func (h *MilestonesHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	milestones, err := h.svc.Milestones.List(r.Context(), actor, query(r, "projectId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, milestones)
}

// GET /api/milestones/{id}
func (h *MilestonesHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	m, err := h.svc.Milestones.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, m)
}

// POST /api/milestones
func (h *MilestonesHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.MilestoneInput
	if !h.decode(w, r, &in) {
		return
	}
	m, list, err := h.svc.Milestones.Create(r.Context(), actor, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteCreatedResponse(w, "Milestone created", m)
}

// PUT /api/milestones/{id}
func (h *MilestonesHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.MilestoneInput
	if !h.decode(w, r, &in) {
		return
	}
	m, list, err := h.svc.Milestones.Update(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteMessageResponse(w, "Milestone updated", m)
}

// DELETE /api/milestones/{id}
func (h *MilestonesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	list, err := h.svc.Milestones.Delete(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteMessageResponse(w, "Milestone deleted", nil)
}
