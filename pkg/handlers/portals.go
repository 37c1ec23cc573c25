package handlers

import (
	"net/http"

	"project-hub-backend/pkg/utils"
)

// PortalsHandler serves the /customer and /employee surfaces. The project
// and task endpoints reuse the resource commands, which already scope what
// a customer or employee sees.
type PortalsHandler struct {
	*base
}

// GET /api/customer/dashboard
func (h *PortalsHandler) CustomerDashboard(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	dash, err := h.svc.Dashboards.Customer(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, dash)
}

// GET /api/employee/dashboard
func (h *PortalsHandler) EmployeeDashboard(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	dash, err := h.svc.Dashboards.Employee(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, dash)
}

// GET /api/employee/tasks?status=&priority=&projectId=&page=&limit=
func (h *PortalsHandler) EmployeeTasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter := taskFilter(r)
	tasks, total, err := h.svc.Tasks.ListAssigned(r.Context(), actor, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WritePaginatedResponse(w, tasks, filter.Page, total)
}
