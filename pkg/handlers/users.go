package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"project-hub-backend/pkg/models"
	"project-hub-backend/pkg/services"
	"project-hub-backend/pkg/utils"
)

// UsersHandler is the project manager's user administration.
type UsersHandler struct {
	*base
}

// GET /api/users?role=&status=&search=&page=&limit=
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter := models.UserFilter{
		Role:   models.Role(query(r, "role")),
		Status: models.UserStatus(query(r, "status")),
		Search: query(r, "search"),
		Page:   utils.GetPage(r),
	}
	users, total, err := h.svc.Users.List(r.Context(), actor, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WritePaginatedResponse(w, users, filter.Page, total)
}

// ByRole serves the /employees and /customers selectors.
func (h *UsersHandler) ByRole(role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		users, err := h.svc.Users.ListByRole(r.Context(), actor, role)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		utils.WriteSuccessResponse(w, users)
	}
}

// GET /api/users/{id}
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	user, err := h.svc.Users.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, user)
}

// POST /api/users
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.UserInput
	if !h.decode(w, r, &in) {
		return
	}
	user, list, err := h.svc.Users.Create(r.Context(), actor, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteCreatedResponse(w, "User created", user)
}

// PUT /api/users/{id}
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.UserInput
	if !h.decode(w, r, &in) {
		return
	}
	user, list, err := h.svc.Users.Update(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteMessageResponse(w, "User updated", user)
}

// DELETE /api/users/{id}
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	list, err := h.svc.Users.Delete(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(r, list)
	utils.WriteMessageResponse(w, "User deleted", nil)
}
