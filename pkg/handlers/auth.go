package handlers

import (
	"net/http"

	"project-hub-backend/pkg/middleware"
	"project-hub-backend/pkg/models"
	"project-hub-backend/pkg/services"
	"project-hub-backend/pkg/utils"
)

// AuthHandler serves login and the self-service account endpoints.
type AuthHandler struct {
	*base
}

// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Auth.Login(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteMessageResponse(w, "Login successful", resp)
}

// POST /api/auth/logout
//
// Tokens are stateless; the client drops its copy.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	utils.WriteMessageResponse(w, "Logged out", nil)
}

// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	user, err := h.svc.Auth.Me(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, user)
}

// PUT /api/auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.ProfileInput
	if !h.decode(w, r, &in) {
		return
	}
	user, err := h.svc.Auth.UpdateProfile(r.Context(), actor, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteMessageResponse(w, "Profile updated", user)
}

// PUT /api/auth/password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in services.PasswordInput
	if !h.decode(w, r, &in) {
		return
	}
	if err := h.svc.Auth.ChangePassword(r.Context(), actor, in); err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteMessageResponse(w, "Password changed", nil)
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	token, _ := middleware.BearerToken(r)
	resp, err := h.svc.Auth.Refresh(r.Context(), actor, token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, resp)
}
