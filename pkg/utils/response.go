package utils

import (
	"encoding/json"
	"net/http"
	"strconv"

	"project-hub-backend/pkg/models"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message,omitempty"`
	Data       interface{}        `json:"data,omitempty"`
	Pagination *models.Pagination `json:"pagination,omitempty"`
	Errors     []FieldError       `json:"errors,omitempty"`
	Error      string             `json:"error,omitempty"` // development-only detail
	Stack      string             `json:"stack,omitempty"` // development-only panic stack
}

// FieldError is one validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// WriteJSON writes resp with statusCode.
func WriteJSON(w http.ResponseWriter, statusCode int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		// Headers are gone; nothing left to report to the client.
		return
	}
}

// WriteJSONResponse writes data wrapped in a success envelope.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	WriteJSON(w, statusCode, APIResponse{
		Success: statusCode >= 200 && statusCode < 300,
		Data:    data,
	})
}

// WriteSuccessResponse writes a 200 envelope.
func WriteSuccessResponse(w http.ResponseWriter, data interface{}) {
	WriteJSONResponse(w, http.StatusOK, data)
}

// WriteMessageResponse writes a 200 envelope with a message and optional data.
func WriteMessageResponse(w http.ResponseWriter, message string, data interface{}) {
	WriteJSON(w, http.StatusOK, APIResponse{Success: true, Message: message, Data: data})
}

// WriteCreatedResponse writes a 201 envelope.
func WriteCreatedResponse(w http.ResponseWriter, message string, data interface{}) {
	WriteJSON(w, http.StatusCreated, APIResponse{Success: true, Message: message, Data: data})
}

// WritePaginatedResponse writes a page of a listing.
func WritePaginatedResponse(w http.ResponseWriter, data interface{}, page models.Page, total int) {
	WriteJSON(w, http.StatusOK, APIResponse{
		Success:    true,
		Data:       data,
		Pagination: models.NewPagination(page, total),
	})
}

// WriteErrorResponse writes a failure envelope.
func WriteErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, APIResponse{Success: false, Message: message})
}

// WriteValidationErrorResponse writes a 400 with field-level messages.
func WriteValidationErrorResponse(w http.ResponseWriter, message string, errs []FieldError) {
	WriteJSON(w, http.StatusBadRequest, APIResponse{Success: false, Message: message, Errors: errs})
}

func WriteBadRequestResponse(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusBadRequest, message)
}

func WriteUnauthorizedResponse(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusUnauthorized, message)
}

func WriteForbiddenResponse(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusForbidden, message)
}

func WriteNotFoundResponse(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusNotFound, message)
}

func WriteConflictResponse(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusConflict, message)
}

// WriteInternalServerErrorResponse writes a 500. detail is only sent when
// non-empty, which callers restrict to development.
func WriteInternalServerErrorResponse(w http.ResponseWriter, message, detail string) {
	WriteJSON(w, http.StatusInternalServerError, APIResponse{Success: false, Message: message, Error: detail})
}

// ParseJSONBody decodes the request body into v.
func ParseJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// GetQueryParam returns the query parameter key or defaultValue.
func GetQueryParam(r *http.Request, key, defaultValue string) string {
	if value := r.URL.Query().Get(key); value != "" {
		return value
	}
	return defaultValue
}

// GetPage reads the page and limit query parameters.
func GetPage(r *http.Request) models.Page {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return models.Page{Number: page, Limit: limit}.Normalize()
}
