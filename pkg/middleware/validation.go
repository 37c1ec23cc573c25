package middleware

import (
	"mime"
	"net/http"

	"project-hub-backend/pkg/utils"
)

// ContentTypeJSON requires a JSON (or, for uploads, multipart) body on
// requests that carry one. Bodyless requests pass.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			contentType := r.Header.Get("Content-Type")
			if contentType == "" {
				if r.ContentLength > 0 {
					utils.WriteBadRequestResponse(w, "Content-Type header is required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			mediaType, _, err := mime.ParseMediaType(contentType)
			if err != nil || (mediaType != "application/json" && mediaType != "multipart/form-data") {
				utils.WriteBadRequestResponse(w, "Content-Type must be application/json")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// MaxBodySize caps the request body at maxBytes.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
