package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"project-hub-backend/pkg/models"
	"project-hub-backend/pkg/services"
	"project-hub-backend/pkg/utils"
)

// DiscussionHandler serves the comments and attachments embedded in
// projects, milestones, tasks and subtasks. Each method takes the parent kind
// and returns the handler mounted under that resource.
type DiscussionHandler struct {
	*base
}

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

func parentRef(kind models.ParentKind, r *http.Request) models.ParentRef {
	return models.ParentRef{Kind: kind, ID: chi.URLParam(r, "id")}
}

// GET /api/{parent}/{id}/comments
func (h *DiscussionHandler) ListComments(kind models.ParentKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		comments, err := h.svc.Discussion.Comments(r.Context(), actor, parentRef(kind, r))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		utils.WriteSuccessResponse(w, comments)
	}
}

// POST /api/{parent}/{id}/comments  {"message": "..."}
func (h *DiscussionHandler) AddComment(kind models.ParentKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		var req struct {
			Message string `json:"message"`
		}
		if !h.decode(w, r, &req) {
			return
		}
		comment, list, err := h.svc.Discussion.AddComment(r.Context(), actor, parentRef(kind, r), req.Message)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.dispatch(r, list)
		utils.WriteCreatedResponse(w, "Comment added", comment)
	}
}

// DELETE /api/{parent}/{id}/comments/{commentId}
func (h *DiscussionHandler) DeleteComment(kind models.ParentKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		list, err := h.svc.Discussion.DeleteComment(r.Context(), actor, parentRef(kind, r), chi.URLParam(r, "commentId"))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.dispatch(r, list)
		utils.WriteMessageResponse(w, "Comment deleted", nil)
	}
}

// POST /api/{parent}/{id}/attachments
//
// multipart/form-data: binary parts under "files", plus an optional
// "metadata" field holding {"description": "..."}.
func (h *DiscussionHandler) UploadAttachments(kind models.ParentKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				utils.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, "Upload too large")
				return
			}
			utils.WriteBadRequestResponse(w, "Expected a multipart/form-data body")
			return
		}
		defer r.MultipartForm.RemoveAll()

		var meta struct {
			Description string `json:"description"`
		}
		if raw := r.FormValue("metadata"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &meta); err != nil {
				h.writeError(w, r, services.FieldInvalid("metadata", "Metadata must be a JSON object"))
				return
			}
		}

		headers := r.MultipartForm.File["files"]
		uploads := make([]services.Upload, 0, len(headers))
		for _, fh := range headers {
			uploads = append(uploads, upload(fh))
		}

		attachments, list, err := h.svc.Discussion.Upload(r.Context(), actor, parentRef(kind, r), uploads, meta.Description)
		// Cleanup effects come back together with the error.
		h.dispatch(r, list)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		utils.WriteCreatedResponse(w, "Files uploaded", attachments)
	}
}

func upload(fh *multipart.FileHeader) services.Upload {
	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return services.Upload{
		Filename: fh.Filename,
		MimeType: mimeType,
		Size:     fh.Size,
		Open:     func() (io.ReadCloser, error) { return fh.Open() },
	}
}

// DELETE /api/{parent}/{id}/attachments/{attachmentId}
func (h *DiscussionHandler) DeleteAttachment(kind models.ParentKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		list, err := h.svc.Discussion.DeleteAttachment(r.Context(), actor, parentRef(kind, r), chi.URLParam(r, "attachmentId"))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.dispatch(r, list)
		utils.WriteMessageResponse(w, "Attachment deleted", nil)
	}
}

// GET /api/{parent}/{id}/attachments/{attachmentId}
func (h *DiscussionHandler) DownloadAttachment(kind models.ParentKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		a, blob, err := h.svc.Discussion.Download(r.Context(), actor, parentRef(kind, r), chi.URLParam(r, "attachmentId"))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		defer blob.Close()

		w.Header().Set("Content-Type", a.MimeType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))
		http.ServeContent(w, r, a.Filename, a.UploadedAt, blob)
	}
}

// Mount registers the comment and attachment routes of kind on r, which is
// expected to be scoped to "/{id}".
func (h *DiscussionHandler) Mount(r chi.Router, kind models.ParentKind) {
	r.Get("/comments", h.ListComments(kind))
	r.Post("/comments", h.AddComment(kind))
	r.Delete("/comments/{commentId}", h.DeleteComment(kind))
	r.Post("/attachments", h.UploadAttachments(kind))
	r.Get("/attachments/{attachmentId}", h.DownloadAttachment(kind))
	r.Delete("/attachments/{attachmentId}", h.DeleteAttachment(kind))
}
