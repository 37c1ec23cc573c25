package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"project-hub-backend/pkg/effects"
	"project-hub-backend/pkg/models"
	"project-hub-backend/pkg/storage"
)

type commentInput struct {
	Message string `json:"message" validate:"required,max=2000"`
}

// DiscussionService handles the comments and attachments embedded in
// projects, milestones, tasks and subtasks.
type DiscussionService struct {
	*Deps
}

// Upload is one file of an attachment upload.
type Upload struct {
	Filename string
	MimeType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// resolveParent finds the project that owns ref and runs the gate on it.
func (s *DiscussionService) resolveParent(ctx context.Context, actor Actor, ref models.ParentRef) (*models.Project, error) {
	var projectID string
	switch ref.Kind {
	case models.ParentProject:
		projectID = ref.ID
	case models.ParentMilestone:
		m, err := s.Store.GetMilestone(ctx, ref.ID)
		if err != nil {
			return nil, storeErr(err, "Milestone not found")
		}
		projectID = m.ProjectID
	case models.ParentTask:
		t, err := s.Store.GetTask(ctx, ref.ID)
		if err != nil {
			return nil, storeErr(err, "Task not found")
		}
		projectID = t.ProjectID
	case models.ParentSubtask:
		st, err := s.Store.GetSubtask(ctx, ref.ID)
		if err != nil {
			return nil, storeErr(err, "Subtask not found")
		}
		t, err := s.Store.GetTask(ctx, st.TaskID)
		if err != nil {
			return nil, storeErr(err, "Task not found")
		}
		projectID = t.ProjectID
	default:
		return nil, NotFound("Unknown resource type")
	}
	return s.loadProject(ctx, actor, projectID)
}

func notFoundMessage(kind models.ParentKind) string {
	switch kind {
	case models.ParentMilestone:
		return "Milestone not found"
	case models.ParentTask:
		return "Task not found"
	case models.ParentSubtask:
		return "Subtask not found"
	default:
		return "Project not found"
	}
}

func (s *DiscussionService) Comments(ctx context.Context, actor Actor, ref models.ParentRef) ([]models.Comment, error) {
	if _, err := s.resolveParent(ctx, actor, ref); err != nil {
		return nil, err
	}
	comments, err := s.Store.ListComments(ctx, ref)
	if err != nil {
		return nil, storeErr(err, notFoundMessage(ref.Kind))
	}
	return comments, nil
}

// AddComment appends a comment authored by actor.
func (s *DiscussionService) AddComment(ctx context.Context, actor Actor, ref models.ParentRef, message string) (*models.Comment, effects.List, error) {
	message = strings.TrimSpace(message)
	if err := checkStruct(commentInput{Message: message}); err != nil {
		return nil, nil, err
	}

	project, err := s.resolveParent(ctx, actor, ref)
	if err != nil {
		return nil, nil, err
	}
	author, err := s.Store.GetUserByID(ctx, actor.ID)
	if err != nil {
		return nil, nil, storeErr(err, "User not found")
	}

	c := &models.Comment{
		ID:         uuid.New().String(),
		Author:     actor.ID,
		AuthorName: author.Name,
		Message:    message,
		Timestamp:  time.Now(),
	}
	if err := s.Store.AddComment(ctx, ref, c); err != nil {
		return nil, nil, storeErr(err, notFoundMessage(ref.Kind))
	}
	return c, s.activity(actor, project.ID, string(ref.Kind), ref.ID, "comment", author.Name+" commented"), nil
}

// DeleteComment removes a comment. Only its author may do this.
func (s *DiscussionService) DeleteComment(ctx context.Context, actor Actor, ref models.ParentRef, commentID string) (effects.List, error) {
	project, err := s.resolveParent(ctx, actor, ref)
	if err != nil {
		return nil, err
	}
	c, err := s.Store.GetComment(ctx, ref, commentID)
	if err != nil {
		return nil, storeErr(err, "Comment not found")
	}
	if c.Author != actor.ID {
		return nil, Forbidden("You can only delete your own comments")
	}
	if err := s.Store.DeleteComment(ctx, ref, commentID); err != nil {
		return nil, storeErr(err, "Comment not found")
	}
	return s.activity(actor, project.ID, string(ref.Kind), ref.ID, "comment_delete", "Deleted a comment"), nil
}

// Upload stores the files and records them as attachments of ref. When the
// upload fails part way, the returned effects delete the blobs already
// stored; callers dispatch them even when err is non-nil.
func (s *DiscussionService) Upload(ctx context.Context, actor Actor, ref models.ParentRef, files []Upload, description string) ([]models.Attachment, effects.List, error) {
	if err := s.checkUploads(files); err != nil {
		return nil, nil, err
	}
	project, err := s.resolveParent(ctx, actor, ref)
	if err != nil {
		return nil, nil, err
	}

	attachments := make([]models.Attachment, 0, len(files))
	for _, f := range files {
		a, err := s.store(ctx, actor, ref, f, description)
		if err != nil {
			return nil, s.deleteBlobs(attachments), err
		}
		attachments = append(attachments, *a)
	}

	if err := s.Store.AddAttachments(ctx, ref, attachments); err != nil {
		return nil, s.deleteBlobs(attachments), storeErr(err, notFoundMessage(ref.Kind))
	}

	list := s.activity(actor, project.ID, string(ref.Kind), ref.ID, "attachment",
		fmt.Sprintf("Uploaded %d file(s)", len(attachments)))
	return attachments, list, nil
}

func (s *DiscussionService) checkUploads(files []Upload) error {
	if len(files) == 0 {
		return FieldInvalid("files", "No files uploaded")
	}
	if limit := s.Config.MaxUploadFiles; limit > 0 && len(files) > limit {
		return FieldInvalid("files", fmt.Sprintf("At most %d files can be uploaded at once", limit))
	}
	var fields []FieldError
	for _, f := range files {
		switch {
		case f.Filename == "":
			fields = append(fields, FieldError{Field: "files", Message: "File name is required"})
		case s.Config.MaxUploadBytes > 0 && f.Size > s.Config.MaxUploadBytes:
			fields = append(fields, FieldError{Field: "files",
				Message: fmt.Sprintf("File %s exceeds the %d byte limit", f.Filename, s.Config.MaxUploadBytes)})
		}
	}
	if len(fields) > 0 {
		return Validation("Validation failed", fields...)
	}
	return nil
}

func (s *DiscussionService) store(ctx context.Context, actor Actor, ref models.ParentRef, f Upload, description string) (*models.Attachment, error) {
	r, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", f.Filename, err)
	}
	defer r.Close()

	obj, err := s.Blobs.Put(ctx, f.Filename, r)
	if err != nil {
		return nil, fmt.Errorf("store upload %s: %w", f.Filename, err)
	}
	id := uuid.New().String()
	return &models.Attachment{
		ID:          id,
		Filename:    f.Filename,
		URL:         s.downloadURL(ref, id),
		StorageKey:  obj.Key,
		Size:        obj.Size,
		MimeType:    f.MimeType,
		Description: description,
		UploadedBy:  actor.ID,
		UploadedAt:  time.Now(),
	}, nil
}

// downloadURL is the gated route an attachment is fetched from.
func (s *DiscussionService) downloadURL(ref models.ParentRef, attachmentID string) string {
	return fmt.Sprintf("%s/api/%ss/%s/attachments/%s", s.Config.PublicBaseURL, ref.Kind, ref.ID, attachmentID)
}

// Download opens the blob of an attachment for an actor who may see its
// parent. The caller closes the returned reader.
func (s *DiscussionService) Download(ctx context.Context, actor Actor, ref models.ParentRef, attachmentID string) (*models.Attachment, io.ReadSeekCloser, error) {
	if _, err := s.resolveParent(ctx, actor, ref); err != nil {
		return nil, nil, err
	}
	a, err := s.Store.GetAttachment(ctx, ref, attachmentID)
	if err != nil {
		return nil, nil, storeErr(err, "Attachment not found")
	}
	blob, err := s.Blobs.Open(ctx, a.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, &Error{Kind: KindNotFound, Message: "Attachment file not found", Err: err}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open attachment %s: %w", a.ID, err)
	}
	return a, blob, nil
}

// DeleteAttachment removes an attachment entry and schedules the blob for
// deletion. The uploader or a project manager may do this.
func (s *DiscussionService) DeleteAttachment(ctx context.Context, actor Actor, ref models.ParentRef, attachmentID string) (effects.List, error) {
	project, err := s.resolveParent(ctx, actor, ref)
	if err != nil {
		return nil, err
	}
	a, err := s.Store.GetAttachment(ctx, ref, attachmentID)
	if err != nil {
		return nil, storeErr(err, "Attachment not found")
	}
	if !actor.IsPM() && a.UploadedBy != actor.ID {
		return nil, Forbidden("You can only delete your own attachments")
	}
	if err := s.Store.DeleteAttachment(ctx, ref, attachmentID); err != nil {
		return nil, storeErr(err, "Attachment not found")
	}

	list := s.deleteBlobs([]models.Attachment{*a})
	list.Extend(s.activity(actor, project.ID, string(ref.Kind), ref.ID, "attachment_delete", "Deleted attachment "+a.Filename))
	return list, nil
}
