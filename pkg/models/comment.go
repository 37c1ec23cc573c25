package models

import "time"

// ParentKind names the entity types that carry comments and attachments.
type ParentKind string

const (
	ParentProject   ParentKind = "project"
	ParentMilestone ParentKind = "milestone"
	ParentTask      ParentKind = "task"
	ParentSubtask   ParentKind = "subtask"
)

// ParentRef points at the entity a comment or attachment is embedded in.
type ParentRef struct {
	Kind ParentKind
	ID   string
}

// Comment is embedded in its parent entity.
type Comment struct {
	ID         string    `json:"id" db:"id"`
	Author     string    `json:"author" db:"author_id"`
	AuthorName string    `json:"authorName,omitempty" db:"author_name"`
	Message    string    `json:"message" db:"message"`
	Timestamp  time.Time `json:"timestamp" db:"created_at"`
}

// Attachment is embedded in its parent entity. StorageKey locates the blob
// in the blob store.
type Attachment struct {
	ID          string    `json:"id" db:"id"`
	Filename    string    `json:"filename" db:"filename"`
	URL         string    `json:"url" db:"url"`
	StorageKey  string    `json:"-" db:"storage_key"`
	Size        int64     `json:"size" db:"size"`
	MimeType    string    `json:"mimetype" db:"mimetype"`
	Description string    `json:"description,omitempty" db:"description"`
	UploadedBy  string    `json:"uploadedBy" db:"uploaded_by"`
	UploadedAt  time.Time `json:"uploadedAt" db:"uploaded_at"`
}
