package models

import "time"

type TaskRequestStatus string

const (
	RequestPending  TaskRequestStatus = "pending"
	RequestApproved TaskRequestStatus = "approved"
	RequestRejected TaskRequestStatus = "rejected"
)

// TaskRequest is a customer's ask for new work on their project. Approving it
// creates a Task.
type TaskRequest struct {
	ID          string            `json:"id" db:"id"`
	ProjectID   string            `json:"projectId" db:"project_id"`
	MilestoneID string            `json:"milestoneId,omitempty" db:"milestone_id"`
	RequestedBy string            `json:"requestedBy" db:"requested_by"`
	Title       string            `json:"title" db:"title"`
	Description string            `json:"description,omitempty" db:"description"`
	Priority    Priority          `json:"priority" db:"priority"`
	Status      TaskRequestStatus `json:"status" db:"status"`
	ReviewedBy  string            `json:"reviewedBy,omitempty" db:"reviewed_by"`
	ReviewNote  string            `json:"reviewNote,omitempty" db:"review_note"`
	ReviewedAt  *time.Time        `json:"reviewedAt,omitempty" db:"reviewed_at"`
	TaskID      string            `json:"taskId,omitempty" db:"task_id"`
	CreatedAt   time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time         `json:"updatedAt" db:"updated_at"`
}

// TaskRequestFilter narrows task request listings.
type TaskRequestFilter struct {
	ProjectID   string
	ProjectIDs  []string
	RequestedBy string
	Status      TaskRequestStatus
	Page        Page
}
