package models

import "time"

type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "pending"
	MilestoneInProgress MilestoneStatus = "in-progress"
	MilestoneCompleted  MilestoneStatus = "completed"
	MilestoneOnHold     MilestoneStatus = "on-hold"
)

// Milestone belongs to exactly one project. Sequence is unique within the
// project; Progress is derived from the milestone's tasks.
type Milestone struct {
	ID          string          `json:"id" db:"id"`
	ProjectID   string          `json:"projectId" db:"project_id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description,omitempty" db:"description"`
	Sequence    int             `json:"sequence" db:"sequence"`
	Status      MilestoneStatus `json:"status" db:"status"`
	DueDate     *time.Time      `json:"dueDate,omitempty" db:"due_date"`
	CompletedAt *time.Time      `json:"completedAt,omitempty" db:"completed_at"`
	Progress    int             `json:"progress" db:"progress"`
	Comments    []Comment       `json:"comments"`
	Attachments []Attachment    `json:"attachments"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}
