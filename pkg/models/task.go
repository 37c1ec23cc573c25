package models

import "time"

// TaskStatus is shared by tasks and subtasks.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskCancelled:
		return true
	}
	return false
}

// Task belongs to one project and one milestone of that same project.
type Task struct {
	ID             string       `json:"id" db:"id"`
	ProjectID      string       `json:"projectId" db:"project_id"`
	MilestoneID    string       `json:"milestoneId" db:"milestone_id"`
	Title          string       `json:"title" db:"title"`
	Description    string       `json:"description,omitempty" db:"description"`
	Status         TaskStatus   `json:"status" db:"status"`
	Priority       Priority     `json:"priority" db:"priority"`
	AssignedTo     []string     `json:"assignedTo" db:"assigned_to"`
	DueDate        *time.Time   `json:"dueDate,omitempty" db:"due_date"`
	EstimatedHours float64      `json:"estimatedHours" db:"estimated_hours"`
	ActualHours    float64      `json:"actualHours" db:"actual_hours"`
	CompletedAt    *time.Time   `json:"completedAt,omitempty" db:"completed_at"`
	CreatedBy      string       `json:"createdBy" db:"created_by"`
	Comments       []Comment    `json:"comments"`
	Attachments    []Attachment `json:"attachments"`
	CreatedAt      time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time    `json:"updatedAt" db:"updated_at"`
}

// IsAssigned reports whether userID is one of the task assignees.
func (t *Task) IsAssigned(userID string) bool {
	for _, id := range t.AssignedTo {
		if id == userID {
			return true
		}
	}
	return false
}

// IsOverdue reports whether the task is past due and still open.
func (t *Task) IsOverdue(now time.Time) bool {
	if t.DueDate == nil {
		return false
	}
	if t.Status == TaskCompleted || t.Status == TaskCancelled {
		return false
	}
	return t.DueDate.Before(now)
}

// TaskFilter narrows task listings. Empty fields match everything.
// ProjectIDs, when non-nil, restricts results to those projects.
type TaskFilter struct {
	ProjectID   string
	ProjectIDs  []string
	MilestoneID string
	Status      TaskStatus
	Priority    Priority
	AssignedTo  string
	Search      string
	Page        Page
}

// Subtask is the leaf-most unit of work; it belongs to exactly one task and
// does not contribute to progress.
type Subtask struct {
	ID          string       `json:"id" db:"id"`
	TaskID      string       `json:"taskId" db:"task_id"`
	CustomerID  string       `json:"customerId" db:"customer_id"`
	Title       string       `json:"title" db:"title"`
	Description string       `json:"description,omitempty" db:"description"`
	Sequence    int          `json:"sequence" db:"sequence"`
	Status      TaskStatus   `json:"status" db:"status"`
	AssignedTo  string       `json:"assignedTo,omitempty" db:"assigned_to"`
	Comments    []Comment    `json:"comments"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time    `json:"updatedAt" db:"updated_at"`
}
