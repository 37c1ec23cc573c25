package models

import "time"

type ProjectStatus string

const (
	ProjectPlanning  ProjectStatus = "planning"
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on-hold"
	ProjectCompleted ProjectStatus = "completed"
	ProjectCancelled ProjectStatus = "cancelled"
)

// Priority is shared by projects, tasks and task requests.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Project is owned by one customer, managed by one PM and staffed by a team.
// Progress is derived by the rollup engine and never set by clients.
type Project struct {
	ID               string        `json:"id" db:"id"`
	Name             string        `json:"name" db:"name"`
	Description      string        `json:"description,omitempty" db:"description"`
	CustomerID       string        `json:"customerId" db:"customer_id"`
	ProjectManagerID string        `json:"projectManagerId" db:"project_manager_id"`
	AssignedTeam     []string      `json:"assignedTeam" db:"assigned_team"`
	Status           ProjectStatus `json:"status" db:"status"`
	Priority         Priority      `json:"priority" db:"priority"`
	StartDate        *time.Time    `json:"startDate,omitempty" db:"start_date"`
	EndDate          *time.Time    `json:"endDate,omitempty" db:"end_date"`
	Budget           float64       `json:"budget" db:"budget"`
	Progress         int           `json:"progress" db:"progress"`
	Comments         []Comment     `json:"comments"`
	Attachments      []Attachment  `json:"attachments"`
	CreatedAt        time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time     `json:"updatedAt" db:"updated_at"`
}

// HasTeamMember reports whether userID is on the project team.
func (p *Project) HasTeamMember(userID string) bool {
	for _, id := range p.AssignedTeam {
		if id == userID {
			return true
		}
	}
	return false
}

// ProjectFilter narrows project listings. Empty fields match everything.
type ProjectFilter struct {
	CustomerID string
	TeamMember string
	Status     ProjectStatus
	Priority   Priority
	Search     string
	Page       Page
}

// ProjectStats summarizes the children of a project.
type ProjectStats struct {
	Progress           int                     `json:"progress"`
	TotalMilestones    int                     `json:"totalMilestones"`
	MilestonesByStatus map[MilestoneStatus]int `json:"milestonesByStatus"`
	TotalTasks         int                     `json:"totalTasks"`
	TasksByStatus      map[TaskStatus]int      `json:"tasksByStatus"`
	OverdueTasks       int                     `json:"overdueTasks"`
	TeamSize           int                     `json:"teamSize"`
}
