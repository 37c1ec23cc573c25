package services

import (
	"context"
	"time"

	"project-hub-backend/pkg/models"
)

// DashboardService builds the role-specific summaries.
type DashboardService struct {
	*Deps
}

type CustomerDashboard struct {
	TotalProjects       int                          `json:"totalProjects"`
	ProjectsByStatus    map[models.ProjectStatus]int `json:"projectsByStatus"`
	AverageProgress     int                          `json:"averageProgress"`
	PendingTaskRequests int                          `json:"pendingTaskRequests"`
	RecentProjects      []models.Project             `json:"recentProjects"`
}

type EmployeeDashboard struct {
	TotalTasks    int                       `json:"totalTasks"`
	TasksByStatus map[models.TaskStatus]int `json:"tasksByStatus"`
	OverdueTasks  int                       `json:"overdueTasks"`
	Projects      int                       `json:"projects"`
	UpcomingTasks []models.Task             `json:"upcomingTasks"`
}

const recentItems = 5

func (s *DashboardService) Customer(ctx context.Context, actor Actor) (*CustomerDashboard, error) {
	if actor.Role != models.RoleCustomer {
		return nil, Forbidden("Customer access required")
	}
	projects, _, err := s.Store.ListProjects(ctx, models.ProjectFilter{CustomerID: actor.ID})
	if err != nil {
		return nil, storeErr(err, "Project not found")
	}
	_, pending, err := s.Store.ListTaskRequests(ctx, models.TaskRequestFilter{
		RequestedBy: actor.ID,
		Status:      models.RequestPending,
		Page:        models.Page{Number: 1, Limit: 1},
	})
	if err != nil {
		return nil, storeErr(err, "Task request not found")
	}

	d := &CustomerDashboard{
		TotalProjects:       len(projects),
		ProjectsByStatus:    map[models.ProjectStatus]int{},
		PendingTaskRequests: pending,
		RecentProjects:      projects[:min(len(projects), recentItems)],
	}
	sum := 0
	for _, p := range projects {
		d.ProjectsByStatus[p.Status]++
		sum += p.Progress
	}
	if len(projects) > 0 {
		d.AverageProgress = (2*sum + len(projects)) / (2 * len(projects))
	}
	return d, nil
}

func (s *DashboardService) Employee(ctx context.Context, actor Actor) (*EmployeeDashboard, error) {
	if actor.Role != models.RoleEmployee {
		return nil, Forbidden("Employee access required")
	}
	tasks, _, err := s.Store.ListTasks(ctx, models.TaskFilter{AssignedTo: actor.ID})
	if err != nil {
		return nil, storeErr(err, "Task not found")
	}
	_, projects, err := s.Store.ListProjects(ctx, models.ProjectFilter{
		TeamMember: actor.ID,
		Page:       models.Page{Number: 1, Limit: 1},
	})
	if err != nil {
		return nil, storeErr(err, "Project not found")
	}

	d := &EmployeeDashboard{
		TotalTasks:    len(tasks),
		TasksByStatus: map[models.TaskStatus]int{},
		Projects:      projects,
		UpcomingTasks: []models.Task{},
	}
	now := time.Now()
	for i := range tasks {
		t := &tasks[i]
		d.TasksByStatus[t.Status]++
		if t.IsOverdue(now) {
			d.OverdueTasks++
		}
		if t.DueDate != nil && !t.DueDate.Before(now) && t.Status != models.TaskCompleted &&
			t.Status != models.TaskCancelled && len(d.UpcomingTasks) < recentItems {
			d.UpcomingTasks = append(d.UpcomingTasks, *t)
		}
	}
	return d, nil
}
