package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"project-hub-backend/pkg/effects"
	"project-hub-backend/pkg/models"
)

// ProjectService manages projects and their teams.
type ProjectService struct {
	*Deps
}

// ProjectInput creates or updates a project. Progress is absent on purpose:
// it is derived.
type ProjectInput struct {
	Name             *string    `json:"name" validate:"omitnil,notblank,max=200"`
	Description      *string    `json:"description" validate:"omitnil,max=5000"`
	CustomerID       *string    `json:"customerId" validate:"omitnil,notblank"`
	ProjectManagerID *string    `json:"projectManagerId"`
	AssignedTeam     *[]string  `json:"assignedTeam"`
	Status           *string    `json:"status" validate:"omitnil,oneof=planning active on-hold completed cancelled"`
	Priority         *string    `json:"priority" validate:"omitnil,oneof=low medium high urgent"`
	StartDate        *time.Time `json:"startDate"`
	EndDate          *time.Time `json:"endDate"`
	Budget           *float64   `json:"budget" validate:"omitnil,gte=0"`
}

// newProject holds what a new project must carry.
type newProject struct {
	Name       *string `json:"name" validate:"required"`
	CustomerID *string `json:"customerId" validate:"required"`
}

// ProjectDetail is a project with its milestones in sequence order.
type ProjectDetail struct {
	*models.Project
	Milestones []models.Milestone `json:"milestones"`
}

func (in ProjectInput) apply(p *models.Project) {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.CustomerID != nil {
		p.CustomerID = *in.CustomerID
	}
	if in.ProjectManagerID != nil {
		p.ProjectManagerID = *in.ProjectManagerID
	}
	if in.AssignedTeam != nil {
		p.AssignedTeam = dedupe(*in.AssignedTeam)
	}
	if in.Status != nil {
		p.Status = models.ProjectStatus(*in.Status)
	}
	if in.Priority != nil {
		p.Priority = models.Priority(*in.Priority)
	}
	if in.StartDate != nil {
		p.StartDate = in.StartDate
	}
	if in.EndDate != nil {
		p.EndDate = in.EndDate
	}
	if in.Budget != nil {
		p.Budget = *in.Budget
	}
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// checkUserRole verifies that every id is an existing user of role.
func (d *Deps) checkUserRole(ctx context.Context, field string, role models.Role, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	users, err := d.Store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return storeErr(err, "User not found")
	}
	byID := make(map[string]models.Role, len(users))
	for _, u := range users {
		byID[u.ID] = u.Role
	}
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			return FieldInvalid(field, fmt.Sprintf("User %s not found", id))
		}
		if r != role {
			return FieldInvalid(field, fmt.Sprintf("User %s is not a %s", id, role))
		}
	}
	return nil
}

// checkReferences validates the cross-entity rules of a project.
func (s *ProjectService) checkReferences(ctx context.Context, p *models.Project) error {
	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		return FieldInvalid("endDate", "End date must be after start date")
	}
	if err := s.checkUserRole(ctx, "customerId", models.RoleCustomer, p.CustomerID); err != nil {
		return err
	}
	if err := s.checkUserRole(ctx, "projectManagerId", models.RolePM, p.ProjectManagerID); err != nil {
		return err
	}
	return s.checkUserRole(ctx, "assignedTeam", models.RoleEmployee, p.AssignedTeam...)
}

// List returns the projects actor can see: all for project managers, their
// own for customers, their team's for employees.
func (s *ProjectService) List(ctx context.Context, actor Actor, filter models.ProjectFilter) ([]models.Project, int, error) {
	switch actor.Role {
	case models.RolePM:
	case models.RoleCustomer:
		filter.CustomerID = actor.ID
	case models.RoleEmployee:
		filter.TeamMember = actor.ID
	default:
		return nil, 0, Forbidden("Invalid role")
	}

	projects, total, err := s.Store.ListProjects(ctx, filter)
	if err != nil {
		return nil, 0, storeErr(err, "Project not found")
	}
	return projects, total, nil
}

func (s *ProjectService) Get(ctx context.Context, actor Actor, id string) (*ProjectDetail, error) {
	project, err := s.loadProject(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	milestones, err := s.Store.ListMilestones(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Project not found")
	}
	return &ProjectDetail{Project: project, Milestones: milestones}, nil
}

func (s *ProjectService) Create(ctx context.Context, actor Actor, in ProjectInput) (*models.Project, effects.List, error) {
	if err := requirePM(actor); err != nil {
		return nil, nil, err
	}
	if err := checkStruct(newProject{Name: in.Name, CustomerID: in.CustomerID}, in); err != nil {
		return nil, nil, err
	}

	project := &models.Project{
		ProjectManagerID: actor.ID,
		Status:           models.ProjectPlanning,
		Priority:         models.PriorityMedium,
		AssignedTeam:     []string{},
	}
	in.apply(project)
	if err := s.checkReferences(ctx, project); err != nil {
		return nil, nil, err
	}

	if err := s.Store.CreateProject(ctx, project); err != nil {
		return nil, nil, storeErr(err, "Project not found")
	}
	return project, s.activity(actor, project.ID, "project", project.ID, "create", "Created project "+project.Name), nil
}

func (s *ProjectService) Update(ctx context.Context, actor Actor, id string, in ProjectInput) (*models.Project, effects.List, error) {
	if err := requirePM(actor); err != nil {
		return nil, nil, err
	}
	if err := checkStruct(in); err != nil {
		return nil, nil, err
	}

	project, err := s.Store.GetProject(ctx, id)
	if err != nil {
		return nil, nil, storeErr(err, "Project not found")
	}
	before := project.Status
	previousTeam := slices.Clone(project.AssignedTeam)
	in.apply(project)
	if err := s.checkReferences(ctx, project); err != nil {
		return nil, nil, err
	}

	if err := s.Store.UpdateProject(ctx, project); err != nil {
		return nil, nil, storeErr(err, "Project not found")
	}
	for _, member := range previousTeam {
		if !project.HasTeamMember(member) {
			if err := s.unassign(ctx, id, member); err != nil {
				return nil, nil, err
			}
		}
	}

	action, message := "update", "Updated project "+project.Name
	if project.Status != before {
		action, message = "status_change", fmt.Sprintf("Project %s moved to %s", project.Name, project.Status)
	}
	return project, s.activity(actor, project.ID, "project", project.ID, action, message), nil
}

// Delete removes the project with everything under it.
func (s *ProjectService) Delete(ctx context.Context, actor Actor, id string) (effects.List, error) {
	if err := requirePM(actor); err != nil {
		return nil, err
	}
	removed, err := s.Store.DeleteProject(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Project not found")
	}

	list := s.deleteBlobs(removed)
	list.Extend(s.activity(actor, "", "project", id, "delete", "Deleted project"))
	return list, nil
}

// AddTeamMember adds an employee to the project team. Adding a member twice
// is a no-op.
func (s *ProjectService) AddTeamMember(ctx context.Context, actor Actor, id, userID string) (*models.Project, effects.List, error) {
	if err := requirePM(actor); err != nil {
		return nil, nil, err
	}
	if userID == "" {
		return nil, nil, FieldInvalid("userId", "User is required")
	}
	project, err := s.Store.GetProject(ctx, id)
	if err != nil {
		return nil, nil, storeErr(err, "Project not found")
	}
	if err := s.checkUserRole(ctx, "userId", models.RoleEmployee, userID); err != nil {
		return nil, nil, err
	}
	if project.HasTeamMember(userID) {
		return project, nil, nil
	}

	project.AssignedTeam = append(project.AssignedTeam, userID)
	if err := s.Store.UpdateProject(ctx, project); err != nil {
		return nil, nil, storeErr(err, "Project not found")
	}
	return project, s.activity(actor, id, "project", id, "team_add", "Added team member "+userID), nil
}

// RemoveTeamMember removes an employee from the team and unassigns them
// from the project's tasks.
func (s *ProjectService) RemoveTeamMember(ctx context.Context, actor Actor, id, userID string) (*models.Project, effects.List, error) {
	if err := requirePM(actor); err != nil {
		return nil, nil, err
	}
	project, err := s.Store.GetProject(ctx, id)
	if err != nil {
		return nil, nil, storeErr(err, "Project not found")
	}
	if !project.HasTeamMember(userID) {
		return nil, nil, NotFound("User is not on the project team")
	}

	project.AssignedTeam = slices.DeleteFunc(project.AssignedTeam, func(m string) bool { return m == userID })
	if err := s.Store.UpdateProject(ctx, project); err != nil {
		return nil, nil, storeErr(err, "Project not found")
	}

	if err := s.unassign(ctx, id, userID); err != nil {
		return nil, nil, err
	}
	return project, s.activity(actor, id, "project", id, "team_remove", "Removed team member "+userID), nil
}

// unassign drops userID from the assignees of every task of the project.
func (s *ProjectService) unassign(ctx context.Context, projectID, userID string) error {
	tasks, _, err := s.Store.ListTasks(ctx, models.TaskFilter{ProjectID: projectID, AssignedTo: userID})
	if err != nil {
		return storeErr(err, "Task not found")
	}
	for i := range tasks {
		t := &tasks[i]
		t.AssignedTo = slices.DeleteFunc(t.AssignedTo, func(m string) bool { return m == userID })
		if err := s.Store.UpdateTask(ctx, t); err != nil {
			return storeErr(err, "Task not found")
		}
	}
	return nil
}

// Stats summarizes the milestones and tasks of a project.
func (s *ProjectService) Stats(ctx context.Context, actor Actor, id string) (*models.ProjectStats, error) {
	project, err := s.loadProject(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	milestones, err := s.Store.ListMilestones(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Project not found")
	}
	tasks, _, err := s.Store.ListTasks(ctx, models.TaskFilter{ProjectID: id})
	if err != nil {
		return nil, storeErr(err, "Project not found")
	}

	stats := &models.ProjectStats{
		Progress:           project.Progress,
		TotalMilestones:    len(milestones),
		MilestonesByStatus: map[models.MilestoneStatus]int{},
		TotalTasks:         len(tasks),
		TasksByStatus:      map[models.TaskStatus]int{},
		TeamSize:           len(project.AssignedTeam),
	}
	for _, m := range milestones {
		stats.MilestonesByStatus[m.Status]++
	}
	now := time.Now()
	for i := range tasks {
		stats.TasksByStatus[tasks[i].Status]++
		if tasks[i].IsOverdue(now) {
			stats.OverdueTasks++
		}
	}
	return stats, nil
}

// RecalculateProgress recomputes every milestone and the project itself.
// Unlike the automatic triggers it reports failures.
func (s *ProjectService) RecalculateProgress(ctx context.Context, actor Actor, id string) (int, error) {
	if err := requirePM(actor); err != nil {
		return 0, err
	}
	if _, err := s.Store.GetProject(ctx, id); err != nil {
		return 0, storeErr(err, "Project not found")
	}
	pct, err := s.Rollup.RecalculateProject(ctx, id)
	if err != nil {
		return 0, storeErr(err, "Project not found")
	}
	return pct, nil
}
