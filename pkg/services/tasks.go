package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"project-hub-backend/pkg/effects"
	"project-hub-backend/pkg/models"
)

// TaskService manages tasks and drives milestone and project progress.
type TaskService struct {
	*Deps
}

type TaskInput struct {
	ProjectID      *string    `json:"projectId" validate:"omitnil,notblank"`
	MilestoneID    *string    `json:"milestoneId" validate:"omitnil,notblank"`
	Title          *string    `json:"title" validate:"omitnil,notblank,max=200"`
	Description    *string    `json:"description"`
	Status         *string    `json:"status" validate:"omitnil,oneof=pending in-progress completed cancelled"`
	Priority       *string    `json:"priority" validate:"omitnil,oneof=low medium high urgent"`
	AssignedTo     *[]string  `json:"assignedTo"`
	DueDate        *time.Time `json:"dueDate"`
	EstimatedHours *float64   `json:"estimatedHours" validate:"omitnil,gte=0"`
	ActualHours    *float64   `json:"actualHours" validate:"omitnil,gte=0"`
}

type newTask struct {
	ProjectID   *string `json:"projectId" validate:"required"`
	MilestoneID *string `json:"milestoneId" validate:"required"`
	Title       *string `json:"title" validate:"required"`
}

func (in TaskInput) apply(t *models.Task) {
	if in.MilestoneID != nil {
		t.MilestoneID = *in.MilestoneID
	}
	if in.Title != nil {
		t.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Status != nil {
		t.Status = models.TaskStatus(*in.Status)
	}
	if in.Priority != nil {
		t.Priority = models.Priority(*in.Priority)
	}
	if in.AssignedTo != nil {
		t.AssignedTo = dedupe(*in.AssignedTo)
	}
	if in.DueDate != nil {
		t.DueDate = in.DueDate
	}
	if in.EstimatedHours != nil {
		t.EstimatedHours = *in.EstimatedHours
	}
	if in.ActualHours != nil {
		t.ActualHours = *in.ActualHours
	}
	t.CompletedAt = completion(t.CompletedAt, t.Status == models.TaskCompleted)
}

// checkMilestone requires milestoneID to belong to projectID. A milestone of
// another project is reported as missing.
func (d *Deps) checkMilestone(ctx context.Context, projectID, milestoneID string) error {
	m, err := d.Store.GetMilestone(ctx, milestoneID)
	if err != nil {
		return storeErr(err, "Milestone not found")
	}
	if m.ProjectID != projectID {
		return NotFound("Milestone not found in this project")
	}
	return nil
}

// checkAssignees requires every assignee to be an employee on the team.
func (d *Deps) checkAssignees(ctx context.Context, project *models.Project, assignees []string) error {
	if err := d.checkUserRole(ctx, "assignedTo", models.RoleEmployee, assignees...); err != nil {
		return err
	}
	for _, id := range assignees {
		if !project.HasTeamMember(id) {
			return FieldInvalid("assignedTo", fmt.Sprintf("User %s is not on the project team", id))
		}
	}
	return nil
}

// List returns tasks visible to actor. Non-managers only see tasks of
// projects they can access; employees without a project filter only see
// their own assignments.
func (s *TaskService) List(ctx context.Context, actor Actor, filter models.TaskFilter) ([]models.Task, int, error) {
	if !actor.IsPM() {
		if filter.ProjectID != "" {
			if _, err := s.loadProject(ctx, actor, filter.ProjectID); err != nil {
				return nil, 0, err
			}
		} else {
			ids, err := s.accessibleProjectIDs(ctx, actor)
			if err != nil {
				return nil, 0, err
			}
			filter.ProjectIDs = ids
			if actor.Role == models.RoleEmployee {
				filter.AssignedTo = actor.ID
			}
		}
	}

	tasks, total, err := s.Store.ListTasks(ctx, filter)
	if err != nil {
		return nil, 0, storeErr(err, "Task not found")
	}
	return tasks, total, nil
}

// ListAssigned returns the tasks assigned to actor across all projects.
func (s *TaskService) ListAssigned(ctx context.Context, actor Actor, filter models.TaskFilter) ([]models.Task, int, error) {
	filter.AssignedTo = actor.ID
	tasks, total, err := s.Store.ListTasks(ctx, filter)
	if err != nil {
		return nil, 0, storeErr(err, "Task not found")
	}
	return tasks, total, nil
}

// load fetches a task and runs the gate on its project.
func (s *TaskService) load(ctx context.Context, actor Actor, id string) (*models.Task, *models.Project, error) {
	t, err := s.Store.GetTask(ctx, id)
	if err != nil {
		return nil, nil, storeErr(err, "Task not found")
	}
	project, err := s.loadProject(ctx, actor, t.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return t, project, nil
}

func (s *TaskService) Get(ctx context.Context, actor Actor, id string) (*models.Task, error) {
	t, _, err := s.load(ctx, actor, id)
	return t, err
}

func (s *TaskService) Create(ctx context.Context, actor Actor, in TaskInput) (*models.Task, effects.List, error) {
	if err := requirePM(actor); err != nil {
		return nil, nil, err
	}
	if err := checkStruct(newTask{ProjectID: in.ProjectID, MilestoneID: in.MilestoneID, Title: in.Title}, in); err != nil {
		return nil, nil, err
	}

	project, err := s.Store.GetProject(ctx, *in.ProjectID)
	if err != nil {
		return nil, nil, storeErr(err, "Project not found")
	}
	t := &models.Task{
		ProjectID:  project.ID,
		Status:     models.TaskPending,
		Priority:   models.PriorityMedium,
		AssignedTo: []string{},
		CreatedBy:  actor.ID,
	}
	in.apply(t)
	if err := s.checkMilestone(ctx, t.ProjectID, t.MilestoneID); err != nil {
		return nil, nil, err
	}
	if err := s.checkAssignees(ctx, project, t.AssignedTo); err != nil {
		return nil, nil, err
	}

	if err := s.Store.CreateTask(ctx, t); err != nil {
		return nil, nil, storeErr(err, "Milestone not found")
	}
	s.Rollup.TaskChanged(ctx, t)

	return t, s.activity(actor, t.ProjectID, "task", t.ID, "create", "Created task "+t.Title), nil
}

func (s *TaskService) Update(ctx context.Context, actor Actor, id string, in TaskInput) (*models.Task, effects.List, error) {
	if err := requirePM(actor); err != nil {
		return nil, nil, err
	}
	if err := checkStruct(in); err != nil {
		return nil, nil, err
	}

	t, err := s.Store.GetTask(ctx, id)
	if err != nil {
		return nil, nil, storeErr(err, "Task not found")
	}
	if in.ProjectID != nil && *in.ProjectID != t.ProjectID {
		return nil, nil, FieldInvalid("projectId", "Tasks cannot move between projects")
	}
	project, err := s.Store.GetProject(ctx, t.ProjectID)
	if err != nil {
		return nil, nil, storeErr(err, "Project not found")
	}

	fromMilestone, before := t.MilestoneID, t.Status
	in.apply(t)
	if t.MilestoneID != fromMilestone {
		if err := s.checkMilestone(ctx, t.ProjectID, t.MilestoneID); err != nil {
			return nil, nil, err
		}
	}
	if in.AssignedTo != nil {
		if err := s.checkAssignees(ctx, project, t.AssignedTo); err != nil {
			return nil, nil, err
		}
	}

	if err := s.Store.UpdateTask(ctx, t); err != nil {
		return nil, nil, storeErr(err, "Task not found")
	}
	if t.MilestoneID != fromMilestone || t.Status != before {
		s.Rollup.TaskMoved(ctx, t, fromMilestone)
	}

	return t, s.activity(actor, t.ProjectID, "task", t.ID, "update", "Updated task "+t.Title), nil
}

// UpdateStatus changes the status of a task. Project managers and the
// task's assignees may do this.
func (s *TaskService) UpdateStatus(ctx context.Context, actor Actor, id, status string) (*models.Task, effects.List, error) {
	if !models.TaskStatus(status).Valid() {
		return nil, nil, FieldInvalid("status", "Invalid task status")
	}
	t, _, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	if !actor.IsPM() && !t.IsAssigned(actor.ID) {
		return nil, nil, Forbidden("Only project managers or assignees can update this task")
	}
	if t.Status == models.TaskStatus(status) {
		return t, nil, nil
	}

	t.Status = models.TaskStatus(status)
	t.CompletedAt = completion(t.CompletedAt, t.Status == models.TaskCompleted)
	if err := s.Store.UpdateTask(ctx, t); err != nil {
		return nil, nil, storeErr(err, "Task not found")
	}
	s.Rollup.TaskChanged(ctx, t)

	return t, s.activity(actor, t.ProjectID, "task", t.ID, "status_change",
		fmt.Sprintf("Task %s moved to %s", t.Title, t.Status)), nil
}

// Assign replaces the assignees of a task.
func (s *TaskService) Assign(ctx context.Context, actor Actor, id string, assignees []string) (*models.Task, effects.List, error) {
	if err := requirePM(actor); err != nil {
		return nil, nil, err
	}
	t, project, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	t.AssignedTo = dedupe(assignees)
	if err := s.checkAssignees(ctx, project, t.AssignedTo); err != nil {
		return nil, nil, err
	}
	if err := s.Store.UpdateTask(ctx, t); err != nil {
		return nil, nil, storeErr(err, "Task not found")
	}
	return t, s.activity(actor, t.ProjectID, "task", t.ID, "assign", "Updated assignees of task "+t.Title), nil
}

// Delete removes the task with its subtasks and recomputes its ancestors.
func (s *TaskService) Delete(ctx context.Context, actor Actor, id string) (effects.List, error) {
	if err := requirePM(actor); err != nil {
		return nil, err
	}
	t, err := s.Store.GetTask(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Task not found")
	}
	removed, err := s.Store.DeleteTask(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Task not found")
	}
	s.Rollup.TaskChanged(ctx, t)

	list := s.deleteBlobs(removed)
	list.Extend(s.activity(actor, t.ProjectID, "task", id, "delete", "Deleted task "+t.Title))
	return list, nil
}

// Subtasks lists the subtasks of a task in sequence order.
func (s *TaskService) Subtasks(ctx context.Context, actor Actor, id string) ([]models.Subtask, error) {
	if _, _, err := s.load(ctx, actor, id); err != nil {
		return nil, err
	}
	subtasks, err := s.Store.ListSubtasks(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Task not found")
	}
	return subtasks, nil
}
