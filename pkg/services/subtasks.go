package services

import (
	"context"
	"fmt"
	"strings"

	"project-hub-backend/pkg/effects"
	"project-hub-backend/pkg/models"
)

// SubtaskService manages subtasks. Subtasks do not contribute to progress.
type SubtaskService struct {
	*Deps
}

type SubtaskInput struct {
	TaskID      *string `json:"taskId" validate:"omitnil,notblank"`
	Title       *string `json:"title" validate:"omitnil,notblank,max=200"`
	Description *string `json:"description"`
	Sequence    *int    `json:"sequence" validate:"omitnil,min=1"`
	Status      *string `json:"status" validate:"omitnil,oneof=pending in-progress completed cancelled"`
	AssignedTo  *string `json:"assignedTo"`
}

type newSubtask struct {
	TaskID *string `json:"taskId" validate:"required"`
	Title  *string `json:"title" validate:"required"`
}

func (in SubtaskInput) apply(st *models.Subtask) {
	if in.Title != nil {
		st.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		st.Description = *in.Description
	}
	if in.Sequence != nil {
		st.Sequence = *in.Sequence
	}
	if in.Status != nil {
		st.Status = models.TaskStatus(*in.Status)
	}
	if in.AssignedTo != nil {
		st.AssignedTo = *in.AssignedTo
	}
}

// load fetches a subtask with its parent task and runs the gate on the
// owning project.
func (s *SubtaskService) load(ctx context.Context, actor Actor, id string) (*models.Subtask, *models.Task, *models.Project, error) {
	st, err := s.Store.GetSubtask(ctx, id)
	if err != nil {
		return nil, nil, nil, storeErr(err, "Subtask not found")
	}
	t, err := s.Store.GetTask(ctx, st.TaskID)
	if err != nil {
		return nil, nil, nil, storeErr(err, "Task not found")
	}
	project, err := s.loadProject(ctx, actor, t.ProjectID)
	if err != nil {
		return nil, nil, nil, err
	}
	return st, t, project, nil
}

func (s *SubtaskService) checkAssignee(ctx context.Context, project *models.Project, userID string) error {
	if userID == "" {
		return nil
	}
	return s.checkAssignees(ctx, project, []string{userID})
}

// List returns the subtasks of a task in sequence order.
func (s *SubtaskService) List(ctx context.Context, actor Actor, taskID string) ([]models.Subtask, error) {
	if taskID == "" {
		return nil, FieldInvalid("taskId", "Task ID is required")
	}
	t, err := s.Store.GetTask(ctx, taskID)
	if err != nil {
		return nil, storeErr(err, "Task not found")
	}
	if _, err := s.loadProject(ctx, actor, t.ProjectID); err != nil {
		return nil, err
	}
	subtasks, err := s.Store.ListSubtasks(ctx, taskID)
	if err != nil {
		return nil, storeErr(err, "Task not found")
	}
	return subtasks, nil
}

func (s *SubtaskService) Get(ctx context.Context, actor Actor, id string) (*models.Subtask, error) {
	st, _, _, err := s.load(ctx, actor, id)
	return st, err
}

func (s *SubtaskService) Create(ctx context.Context, actor Actor, in SubtaskInput) (*models.Subtask, effects.List, error) {
	if err := requirePM(actor); err != nil {
		return nil, nil, err
	}
	if err := checkStruct(newSubtask{TaskID: in.TaskID, Title: in.Title}, in); err != nil {
		return nil, nil, err
	}

	t, err := s.Store.GetTask(ctx, *in.TaskID)
	if err != nil {
		return nil, nil, storeErr(err, "Task not found")
	}
	project, err := s.Store.GetProject(ctx, t.ProjectID)
	if err != nil {
		return nil, nil, storeErr(err, "Project not found")
	}

	st := &models.Subtask{TaskID: t.ID, CustomerID: project.CustomerID, Status: models.TaskPending}
	in.apply(st)
	if err := s.checkAssignee(ctx, project, st.AssignedTo); err != nil {
		return nil, nil, err
	}
	if in.Sequence == nil {
		last, err := s.Store.MaxSubtaskSequence(ctx, t.ID)
		if err != nil {
			return nil, nil, storeErr(err, "Task not found")
		}
		st.Sequence = last + 1
	}

	if err := s.Store.CreateSubtask(ctx, st); err != nil {
		return nil, nil, storeErr(err, "Task not found")
	}
	return st, s.activity(actor, project.ID, "subtask", st.ID, "create", "Created subtask "+st.Title), nil
}

func (s *SubtaskService) Update(ctx context.Context, actor Actor, id string, in SubtaskInput) (*models.Subtask, effects.List, error) {
	if err := requirePM(actor); err != nil {
		return nil, nil, err
	}
	if err := checkStruct(in); err != nil {
		return nil, nil, err
	}

	st, _, project, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	if in.TaskID != nil && *in.TaskID != st.TaskID {
		return nil, nil, FieldInvalid("taskId", "Subtasks cannot move between tasks")
	}
	in.apply(st)
	if in.AssignedTo != nil {
		if err := s.checkAssignee(ctx, project, st.AssignedTo); err != nil {
			return nil, nil, err
		}
	}

	if err := s.Store.UpdateSubtask(ctx, st); err != nil {
		return nil, nil, storeErr(err, "Subtask not found")
	}
	return st, s.activity(actor, project.ID, "subtask", st.ID, "update", "Updated subtask "+st.Title), nil
}

// UpdateStatus changes the status of a subtask. Project managers, the
// subtask assignee and the assignees of the parent task may do this.
func (s *SubtaskService) UpdateStatus(ctx context.Context, actor Actor, id, status string) (*models.Subtask, effects.List, error) {
	if !models.TaskStatus(status).Valid() {
		return nil, nil, FieldInvalid("status", "Invalid subtask status")
	}
	st, t, project, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	if !actor.IsPM() && st.AssignedTo != actor.ID && !t.IsAssigned(actor.ID) {
		return nil, nil, Forbidden("Only project managers or assignees can update this subtask")
	}

	st.Status = models.TaskStatus(status)
	if err := s.Store.UpdateSubtask(ctx, st); err != nil {
		return nil, nil, storeErr(err, "Subtask not found")
	}
	return st, s.activity(actor, project.ID, "subtask", st.ID, "status_change",
		fmt.Sprintf("Subtask %s moved to %s", st.Title, st.Status)), nil
}

func (s *SubtaskService) Delete(ctx context.Context, actor Actor, id string) (effects.List, error) {
	if err := requirePM(actor); err != nil {
		return nil, err
	}
	st, _, project, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	removed, err := s.Store.DeleteSubtask(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Subtask not found")
	}

	list := s.deleteBlobs(removed)
	list.Extend(s.activity(actor, project.ID, "subtask", id, "delete", "Deleted subtask "+st.Title))
	return list, nil
}
