package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"project-hub-backend/pkg/effects"
	"project-hub-backend/pkg/models"
)

// TaskRequestService handles customers asking for new work and project
// managers reviewing those asks.
type TaskRequestService struct {
	*Deps
}

type TaskRequestInput struct {
	ProjectID   string `json:"projectId" validate:"required"`
	MilestoneID string `json:"milestoneId"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
}

// ReviewInput carries the optional overrides of an approval and the note of
// a rejection.
type ReviewInput struct {
	MilestoneID string     `json:"milestoneId"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	AssignedTo  []string   `json:"assignedTo"`
	DueDate     *time.Time `json:"dueDate"`
	ReviewNote  string     `json:"reviewNote"`
}

// Create records a request from the customer who owns the project.
func (s *TaskRequestService) Create(ctx context.Context, actor Actor, in TaskRequestInput) (*models.TaskRequest, effects.List, error) {
	if actor.Role != models.RoleCustomer {
		return nil, nil, Forbidden("Only customers can request tasks")
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := checkStruct(in); err != nil {
		return nil, nil, err
	}

	project, err := s.loadProject(ctx, actor, in.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if in.MilestoneID != "" {
		if err := s.checkMilestone(ctx, project.ID, in.MilestoneID); err != nil {
			return nil, nil, err
		}
	}

	req := &models.TaskRequest{
		ProjectID:   project.ID,
		MilestoneID: in.MilestoneID,
		RequestedBy: actor.ID,
		Title:       in.Title,
		Description: in.Description,
		Priority:    models.Priority(in.Priority),
		Status:      models.RequestPending,
	}
	if req.Priority == "" {
		req.Priority = models.PriorityMedium
	}
	if err := s.Store.CreateTaskRequest(ctx, req); err != nil {
		return nil, nil, storeErr(err, "Project not found")
	}
	return req, s.activity(actor, project.ID, "task_request", req.ID, "create", "Requested task "+req.Title), nil
}

// List returns all requests to project managers and their own to customers.
func (s *TaskRequestService) List(ctx context.Context, actor Actor, filter models.TaskRequestFilter) ([]models.TaskRequest, int, error) {
	switch actor.Role {
	case models.RolePM:
	case models.RoleCustomer:
		filter.RequestedBy = actor.ID
	default:
		return nil, 0, Forbidden("Only customers and project managers can view task requests")
	}
	reqs, total, err := s.Store.ListTaskRequests(ctx, filter)
	if err != nil {
		return nil, 0, storeErr(err, "Task request not found")
	}
	return reqs, total, nil
}

func (s *TaskRequestService) Get(ctx context.Context, actor Actor, id string) (*models.TaskRequest, error) {
	req, err := s.Store.GetTaskRequest(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Task request not found")
	}
	if !actor.IsPM() && req.RequestedBy != actor.ID {
		return nil, Forbidden("You can only view your own task requests")
	}
	return req, nil
}

func (s *TaskRequestService) pending(ctx context.Context, actor Actor, id string) (*models.TaskRequest, error) {
	if err := requirePM(actor); err != nil {
		return nil, err
	}
	req, err := s.Store.GetTaskRequest(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Task request not found")
	}
	if req.Status != models.RequestPending {
		return nil, Validation("Task request has already been " + string(req.Status))
	}
	return req, nil
}

// Approve turns a pending request into a task.
func (s *TaskRequestService) Approve(ctx context.Context, actor Actor, id string, in ReviewInput) (*models.TaskRequest, *models.Task, effects.List, error) {
	req, err := s.pending(ctx, actor, id)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := checkStruct(in); err != nil {
		return nil, nil, nil, err
	}

	milestoneID := in.MilestoneID
	if milestoneID == "" {
		milestoneID = req.MilestoneID
	}
	if milestoneID == "" {
		return nil, nil, nil, FieldInvalid("milestoneId", "A milestone is required to approve the request")
	}
	priority := req.Priority
	if in.Priority != "" {
		priority = models.Priority(in.Priority)
	}

	project, err := s.Store.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, nil, nil, storeErr(err, "Project not found")
	}
	if err := s.checkMilestone(ctx, project.ID, milestoneID); err != nil {
		return nil, nil, nil, err
	}
	assignees := dedupe(in.AssignedTo)
	if err := s.checkAssignees(ctx, project, assignees); err != nil {
		return nil, nil, nil, err
	}

	task := &models.Task{
		ProjectID:   project.ID,
		MilestoneID: milestoneID,
		Title:       req.Title,
		Description: req.Description,
		Status:      models.TaskPending,
		Priority:    priority,
		AssignedTo:  assignees,
		DueDate:     in.DueDate,
		CreatedBy:   actor.ID,
	}
	if err := s.Store.CreateTask(ctx, task); err != nil {
		return nil, nil, nil, storeErr(err, "Milestone not found")
	}

	now := time.Now()
	req.Status = models.RequestApproved
	req.MilestoneID = milestoneID
	req.ReviewedBy = actor.ID
	req.ReviewNote = in.ReviewNote
	req.ReviewedAt = &now
	req.TaskID = task.ID
	if err := s.Store.UpdateTaskRequest(ctx, req); err != nil {
		// The request stays pending, so the task must not outlive it.
		if _, derr := s.Store.DeleteTask(ctx, task.ID); derr != nil {
			s.Logger.Warn("Failed to remove task of unrecorded approval",
				zap.String("task_id", task.ID), zap.String("request_id", req.ID), zap.Error(derr))
		}
		return nil, nil, nil, storeErr(err, "Task request not found")
	}
	s.Rollup.TaskChanged(ctx, task)

	list := s.activity(actor, project.ID, "task_request", req.ID, "approve", "Approved task request "+req.Title)
	list.Extend(s.activity(actor, project.ID, "task", task.ID, "create", "Created task "+task.Title))
	return req, task, list, nil
}

// Reject closes a pending request. A review note is required.
func (s *TaskRequestService) Reject(ctx context.Context, actor Actor, id string, in ReviewInput) (*models.TaskRequest, effects.List, error) {
	note := strings.TrimSpace(in.ReviewNote)
	if note == "" {
		return nil, nil, FieldInvalid("reviewNote", "A review note is required to reject the request")
	}
	req, err := s.pending(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	req.Status = models.RequestRejected
	req.ReviewedBy = actor.ID
	req.ReviewNote = note
	req.ReviewedAt = &now
	if err := s.Store.UpdateTaskRequest(ctx, req); err != nil {
		return nil, nil, storeErr(err, "Task request not found")
	}
	return req, s.activity(actor, req.ProjectID, "task_request", req.ID, "reject", "Rejected task request "+req.Title), nil
}
