package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"project-hub-backend/pkg/database"
	"project-hub-backend/pkg/effects"
	"project-hub-backend/pkg/models"
)

// MilestoneService manages the ordered milestones of a project.
type MilestoneService struct {
	*Deps
}

type MilestoneInput struct {
	ProjectID   *string    `json:"projectId" validate:"omitnil,notblank"`
	Name        *string    `json:"name" validate:"omitnil,notblank,max=200"`
	Description *string    `json:"description"`
	Sequence    *int       `json:"sequence" validate:"omitnil,min=1"`
	Status      *string    `json:"status" validate:"omitnil,oneof=pending in-progress completed on-hold"`
	DueDate     *time.Time `json:"dueDate"`
}

type newMilestone struct {
	ProjectID *string `json:"projectId" validate:"required"`
	Name      *string `json:"name" validate:"required"`
}

func (in MilestoneInput) apply(m *models.Milestone) {
	if in.Name != nil {
		m.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		m.Description = *in.Description
	}
	if in.Sequence != nil {
		m.Sequence = *in.Sequence
	}
	if in.Status != nil {
		m.Status = models.MilestoneStatus(*in.Status)
	}
	if in.DueDate != nil {
		m.DueDate = in.DueDate
	}
	m.CompletedAt = completion(m.CompletedAt, m.Status == models.MilestoneCompleted)
}

func duplicateSequence(sequence int) error {
	return FieldInvalid("sequence", fmt.Sprintf("Milestone with sequence %d already exists in this project", sequence))
}

// checkSequence rejects a sequence already used by another milestone of the
// project.
func (s *MilestoneService) checkSequence(ctx context.Context, m *models.Milestone) error {
	other, err := s.Store.FindMilestoneBySequence(ctx, m.ProjectID, m.Sequence)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr(err, "Milestone not found")
	}
	if other.ID != m.ID {
		return duplicateSequence(m.Sequence)
	}
	return nil
}

// saveErr maps a lost race on the unique sequence index onto the same
// validation error as checkSequence.
func saveErr(err error, m *models.Milestone) error {
	if errors.Is(err, database.ErrDuplicate) {
		return duplicateSequence(m.Sequence)
	}
	return storeErr(err, "Milestone not found")
}

// List returns the milestones of a project in sequence order.
func (s *MilestoneService) List(ctx context.Context, actor Actor, projectID string) ([]models.Milestone, error) {
	if projectID == "" {
		return nil, FieldInvalid("projectId", "Project ID is required")
	}
	if _, err := s.loadProject(ctx, actor, projectID); err != nil {
		return nil, err
	}
	milestones, err := s.Store.ListMilestones(ctx, projectID)
	if err != nil {
		return nil, storeErr(err, "Project not found")
	}
	return milestones, nil
}

func (s *MilestoneService) Get(ctx context.Context, actor Actor, id string) (*models.Milestone, error) {
	m, err := s.Store.GetMilestone(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Milestone not found")
	}
	if _, err := s.loadProject(ctx, actor, m.ProjectID); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *MilestoneService) Create(ctx context.Context, actor Actor, in MilestoneInput) (*models.Milestone, effects.List, error) {
	if err := requirePM(actor); err != nil {
		return nil, nil, err
	}
	if err := checkStruct(newMilestone{ProjectID: in.ProjectID, Name: in.Name}, in); err != nil {
		return nil, nil, err
	}
	if _, err := s.Store.GetProject(ctx, *in.ProjectID); err != nil {
		return nil, nil, storeErr(err, "Project not found")
	}

	m := &models.Milestone{ProjectID: *in.ProjectID, Status: models.MilestonePending}
	in.apply(m)
	if in.Sequence == nil {
		last, err := s.Store.MaxMilestoneSequence(ctx, m.ProjectID)
		if err != nil {
			return nil, nil, storeErr(err, "Project not found")
		}
		m.Sequence = last + 1
	} else if err := s.checkSequence(ctx, m); err != nil {
		return nil, nil, err
	}

	if err := s.Store.CreateMilestone(ctx, m); err != nil {
		return nil, nil, saveErr(err, m)
	}
	s.Rollup.MilestoneChanged(ctx, m)

	return m, s.activity(actor, m.ProjectID, "milestone", m.ID, "create", "Created milestone "+m.Name), nil
}

func (s *MilestoneService) Update(ctx context.Context, actor Actor, id string, in MilestoneInput) (*models.Milestone, effects.List, error) {
	if err := requirePM(actor); err != nil {
		return nil, nil, err
	}
	if err := checkStruct(in); err != nil {
		return nil, nil, err
	}

	m, err := s.Store.GetMilestone(ctx, id)
	if err != nil {
		return nil, nil, storeErr(err, "Milestone not found")
	}
	if in.ProjectID != nil && *in.ProjectID != m.ProjectID {
		return nil, nil, FieldInvalid("projectId", "Milestones cannot move between projects")
	}

	before := m.Status
	in.apply(m)
	if in.Sequence != nil {
		if err := s.checkSequence(ctx, m); err != nil {
			return nil, nil, err
		}
	}

	if err := s.Store.UpdateMilestone(ctx, m); err != nil {
		return nil, nil, saveErr(err, m)
	}

	action, message := "update", "Updated milestone "+m.Name
	if m.Status != before {
		s.Rollup.MilestoneChanged(ctx, m)
		if fresh, err := s.Store.GetMilestone(ctx, id); err == nil {
			m = fresh
		}
		action, message = "status_change", fmt.Sprintf("Milestone %s moved to %s", m.Name, m.Status)
	}
	return m, s.activity(actor, m.ProjectID, "milestone", m.ID, action, message), nil
}

// Delete removes the milestone with its tasks and recomputes the project.
func (s *MilestoneService) Delete(ctx context.Context, actor Actor, id string) (effects.List, error) {
	if err := requirePM(actor); err != nil {
		return nil, err
	}
	m, err := s.Store.GetMilestone(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Milestone not found")
	}
	removed, err := s.Store.DeleteMilestone(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Milestone not found")
	}
	s.Rollup.MilestoneRemoved(ctx, m.ProjectID)

	list := s.deleteBlobs(removed)
	list.Extend(s.activity(actor, m.ProjectID, "milestone", id, "delete", "Deleted milestone "+m.Name))
	return list, nil
}
