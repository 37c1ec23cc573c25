package services

import (
	"context"

	"project-hub-backend/pkg/models"
)

// ActivityService reads the audit feed. Entries are only written by the
// activity side effects.
type ActivityService struct {
	*Deps
}

// List returns the feed visible to actor, newest first.
func (s *ActivityService) List(ctx context.Context, actor Actor, filter models.ActivityFilter) ([]models.Activity, int, error) {
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
	}

	activities, total, err := s.Store.ListActivities(ctx, filter)
	if err != nil {
		return nil, 0, storeErr(err, "Project not found")
	}
	return activities, total, nil
}
