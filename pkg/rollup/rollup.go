// Package rollup derives milestone and project progress from their children.
//
// Progress is always recomputed from counts, never patched incrementally, so
// every recompute is idempotent. Services call the trigger methods after
// their own write; trigger failures are logged and counted but never returned,
// while RecalculateProject reports errors to its caller.
package rollup

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"project-hub-backend/pkg/metrics"
	"project-hub-backend/pkg/models"
)

// Store is the slice of the database the engine needs.
type Store interface {
	CountMilestoneTasks(ctx context.Context, milestoneID string) (total, completed int, err error)
	SetMilestoneProgress(ctx context.Context, id string, progress int) error
	CountProjectItems(ctx context.Context, projectID string) (models.ProjectCounts, error)
	SetProjectProgress(ctx context.Context, id string, progress int) error
	ListMilestones(ctx context.Context, projectID string) ([]models.Milestone, error)
}

// Percentage returns round(done/total*100), rounding halves up, and 0 when
// total is 0.
func Percentage(done, total int) int {
	if total <= 0 {
		return 0
	}
	if done < 0 {
		done = 0
	}
	if done > total {
		done = total
	}
	return (200*done + total) / (2 * total)
}

// ProjectPercentage weighs every milestone and every task equally.
func ProjectPercentage(c models.ProjectCounts) int {
	return Percentage(c.CompletedMilestones+c.CompletedTasks, c.Milestones+c.Tasks)
}

// Engine recomputes and persists progress.
type Engine struct {
	store  Store
	logger *zap.Logger
}

func NewEngine(store Store, logger *zap.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// RecomputeMilestone persists the progress of one milestone and returns it.
func (e *Engine) RecomputeMilestone(ctx context.Context, milestoneID string) (int, error) {
	total, done, err := e.store.CountMilestoneTasks(ctx, milestoneID)
	if err != nil {
		return 0, fmt.Errorf("count milestone tasks: %w", err)
	}
	pct := Percentage(done, total)
	if err := e.store.SetMilestoneProgress(ctx, milestoneID, pct); err != nil {
		return 0, fmt.Errorf("set milestone progress: %w", err)
	}
	return pct, nil
}

// RecomputeProject persists the progress of one project and returns it.
func (e *Engine) RecomputeProject(ctx context.Context, projectID string) (int, error) {
	counts, err := e.store.CountProjectItems(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("count project items: %w", err)
	}
	pct := ProjectPercentage(counts)
	if err := e.store.SetProjectProgress(ctx, projectID, pct); err != nil {
		return 0, fmt.Errorf("set project progress: %w", err)
	}
	return pct, nil
}

// RecalculateProject recomputes every milestone of a project and then the
// project itself.
func (e *Engine) RecalculateProject(ctx context.Context, projectID string) (int, error) {
	milestones, err := e.store.ListMilestones(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("list milestones: %w", err)
	}
	for _, m := range milestones {
		if _, err := e.RecomputeMilestone(ctx, m.ID); err != nil {
			metrics.RecordRollup("milestone", err)
			return 0, err
		}
		metrics.RecordRollup("milestone", nil)
	}
	pct, err := e.RecomputeProject(ctx, projectID)
	metrics.RecordRollup("project", err)
	return pct, err
}

// TaskChanged runs after a task was created, updated or deleted.
func (e *Engine) TaskChanged(ctx context.Context, task *models.Task) {
	e.milestone(ctx, task.MilestoneID)
	e.project(ctx, task.ProjectID)
}

// TaskMoved runs after a task moved from one milestone to another.
func (e *Engine) TaskMoved(ctx context.Context, task *models.Task, fromMilestoneID string) {
	if fromMilestoneID != "" && fromMilestoneID != task.MilestoneID {
		e.milestone(ctx, fromMilestoneID)
	}
	e.TaskChanged(ctx, task)
}

// MilestoneChanged runs after a milestone was created or saved.
func (e *Engine) MilestoneChanged(ctx context.Context, milestone *models.Milestone) {
	e.milestone(ctx, milestone.ID)
	e.project(ctx, milestone.ProjectID)
}

// MilestoneRemoved runs after a milestone of projectID was deleted.
func (e *Engine) MilestoneRemoved(ctx context.Context, projectID string) {
	e.project(ctx, projectID)
}

func (e *Engine) milestone(ctx context.Context, id string) {
	if id == "" {
		return
	}
	_, err := e.RecomputeMilestone(ctx, id)
	metrics.RecordRollup("milestone", err)
	if err != nil {
		e.logger.Error("Milestone progress recompute failed", zap.String("milestone_id", id), zap.Error(err))
	}
}

func (e *Engine) project(ctx context.Context, id string) {
	if id == "" {
		return
	}
	_, err := e.RecomputeProject(ctx, id)
	metrics.RecordRollup("project", err)
	if err != nil {
		e.logger.Error("Project progress recompute failed", zap.String("project_id", id), zap.Error(err))
	}
}
