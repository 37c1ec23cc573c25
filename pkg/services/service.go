// Package services holds the commands behind every endpoint. A command checks
// permissions, performs one primary write, runs the progress rollup for the
// ancestors it touched and returns the best-effort side effects for the
// caller to dispatch.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"project-hub-backend/pkg/access"
	"project-hub-backend/pkg/cache"
	"project-hub-backend/pkg/config"
	"project-hub-backend/pkg/database"
	"project-hub-backend/pkg/effects"
	"project-hub-backend/pkg/events"
	"project-hub-backend/pkg/models"
	"project-hub-backend/pkg/rollup"
	"project-hub-backend/pkg/storage"
	"project-hub-backend/pkg/utils"
)

// Actor is the authenticated user a command runs on behalf of.
type Actor struct {
	ID   string
	Role models.Role
}

func (a Actor) IsPM() bool { return a.Role == models.RolePM }

// Deps are the collaborators shared by every service.
type Deps struct {
	Config *config.Config
	Store  database.DatabaseInterface
	Rollup *rollup.Engine
	Blobs  storage.BlobStore
	Status *cache.Resolver
	Events events.Publisher
	JWT    *utils.JWTService
	Logger *zap.Logger
}

// Services groups the per-resource services.
type Services struct {
	Auth         *AuthService
	Users        *UserService
	Projects     *ProjectService
	Milestones   *MilestoneService
	Tasks        *TaskService
	Subtasks     *SubtaskService
	Discussion   *DiscussionService
	TaskRequests *TaskRequestService
	Activities   *ActivityService
	Dashboards   *DashboardService
}

func New(d *Deps) *Services {
	return &Services{
		Auth:         &AuthService{d},
		Users:        &UserService{d},
		Projects:     &ProjectService{d},
		Milestones:   &MilestoneService{d},
		Tasks:        &TaskService{d},
		Subtasks:     &SubtaskService{d},
		Discussion:   &DiscussionService{d},
		TaskRequests: &TaskRequestService{d},
		Activities:   &ActivityService{d},
		Dashboards:   &DashboardService{d},
	}
}

func requirePM(actor Actor) error {
	if !actor.IsPM() {
		return Forbidden("Only project managers can perform this action")
	}
	return nil
}

// authorize runs the permission gate against an already-loaded project.
func authorize(project *models.Project, actor Actor) error {
	if d := access.CheckAccess(project, actor.ID, actor.Role); !d.Allowed {
		return Forbidden(d.Reason)
	}
	return nil
}

// loadProject fetches a project and checks that actor may access it.
func (d *Deps) loadProject(ctx context.Context, actor Actor, id string) (*models.Project, error) {
	project, err := d.Store.GetProject(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Project not found")
	}
	if err := authorize(project, actor); err != nil {
		return nil, err
	}
	return project, nil
}

// accessibleProjectIDs returns the ids of the projects actor can see, or nil
// for project managers, who see everything.
func (d *Deps) accessibleProjectIDs(ctx context.Context, actor Actor) ([]string, error) {
	var filter models.ProjectFilter
	switch actor.Role {
	case models.RolePM:
		return nil, nil
	case models.RoleCustomer:
		filter.CustomerID = actor.ID
	case models.RoleEmployee:
		filter.TeamMember = actor.ID
	default:
		return nil, Forbidden(access.ReasonInvalidRole)
	}

	projects, _, err := d.Store.ListProjects(ctx, filter)
	if err != nil {
		return nil, storeErr(err, "Project not found")
	}
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

// activity records an audit entry and publishes it as an event.
func (d *Deps) activity(actor Actor, projectID, entityType, entityID, action, message string) effects.List {
	a := models.Activity{
		ID:         uuid.New().String(),
		ProjectID:  projectID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    actor.ID,
		Message:    message,
		CreatedAt:  time.Now(),
	}

	var list effects.List
	list.Add("activity.record", func(ctx context.Context) error {
		rec := a
		return d.Store.CreateActivity(ctx, &rec)
	})
	list.Add("activity.publish", func(ctx context.Context) error {
		return d.Events.Publish(ctx, events.RoutingKey(&a), a)
	})
	return list
}

// deleteBlobs releases the stored blobs of removed attachments.
func (d *Deps) deleteBlobs(attachments []models.Attachment) effects.List {
	var list effects.List
	for _, a := range attachments {
		if a.StorageKey == "" {
			continue
		}
		key := a.StorageKey
		list.Add("blob.delete", func(ctx context.Context) error {
			if err := d.Blobs.Delete(ctx, key); err != nil {
				return fmt.Errorf("delete blob %s: %w", key, err)
			}
			return nil
		})
	}
	return list
}

// invalidateStatus drops the cached status of a user whose role or status
// changed.
func (d *Deps) invalidateStatus(ctx context.Context, userID string) {
	if d.Status != nil {
		d.Status.Invalidate(ctx, userID)
	}
}

// completion keeps CompletedAt in step with a status change.
func completion(current *time.Time, completed bool) *time.Time {
	switch {
	case completed && current == nil:
		now := time.Now()
		return &now
	case !completed:
		return nil
	default:
		return current
	}
}
