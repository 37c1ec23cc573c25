package database

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"project-hub-backend/pkg/models"
)

var (
	// ErrNotFound is returned when a record (or the parent of an embedded
	// record) does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a uniqueness rule
	// (user email, milestone sequence within a project).
	ErrDuplicate = errors.New("duplicate record")
)

// DatabaseInterface is the storage contract shared by every backend.
//
// List methods return the requested page plus the total number of matches.
// A zero Page returns every match.
//
// Delete methods cascade to child records and return the attachments that
// were removed with them, so callers can release the stored blobs.
type DatabaseInterface interface {
	// Users
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	CountUsers(ctx context.Context) (int, error)

	// Projects
	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	// UpdateProject writes every client-editable field. Progress and the
	// embedded comment/attachment lists are left untouched.
	UpdateProject(ctx context.Context, project *models.Project) error
	DeleteProject(ctx context.Context, id string) ([]models.Attachment, error)
	ListProjects(ctx context.Context, filter models.ProjectFilter) ([]models.Project, int, error)
	SetProjectProgress(ctx context.Context, id string, progress int) error

	// Milestones
	CreateMilestone(ctx context.Context, milestone *models.Milestone) error
	GetMilestone(ctx context.Context, id string) (*models.Milestone, error)
	// UpdateMilestone leaves progress and embedded lists untouched.
	UpdateMilestone(ctx context.Context, milestone *models.Milestone) error
	DeleteMilestone(ctx context.Context, id string) ([]models.Attachment, error)
	ListMilestones(ctx context.Context, projectID string) ([]models.Milestone, error)
	FindMilestoneBySequence(ctx context.Context, projectID string, sequence int) (*models.Milestone, error)
	MaxMilestoneSequence(ctx context.Context, projectID string) (int, error)
	SetMilestoneProgress(ctx context.Context, id string, progress int) error

	// Tasks
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	// UpdateTask leaves embedded lists untouched.
	UpdateTask(ctx context.Context, task *models.Task) error
	DeleteTask(ctx context.Context, id string) ([]models.Attachment, error)
	ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error)
	CountMilestoneTasks(ctx context.Context, milestoneID string) (total, completed int, err error)
	CountProjectItems(ctx context.Context, projectID string) (models.ProjectCounts, error)

	// Subtasks
	CreateSubtask(ctx context.Context, subtask *models.Subtask) error
	GetSubtask(ctx context.Context, id string) (*models.Subtask, error)
	UpdateSubtask(ctx context.Context, subtask *models.Subtask) error
	DeleteSubtask(ctx context.Context, id string) ([]models.Attachment, error)
	ListSubtasks(ctx context.Context, taskID string) ([]models.Subtask, error)
	MaxSubtaskSequence(ctx context.Context, taskID string) (int, error)

	// Embedded comments and attachments
	AddComment(ctx context.Context, parent models.ParentRef, comment *models.Comment) error
	GetComment(ctx context.Context, parent models.ParentRef, commentID string) (*models.Comment, error)
	DeleteComment(ctx context.Context, parent models.ParentRef, commentID string) error
	ListComments(ctx context.Context, parent models.ParentRef) ([]models.Comment, error)
	AddAttachments(ctx context.Context, parent models.ParentRef, attachments []models.Attachment) error
	GetAttachment(ctx context.Context, parent models.ParentRef, attachmentID string) (*models.Attachment, error)
	DeleteAttachment(ctx context.Context, parent models.ParentRef, attachmentID string) error

	// Task requests
	CreateTaskRequest(ctx context.Context, req *models.TaskRequest) error
	GetTaskRequest(ctx context.Context, id string) (*models.TaskRequest, error)
	UpdateTaskRequest(ctx context.Context, req *models.TaskRequest) error
	ListTaskRequests(ctx context.Context, filter models.TaskRequestFilter) ([]models.TaskRequest, int, error)

	// Activity feed
	CreateActivity(ctx context.Context, activity *models.Activity) error
	ListActivities(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, int, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// DatabaseConfig selects and configures a backend.
type DatabaseConfig struct {
	UseLocalDB   bool
	LocalDataDir string
	PostgresDSN  string
	Debug        bool
}

// NewDatabase opens the backend selected by cfg: PostgreSQL when a DSN is
// configured and the local store is disabled, the local store otherwise.
func NewDatabase(cfg DatabaseConfig, logger *zap.Logger) (DatabaseInterface, error) {
	if !cfg.UseLocalDB {
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("no valid database configuration: set POSTGRES_DSN or enable the local store")
		}
		logger.Info("Using PostgreSQL database")
		db, err := NewPostgresDatabase(cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	logger.Info("Using local database", zap.String("data_dir", cfg.LocalDataDir))
	db, err := NewLocalDatabase(cfg.LocalDataDir, logger)
	if err != nil {
		return nil, err
	}
	return db, nil
}
