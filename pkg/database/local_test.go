package database

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"project-hub-backend/pkg/models"
)

// seedProject creates a project with one milestone and returns both.
func seedProject(t *testing.T, db *LocalDatabase) (*models.Project, *models.Milestone) {
	t.Helper()
	ctx := context.Background()

	project := &models.Project{Name: "Website", CustomerID: "cust-1", AssignedTeam: []string{"emp-1"}}
	require.NoError(t, db.CreateProject(ctx, project))

	milestone := &models.Milestone{ProjectID: project.ID, Name: "Design", Sequence: 1}
	require.NoError(t, db.CreateMilestone(ctx, milestone))

	return project, milestone
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("successful user creation", func(t *testing.T) {
		db := NewMemoryDatabase()

		user := &models.User{Name: "Ada", Email: "ada@example.com", Password: "hash", Role: models.RolePM}
		require.NoError(t, db.CreateUser(ctx, user))
		assert.NotEmpty(t, user.ID)
		assert.False(t, user.CreatedAt.IsZero())

		got, err := db.GetUserByEmail(ctx, "ADA@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, "hash", got.Password)
	})

	t.Run("duplicate email should fail", func(t *testing.T) {
		db := NewMemoryDatabase()

		require.NoError(t, db.CreateUser(ctx, &models.User{Email: "a@example.com"}))
		err := db.CreateUser(ctx, &models.User{Email: "A@example.com"})
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("missing user", func(t *testing.T) {
		db := NewMemoryDatabase()

		_, err := db.GetUserByID(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestListUsers(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()

	for _, u := range []models.User{
		{Name: "Cat", Email: "c1@example.com", Role: models.RoleCustomer, Status: models.UserActive},
		{Name: "Cal", Email: "c2@example.com", Role: models.RoleCustomer, Status: models.UserInactive},
		{Name: "Eve", Email: "e1@example.com", Role: models.RoleEmployee, Status: models.UserActive},
	} {
		u := u
		require.NoError(t, db.CreateUser(ctx, &u))
	}

	users, total, err := db.ListUsers(ctx, models.UserFilter{Role: models.RoleCustomer})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, users, 2)

	users, total, err = db.ListUsers(ctx, models.UserFilter{Role: models.RoleCustomer, Status: models.UserActive})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Cat", users[0].Name)

	users, total, err = db.ListUsers(ctx, models.UserFilter{Page: models.Page{Number: 2, Limit: 2}})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, users, 1)

	users, total, err = db.ListUsers(ctx, models.UserFilter{Page: models.Page{Number: math.MaxInt, Limit: 100}})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, users)
}

func TestMilestoneSequenceIsUnique(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()
	project, first := seedProject(t, db)

	err := db.CreateMilestone(ctx, &models.Milestone{ProjectID: project.ID, Name: "Dup", Sequence: 1})
	assert.ErrorIs(t, err, ErrDuplicate)

	second := &models.Milestone{ProjectID: project.ID, Name: "Build", Sequence: 2}
	require.NoError(t, db.CreateMilestone(ctx, second))

	second.Sequence = first.Sequence
	assert.ErrorIs(t, db.UpdateMilestone(ctx, second), ErrDuplicate)

	// Same sequence in another project is fine.
	other := &models.Project{Name: "Other"}
	require.NoError(t, db.CreateProject(ctx, other))
	assert.NoError(t, db.CreateMilestone(ctx, &models.Milestone{ProjectID: other.ID, Sequence: 1}))

	max, err := db.MaxMilestoneSequence(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, max)

	found, err := db.FindMilestoneBySequence(ctx, project.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)

	list, err := db.ListMilestones(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Sequence)
	assert.Equal(t, 2, list[1].Sequence)
}

func TestCountItems(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()
	project, milestone := seedProject(t, db)

	statuses := []models.TaskStatus{models.TaskCompleted, models.TaskCompleted, models.TaskPending, models.TaskCancelled, models.TaskInProgress}
	for _, s := range statuses {
		require.NoError(t, db.CreateTask(ctx, &models.Task{ProjectID: project.ID, MilestoneID: milestone.ID, Status: s}))
	}

	total, completed, err := db.CountMilestoneTasks(ctx, milestone.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 2, completed)

	counts, err := db.CountProjectItems(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectCounts{Milestones: 1, CompletedMilestones: 0, Tasks: 5, CompletedTasks: 2}, counts)
}

func TestUpdateProjectKeepsDerivedFields(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()
	project, _ := seedProject(t, db)

	require.NoError(t, db.SetProjectProgress(ctx, project.ID, 40))
	require.NoError(t, db.AddComment(ctx, models.ParentRef{Kind: models.ParentProject, ID: project.ID}, &models.Comment{Author: "u", Message: "hi"}))

	update := &models.Project{ID: project.ID, Name: "Renamed", Progress: 99}
	require.NoError(t, db.UpdateProject(ctx, update))

	got, err := db.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, 40, got.Progress)
	assert.Len(t, got.Comments, 1)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()
	project, _ := seedProject(t, db)

	got, err := db.GetProject(ctx, project.ID)
	require.NoError(t, err)
	got.AssignedTeam[0] = "intruder"
	got.Name = "changed"

	again, err := db.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"emp-1"}, again.AssignedTeam)
	assert.Equal(t, "Website", again.Name)
}

func TestEmbeddedComments(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()
	project, milestone := seedProject(t, db)
	ref := models.ParentRef{Kind: models.ParentMilestone, ID: milestone.ID}

	c := &models.Comment{Author: "u1", Message: "first"}
	require.NoError(t, db.AddComment(ctx, ref, c))
	assert.NotEmpty(t, c.ID)
	assert.False(t, c.Timestamp.IsZero())

	comments, err := db.ListComments(ctx, ref)
	require.NoError(t, err)
	require.Len(t, comments, 1)

	require.NoError(t, db.DeleteComment(ctx, ref, c.ID))
	assert.ErrorIs(t, db.DeleteComment(ctx, ref, c.ID), ErrNotFound)

	missing := models.ParentRef{Kind: models.ParentTask, ID: project.ID}
	assert.ErrorIs(t, db.AddComment(ctx, missing, &models.Comment{}), ErrNotFound)
}

func TestDeleteProjectCascades(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()
	project, milestone := seedProject(t, db)

	task := &models.Task{ProjectID: project.ID, MilestoneID: milestone.ID}
	require.NoError(t, db.CreateTask(ctx, task))
	subtask := &models.Subtask{TaskID: task.ID}
	require.NoError(t, db.CreateSubtask(ctx, subtask))
	require.NoError(t, db.CreateTaskRequest(ctx, &models.TaskRequest{ProjectID: project.ID}))

	require.NoError(t, db.AddAttachments(ctx, models.ParentRef{Kind: models.ParentProject, ID: project.ID},
		[]models.Attachment{{Filename: "a.pdf", StorageKey: "k1"}}))
	require.NoError(t, db.AddAttachments(ctx, models.ParentRef{Kind: models.ParentSubtask, ID: subtask.ID},
		[]models.Attachment{{Filename: "b.png", StorageKey: "k2"}}))

	removed, err := db.DeleteProject(ctx, project.ID)
	require.NoError(t, err)

	keys := []string{}
	for _, a := range removed {
		keys = append(keys, a.StorageKey)
	}
	assert.ElementsMatch(t, []string{"k1", "k2"}, keys)

	_, err = db.GetMilestone(ctx, milestone.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.GetSubtask(ctx, subtask.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	reqs, total, err := db.ListTaskRequests(ctx, models.TaskRequestFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, reqs)
}

func TestListTasksFilters(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()
	project, milestone := seedProject(t, db)

	require.NoError(t, db.CreateTask(ctx, &models.Task{ProjectID: project.ID, MilestoneID: milestone.ID, Title: "Wireframes", AssignedTo: []string{"emp-1"}}))
	require.NoError(t, db.CreateTask(ctx, &models.Task{ProjectID: project.ID, MilestoneID: milestone.ID, Title: "Logo", Status: models.TaskCompleted}))

	tasks, total, err := db.ListTasks(ctx, models.TaskFilter{AssignedTo: "emp-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Wireframes", tasks[0].Title)

	_, total, err = db.ListTasks(ctx, models.TaskFilter{Search: "logo"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	// A non-nil empty set restricts to nothing.
	_, total, err = db.ListTasks(ctx, models.TaskFilter{ProjectIDs: []string{}})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestSnapshotSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := NewLocalDatabase(dir, nil)
	require.NoError(t, err)
	user := &models.User{Email: "pm@example.com", Password: "secret-hash", Role: models.RolePM}
	require.NoError(t, db.CreateUser(ctx, user))
	project, _ := seedProject(t, db)
	require.NoError(t, db.AddAttachments(ctx, models.ParentRef{Kind: models.ParentProject, ID: project.ID},
		[]models.Attachment{{Filename: "brief.pdf", StorageKey: "2026/brief.pdf"}}))
	require.NoError(t, db.Close())

	reopened, err := NewLocalDatabase(dir, nil)
	require.NoError(t, err)

	got, err := reopened.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret-hash", got.Password)

	p, err := reopened.GetProject(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, p.Attachments, 1)
	assert.Equal(t, "2026/brief.pdf", p.Attachments[0].StorageKey)
}

func TestSnapshotFailureKeepsWrite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	core, logs := observer.New(zapcore.ErrorLevel)

	db, err := NewLocalDatabase(dir, zap.New(core))
	require.NoError(t, err)
	blocker := filepath.Join(dir, snapshotFile+".tmp")
	require.NoError(t, os.Mkdir(blocker, 0755))

	user := &models.User{Email: "pm@example.com", Password: "hash", Role: models.RolePM}
	require.NoError(t, db.CreateUser(ctx, user))
	got, err := db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "pm@example.com", got.Email)

	assert.Error(t, db.HealthCheck(ctx))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Failed to write local snapshot", logs.All()[0].Message)

	require.NoError(t, os.Remove(blocker))
	require.NoError(t, db.UpdateUser(ctx, got))
	assert.NoError(t, db.HealthCheck(ctx))

	reopened, err := NewLocalDatabase(dir, nil)
	require.NoError(t, err)
	_, err = reopened.GetUserByID(ctx, user.ID)
	assert.NoError(t, err)
}

func TestActivitiesNewestFirst(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDatabase()

	require.NoError(t, db.CreateActivity(ctx, &models.Activity{ProjectID: "p1", Message: "one"}))
	require.NoError(t, db.CreateActivity(ctx, &models.Activity{ProjectID: "p2", Message: "two"}))
	require.NoError(t, db.CreateActivity(ctx, &models.Activity{ProjectID: "p1", Message: "three"}))

	list, total, err := db.ListActivities(ctx, models.ActivityFilter{ProjectIDs: []string{"p1"}})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "three", list[0].Message)
	assert.Equal(t, "one", list[1].Message)
}
