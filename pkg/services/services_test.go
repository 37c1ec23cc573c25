package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

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

type harness struct {
	svc    *Services
	deps   *Deps
	db     *database.LocalDatabase
	blobs  *storage.LocalStore
	runner *effects.Runner

	pm       Actor
	customer Actor
	employee Actor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	db := database.NewMemoryDatabase()

	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret:      "test-secret",
		JWTTTL:         time.Hour,
		MaxUploadBytes: 1 << 20,
		MaxUploadFiles: 3,
	}
	deps := &Deps{
		Config: cfg,
		Store:  db,
		Rollup: rollup.NewEngine(db, logger),
		Blobs:  blobs,
		Status: cache.NewResolver(cache.NewMemoryCache(time.Minute), db, logger),
		Events: events.NopPublisher{},
		JWT:    utils.NewJWTService(cfg.JWTSecret, cfg.JWTTTL),
		Logger: logger,
	}

	h := &harness{
		svc:    New(deps),
		deps:   deps,
		db:     db,
		blobs:  blobs,
		runner: effects.NewRunner(false, logger),
	}
	h.pm = h.user(t, models.RolePM, "pm@example.com")
	h.customer = h.user(t, models.RoleCustomer, "customer@example.com")
	h.employee = h.user(t, models.RoleEmployee, "employee@example.com")
	return h
}

// user stores an active user whose password is "secret123".
func (h *harness) user(t *testing.T, role models.Role, email string) Actor {
	t.Helper()
	hash, err := HashPassword("secret123")
	require.NoError(t, err)
	u := &models.User{Name: strings.Split(email, "@")[0], Email: email, Password: hash, Role: role, Status: models.UserActive}
	require.NoError(t, h.db.CreateUser(context.Background(), u))
	return Actor{ID: u.ID, Role: role}
}

// run dispatches an effect list synchronously and expects no failures.
func (h *harness) run(t *testing.T, list effects.List) {
	t.Helper()
	assert.Empty(t, h.runner.Run(context.Background(), list))
}

func (h *harness) project(t *testing.T) *models.Project {
	t.Helper()
	name, customer, team := "Website", h.customer.ID, []string{h.employee.ID}
	p, list, err := h.svc.Projects.Create(context.Background(), h.pm, ProjectInput{
		Name:         &name,
		CustomerID:   &customer,
		AssignedTeam: &team,
	})
	require.NoError(t, err)
	h.run(t, list)
	return p
}

func (h *harness) milestone(t *testing.T, projectID string) *models.Milestone {
	t.Helper()
	name := "Phase"
	m, _, err := h.svc.Milestones.Create(context.Background(), h.pm, MilestoneInput{ProjectID: &projectID, Name: &name})
	require.NoError(t, err)
	return m
}

func (h *harness) task(t *testing.T, projectID, milestoneID string, assignees ...string) *models.Task {
	t.Helper()
	title := "Build it"
	if assignees == nil {
		assignees = []string{}
	}
	task, _, err := h.svc.Tasks.Create(context.Background(), h.pm, TaskInput{
		ProjectID:   &projectID,
		MilestoneID: &milestoneID,
		Title:       &title,
		AssignedTo:  &assignees,
	})
	require.NoError(t, err)
	return task
}

func ptr[T any](v T) *T { return &v }

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, KindOf(err), "unexpected error: %v", err)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	t.Run("valid credentials", func(t *testing.T) {
		resp, err := h.svc.Auth.Login(ctx, models.LoginRequest{Email: "PM@example.com", Password: "secret123"})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, h.pm.ID, resp.User.ID)

		stored, err := h.db.GetUserByID(ctx, h.pm.ID)
		require.NoError(t, err)
		assert.NotNil(t, stored.LastLogin)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := h.svc.Auth.Login(ctx, models.LoginRequest{Email: "pm@example.com", Password: "nope"})
		requireKind(t, err, KindUnauthorized)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := h.svc.Auth.Login(ctx, models.LoginRequest{Email: "ghost@example.com", Password: "secret123"})
		requireKind(t, err, KindUnauthorized)
	})

	t.Run("inactive user", func(t *testing.T) {
		_, _, err := h.svc.Users.Update(ctx, h.pm, h.employee.ID, UserInput{Status: ptr("inactive")})
		require.NoError(t, err)

		_, err = h.svc.Auth.Login(ctx, models.LoginRequest{Email: "employee@example.com", Password: "secret123"})
		requireKind(t, err, KindUnauthorized)
		assert.Contains(t, err.Error(), "Account is inactive")
	})
}

func TestAuthenticateChecksLiveStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	resp, err := h.svc.Auth.Login(ctx, models.LoginRequest{Email: "customer@example.com", Password: "secret123"})
	require.NoError(t, err)

	actor, err := h.svc.Auth.Authenticate(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, h.customer, actor)

	// The token stays valid but the account does not.
	_, _, err = h.svc.Users.Update(ctx, h.pm, h.customer.ID, UserInput{Status: ptr("inactive")})
	require.NoError(t, err)

	_, err = h.svc.Auth.Authenticate(ctx, resp.Token)
	requireKind(t, err, KindUnauthorized)

	_, err = h.svc.Auth.Authenticate(ctx, "garbage")
	requireKind(t, err, KindUnauthorized)

	_, err = h.svc.Auth.Authenticate(ctx, "")
	requireKind(t, err, KindUnauthorized)
}

func TestProfileAndPassword(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.svc.Auth.UpdateProfile(ctx, h.employee, ProfileInput{Role: ptr("pm")})
	requireKind(t, err, KindValidation)

	u, err := h.svc.Auth.UpdateProfile(ctx, h.employee, ProfileInput{Phone: ptr(" 555-0100 ")})
	require.NoError(t, err)
	assert.Equal(t, "555-0100", u.Phone)
	assert.Equal(t, models.RoleEmployee, u.Role)

	err = h.svc.Auth.ChangePassword(ctx, h.employee, PasswordInput{CurrentPassword: "wrong", NewPassword: "newpass1"})
	requireKind(t, err, KindValidation)

	err = h.svc.Auth.ChangePassword(ctx, h.employee, PasswordInput{CurrentPassword: "secret123", NewPassword: "short"})
	requireKind(t, err, KindValidation)

	require.NoError(t, h.svc.Auth.ChangePassword(ctx, h.employee, PasswordInput{CurrentPassword: "secret123", NewPassword: "newpass1"}))
	_, err = h.svc.Auth.Login(ctx, models.LoginRequest{Email: "employee@example.com", Password: "newpass1"})
	assert.NoError(t, err)
}

func TestUpdateTeamUnassignsDroppedMembers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)
	m := h.milestone(t, p.ID)
	second := h.user(t, models.RoleEmployee, "second@example.com")

	team := []string{h.employee.ID, second.ID}
	_, _, err := h.svc.Projects.Update(ctx, h.pm, p.ID, ProjectInput{AssignedTeam: &team})
	require.NoError(t, err)
	task := h.task(t, p.ID, m.ID, h.employee.ID, second.ID)

	team = []string{second.ID}
	updated, _, err := h.svc.Projects.Update(ctx, h.pm, p.ID, ProjectInput{AssignedTeam: &team})
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, updated.AssignedTeam)

	got, err := h.db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, got.AssignedTo)

	_, err = h.svc.Tasks.Get(ctx, h.employee, task.ID)
	requireKind(t, err, KindForbidden)

	team = []string{}
	_, _, err = h.svc.Projects.Update(ctx, h.pm, p.ID, ProjectInput{AssignedTeam: &team})
	require.NoError(t, err)
	got, err = h.db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AssignedTo)
}

func TestUserAdministration(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	t.Run("only project managers", func(t *testing.T) {
		_, _, err := h.svc.Users.List(ctx, h.employee, models.UserFilter{})
		requireKind(t, err, KindForbidden)
	})

	t.Run("duplicate email is a validation error", func(t *testing.T) {
		_, _, err := h.svc.Users.Create(ctx, h.pm, UserInput{
			Name:     ptr("Other"),
			Email:    ptr("Customer@Example.com"),
			Password: ptr("secret123"),
			Role:     ptr("customer"),
		})
		requireKind(t, err, KindValidation)
		var se *Error
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "email", se.Fields[0].Field)
	})

	t.Run("cannot change own role", func(t *testing.T) {
		_, _, err := h.svc.Users.Update(ctx, h.pm, h.pm.ID, UserInput{Role: ptr("employee")})
		requireKind(t, err, KindForbidden)
	})

	t.Run("cannot delete self", func(t *testing.T) {
		_, err := h.svc.Users.Delete(ctx, h.pm, h.pm.ID)
		requireKind(t, err, KindValidation)
	})

	t.Run("employees selector lists active employees", func(t *testing.T) {
		users, err := h.svc.Users.ListByRole(ctx, h.pm, models.RoleEmployee)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, h.employee.ID, users[0].ID)
	})
}

func TestProjectAccess(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)

	other := h.user(t, models.RoleCustomer, "other@example.com")
	outsider := h.user(t, models.RoleEmployee, "outsider@example.com")

	_, err := h.svc.Projects.Get(ctx, h.customer, p.ID)
	assert.NoError(t, err)
	_, err = h.svc.Projects.Get(ctx, h.employee, p.ID)
	assert.NoError(t, err)

	_, err = h.svc.Projects.Get(ctx, other, p.ID)
	requireKind(t, err, KindForbidden)
	_, err = h.svc.Projects.Get(ctx, outsider, p.ID)
	requireKind(t, err, KindForbidden)
	_, err = h.svc.Projects.Get(ctx, h.customer, "missing")
	requireKind(t, err, KindNotFound)

	projects, total, err := h.svc.Projects.List(ctx, other, models.ProjectFilter{})
	require.NoError(t, err)
	assert.Empty(t, projects)
	assert.Zero(t, total)

	_, _, err = h.svc.Projects.Update(ctx, h.customer, p.ID, ProjectInput{Name: ptr("Mine")})
	requireKind(t, err, KindForbidden)
}

func TestProjectReferences(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, _, err := h.svc.Projects.Create(ctx, h.pm, ProjectInput{Name: ptr("X"), CustomerID: &h.employee.ID})
	requireKind(t, err, KindValidation)

	team := []string{h.customer.ID}
	_, _, err = h.svc.Projects.Create(ctx, h.pm, ProjectInput{Name: ptr("X"), CustomerID: &h.customer.ID, AssignedTeam: &team})
	requireKind(t, err, KindValidation)

	_, _, err = h.svc.Projects.Create(ctx, h.pm, ProjectInput{Name: ptr("X"), CustomerID: &h.customer.ID, Budget: ptr(-1.0)})
	requireKind(t, err, KindValidation)

	p, _, err := h.svc.Projects.Create(ctx, h.pm, ProjectInput{Name: ptr("X"), CustomerID: &h.customer.ID})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectPlanning, p.Status)
	assert.Equal(t, models.PriorityMedium, p.Priority)
	assert.Equal(t, h.pm.ID, p.ProjectManagerID)
}

func TestInputValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)
	m := h.milestone(t, p.ID)

	tests := []struct {
		name   string
		call   func() error
		fields []string
	}{
		{"blank project name on update", func() error {
			_, _, err := h.svc.Projects.Update(ctx, h.pm, p.ID, ProjectInput{Name: ptr("   ")})
			return err
		}, []string{"name"}},
		{"unknown project status", func() error {
			_, _, err := h.svc.Projects.Update(ctx, h.pm, p.ID, ProjectInput{Status: ptr("archived")})
			return err
		}, []string{"status"}},
		{"negative budget", func() error {
			_, _, err := h.svc.Projects.Update(ctx, h.pm, p.ID, ProjectInput{Budget: ptr(-5.0)})
			return err
		}, []string{"budget"}},
		{"project without name or customer", func() error {
			_, _, err := h.svc.Projects.Create(ctx, h.pm, ProjectInput{Priority: ptr("urgent")})
			return err
		}, []string{"name", "customerId"}},
		{"malformed email", func() error {
			_, _, err := h.svc.Users.Create(ctx, h.pm, UserInput{
				Name: ptr("Zed"), Email: ptr("not-an-email"), Password: ptr("secret123"), Role: ptr("employee"),
			})
			return err
		}, []string{"email"}},
		{"short password and unknown role", func() error {
			_, _, err := h.svc.Users.Create(ctx, h.pm, UserInput{
				Name: ptr("Zed"), Email: ptr("zed@example.com"), Password: ptr("abc"), Role: ptr("admin"),
			})
			return err
		}, []string{"password", "role"}},
		{"profile cannot set role", func() error {
			_, err := h.svc.Auth.UpdateProfile(ctx, h.employee, ProfileInput{Role: ptr("pm")})
			return err
		}, []string{"role"}},
		{"negative estimate", func() error {
			_, _, err := h.svc.Tasks.Create(ctx, h.pm, TaskInput{
				ProjectID: &p.ID, MilestoneID: &m.ID, Title: ptr("X"), EstimatedHours: ptr(-1.0),
			})
			return err
		}, []string{"estimatedHours"}},
		{"task request with unknown priority", func() error {
			_, _, err := h.svc.TaskRequests.Create(ctx, h.customer, TaskRequestInput{ProjectID: p.ID, Title: "X", Priority: "critical"})
			return err
		}, []string{"priority"}},
		{"login without password", func() error {
			_, err := h.svc.Auth.Login(ctx, models.LoginRequest{Email: "pm@example.com"})
			return err
		}, []string{"password"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			requireKind(t, err, KindValidation)
			var se *Error
			require.True(t, errors.As(err, &se))
			var fields []string
			for _, f := range se.Fields {
				fields = append(fields, f.Field)
				assert.NotEmpty(t, f.Message)
			}
			assert.ElementsMatch(t, tt.fields, fields)
		})
	}

	got, err := h.svc.Projects.Get(ctx, h.pm, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Website", got.Name)
	assert.Zero(t, got.Budget)
}

func TestMilestoneSequence(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)

	first := h.milestone(t, p.ID)
	second := h.milestone(t, p.ID)
	assert.Equal(t, 1, first.Sequence)
	assert.Equal(t, 2, second.Sequence)

	_, _, err := h.svc.Milestones.Create(ctx, h.pm, MilestoneInput{ProjectID: &p.ID, Name: ptr("Dup"), Sequence: ptr(1)})
	requireKind(t, err, KindValidation)
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "sequence", se.Fields[0].Field)

	_, _, err = h.svc.Milestones.Update(ctx, h.pm, second.ID, MilestoneInput{Sequence: ptr(1)})
	requireKind(t, err, KindValidation)

	_, _, err = h.svc.Milestones.Update(ctx, h.pm, second.ID, MilestoneInput{Sequence: ptr(2), Name: ptr("Renamed")})
	assert.NoError(t, err)

	_, _, err = h.svc.Milestones.Create(ctx, h.pm, MilestoneInput{ProjectID: &p.ID, Name: ptr("Zero"), Sequence: ptr(0)})
	requireKind(t, err, KindValidation)

	// Sequences are scoped to their project.
	other := h.project(t)
	m, _, err := h.svc.Milestones.Create(ctx, h.pm, MilestoneInput{ProjectID: &other.ID, Name: ptr("One"), Sequence: ptr(1)})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Sequence)
}

func TestMilestoneCompletedAt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)
	m := h.milestone(t, p.ID)

	done, _, err := h.svc.Milestones.Update(ctx, h.pm, m.ID, MilestoneInput{Status: ptr("completed")})
	require.NoError(t, err)
	assert.NotNil(t, done.CompletedAt)

	reopened, _, err := h.svc.Milestones.Update(ctx, h.pm, m.ID, MilestoneInput{Status: ptr("in-progress")})
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)
}

func TestTaskRollup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)
	m := h.milestone(t, p.ID)

	var tasks []*models.Task
	for i := 0; i < 4; i++ {
		tasks = append(tasks, h.task(t, p.ID, m.ID, h.employee.ID))
	}
	for _, task := range tasks[:3] {
		_, _, err := h.svc.Tasks.UpdateStatus(ctx, h.employee, task.ID, "completed")
		require.NoError(t, err)
	}

	got, err := h.svc.Milestones.Get(ctx, h.pm, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 75, got.Progress)

	// 3 of 4 tasks and 0 of 1 milestones: round(3/5*100).
	project, err := h.svc.Projects.Get(ctx, h.pm, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, project.Progress)

	task, err := h.svc.Tasks.Get(ctx, h.pm, tasks[0].ID)
	require.NoError(t, err)
	assert.NotNil(t, task.CompletedAt)

	pct, err := h.svc.Projects.RecalculateProgress(ctx, h.pm, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, pct)
}

func TestDeletingOnlyTaskResetsMilestone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)
	m := h.milestone(t, p.ID)
	_, _, err := h.svc.Milestones.Update(ctx, h.pm, m.ID, MilestoneInput{Status: ptr("in-progress")})
	require.NoError(t, err)

	task := h.task(t, p.ID, m.ID)
	_, _, err = h.svc.Tasks.UpdateStatus(ctx, h.pm, task.ID, "completed")
	require.NoError(t, err)

	got, err := h.svc.Milestones.Get(ctx, h.pm, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)

	list, err := h.svc.Tasks.Delete(ctx, h.pm, task.ID)
	require.NoError(t, err)
	h.run(t, list)

	got, err = h.svc.Milestones.Get(ctx, h.pm, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Progress)
	assert.Equal(t, models.MilestoneInProgress, got.Status)
}

func TestTaskMovedBetweenMilestones(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)
	from := h.milestone(t, p.ID)
	to := h.milestone(t, p.ID)

	task := h.task(t, p.ID, from.ID)
	_, _, err := h.svc.Tasks.UpdateStatus(ctx, h.pm, task.ID, "completed")
	require.NoError(t, err)

	_, _, err = h.svc.Tasks.Update(ctx, h.pm, task.ID, TaskInput{MilestoneID: &to.ID})
	require.NoError(t, err)

	got, err := h.svc.Milestones.Get(ctx, h.pm, from.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Progress)
	got, err = h.svc.Milestones.Get(ctx, h.pm, to.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)
}

func TestTaskMilestoneMustBelongToProject(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)
	other := h.project(t)
	foreign := h.milestone(t, other.ID)

	_, _, err := h.svc.Tasks.Create(ctx, h.pm, TaskInput{ProjectID: &p.ID, MilestoneID: &foreign.ID, Title: ptr("Wrong")})
	requireKind(t, err, KindNotFound)
}

func TestTaskAssignees(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)
	m := h.milestone(t, p.ID)
	outsider := h.user(t, models.RoleEmployee, "outsider@example.com")

	assignees := []string{outsider.ID}
	_, _, err := h.svc.Tasks.Create(ctx, h.pm, TaskInput{ProjectID: &p.ID, MilestoneID: &m.ID, Title: ptr("T"), AssignedTo: &assignees})
	requireKind(t, err, KindValidation)

	task := h.task(t, p.ID, m.ID)
	_, _, err = h.svc.Tasks.UpdateStatus(ctx, h.employee, task.ID, "in-progress")
	requireKind(t, err, KindForbidden)

	_, _, err = h.svc.Tasks.Assign(ctx, h.pm, task.ID, []string{h.employee.ID})
	require.NoError(t, err)
	updated, _, err := h.svc.Tasks.UpdateStatus(ctx, h.employee, task.ID, "in-progress")
	require.NoError(t, err)
	assert.Equal(t, models.TaskInProgress, updated.Status)

	_, _, err = h.svc.Tasks.UpdateStatus(ctx, h.employee, task.ID, "finished")
	requireKind(t, err, KindValidation)
}

func TestTaskListScoping(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)
	m := h.milestone(t, p.ID)
	h.task(t, p.ID, m.ID, h.employee.ID)
	h.task(t, p.ID, m.ID)

	other := h.project(t)
	om := h.milestone(t, other.ID)
	h.task(t, other.ID, om.ID)

	_, total, err := h.svc.Tasks.List(ctx, h.pm, models.TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	_, total, err = h.svc.Tasks.List(ctx, h.employee, models.TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, total, err = h.svc.Tasks.List(ctx, h.employee, models.TaskFilter{ProjectID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	stranger := h.user(t, models.RoleCustomer, "stranger@example.com")
	_, total, err = h.svc.Tasks.List(ctx, stranger, models.TaskFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, _, err = h.svc.Tasks.List(ctx, stranger, models.TaskFilter{ProjectID: p.ID})
	requireKind(t, err, KindForbidden)
}

func TestRemoveTeamMemberUnassignsTasks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)
	m := h.milestone(t, p.ID)
	task := h.task(t, p.ID, m.ID, h.employee.ID)

	updated, _, err := h.svc.Projects.RemoveTeamMember(ctx, h.pm, p.ID, h.employee.ID)
	require.NoError(t, err)
	assert.Empty(t, updated.AssignedTeam)

	got, err := h.db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AssignedTo)

	_, err = h.svc.Projects.Get(ctx, h.employee, p.ID)
	requireKind(t, err, KindForbidden)

	_, _, err = h.svc.Projects.AddTeamMember(ctx, h.pm, p.ID, h.customer.ID)
	requireKind(t, err, KindValidation)
}

func TestSubtasks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)
	m := h.milestone(t, p.ID)
	task := h.task(t, p.ID, m.ID, h.employee.ID)

	first, _, err := h.svc.Subtasks.Create(ctx, h.pm, SubtaskInput{TaskID: &task.ID, Title: ptr("One")})
	require.NoError(t, err)
	second, _, err := h.svc.Subtasks.Create(ctx, h.pm, SubtaskInput{TaskID: &task.ID, Title: ptr("Two")})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Sequence)
	assert.Equal(t, 2, second.Sequence)
	assert.Equal(t, h.customer.ID, first.CustomerID)

	// The parent task's assignee may move the subtask along.
	done, _, err := h.svc.Subtasks.UpdateStatus(ctx, h.employee, first.ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, done.Status)

	_, _, err = h.svc.Subtasks.UpdateStatus(ctx, h.customer, first.ID, "pending")
	requireKind(t, err, KindForbidden)

	// Subtasks do not roll up.
	got, err := h.svc.Milestones.Get(ctx, h.pm, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Progress)

	subtasks, err := h.svc.Tasks.Subtasks(ctx, h.customer, task.ID)
	require.NoError(t, err)
	assert.Len(t, subtasks, 2)
}

func TestComments(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)
	m := h.milestone(t, p.ID)
	ref := models.ParentRef{Kind: models.ParentMilestone, ID: m.ID}

	c, list, err := h.svc.Discussion.AddComment(ctx, h.customer, ref, "  Looks good  ")
	require.NoError(t, err)
	h.run(t, list)
	assert.Equal(t, "Looks good", c.Message)
	assert.Equal(t, "customer", c.AuthorName)

	_, _, err = h.svc.Discussion.AddComment(ctx, h.customer, ref, strings.Repeat("x", 2001))
	requireKind(t, err, KindValidation)

	stranger := h.user(t, models.RoleCustomer, "stranger@example.com")
	_, _, err = h.svc.Discussion.AddComment(ctx, stranger, ref, "hi")
	requireKind(t, err, KindForbidden)

	_, err = h.svc.Discussion.DeleteComment(ctx, h.pm, ref, c.ID)
	requireKind(t, err, KindForbidden)

	_, err = h.svc.Discussion.DeleteComment(ctx, h.customer, ref, "missing")
	requireKind(t, err, KindNotFound)

	_, err = h.svc.Discussion.DeleteComment(ctx, h.customer, ref, c.ID)
	require.NoError(t, err)

	comments, err := h.svc.Discussion.Comments(ctx, h.customer, ref)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func upload(name, body string) Upload {
	return Upload{
		Filename: name,
		MimeType: "text/plain",
		Size:     int64(len(body)),
		Open:     func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(body)), nil },
	}
}

func TestAttachments(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)
	m := h.milestone(t, p.ID)
	task := h.task(t, p.ID, m.ID, h.employee.ID)
	ref := models.ParentRef{Kind: models.ParentTask, ID: task.ID}

	attachments, list, err := h.svc.Discussion.Upload(ctx, h.employee, ref, []Upload{upload("notes.txt", "hello")}, "meeting notes")
	require.NoError(t, err)
	h.run(t, list)
	require.Len(t, attachments, 1)
	a := attachments[0]
	assert.Equal(t, "meeting notes", a.Description)
	assert.Equal(t, int64(5), a.Size)

	blob := filepath.Join(h.blobs.Root(), filepath.FromSlash(a.StorageKey))
	assert.FileExists(t, blob)

	assert.Equal(t, "/api/tasks/"+task.ID+"/attachments/"+a.ID, a.URL)

	got, err := h.svc.Tasks.Get(ctx, h.customer, task.ID)
	require.NoError(t, err)
	require.Len(t, got.Attachments, 1)

	meta, r, err := h.svc.Discussion.Download(ctx, h.customer, ref, a.ID)
	require.NoError(t, err)
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "hello", string(content))
	assert.Equal(t, "text/plain", meta.MimeType)

	stranger := h.user(t, models.RoleCustomer, "stranger@example.com")
	_, _, err = h.svc.Discussion.Download(ctx, stranger, ref, a.ID)
	requireKind(t, err, KindForbidden)

	_, err = h.svc.Discussion.DeleteAttachment(ctx, h.customer, ref, a.ID)
	requireKind(t, err, KindForbidden)

	list, err = h.svc.Discussion.DeleteAttachment(ctx, h.pm, ref, a.ID)
	require.NoError(t, err)
	h.run(t, list)
	_, statErr := os.Stat(blob)
	assert.True(t, os.IsNotExist(statErr))
	_, _, err = h.svc.Discussion.Download(ctx, h.customer, ref, a.ID)
	requireKind(t, err, KindNotFound)

	t.Run("too many files", func(t *testing.T) {
		files := []Upload{upload("a", "1"), upload("b", "2"), upload("c", "3"), upload("d", "4")}
		_, _, err := h.svc.Discussion.Upload(ctx, h.pm, ref, files, "")
		requireKind(t, err, KindValidation)
	})

	t.Run("file too large", func(t *testing.T) {
		big := upload("big.bin", "x")
		big.Size = 2 << 20
		_, _, err := h.svc.Discussion.Upload(ctx, h.pm, ref, []Upload{big}, "")
		requireKind(t, err, KindValidation)
	})
}

// flakyBlobs fails every Put after the first.
type flakyBlobs struct {
	*storage.LocalStore
	puts int
}

func (f *flakyBlobs) Put(ctx context.Context, filename string, r io.Reader) (*storage.Object, error) {
	f.puts++
	if f.puts > 1 {
		return nil, errors.New("disk full")
	}
	return f.LocalStore.Put(ctx, filename, r)
}

func TestUploadFailureCleansUpBlobs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)
	h.deps.Blobs = &flakyBlobs{LocalStore: h.blobs}
	ref := models.ParentRef{Kind: models.ParentProject, ID: p.ID}

	_, list, err := h.svc.Discussion.Upload(ctx, h.pm, ref, []Upload{upload("a.txt", "a"), upload("b.txt", "b")}, "")
	require.Error(t, err)
	require.Len(t, list, 1)
	h.run(t, list)

	var files []string
	require.NoError(t, filepath.Walk(h.blobs.Root(), func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			files = append(files, path)
		}
		return err
	}))
	assert.Empty(t, files)

	got, err := h.db.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Attachments)
}

func TestDeleteProjectRemovesBlobs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)
	m := h.milestone(t, p.ID)
	ref := models.ParentRef{Kind: models.ParentMilestone, ID: m.ID}

	attachments, _, err := h.svc.Discussion.Upload(ctx, h.pm, ref, []Upload{upload("brief.txt", "data")}, "")
	require.NoError(t, err)
	blob := filepath.Join(h.blobs.Root(), filepath.FromSlash(attachments[0].StorageKey))

	list, err := h.svc.Projects.Delete(ctx, h.pm, p.ID)
	require.NoError(t, err)
	h.run(t, list)

	_, statErr := os.Stat(blob)
	assert.True(t, os.IsNotExist(statErr))
	_, err = h.svc.Milestones.Get(ctx, h.pm, m.ID)
	requireKind(t, err, KindNotFound)
}

func TestTaskRequests(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)
	m := h.milestone(t, p.ID)

	_, _, err := h.svc.TaskRequests.Create(ctx, h.employee, TaskRequestInput{ProjectID: p.ID, Title: "More"})
	requireKind(t, err, KindForbidden)

	stranger := h.user(t, models.RoleCustomer, "stranger@example.com")
	_, _, err = h.svc.TaskRequests.Create(ctx, stranger, TaskRequestInput{ProjectID: p.ID, Title: "More"})
	requireKind(t, err, KindForbidden)

	req, _, err := h.svc.TaskRequests.Create(ctx, h.customer, TaskRequestInput{ProjectID: p.ID, Title: "Dark mode"})
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.Status)
	assert.Equal(t, models.PriorityMedium, req.Priority)

	_, _, _, err = h.svc.TaskRequests.Approve(ctx, h.pm, req.ID, ReviewInput{})
	requireKind(t, err, KindValidation)

	approved, task, list, err := h.svc.TaskRequests.Approve(ctx, h.pm, req.ID, ReviewInput{MilestoneID: m.ID, Priority: "high"})
	require.NoError(t, err)
	h.run(t, list)
	assert.Equal(t, models.RequestApproved, approved.Status)
	assert.Equal(t, task.ID, approved.TaskID)
	assert.Equal(t, models.PriorityHigh, task.Priority)
	assert.Equal(t, m.ID, task.MilestoneID)

	_, _, _, err = h.svc.TaskRequests.Approve(ctx, h.pm, req.ID, ReviewInput{MilestoneID: m.ID})
	requireKind(t, err, KindValidation)

	second, _, err := h.svc.TaskRequests.Create(ctx, h.customer, TaskRequestInput{ProjectID: p.ID, Title: "Export"})
	require.NoError(t, err)
	_, _, err = h.svc.TaskRequests.Reject(ctx, h.pm, second.ID, ReviewInput{})
	requireKind(t, err, KindValidation)
	rejected, _, err := h.svc.TaskRequests.Reject(ctx, h.pm, second.ID, ReviewInput{ReviewNote: "Out of scope"})
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, rejected.Status)

	reqs, total, err := h.svc.TaskRequests.List(ctx, stranger, models.TaskRequestFilter{})
	require.NoError(t, err)
	assert.Empty(t, reqs)
	assert.Zero(t, total)

	_, total, err = h.svc.TaskRequests.List(ctx, h.customer, models.TaskRequestFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

// failingRequestStore fails every task request update.
type failingRequestStore struct {
	database.DatabaseInterface
}

func (failingRequestStore) UpdateTaskRequest(ctx context.Context, req *models.TaskRequest) error {
	return errors.New("disk full")
}

func TestApproveFailureRemovesTask(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)
	m := h.milestone(t, p.ID)

	req, _, err := h.svc.TaskRequests.Create(ctx, h.customer, TaskRequestInput{ProjectID: p.ID, Title: "Dark mode"})
	require.NoError(t, err)

	h.deps.Store = failingRequestStore{h.db}
	_, _, _, err = h.svc.TaskRequests.Approve(ctx, h.pm, req.ID, ReviewInput{MilestoneID: m.ID})
	require.Error(t, err)

	tasks, total, err := h.db.ListTasks(ctx, models.TaskFilter{ProjectID: p.ID})
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Zero(t, total)
	stored, err := h.db.GetTaskRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, stored.Status)
	assert.Empty(t, stored.TaskID)

	h.deps.Store = h.db
	approved, task, _, err := h.svc.TaskRequests.Approve(ctx, h.pm, req.ID, ReviewInput{MilestoneID: m.ID})
	require.NoError(t, err)
	assert.Equal(t, task.ID, approved.TaskID)
	_, total, err = h.db.ListTasks(ctx, models.TaskFilter{ProjectID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestActivitiesFeed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)

	name, customer := "Other", h.user(t, models.RoleCustomer, "other@example.com").ID
	_, list, err := h.svc.Projects.Create(ctx, h.pm, ProjectInput{Name: &name, CustomerID: &customer})
	require.NoError(t, err)
	h.run(t, list)

	_, total, err := h.svc.Activities.List(ctx, h.pm, models.ActivityFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	activities, total, err := h.svc.Activities.List(ctx, h.customer, models.ActivityFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, p.ID, activities[0].ProjectID)
	assert.Equal(t, "create", activities[0].Action)
}

func TestDashboards(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.project(t)
	m := h.milestone(t, p.ID)
	overdue := h.task(t, p.ID, m.ID, h.employee.ID)
	h.task(t, p.ID, m.ID, h.employee.ID)

	past := time.Now().Add(-48 * time.Hour)
	_, _, err := h.svc.Tasks.Update(ctx, h.pm, overdue.ID, TaskInput{DueDate: &past})
	require.NoError(t, err)
	_, _, err = h.svc.TaskRequests.Create(ctx, h.customer, TaskRequestInput{ProjectID: p.ID, Title: "More"})
	require.NoError(t, err)

	cd, err := h.svc.Dashboards.Customer(ctx, h.customer)
	require.NoError(t, err)
	assert.Equal(t, 1, cd.TotalProjects)
	assert.Equal(t, 1, cd.ProjectsByStatus[models.ProjectPlanning])
	assert.Equal(t, 1, cd.PendingTaskRequests)

	ed, err := h.svc.Dashboards.Employee(ctx, h.employee)
	require.NoError(t, err)
	assert.Equal(t, 2, ed.TotalTasks)
	assert.Equal(t, 1, ed.OverdueTasks)
	assert.Equal(t, 1, ed.Projects)

	_, err = h.svc.Dashboards.Customer(ctx, h.employee)
	requireKind(t, err, KindForbidden)
}

func TestEnsureDefaultPM(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	db := database.NewMemoryDatabase()
	svc := New(&Deps{
		Config: &config.Config{DefaultPMEmail: "Boss@Example.com", DefaultPMPassword: "secret123"},
		Store:  db,
		Logger: logger,
	})

	require.NoError(t, svc.Auth.EnsureDefaultPM(ctx))
	require.NoError(t, svc.Auth.EnsureDefaultPM(ctx))

	n, err := db.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	u, err := db.GetUserByEmail(ctx, "boss@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RolePM, u.Role)
}
