package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"project-hub-backend/pkg/metrics"
	"project-hub-backend/pkg/models"
)

// PostgresDatabase stores records in PostgreSQL. The schema lives in
// scripts/init_db.sql.
type PostgresDatabase struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresDatabase opens and pings a connection pool sized for small
// (possibly serverless) instances.
func NewPostgresDatabase(dsn string, logger *zap.Logger) (*PostgresDatabase, error) {
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	if !strings.Contains(dsn, "connect_timeout") {
		dsn = addConnectionParams(dsn, "connect_timeout=10")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	logger.Info("PostgreSQL connection established")
	return &PostgresDatabase{db: db, logger: logger}, nil
}

// addConnectionParams appends query parameters to a URL-style DSN.
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + params
}

func observe(operation string) func() {
	start := time.Now()
	return func() { metrics.RecordDBQueryDuration(operation, time.Since(start)) }
}

// mapError translates driver errors into the package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return ErrDuplicate
		case "23503", "22P02": // foreign_key_violation, invalid uuid text
			return ErrNotFound
		}
	}
	return err
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// where builds a parameterized WHERE clause. Each "?" in a clause is bound
// to that clause's single argument.
type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) add(clause string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *where) page(p models.Page) string {
	if p == (models.Page{}) {
		return ""
	}
	p = p.Normalize()
	return fmt.Sprintf(" LIMIT %d OFFSET %d", p.Limit, p.Offset())
}

func (db *PostgresDatabase) count(ctx context.Context, table string, w *where) (int, error) {
	var total int
	err := db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+w.String(), w.args...).Scan(&total)
	return total, mapError(err)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// Users

const userColumns = `id, name, email, password_hash, role, status, phone, company, department, last_login, created_at, updated_at`

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Role, &u.Status,
		&u.Phone, &u.Company, &u.Department, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

func (db *PostgresDatabase) CreateUser(ctx context.Context, user *models.User) error {
	defer observe("create_user")()

	now := time.Now()
	user.ID = newID(user.ID)
	user.CreatedAt, user.UpdatedAt = now, now

	_, err := db.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		user.ID, user.Name, user.Email, user.Password, user.Role, user.Status,
		user.Phone, user.Company, user.Department, user.LastLogin, user.CreatedAt, user.UpdatedAt)
	return mapError(err)
}

func (db *PostgresDatabase) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	defer observe("get_user")()
	return scanUser(db.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (db *PostgresDatabase) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	defer observe("get_user_by_email")()
	return scanUser(db.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (db *PostgresDatabase) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	defer observe("get_users_by_ids")()

	rows, err := db.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (db *PostgresDatabase) UpdateUser(ctx context.Context, user *models.User) error {
	defer observe("update_user")()

	user.UpdatedAt = time.Now()
	res, err := db.db.ExecContext(ctx, `
		UPDATE users SET name = $2, email = $3, password_hash = $4, role = $5, status = $6,
			phone = $7, company = $8, department = $9, last_login = $10, updated_at = $11
		WHERE id = $1`,
		user.ID, user.Name, user.Email, user.Password, user.Role, user.Status,
		user.Phone, user.Company, user.Department, user.LastLogin, user.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

func (db *PostgresDatabase) DeleteUser(ctx context.Context, id string) error {
	defer observe("delete_user")()

	res, err := db.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

func (db *PostgresDatabase) ListUsers(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	defer observe("list_users")()

	w := &where{}
	if filter.Role != "" {
		w.add("role = ?", filter.Role)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.Search != "" {
		w.add("(name ILIKE ? OR email ILIKE ? OR company ILIKE ?)", "%"+filter.Search+"%")
	}

	total, err := db.count(ctx, "users", w)
	if err != nil {
		return nil, 0, err
	}

	rows, err := db.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users`+w.String()+
		` ORDER BY created_at DESC`+w.page(filter.Page), w.args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

func (db *PostgresDatabase) CountUsers(ctx context.Context) (int, error) {
	defer observe("count_users")()
	return db.count(ctx, "users", &where{})
}

// Embedded comments and attachments

var parentTables = map[models.ParentKind]string{
	models.ParentProject:   "projects",
	models.ParentMilestone: "milestones",
	models.ParentTask:      "tasks",
	models.ParentSubtask:   "subtasks",
}

const attachmentColumns = `id, filename, url, storage_key, size, mimetype, description, uploaded_by, uploaded_at`

func scanAttachment(row scanner) (*models.Attachment, error) {
	var a models.Attachment
	err := row.Scan(&a.ID, &a.Filename, &a.URL, &a.StorageKey, &a.Size, &a.MimeType,
		&a.Description, &a.UploadedBy, &a.UploadedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &a, nil
}

const commentColumns = `id, author_id, author_name, message, created_at`

func scanComment(row scanner) (*models.Comment, error) {
	var c models.Comment
	if err := row.Scan(&c.ID, &c.Author, &c.AuthorName, &c.Message, &c.Timestamp); err != nil {
		return nil, mapError(err)
	}
	return &c, nil
}

func (db *PostgresDatabase) parentExists(ctx context.Context, parent models.ParentRef) error {
	table, ok := parentTables[parent.Kind]
	if !ok {
		return ErrNotFound
	}
	var exists bool
	err := db.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, parent.ID).Scan(&exists)
	if err != nil {
		return mapError(err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

// loadEmbedded fetches the comments and attachments of every id of kind in
// two queries.
func (db *PostgresDatabase) loadEmbedded(ctx context.Context, kind models.ParentKind, ids []string) (map[string][]models.Comment, map[string][]models.Attachment, error) {
	comments := map[string][]models.Comment{}
	attachments := map[string][]models.Attachment{}
	if len(ids) == 0 {
		return comments, attachments, nil
	}

	rows, err := db.db.QueryContext(ctx, `SELECT parent_id, `+commentColumns+` FROM comments
		WHERE parent_type = $1 AND parent_id = ANY($2) ORDER BY created_at`, kind, pq.Array(ids))
	if err != nil {
		return nil, nil, mapError(err)
	}
	for rows.Next() {
		var parentID string
		var c models.Comment
		if err := rows.Scan(&parentID, &c.ID, &c.Author, &c.AuthorName, &c.Message, &c.Timestamp); err != nil {
			rows.Close()
			return nil, nil, err
		}
		comments[parentID] = append(comments[parentID], c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	rows, err = db.db.QueryContext(ctx, `SELECT parent_id, `+attachmentColumns+` FROM attachments
		WHERE parent_type = $1 AND parent_id = ANY($2) ORDER BY uploaded_at`, kind, pq.Array(ids))
	if err != nil {
		return nil, nil, mapError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var parentID string
		var a models.Attachment
		if err := rows.Scan(&parentID, &a.ID, &a.Filename, &a.URL, &a.StorageKey, &a.Size,
			&a.MimeType, &a.Description, &a.UploadedBy, &a.UploadedAt); err != nil {
			return nil, nil, err
		}
		attachments[parentID] = append(attachments[parentID], a)
	}
	return comments, attachments, rows.Err()
}

func (db *PostgresDatabase) AddComment(ctx context.Context, parent models.ParentRef, comment *models.Comment) error {
	defer observe("add_comment")()

	if err := db.parentExists(ctx, parent); err != nil {
		return err
	}
	comment.ID = newID(comment.ID)
	if comment.Timestamp.IsZero() {
		comment.Timestamp = time.Now()
	}
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO comments (id, parent_type, parent_id, author_id, author_name, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		comment.ID, parent.Kind, parent.ID, comment.Author, comment.AuthorName, comment.Message, comment.Timestamp)
	return mapError(err)
}

func (db *PostgresDatabase) GetComment(ctx context.Context, parent models.ParentRef, commentID string) (*models.Comment, error) {
	defer observe("get_comment")()
	return scanComment(db.db.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments
		WHERE parent_type = $1 AND parent_id = $2 AND id = $3`, parent.Kind, parent.ID, commentID))
}

func (db *PostgresDatabase) DeleteComment(ctx context.Context, parent models.ParentRef, commentID string) error {
	defer observe("delete_comment")()

	res, err := db.db.ExecContext(ctx, `DELETE FROM comments WHERE parent_type = $1 AND parent_id = $2 AND id = $3`,
		parent.Kind, parent.ID, commentID)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

func (db *PostgresDatabase) ListComments(ctx context.Context, parent models.ParentRef) ([]models.Comment, error) {
	defer observe("list_comments")()

	if err := db.parentExists(ctx, parent); err != nil {
		return nil, err
	}
	comments, _, err := db.loadEmbedded(ctx, parent.Kind, []string{parent.ID})
	if err != nil {
		return nil, err
	}
	return nonNil(comments[parent.ID]), nil
}

func (db *PostgresDatabase) AddAttachments(ctx context.Context, parent models.ParentRef, attachments []models.Attachment) error {
	defer observe("add_attachments")()

	if err := db.parentExists(ctx, parent); err != nil {
		return err
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range attachments {
		a := &attachments[i]
		a.ID = newID(a.ID)
		if a.UploadedAt.IsZero() {
			a.UploadedAt = time.Now()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attachments (id, parent_type, parent_id, filename, url, storage_key, size, mimetype, description, uploaded_by, uploaded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			a.ID, parent.Kind, parent.ID, a.Filename, a.URL, a.StorageKey, a.Size, a.MimeType, a.Description, a.UploadedBy, a.UploadedAt)
		if err != nil {
			return mapError(err)
		}
	}
	return tx.Commit()
}

func (db *PostgresDatabase) GetAttachment(ctx context.Context, parent models.ParentRef, attachmentID string) (*models.Attachment, error) {
	defer observe("get_attachment")()
	return scanAttachment(db.db.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments
		WHERE parent_type = $1 AND parent_id = $2 AND id = $3`, parent.Kind, parent.ID, attachmentID))
}

func (db *PostgresDatabase) DeleteAttachment(ctx context.Context, parent models.ParentRef, attachmentID string) error {
	defer observe("delete_attachment")()

	res, err := db.db.ExecContext(ctx, `DELETE FROM attachments WHERE parent_type = $1 AND parent_id = $2 AND id = $3`,
		parent.Kind, parent.ID, attachmentID)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

// Cascading deletes. Child rows are removed by foreign keys; comments and
// attachments are polymorphic and removed through these scopes, where $1 is
// the id of the deleted entity.
const (
	subtaskScope = `(parent_type = 'subtask' AND parent_id = $1)`

	taskScope = `(parent_type = 'task' AND parent_id = $1)
		OR (parent_type = 'subtask' AND parent_id IN (SELECT id FROM subtasks WHERE task_id = $1))`

	milestoneScope = `(parent_type = 'milestone' AND parent_id = $1)
		OR (parent_type = 'task' AND parent_id IN (SELECT id FROM tasks WHERE milestone_id = $1))
		OR (parent_type = 'subtask' AND parent_id IN (
			SELECT s.id FROM subtasks s JOIN tasks t ON t.id = s.task_id WHERE t.milestone_id = $1))`

	projectScope = `(parent_type = 'project' AND parent_id = $1)
		OR (parent_type = 'milestone' AND parent_id IN (SELECT id FROM milestones WHERE project_id = $1))
		OR (parent_type = 'task' AND parent_id IN (SELECT id FROM tasks WHERE project_id = $1))
		OR (parent_type = 'subtask' AND parent_id IN (
			SELECT s.id FROM subtasks s JOIN tasks t ON t.id = s.task_id WHERE t.project_id = $1))`
)

func (db *PostgresDatabase) deleteCascade(ctx context.Context, table, scope, id string) ([]models.Attachment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE `+scope, id)
	if err != nil {
		return nil, mapError(err)
	}
	removed := []models.Attachment{}
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		removed = append(removed, *a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE `+scope, id); err != nil {
		return nil, mapError(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE `+scope, id); err != nil {
		return nil, mapError(err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return nil, mapError(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return removed, tx.Commit()
}

// Projects

const projectColumns = `id, name, description, customer_id, project_manager_id, assigned_team, status, priority,
	start_date, end_date, budget, progress, created_at, updated_at`

func scanProject(row scanner) (*models.Project, error) {
	var p models.Project
	var team pq.StringArray
	var start, end sql.NullTime
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CustomerID, &p.ProjectManagerID, &team,
		&p.Status, &p.Priority, &start, &end, &p.Budget, &p.Progress, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	p.AssignedTeam = nonNil([]string(team))
	p.StartDate = timePtr(start)
	p.EndDate = timePtr(end)
	return &p, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (db *PostgresDatabase) CreateProject(ctx context.Context, project *models.Project) error {
	defer observe("create_project")()

	now := time.Now()
	project.ID = newID(project.ID)
	project.CreatedAt, project.UpdatedAt = now, now
	project.AssignedTeam = nonNil(project.AssignedTeam)

	_, err := db.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		project.ID, project.Name, project.Description, project.CustomerID, project.ProjectManagerID,
		pq.Array(project.AssignedTeam), project.Status, project.Priority, project.StartDate, project.EndDate,
		project.Budget, project.Progress, project.CreatedAt, project.UpdatedAt)
	return mapError(err)
}

func (db *PostgresDatabase) GetProject(ctx context.Context, id string) (*models.Project, error) {
	defer observe("get_project")()

	p, err := scanProject(db.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	comments, attachments, err := db.loadEmbedded(ctx, models.ParentProject, []string{p.ID})
	if err != nil {
		return nil, err
	}
	p.Comments = nonNil(comments[p.ID])
	p.Attachments = nonNil(attachments[p.ID])
	return p, nil
}

func (db *PostgresDatabase) UpdateProject(ctx context.Context, project *models.Project) error {
	defer observe("update_project")()

	project.UpdatedAt = time.Now()
	err := db.db.QueryRowContext(ctx, `
		UPDATE projects SET name = $2, description = $3, customer_id = $4, project_manager_id = $5,
			assigned_team = $6, status = $7, priority = $8, start_date = $9, end_date = $10,
			budget = $11, updated_at = $12
		WHERE id = $1
		RETURNING progress, created_at`,
		project.ID, project.Name, project.Description, project.CustomerID, project.ProjectManagerID,
		pq.Array(nonNil(project.AssignedTeam)), project.Status, project.Priority, project.StartDate, project.EndDate,
		project.Budget, project.UpdatedAt).Scan(&project.Progress, &project.CreatedAt)
	return mapError(err)
}

func (db *PostgresDatabase) DeleteProject(ctx context.Context, id string) ([]models.Attachment, error) {
	defer observe("delete_project")()
	return db.deleteCascade(ctx, "projects", projectScope, id)
}

func (db *PostgresDatabase) ListProjects(ctx context.Context, filter models.ProjectFilter) ([]models.Project, int, error) {
	defer observe("list_projects")()

	w := &where{}
	if filter.CustomerID != "" {
		w.add("customer_id = ?", filter.CustomerID)
	}
	if filter.TeamMember != "" {
		w.add("? = ANY(assigned_team)", filter.TeamMember)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.Priority != "" {
		w.add("priority = ?", filter.Priority)
	}
	if filter.Search != "" {
		w.add("(name ILIKE ? OR description ILIKE ?)", "%"+filter.Search+"%")
	}

	total, err := db.count(ctx, "projects", w)
	if err != nil {
		return nil, 0, err
	}

	rows, err := db.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects`+w.String()+
		` ORDER BY created_at DESC`+w.page(filter.Page), w.args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	projects := []models.Project{}
	ids := []string{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		projects = append(projects, *p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	comments, attachments, err := db.loadEmbedded(ctx, models.ParentProject, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range projects {
		projects[i].Comments = nonNil(comments[projects[i].ID])
		projects[i].Attachments = nonNil(attachments[projects[i].ID])
	}
	return projects, total, nil
}

func (db *PostgresDatabase) SetProjectProgress(ctx context.Context, id string, progress int) error {
	defer observe("set_project_progress")()

	res, err := db.db.ExecContext(ctx, `UPDATE projects SET progress = $2, updated_at = NOW() WHERE id = $1`, id, progress)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

// Milestones

const milestoneColumns = `id, project_id, name, description, sequence, status, due_date, completed_at,
	progress, created_at, updated_at`

func scanMilestone(row scanner) (*models.Milestone, error) {
	var m models.Milestone
	var due, completed sql.NullTime
	err := row.Scan(&m.ID, &m.ProjectID, &m.Name, &m.Description, &m.Sequence, &m.Status,
		&due, &completed, &m.Progress, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	m.DueDate = timePtr(due)
	m.CompletedAt = timePtr(completed)
	return &m, nil
}

func (db *PostgresDatabase) withMilestoneEmbedded(ctx context.Context, milestones []models.Milestone) error {
	ids := make([]string, len(milestones))
	for i, m := range milestones {
		ids[i] = m.ID
	}
	comments, attachments, err := db.loadEmbedded(ctx, models.ParentMilestone, ids)
	if err != nil {
		return err
	}
	for i := range milestones {
		milestones[i].Comments = nonNil(comments[milestones[i].ID])
		milestones[i].Attachments = nonNil(attachments[milestones[i].ID])
	}
	return nil
}

func (db *PostgresDatabase) CreateMilestone(ctx context.Context, milestone *models.Milestone) error {
	defer observe("create_milestone")()

	now := time.Now()
	milestone.ID = newID(milestone.ID)
	milestone.CreatedAt, milestone.UpdatedAt = now, now

	_, err := db.db.ExecContext(ctx, `
		INSERT INTO milestones (`+milestoneColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		milestone.ID, milestone.ProjectID, milestone.Name, milestone.Description, milestone.Sequence,
		milestone.Status, milestone.DueDate, milestone.CompletedAt, milestone.Progress,
		milestone.CreatedAt, milestone.UpdatedAt)
	return mapError(err)
}

func (db *PostgresDatabase) GetMilestone(ctx context.Context, id string) (*models.Milestone, error) {
	defer observe("get_milestone")()

	m, err := scanMilestone(db.db.QueryRowContext(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	list := []models.Milestone{*m}
	if err := db.withMilestoneEmbedded(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (db *PostgresDatabase) UpdateMilestone(ctx context.Context, milestone *models.Milestone) error {
	defer observe("update_milestone")()

	milestone.UpdatedAt = time.Now()
	err := db.db.QueryRowContext(ctx, `
		UPDATE milestones SET name = $2, description = $3, sequence = $4, status = $5,
			due_date = $6, completed_at = $7, updated_at = $8
		WHERE id = $1
		RETURNING project_id, progress, created_at`,
		milestone.ID, milestone.Name, milestone.Description, milestone.Sequence, milestone.Status,
		milestone.DueDate, milestone.CompletedAt, milestone.UpdatedAt).
		Scan(&milestone.ProjectID, &milestone.Progress, &milestone.CreatedAt)
	return mapError(err)
}

func (db *PostgresDatabase) DeleteMilestone(ctx context.Context, id string) ([]models.Attachment, error) {
	defer observe("delete_milestone")()
	return db.deleteCascade(ctx, "milestones", milestoneScope, id)
}

func (db *PostgresDatabase) ListMilestones(ctx context.Context, projectID string) ([]models.Milestone, error) {
	defer observe("list_milestones")()

	rows, err := db.db.QueryContext(ctx, `SELECT `+milestoneColumns+` FROM milestones
		WHERE project_id = $1 ORDER BY sequence`, projectID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	milestones := []models.Milestone{}
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := db.withMilestoneEmbedded(ctx, milestones); err != nil {
		return nil, err
	}
	return milestones, nil
}

func (db *PostgresDatabase) FindMilestoneBySequence(ctx context.Context, projectID string, sequence int) (*models.Milestone, error) {
	defer observe("find_milestone_by_sequence")()
	return scanMilestone(db.db.QueryRowContext(ctx, `SELECT `+milestoneColumns+` FROM milestones
		WHERE project_id = $1 AND sequence = $2`, projectID, sequence))
}

func (db *PostgresDatabase) MaxMilestoneSequence(ctx context.Context, projectID string) (int, error) {
	defer observe("max_milestone_sequence")()

	var last int
	err := db.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM milestones WHERE project_id = $1`, projectID).Scan(&last)
	return last, mapError(err)
}

func (db *PostgresDatabase) SetMilestoneProgress(ctx context.Context, id string, progress int) error {
	defer observe("set_milestone_progress")()

	res, err := db.db.ExecContext(ctx, `UPDATE milestones SET progress = $2, updated_at = NOW() WHERE id = $1`, id, progress)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

// Tasks

const taskColumns = `id, project_id, milestone_id, title, description, status, priority, assigned_to,
	due_date, estimated_hours, actual_hours, completed_at, created_by, created_at, updated_at`

func scanTask(row scanner) (*models.Task, error) {
	var t models.Task
	var assigned pq.StringArray
	var due, completed sql.NullTime
	var createdBy sql.NullString
	err := row.Scan(&t.ID, &t.ProjectID, &t.MilestoneID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&assigned, &due, &t.EstimatedHours, &t.ActualHours, &completed, &createdBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	t.AssignedTo = nonNil([]string(assigned))
	t.DueDate = timePtr(due)
	t.CompletedAt = timePtr(completed)
	t.CreatedBy = createdBy.String
	return &t, nil
}

func (db *PostgresDatabase) withTaskEmbedded(ctx context.Context, tasks []models.Task) error {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	comments, attachments, err := db.loadEmbedded(ctx, models.ParentTask, ids)
	if err != nil {
		return err
	}
	for i := range tasks {
		tasks[i].Comments = nonNil(comments[tasks[i].ID])
		tasks[i].Attachments = nonNil(attachments[tasks[i].ID])
	}
	return nil
}

func (db *PostgresDatabase) CreateTask(ctx context.Context, task *models.Task) error {
	defer observe("create_task")()

	now := time.Now()
	task.ID = newID(task.ID)
	task.CreatedAt, task.UpdatedAt = now, now
	task.AssignedTo = nonNil(task.AssignedTo)

	_, err := db.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		task.ID, task.ProjectID, task.MilestoneID, task.Title, task.Description, task.Status, task.Priority,
		pq.Array(task.AssignedTo), task.DueDate, task.EstimatedHours, task.ActualHours, task.CompletedAt,
		nullIfEmpty(task.CreatedBy), task.CreatedAt, task.UpdatedAt)
	return mapError(err)
}

func (db *PostgresDatabase) GetTask(ctx context.Context, id string) (*models.Task, error) {
	defer observe("get_task")()

	t, err := scanTask(db.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	list := []models.Task{*t}
	if err := db.withTaskEmbedded(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (db *PostgresDatabase) UpdateTask(ctx context.Context, task *models.Task) error {
	defer observe("update_task")()

	task.UpdatedAt = time.Now()
	err := db.db.QueryRowContext(ctx, `
		UPDATE tasks SET milestone_id = $2, title = $3, description = $4, status = $5, priority = $6,
			assigned_to = $7, due_date = $8, estimated_hours = $9, actual_hours = $10,
			completed_at = $11, updated_at = $12
		WHERE id = $1
		RETURNING created_at`,
		task.ID, task.MilestoneID, task.Title, task.Description, task.Status, task.Priority,
		pq.Array(nonNil(task.AssignedTo)), task.DueDate, task.EstimatedHours, task.ActualHours,
		task.CompletedAt, task.UpdatedAt).Scan(&task.CreatedAt)
	return mapError(err)
}

func (db *PostgresDatabase) DeleteTask(ctx context.Context, id string) ([]models.Attachment, error) {
	defer observe("delete_task")()
	return db.deleteCascade(ctx, "tasks", taskScope, id)
}

func (db *PostgresDatabase) ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error) {
	defer observe("list_tasks")()

	w := &where{}
	if filter.ProjectIDs != nil {
		w.add("project_id = ANY(?)", pq.Array(filter.ProjectIDs))
	}
	if filter.ProjectID != "" {
		w.add("project_id = ?", filter.ProjectID)
	}
	if filter.MilestoneID != "" {
		w.add("milestone_id = ?", filter.MilestoneID)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.Priority != "" {
		w.add("priority = ?", filter.Priority)
	}
	if filter.AssignedTo != "" {
		w.add("? = ANY(assigned_to)", filter.AssignedTo)
	}
	if filter.Search != "" {
		w.add("(title ILIKE ? OR description ILIKE ?)", "%"+filter.Search+"%")
	}

	total, err := db.count(ctx, "tasks", w)
	if err != nil {
		return nil, 0, err
	}

	rows, err := db.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks`+w.String()+
		` ORDER BY created_at DESC`+w.page(filter.Page), w.args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := db.withTaskEmbedded(ctx, tasks); err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (db *PostgresDatabase) CountMilestoneTasks(ctx context.Context, milestoneID string) (int, int, error) {
	defer observe("count_milestone_tasks")()

	var total, completed int
	err := db.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'completed')
		FROM tasks WHERE milestone_id = $1`, milestoneID).Scan(&total, &completed)
	return total, completed, mapError(err)
}

func (db *PostgresDatabase) CountProjectItems(ctx context.Context, projectID string) (models.ProjectCounts, error) {
	defer observe("count_project_items")()

	var c models.ProjectCounts
	err := db.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM milestones WHERE project_id = $1),
			(SELECT COUNT(*) FROM milestones WHERE project_id = $1 AND status = 'completed'),
			(SELECT COUNT(*) FROM tasks WHERE project_id = $1),
			(SELECT COUNT(*) FROM tasks WHERE project_id = $1 AND status = 'completed')`,
		projectID).Scan(&c.Milestones, &c.CompletedMilestones, &c.Tasks, &c.CompletedTasks)
	return c, mapError(err)
}

// Subtasks

const subtaskColumns = `id, task_id, customer_id, title, description, sequence, status, assigned_to, created_at, updated_at`

func scanSubtask(row scanner) (*models.Subtask, error) {
	var s models.Subtask
	var customer, assigned sql.NullString
	err := row.Scan(&s.ID, &s.TaskID, &customer, &s.Title, &s.Description, &s.Sequence, &s.Status,
		&assigned, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	s.CustomerID = customer.String
	s.AssignedTo = assigned.String
	return &s, nil
}

func (db *PostgresDatabase) withSubtaskEmbedded(ctx context.Context, subtasks []models.Subtask) error {
	ids := make([]string, len(subtasks))
	for i, s := range subtasks {
		ids[i] = s.ID
	}
	comments, attachments, err := db.loadEmbedded(ctx, models.ParentSubtask, ids)
	if err != nil {
		return err
	}
	for i := range subtasks {
		subtasks[i].Comments = nonNil(comments[subtasks[i].ID])
		subtasks[i].Attachments = nonNil(attachments[subtasks[i].ID])
	}
	return nil
}

func (db *PostgresDatabase) CreateSubtask(ctx context.Context, subtask *models.Subtask) error {
	defer observe("create_subtask")()

	now := time.Now()
	subtask.ID = newID(subtask.ID)
	subtask.CreatedAt, subtask.UpdatedAt = now, now

	_, err := db.db.ExecContext(ctx, `
		INSERT INTO subtasks (`+subtaskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		subtask.ID, subtask.TaskID, nullIfEmpty(subtask.CustomerID), subtask.Title, subtask.Description,
		subtask.Sequence, subtask.Status, nullIfEmpty(subtask.AssignedTo), subtask.CreatedAt, subtask.UpdatedAt)
	return mapError(err)
}

func (db *PostgresDatabase) GetSubtask(ctx context.Context, id string) (*models.Subtask, error) {
	defer observe("get_subtask")()

	s, err := scanSubtask(db.db.QueryRowContext(ctx, `SELECT `+subtaskColumns+` FROM subtasks WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	list := []models.Subtask{*s}
	if err := db.withSubtaskEmbedded(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (db *PostgresDatabase) UpdateSubtask(ctx context.Context, subtask *models.Subtask) error {
	defer observe("update_subtask")()

	subtask.UpdatedAt = time.Now()
	err := db.db.QueryRowContext(ctx, `
		UPDATE subtasks SET title = $2, description = $3, sequence = $4, status = $5,
			assigned_to = $6, updated_at = $7
		WHERE id = $1
		RETURNING task_id, created_at`,
		subtask.ID, subtask.Title, subtask.Description, subtask.Sequence, subtask.Status,
		nullIfEmpty(subtask.AssignedTo), subtask.UpdatedAt).Scan(&subtask.TaskID, &subtask.CreatedAt)
	return mapError(err)
}

func (db *PostgresDatabase) DeleteSubtask(ctx context.Context, id string) ([]models.Attachment, error) {
	defer observe("delete_subtask")()
	return db.deleteCascade(ctx, "subtasks", subtaskScope, id)
}

func (db *PostgresDatabase) ListSubtasks(ctx context.Context, taskID string) ([]models.Subtask, error) {
	defer observe("list_subtasks")()

	rows, err := db.db.QueryContext(ctx, `SELECT `+subtaskColumns+` FROM subtasks WHERE task_id = $1 ORDER BY sequence`, taskID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	subtasks := []models.Subtask{}
	for rows.Next() {
		s, err := scanSubtask(rows)
		if err != nil {
			return nil, err
		}
		subtasks = append(subtasks, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := db.withSubtaskEmbedded(ctx, subtasks); err != nil {
		return nil, err
	}
	return subtasks, nil
}

func (db *PostgresDatabase) MaxSubtaskSequence(ctx context.Context, taskID string) (int, error) {
	defer observe("max_subtask_sequence")()

	var last int
	err := db.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM subtasks WHERE task_id = $1`, taskID).Scan(&last)
	return last, mapError(err)
}

// Task requests

const taskRequestColumns = `id, project_id, milestone_id, requested_by, title, description, priority, status,
	reviewed_by, review_note, reviewed_at, task_id, created_at, updated_at`

func scanTaskRequest(row scanner) (*models.TaskRequest, error) {
	var r models.TaskRequest
	var milestone, reviewedBy, taskID sql.NullString
	var reviewedAt sql.NullTime
	err := row.Scan(&r.ID, &r.ProjectID, &milestone, &r.RequestedBy, &r.Title, &r.Description, &r.Priority,
		&r.Status, &reviewedBy, &r.ReviewNote, &reviewedAt, &taskID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	r.MilestoneID = milestone.String
	r.ReviewedBy = reviewedBy.String
	r.TaskID = taskID.String
	r.ReviewedAt = timePtr(reviewedAt)
	return &r, nil
}

func (db *PostgresDatabase) CreateTaskRequest(ctx context.Context, req *models.TaskRequest) error {
	defer observe("create_task_request")()

	now := time.Now()
	req.ID = newID(req.ID)
	req.CreatedAt, req.UpdatedAt = now, now

	_, err := db.db.ExecContext(ctx, `
		INSERT INTO task_requests (`+taskRequestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		req.ID, req.ProjectID, nullIfEmpty(req.MilestoneID), req.RequestedBy, req.Title, req.Description,
		req.Priority, req.Status, nullIfEmpty(req.ReviewedBy), req.ReviewNote, req.ReviewedAt,
		nullIfEmpty(req.TaskID), req.CreatedAt, req.UpdatedAt)
	return mapError(err)
}

func (db *PostgresDatabase) GetTaskRequest(ctx context.Context, id string) (*models.TaskRequest, error) {
	defer observe("get_task_request")()
	return scanTaskRequest(db.db.QueryRowContext(ctx, `SELECT `+taskRequestColumns+` FROM task_requests WHERE id = $1`, id))
}

func (db *PostgresDatabase) UpdateTaskRequest(ctx context.Context, req *models.TaskRequest) error {
	defer observe("update_task_request")()

	req.UpdatedAt = time.Now()
	err := db.db.QueryRowContext(ctx, `
		UPDATE task_requests SET milestone_id = $2, title = $3, description = $4, priority = $5, status = $6,
			reviewed_by = $7, review_note = $8, reviewed_at = $9, task_id = $10, updated_at = $11
		WHERE id = $1
		RETURNING created_at`,
		req.ID, nullIfEmpty(req.MilestoneID), req.Title, req.Description, req.Priority, req.Status,
		nullIfEmpty(req.ReviewedBy), req.ReviewNote, req.ReviewedAt, nullIfEmpty(req.TaskID), req.UpdatedAt).
		Scan(&req.CreatedAt)
	return mapError(err)
}

func (db *PostgresDatabase) ListTaskRequests(ctx context.Context, filter models.TaskRequestFilter) ([]models.TaskRequest, int, error) {
	defer observe("list_task_requests")()

	w := &where{}
	if filter.ProjectIDs != nil {
		w.add("project_id = ANY(?)", pq.Array(filter.ProjectIDs))
	}
	if filter.ProjectID != "" {
		w.add("project_id = ?", filter.ProjectID)
	}
	if filter.RequestedBy != "" {
		w.add("requested_by = ?", filter.RequestedBy)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}

	total, err := db.count(ctx, "task_requests", w)
	if err != nil {
		return nil, 0, err
	}

	rows, err := db.db.QueryContext(ctx, `SELECT `+taskRequestColumns+` FROM task_requests`+w.String()+
		` ORDER BY created_at DESC`+w.page(filter.Page), w.args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	reqs := []models.TaskRequest{}
	for rows.Next() {
		r, err := scanTaskRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		reqs = append(reqs, *r)
	}
	return reqs, total, rows.Err()
}

// Activity feed

func (db *PostgresDatabase) CreateActivity(ctx context.Context, activity *models.Activity) error {
	defer observe("create_activity")()

	activity.ID = newID(activity.ID)
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now()
	}
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO activities (id, project_id, entity_type, entity_id, action, actor_id, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		activity.ID, nullIfEmpty(activity.ProjectID), activity.EntityType, activity.EntityID,
		activity.Action, activity.ActorID, activity.Message, activity.CreatedAt)
	return mapError(err)
}

func (db *PostgresDatabase) ListActivities(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, int, error) {
	defer observe("list_activities")()

	w := &where{}
	if filter.ProjectIDs != nil {
		w.add("project_id = ANY(?)", pq.Array(filter.ProjectIDs))
	}
	if filter.ProjectID != "" {
		w.add("project_id = ?", filter.ProjectID)
	}
	if filter.ActorID != "" {
		w.add("actor_id = ?", filter.ActorID)
	}

	total, err := db.count(ctx, "activities", w)
	if err != nil {
		return nil, 0, err
	}

	rows, err := db.db.QueryContext(ctx, `
		SELECT id, COALESCE(project_id::text, ''), entity_type, entity_id, action, actor_id, message, created_at
		FROM activities`+w.String()+` ORDER BY created_at DESC`+w.page(filter.Page), w.args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	out := []models.Activity{}
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.EntityType, &a.EntityID, &a.Action, &a.ActorID, &a.Message, &a.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// HealthCheck pings the database.
func (db *PostgresDatabase) HealthCheck(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// Close closes the connection pool.
func (db *PostgresDatabase) Close() error {
	return db.db.Close()
}
