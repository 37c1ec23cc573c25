package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"project-hub-backend/pkg/models"
)

const snapshotFile = "store.yaml"

// LocalDatabase keeps every record in memory. When dataDir is set, the whole
// dataset is written to a YAML snapshot after each write and reloaded on
// start, which is enough for development and single-instance deployments.
type LocalDatabase struct {
	mu      sync.RWMutex
	dataDir string
	data    localData
	logger  *zap.Logger
	// snapshotErr is the outcome of the last snapshot write.
	snapshotErr error
}

// localData is the snapshot layout. YAML is used instead of JSON so fields
// hidden from API responses (password hashes, storage keys) survive a restart.
type localData struct {
	Users        map[string]*models.User        `yaml:"users"`
	Projects     map[string]*models.Project     `yaml:"projects"`
	Milestones   map[string]*models.Milestone   `yaml:"milestones"`
	Tasks        map[string]*models.Task        `yaml:"tasks"`
	Subtasks     map[string]*models.Subtask     `yaml:"subtasks"`
	TaskRequests map[string]*models.TaskRequest `yaml:"taskRequests"`
	Activities   []models.Activity              `yaml:"activities"`
}

// NewLocalDatabase creates the local store. An empty dataDir keeps data in
// memory only.
func NewLocalDatabase(dataDir string, logger *zap.Logger) (*LocalDatabase, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db := &LocalDatabase{dataDir: dataDir, logger: logger}
	db.reset()

	if dataDir == "" {
		return db, nil
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := db.load(); err != nil {
		return nil, err
	}
	return db, nil
}

// NewMemoryDatabase is an in-memory store with no snapshot.
func NewMemoryDatabase() *LocalDatabase {
	db, _ := NewLocalDatabase("", nil)
	return db
}

func (db *LocalDatabase) reset() {
	db.data = localData{
		Users:        map[string]*models.User{},
		Projects:     map[string]*models.Project{},
		Milestones:   map[string]*models.Milestone{},
		Tasks:        map[string]*models.Task{},
		Subtasks:     map[string]*models.Subtask{},
		TaskRequests: map[string]*models.TaskRequest{},
	}
}

func (db *LocalDatabase) snapshotPath() string {
	return filepath.Join(db.dataDir, snapshotFile)
}

func (db *LocalDatabase) load() error {
	raw, err := os.ReadFile(db.snapshotPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if err := yaml.Unmarshal(raw, &db.data); err != nil {
		return fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return nil
}

// persist snapshots a write that is already applied in memory. A failed
// snapshot does not undo the write: it is logged and reported by HealthCheck
// until a later snapshot succeeds. Callers hold the write lock.
func (db *LocalDatabase) persist() {
	db.snapshotErr = db.flush()
	if db.snapshotErr != nil {
		db.logger.Error("Failed to write local snapshot",
			zap.String("path", db.snapshotPath()), zap.Error(db.snapshotErr))
	}
}

func (db *LocalDatabase) flush() error {
	if db.dataDir == "" {
		return nil
	}
	raw, err := yaml.Marshal(&db.data)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	tmp := db.snapshotPath() + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return os.Rename(tmp, db.snapshotPath())
}

func newID(id string) string {
	if id == "" {
		return uuid.New().String()
	}
	return id
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return slices.Clone(s)
}

func paginate[T any](items []T, p models.Page) []T {
	if p == (models.Page{}) {
		return items
	}
	start, end := p.Window(len(items))
	return items[start:end]
}

func idSet(ids []string) map[string]bool {
	if ids == nil {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func cloneProject(p *models.Project) *models.Project {
	c := *p
	c.AssignedTeam = nonNil(p.AssignedTeam)
	c.Comments = nonNil(p.Comments)
	c.Attachments = nonNil(p.Attachments)
	return &c
}

func cloneMilestone(m *models.Milestone) *models.Milestone {
	c := *m
	c.Comments = nonNil(m.Comments)
	c.Attachments = nonNil(m.Attachments)
	return &c
}

func cloneTask(t *models.Task) *models.Task {
	c := *t
	c.AssignedTo = nonNil(t.AssignedTo)
	c.Comments = nonNil(t.Comments)
	c.Attachments = nonNil(t.Attachments)
	return &c
}

func cloneSubtask(s *models.Subtask) *models.Subtask {
	c := *s
	c.Comments = nonNil(s.Comments)
	c.Attachments = nonNil(s.Attachments)
	return &c
}

// Users

func (db *LocalDatabase) CreateUser(ctx context.Context, user *models.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.data.Users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrDuplicate
		}
	}

	now := time.Now()
	user.ID = newID(user.ID)
	user.CreatedAt = now
	user.UpdatedAt = now

	c := *user
	db.data.Users[user.ID] = &c
	db.persist()
	return nil
}

func (db *LocalDatabase) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	u, ok := db.data.Users[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *u
	return &c, nil
}

func (db *LocalDatabase) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, u := range db.data.Users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (db *LocalDatabase) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	users := []models.User{}
	for _, id := range ids {
		if u, ok := db.data.Users[id]; ok {
			users = append(users, *u)
		}
	}
	return users, nil
}

func (db *LocalDatabase) UpdateUser(ctx context.Context, user *models.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	existing, ok := db.data.Users[user.ID]
	if !ok {
		return ErrNotFound
	}
	for _, u := range db.data.Users {
		if u.ID != user.ID && strings.EqualFold(u.Email, user.Email) {
			return ErrDuplicate
		}
	}

	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = time.Now()
	c := *user
	db.data.Users[user.ID] = &c
	db.persist()
	return nil
}

func (db *LocalDatabase) DeleteUser(ctx context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.data.Users[id]; !ok {
		return ErrNotFound
	}
	delete(db.data.Users, id)
	db.persist()
	return nil
}

func (db *LocalDatabase) ListUsers(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	users := []models.User{}
	for _, u := range db.data.Users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Status != "" && u.Status != filter.Status {
			continue
		}
		if filter.Search != "" &&
			!containsFold(u.Name, filter.Search) &&
			!containsFold(u.Email, filter.Search) &&
			!containsFold(u.Company, filter.Search) {
			continue
		}
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })

	return paginate(users, filter.Page), len(users), nil
}

func (db *LocalDatabase) CountUsers(ctx context.Context) (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.data.Users), nil
}

// Projects

func (db *LocalDatabase) CreateProject(ctx context.Context, project *models.Project) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := time.Now()
	project.ID = newID(project.ID)
	project.CreatedAt = now
	project.UpdatedAt = now

	db.data.Projects[project.ID] = cloneProject(project)
	db.persist()
	return nil
}

func (db *LocalDatabase) GetProject(ctx context.Context, id string) (*models.Project, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	p, ok := db.data.Projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProject(p), nil
}

func (db *LocalDatabase) UpdateProject(ctx context.Context, project *models.Project) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	existing, ok := db.data.Projects[project.ID]
	if !ok {
		return ErrNotFound
	}

	project.Progress = existing.Progress
	project.Comments = existing.Comments
	project.Attachments = existing.Attachments
	project.CreatedAt = existing.CreatedAt
	project.UpdatedAt = time.Now()

	db.data.Projects[project.ID] = cloneProject(project)
	db.persist()
	return nil
}

func (db *LocalDatabase) DeleteProject(ctx context.Context, id string) ([]models.Attachment, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, ok := db.data.Projects[id]
	if !ok {
		return nil, ErrNotFound
	}

	removed := slices.Clone(p.Attachments)
	for mid, m := range db.data.Milestones {
		if m.ProjectID == id {
			removed = append(removed, db.deleteMilestoneLocked(mid)...)
		}
	}
	// Tasks whose milestone was already gone.
	for tid, t := range db.data.Tasks {
		if t.ProjectID == id {
			removed = append(removed, db.deleteTaskLocked(tid)...)
		}
	}
	for rid, r := range db.data.TaskRequests {
		if r.ProjectID == id {
			delete(db.data.TaskRequests, rid)
		}
	}
	delete(db.data.Projects, id)

	db.persist()
	return removed, nil
}

func (db *LocalDatabase) ListProjects(ctx context.Context, filter models.ProjectFilter) ([]models.Project, int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	projects := []models.Project{}
	for _, p := range db.data.Projects {
		if filter.CustomerID != "" && p.CustomerID != filter.CustomerID {
			continue
		}
		if filter.TeamMember != "" && !p.HasTeamMember(filter.TeamMember) {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && p.Priority != filter.Priority {
			continue
		}
		if filter.Search != "" && !containsFold(p.Name, filter.Search) && !containsFold(p.Description, filter.Search) {
			continue
		}
		projects = append(projects, *cloneProject(p))
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].CreatedAt.After(projects[j].CreatedAt) })

	return paginate(projects, filter.Page), len(projects), nil
}

func (db *LocalDatabase) SetProjectProgress(ctx context.Context, id string, progress int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, ok := db.data.Projects[id]
	if !ok {
		return ErrNotFound
	}
	p.Progress = progress
	p.UpdatedAt = time.Now()
	db.persist()
	return nil
}

// Milestones

func (db *LocalDatabase) sequenceTaken(projectID string, sequence int, exceptID string) bool {
	for _, m := range db.data.Milestones {
		if m.ProjectID == projectID && m.Sequence == sequence && m.ID != exceptID {
			return true
		}
	}
	return false
}

func (db *LocalDatabase) CreateMilestone(ctx context.Context, milestone *models.Milestone) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.data.Projects[milestone.ProjectID]; !ok {
		return ErrNotFound
	}
	if db.sequenceTaken(milestone.ProjectID, milestone.Sequence, "") {
		return ErrDuplicate
	}

	now := time.Now()
	milestone.ID = newID(milestone.ID)
	milestone.CreatedAt = now
	milestone.UpdatedAt = now

	db.data.Milestones[milestone.ID] = cloneMilestone(milestone)
	db.persist()
	return nil
}

func (db *LocalDatabase) GetMilestone(ctx context.Context, id string) (*models.Milestone, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	m, ok := db.data.Milestones[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMilestone(m), nil
}

func (db *LocalDatabase) UpdateMilestone(ctx context.Context, milestone *models.Milestone) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	existing, ok := db.data.Milestones[milestone.ID]
	if !ok {
		return ErrNotFound
	}
	if db.sequenceTaken(existing.ProjectID, milestone.Sequence, milestone.ID) {
		return ErrDuplicate
	}

	milestone.ProjectID = existing.ProjectID
	milestone.Progress = existing.Progress
	milestone.Comments = existing.Comments
	milestone.Attachments = existing.Attachments
	milestone.CreatedAt = existing.CreatedAt
	milestone.UpdatedAt = time.Now()

	db.data.Milestones[milestone.ID] = cloneMilestone(milestone)
	db.persist()
	return nil
}

func (db *LocalDatabase) DeleteMilestone(ctx context.Context, id string) ([]models.Attachment, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.data.Milestones[id]; !ok {
		return nil, ErrNotFound
	}
	removed := db.deleteMilestoneLocked(id)
	db.persist()
	return removed, nil
}

func (db *LocalDatabase) deleteMilestoneLocked(id string) []models.Attachment {
	m := db.data.Milestones[id]
	removed := slices.Clone(m.Attachments)
	for tid, t := range db.data.Tasks {
		if t.MilestoneID == id {
			removed = append(removed, db.deleteTaskLocked(tid)...)
		}
	}
	delete(db.data.Milestones, id)
	return removed
}

func (db *LocalDatabase) ListMilestones(ctx context.Context, projectID string) ([]models.Milestone, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	milestones := []models.Milestone{}
	for _, m := range db.data.Milestones {
		if m.ProjectID == projectID {
			milestones = append(milestones, *cloneMilestone(m))
		}
	}
	sort.Slice(milestones, func(i, j int) bool { return milestones[i].Sequence < milestones[j].Sequence })
	return milestones, nil
}

func (db *LocalDatabase) FindMilestoneBySequence(ctx context.Context, projectID string, sequence int) (*models.Milestone, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, m := range db.data.Milestones {
		if m.ProjectID == projectID && m.Sequence == sequence {
			return cloneMilestone(m), nil
		}
	}
	return nil, ErrNotFound
}

func (db *LocalDatabase) MaxMilestoneSequence(ctx context.Context, projectID string) (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	last := 0
	for _, m := range db.data.Milestones {
		if m.ProjectID == projectID && m.Sequence > last {
			last = m.Sequence
		}
	}
	return last, nil
}

func (db *LocalDatabase) SetMilestoneProgress(ctx context.Context, id string, progress int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	m, ok := db.data.Milestones[id]
	if !ok {
		return ErrNotFound
	}
	m.Progress = progress
	m.UpdatedAt = time.Now()
	db.persist()
	return nil
}

// Tasks

func (db *LocalDatabase) CreateTask(ctx context.Context, task *models.Task) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.data.Projects[task.ProjectID]; !ok {
		return ErrNotFound
	}
	if _, ok := db.data.Milestones[task.MilestoneID]; !ok {
		return ErrNotFound
	}

	now := time.Now()
	task.ID = newID(task.ID)
	task.CreatedAt = now
	task.UpdatedAt = now

	db.data.Tasks[task.ID] = cloneTask(task)
	db.persist()
	return nil
}

func (db *LocalDatabase) GetTask(ctx context.Context, id string) (*models.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	t, ok := db.data.Tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTask(t), nil
}

func (db *LocalDatabase) UpdateTask(ctx context.Context, task *models.Task) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	existing, ok := db.data.Tasks[task.ID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := db.data.Milestones[task.MilestoneID]; !ok {
		return ErrNotFound
	}

	task.Comments = existing.Comments
	task.Attachments = existing.Attachments
	task.CreatedAt = existing.CreatedAt
	task.UpdatedAt = time.Now()

	db.data.Tasks[task.ID] = cloneTask(task)
	db.persist()
	return nil
}

func (db *LocalDatabase) DeleteTask(ctx context.Context, id string) ([]models.Attachment, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.data.Tasks[id]; !ok {
		return nil, ErrNotFound
	}
	removed := db.deleteTaskLocked(id)
	db.persist()
	return removed, nil
}

func (db *LocalDatabase) deleteTaskLocked(id string) []models.Attachment {
	t := db.data.Tasks[id]
	removed := slices.Clone(t.Attachments)
	for sid, s := range db.data.Subtasks {
		if s.TaskID == id {
			removed = append(removed, s.Attachments...)
			delete(db.data.Subtasks, sid)
		}
	}
	delete(db.data.Tasks, id)
	return removed
}

func (db *LocalDatabase) ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	projects := idSet(filter.ProjectIDs)
	tasks := []models.Task{}
	for _, t := range db.data.Tasks {
		if projects != nil && !projects[t.ProjectID] {
			continue
		}
		if filter.ProjectID != "" && t.ProjectID != filter.ProjectID {
			continue
		}
		if filter.MilestoneID != "" && t.MilestoneID != filter.MilestoneID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && t.Priority != filter.Priority {
			continue
		}
		if filter.AssignedTo != "" && !t.IsAssigned(filter.AssignedTo) {
			continue
		}
		if filter.Search != "" && !containsFold(t.Title, filter.Search) && !containsFold(t.Description, filter.Search) {
			continue
		}
		tasks = append(tasks, *cloneTask(t))
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })

	return paginate(tasks, filter.Page), len(tasks), nil
}

func (db *LocalDatabase) CountMilestoneTasks(ctx context.Context, milestoneID string) (int, int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	total, completed := 0, 0
	for _, t := range db.data.Tasks {
		if t.MilestoneID != milestoneID {
			continue
		}
		total++
		if t.Status == models.TaskCompleted {
			completed++
		}
	}
	return total, completed, nil
}

func (db *LocalDatabase) CountProjectItems(ctx context.Context, projectID string) (models.ProjectCounts, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var counts models.ProjectCounts
	for _, m := range db.data.Milestones {
		if m.ProjectID != projectID {
			continue
		}
		counts.Milestones++
		if m.Status == models.MilestoneCompleted {
			counts.CompletedMilestones++
		}
	}
	for _, t := range db.data.Tasks {
		if t.ProjectID != projectID {
			continue
		}
		counts.Tasks++
		if t.Status == models.TaskCompleted {
			counts.CompletedTasks++
		}
	}
	return counts, nil
}

// Subtasks

func (db *LocalDatabase) CreateSubtask(ctx context.Context, subtask *models.Subtask) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.data.Tasks[subtask.TaskID]; !ok {
		return ErrNotFound
	}

	now := time.Now()
	subtask.ID = newID(subtask.ID)
	subtask.CreatedAt = now
	subtask.UpdatedAt = now

	db.data.Subtasks[subtask.ID] = cloneSubtask(subtask)
	db.persist()
	return nil
}

func (db *LocalDatabase) GetSubtask(ctx context.Context, id string) (*models.Subtask, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	s, ok := db.data.Subtasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSubtask(s), nil
}

func (db *LocalDatabase) UpdateSubtask(ctx context.Context, subtask *models.Subtask) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	existing, ok := db.data.Subtasks[subtask.ID]
	if !ok {
		return ErrNotFound
	}

	subtask.TaskID = existing.TaskID
	subtask.Comments = existing.Comments
	subtask.Attachments = existing.Attachments
	subtask.CreatedAt = existing.CreatedAt
	subtask.UpdatedAt = time.Now()

	db.data.Subtasks[subtask.ID] = cloneSubtask(subtask)
	db.persist()
	return nil
}

func (db *LocalDatabase) DeleteSubtask(ctx context.Context, id string) ([]models.Attachment, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	s, ok := db.data.Subtasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	removed := slices.Clone(s.Attachments)
	delete(db.data.Subtasks, id)
	db.persist()
	return removed, nil
}

func (db *LocalDatabase) ListSubtasks(ctx context.Context, taskID string) ([]models.Subtask, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	subtasks := []models.Subtask{}
	for _, s := range db.data.Subtasks {
		if s.TaskID == taskID {
			subtasks = append(subtasks, *cloneSubtask(s))
		}
	}
	sort.Slice(subtasks, func(i, j int) bool { return subtasks[i].Sequence < subtasks[j].Sequence })
	return subtasks, nil
}

func (db *LocalDatabase) MaxSubtaskSequence(ctx context.Context, taskID string) (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	last := 0
	for _, s := range db.data.Subtasks {
		if s.TaskID == taskID && s.Sequence > last {
			last = s.Sequence
		}
	}
	return last, nil
}

// Embedded comments and attachments

// embedded returns pointers to the comment and attachment lists of parent.
// Callers hold the lock.
func (db *LocalDatabase) embedded(parent models.ParentRef) (*[]models.Comment, *[]models.Attachment, error) {
	switch parent.Kind {
	case models.ParentProject:
		if p, ok := db.data.Projects[parent.ID]; ok {
			return &p.Comments, &p.Attachments, nil
		}
	case models.ParentMilestone:
		if m, ok := db.data.Milestones[parent.ID]; ok {
			return &m.Comments, &m.Attachments, nil
		}
	case models.ParentTask:
		if t, ok := db.data.Tasks[parent.ID]; ok {
			return &t.Comments, &t.Attachments, nil
		}
	case models.ParentSubtask:
		if s, ok := db.data.Subtasks[parent.ID]; ok {
			return &s.Comments, &s.Attachments, nil
		}
	}
	return nil, nil, ErrNotFound
}

func (db *LocalDatabase) AddComment(ctx context.Context, parent models.ParentRef, comment *models.Comment) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	comments, _, err := db.embedded(parent)
	if err != nil {
		return err
	}
	comment.ID = newID(comment.ID)
	if comment.Timestamp.IsZero() {
		comment.Timestamp = time.Now()
	}
	*comments = append(*comments, *comment)
	db.persist()
	return nil
}

func (db *LocalDatabase) GetComment(ctx context.Context, parent models.ParentRef, commentID string) (*models.Comment, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	comments, _, err := db.embedded(parent)
	if err != nil {
		return nil, err
	}
	for _, c := range *comments {
		if c.ID == commentID {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (db *LocalDatabase) DeleteComment(ctx context.Context, parent models.ParentRef, commentID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	comments, _, err := db.embedded(parent)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(*comments, func(c models.Comment) bool { return c.ID == commentID })
	if i < 0 {
		return ErrNotFound
	}
	*comments = slices.Delete(*comments, i, i+1)
	db.persist()
	return nil
}

func (db *LocalDatabase) ListComments(ctx context.Context, parent models.ParentRef) ([]models.Comment, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	comments, _, err := db.embedded(parent)
	if err != nil {
		return nil, err
	}
	return nonNil(*comments), nil
}

func (db *LocalDatabase) AddAttachments(ctx context.Context, parent models.ParentRef, attachments []models.Attachment) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, list, err := db.embedded(parent)
	if err != nil {
		return err
	}
	for i := range attachments {
		attachments[i].ID = newID(attachments[i].ID)
		if attachments[i].UploadedAt.IsZero() {
			attachments[i].UploadedAt = time.Now()
		}
	}
	*list = append(*list, attachments...)
	db.persist()
	return nil
}

func (db *LocalDatabase) GetAttachment(ctx context.Context, parent models.ParentRef, attachmentID string) (*models.Attachment, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, list, err := db.embedded(parent)
	if err != nil {
		return nil, err
	}
	for _, a := range *list {
		if a.ID == attachmentID {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (db *LocalDatabase) DeleteAttachment(ctx context.Context, parent models.ParentRef, attachmentID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, list, err := db.embedded(parent)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(*list, func(a models.Attachment) bool { return a.ID == attachmentID })
	if i < 0 {
		return ErrNotFound
	}
	*list = slices.Delete(*list, i, i+1)
	db.persist()
	return nil
}

// Task requests

func (db *LocalDatabase) CreateTaskRequest(ctx context.Context, req *models.TaskRequest) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.data.Projects[req.ProjectID]; !ok {
		return ErrNotFound
	}

	now := time.Now()
	req.ID = newID(req.ID)
	req.CreatedAt = now
	req.UpdatedAt = now

	c := *req
	db.data.TaskRequests[req.ID] = &c
	db.persist()
	return nil
}

func (db *LocalDatabase) GetTaskRequest(ctx context.Context, id string) (*models.TaskRequest, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	r, ok := db.data.TaskRequests[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *r
	return &c, nil
}

func (db *LocalDatabase) UpdateTaskRequest(ctx context.Context, req *models.TaskRequest) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	existing, ok := db.data.TaskRequests[req.ID]
	if !ok {
		return ErrNotFound
	}
	req.CreatedAt = existing.CreatedAt
	req.UpdatedAt = time.Now()

	c := *req
	db.data.TaskRequests[req.ID] = &c
	db.persist()
	return nil
}

func (db *LocalDatabase) ListTaskRequests(ctx context.Context, filter models.TaskRequestFilter) ([]models.TaskRequest, int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	projects := idSet(filter.ProjectIDs)
	reqs := []models.TaskRequest{}
	for _, r := range db.data.TaskRequests {
		if projects != nil && !projects[r.ProjectID] {
			continue
		}
		if filter.ProjectID != "" && r.ProjectID != filter.ProjectID {
			continue
		}
		if filter.RequestedBy != "" && r.RequestedBy != filter.RequestedBy {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		reqs = append(reqs, *r)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].CreatedAt.After(reqs[j].CreatedAt) })

	return paginate(reqs, filter.Page), len(reqs), nil
}

// Activity feed

func (db *LocalDatabase) CreateActivity(ctx context.Context, activity *models.Activity) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	activity.ID = newID(activity.ID)
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now()
	}
	db.data.Activities = append(db.data.Activities, *activity)
	db.persist()
	return nil
}

func (db *LocalDatabase) ListActivities(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	projects := idSet(filter.ProjectIDs)
	out := []models.Activity{}
	// Newest first.
	for i := len(db.data.Activities) - 1; i >= 0; i-- {
		a := db.data.Activities[i]
		if projects != nil && !projects[a.ProjectID] {
			continue
		}
		if filter.ProjectID != "" && a.ProjectID != filter.ProjectID {
			continue
		}
		if filter.ActorID != "" && a.ActorID != filter.ActorID {
			continue
		}
		out = append(out, a)
	}
	return paginate(out, filter.Page), len(out), nil
}

func (db *LocalDatabase) HealthCheck(ctx context.Context) error {
	if db.dataDir == "" {
		return nil
	}
	if _, err := os.Stat(db.dataDir); err != nil {
		return err
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.snapshotErr
}

func (db *LocalDatabase) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.flush()
}
