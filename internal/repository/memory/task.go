// Package memory provides in-process implementations of the service ports.
// They back unit tests and the --storage=memory mode of the server.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/service"
)

// TaskStore keeps tasks in a map guarded by a RWMutex.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*domain.Task
	now   func() time.Time
}

// NewTaskStore creates an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]*domain.Task),
		now:   time.Now,
	}
}

// Seed inserts a task as-is, including soft-deleted ones.
func (s *TaskStore) Seed(task *domain.Task) *domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := task.Clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	s.tasks[c.ID] = c
	return c.Clone()
}

// Raw returns a task even when soft-deleted.
func (s *TaskStore) Raw(taskID string) (*domain.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	return task.Clone(), ok
}

func (s *TaskStore) active(taskID string) (*domain.Task, error) {
	task, ok := s.tasks[taskID]
	if !ok || task.IsDeleted() {
		return nil, domain.ErrTaskNotFound
	}
	return task, nil
}

// GetByID returns an active task.
func (s *TaskStore) GetByID(_ context.Context, taskID string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, err := s.active(taskID)
	if err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

// ListByProject returns active tasks of a project ordered by creation time.
func (s *TaskStore) ListByProject(_ context.Context, projectID string) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []*domain.Task
	for _, task := range s.tasks {
		if task.ProjectID == projectID && !task.IsDeleted() {
			tasks = append(tasks, task.Clone())
		}
	}
	slices.SortFunc(tasks, func(a, b *domain.Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareStrings(a.Code, b.Code)
	})
	return tasks, nil
}

// Create stores a new task and fills ID and timestamps.
func (s *TaskStore) Create(_ context.Context, task *domain.Task) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := task.Clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, exists := s.tasks[c.ID]; exists {
		return nil, fmt.Errorf("create task: duplicate id %s", c.ID)
	}
	now := s.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Tags == nil {
		c.Tags = []string{}
	}
	s.tasks[c.ID] = c

	task.ID, task.CreatedAt, task.UpdatedAt = c.ID, c.CreatedAt, c.UpdatedAt
	return c.Clone(), nil
}

// UpdateStatus applies a status change. Without RequireFrom the last writer wins.
func (s *TaskStore) UpdateStatus(_ context.Context, change service.StatusChange) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.active(change.TaskID)
	if err != nil {
		return nil, err
	}
	if change.RequireFrom && task.Status != change.From {
		return nil, domain.ErrStaleState
	}

	actor := change.ActorID
	task.Status = change.To
	task.UpdatedBy = &actor
	task.UpdatedAt = s.now()
	return task.Clone(), nil
}

// UpdateFields copies the named fields from task into the stored row.
func (s *TaskStore) UpdateFields(_ context.Context, task *domain.Task, fields []string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.active(task.ID)
	if err != nil {
		return nil, err
	}
	src := task.Clone()
	for _, field := range fields {
		switch field {
		case domain.FieldName:
			stored.Name = src.Name
		case domain.FieldDescription:
			stored.Description = src.Description
		case domain.FieldStartDate:
			stored.StartDate = src.StartDate
		case domain.FieldDueDate:
			stored.DueDate = src.DueDate
		case domain.FieldAssignee:
			stored.AssigneeID = src.AssigneeID
		case domain.FieldReviewer:
			stored.ReviewerID = src.ReviewerID
		case domain.FieldPriority:
			stored.Priority = src.Priority
		case domain.FieldProgress:
			stored.Progress = domain.ClampProgress(src.Progress)
		case domain.FieldTags:
			stored.Tags = src.Tags
		default:
			return nil, fmt.Errorf("%w: field %q is not editable", domain.ErrValidation, field)
		}
	}
	stored.UpdatedBy = src.UpdatedBy
	stored.UpdatedAt = s.now()
	return stored.Clone(), nil
}

// SoftDelete sets the delete marker on an active task.
func (s *TaskStore) SoftDelete(_ context.Context, taskID string, actorID string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.active(taskID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	task.DeletedAt = &now
	task.UpdatedBy = &actorID
	task.UpdatedAt = now
	return task.Clone(), nil
}

// HardDelete removes the task row, deleted or not.
func (s *TaskStore) HardDelete(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; !ok {
		return domain.ErrTaskNotFound
	}
	delete(s.tasks, taskID)
	return nil
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
