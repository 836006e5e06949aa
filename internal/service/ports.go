package service

import (
	"context"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
)

// StatusChange describes the single-row status write performed at commit time.
type StatusChange struct {
	TaskID  string
	From    domain.TaskStatus
	To      domain.TaskStatus
	ActorID string
	// RequireFrom guards the write with status = From and reports
	// domain.ErrStaleState when another writer got there first.
	RequireFrom bool
}

// TaskStore is the persistence port for tasks.
// Lookups and writes treat soft-deleted tasks as missing.
type TaskStore interface {
	GetByID(ctx context.Context, taskID string) (*domain.Task, error)
	ListByProject(ctx context.Context, projectID string) ([]*domain.Task, error)
	Create(ctx context.Context, task *domain.Task) (*domain.Task, error)
	UpdateStatus(ctx context.Context, change StatusChange) (*domain.Task, error)
	// UpdateFields writes the named fields of task plus UpdatedBy bookkeeping.
	UpdateFields(ctx context.Context, task *domain.Task, fields []string) (*domain.Task, error)
	SoftDelete(ctx context.Context, taskID string, actorID string) (*domain.Task, error)
	HardDelete(ctx context.Context, taskID string) error
}

// HistoryStore is the append-only persistence port for task history.
type HistoryStore interface {
	Append(ctx context.Context, entry *domain.HistoryEntry) error
	ListByTaskID(ctx context.Context, taskID string) ([]*domain.HistoryEntry, error)
}

// Directory resolves employees and projects.
type Directory interface {
	GetEmployee(ctx context.Context, employeeID string) (*domain.Employee, error)
	GetProject(ctx context.Context, projectID string) (*domain.Project, error)
}

// Publisher receives committed domain events. Implementations must not block.
type Publisher interface {
	Publish(ctx context.Context, event domain.DomainEvent)
}

// AccessChecker is the coarse task-access gate used for generic field edits.
type AccessChecker interface {
	CanEdit(ctx context.Context, actorID string, task *domain.Task) bool
}

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, domain.DomainEvent) {}
