// Package repository implements the service ports on PostgreSQL.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/service"
)

// taskColumns is the shared list of columns for task queries.
var taskColumns = []string{
	"id", "code", "name", "description", "project_id", "status", "priority",
	"assignee_id", "reviewer_id", "start_date", "due_date", "progress", "tags",
	"deleted_at", "created_by", "updated_by", "created_at", "updated_at",
}

var returningTask = "RETURNING " + strings.Join(taskColumns, ", ")

// editableColumns maps history field names to task columns.
var editableColumns = map[string]string{
	domain.FieldName:        "name",
	domain.FieldDescription: "description",
	domain.FieldStartDate:   "start_date",
	domain.FieldDueDate:     "due_date",
	domain.FieldAssignee:    "assignee_id",
	domain.FieldReviewer:    "reviewer_id",
	domain.FieldPriority:    "priority",
	domain.FieldProgress:    "progress",
	domain.FieldTags:        "tags",
}

// TaskRepository handles database operations for tasks.
type TaskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

// scanTask scans a single row into a Task struct.
func scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	err := row.Scan(
		&task.ID,
		&task.Code,
		&task.Name,
		&task.Description,
		&task.ProjectID,
		&task.Status,
		&task.Priority,
		&task.AssigneeID,
		&task.ReviewerID,
		&task.StartDate,
		&task.DueDate,
		&task.Progress,
		&task.Tags,
		&task.DeletedAt,
		&task.CreatedBy,
		&task.UpdatedBy,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &task, nil
}

// scanTasks scans multiple rows into a slice of Task structs.
func scanTasks(rows pgx.Rows) ([]*domain.Task, error) {
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return tasks, nil
}

// validTaskID rejects ids the uuid column would refuse with a syntax error.
func validTaskID(taskID string) error {
	if _, err := uuid.Parse(taskID); err != nil {
		return domain.ErrTaskNotFound
	}
	return nil
}

// GetByID retrieves an active task by ID.
func (r *TaskRepository) GetByID(ctx context.Context, taskID string) (*domain.Task, error) {
	if err := validTaskID(taskID); err != nil {
		return nil, err
	}

	query, args, err := psql.
		Select(taskColumns...).
		From("tasks").
		Where(sq.Eq{"id": taskID}).
		Where(activeTask).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetByID query for task: %w", err)
	}

	return scanTask(r.pool.QueryRow(ctx, query, args...))
}

// ListByProject returns the active tasks of a project, most urgent first.
func (r *TaskRepository) ListByProject(ctx context.Context, projectID string) ([]*domain.Task, error) {
	query, args, err := psql.
		Select(taskColumns...).
		From("tasks").
		Where(sq.Eq{"project_id": projectID}).
		Where(activeTask).
		OrderBy(
			"CASE priority WHEN 'Critical' THEN 1 WHEN 'High' THEN 2 WHEN 'Medium' THEN 3 WHEN 'Low' THEN 4 END ASC",
			"due_date ASC NULLS LAST",
			"code ASC",
		).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ListByProject query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query project tasks: %w", err)
	}

	return scanTasks(rows)
}

// Create inserts a task and returns the stored row.
func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if task.Tags == nil {
		task.Tags = []string{}
	}

	query, args, err := psql.
		Insert("tasks").
		Columns(
			"code", "name", "description", "project_id", "status", "priority",
			"assignee_id", "reviewer_id", "start_date", "due_date", "progress", "tags",
			"created_by", "updated_by",
		).
		Values(
			task.Code,
			task.Name,
			task.Description,
			task.ProjectID,
			task.Status,
			task.Priority,
			task.AssigneeID,
			task.ReviewerID,
			task.StartDate,
			task.DueDate,
			task.Progress,
			task.Tags,
			task.CreatedBy,
			task.UpdatedBy,
		).
		Suffix(returningTask).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build Create query for task: %w", err)
	}

	created, err := scanTask(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return created, nil
}

// UpdateStatus writes a new status. With RequireFrom the row must still hold
// the expected status, otherwise domain.ErrStaleState is returned.
func (r *TaskRepository) UpdateStatus(ctx context.Context, change service.StatusChange) (*domain.Task, error) {
	if err := validTaskID(change.TaskID); err != nil {
		return nil, err
	}

	qb := psql.
		Update("tasks").
		Set("status", change.To).
		Set("updated_by", change.ActorID).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": change.TaskID}).
		Where(activeTask)
	if change.RequireFrom {
		qb = qb.Where(sq.Eq{"status": change.From})
	}

	query, args, err := qb.Suffix(returningTask).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build UpdateStatus query for task %s: %w", change.TaskID, err)
	}

	task, err := scanTask(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, domain.ErrTaskNotFound) && change.RequireFrom {
		// tell a lost race apart from a missing row
		if _, getErr := r.GetByID(ctx, change.TaskID); getErr == nil {
			return nil, domain.ErrStaleState
		}
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateFields writes the named editable fields of task.
func (r *TaskRepository) UpdateFields(ctx context.Context, task *domain.Task, fields []string) (*domain.Task, error) {
	if err := validTaskID(task.ID); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", domain.ErrValidation)
	}

	qb := psql.
		Update("tasks").
		Set("updated_by", task.UpdatedBy).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": task.ID}).
		Where(activeTask)

	for _, field := range fields {
		column, ok := editableColumns[field]
		if !ok {
			return nil, fmt.Errorf("%w: field %q is not editable", domain.ErrValidation, field)
		}
		qb = qb.Set(column, fieldValue(task, field))
	}

	query, args, err := qb.Suffix(returningTask).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build UpdateFields query for task %s: %w", task.ID, err)
	}

	return scanTask(r.pool.QueryRow(ctx, query, args...))
}

func fieldValue(task *domain.Task, field string) any {
	switch field {
	case domain.FieldName:
		return task.Name
	case domain.FieldDescription:
		return task.Description
	case domain.FieldStartDate:
		return task.StartDate
	case domain.FieldDueDate:
		return task.DueDate
	case domain.FieldAssignee:
		return task.AssigneeID
	case domain.FieldReviewer:
		return task.ReviewerID
	case domain.FieldPriority:
		return task.Priority
	case domain.FieldProgress:
		return domain.ClampProgress(task.Progress)
	case domain.FieldTags:
		if task.Tags == nil {
			return []string{}
		}
		return task.Tags
	default:
		return nil
	}
}

// SoftDelete sets the delete marker on an active task.
func (r *TaskRepository) SoftDelete(ctx context.Context, taskID, actorID string) (*domain.Task, error) {
	if err := validTaskID(taskID); err != nil {
		return nil, err
	}

	query, args, err := psql.
		Update("tasks").
		Set("deleted_at", sq.Expr("NOW()")).
		Set("updated_by", actorID).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": taskID}).
		Where(activeTask).
		Suffix(returningTask).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build SoftDelete query for task %s: %w", taskID, err)
	}

	return scanTask(r.pool.QueryRow(ctx, query, args...))
}

// HardDelete removes the task row. History rows are kept.
func (r *TaskRepository) HardDelete(ctx context.Context, taskID string) error {
	if err := validTaskID(taskID); err != nil {
		return err
	}

	query, args, err := psql.
		Delete("tasks").
		Where(sq.Eq{"id": taskID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build HardDelete query for task %s: %w", taskID, err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}
