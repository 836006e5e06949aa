package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
)

const emptyValueText = "(trống)"

var fieldLabels = map[string]string{
	domain.FieldStatus:      "Trạng thái",
	domain.FieldName:        "Tên công việc",
	domain.FieldDescription: "Mô tả",
	domain.FieldStartDate:   "Ngày bắt đầu",
	domain.FieldDueDate:     "Hạn hoàn thành",
	domain.FieldAssignee:    "Người thực hiện",
	domain.FieldReviewer:    "Người kiểm tra",
	domain.FieldPriority:    "Độ ưu tiên",
	domain.FieldProgress:    "Tiến độ",
	domain.FieldTags:        "Nhãn",
}

// NewTask holds the input for CreateTask.
type NewTask struct {
	ProjectID   string
	Code        string // generated when empty
	Name        string
	Description string
	Status      domain.TaskStatus   // defaults to Open
	Priority    domain.TaskPriority // defaults to Medium
	AssigneeID  *string
	ReviewerID  *string
	StartDate   *time.Time
	DueDate     *time.Time
	Progress    int
	Tags        []string
	ActorID     string
}

// FieldUpdate holds a partial edit. Nil pointers leave the field untouched;
// an empty AssigneeID or ReviewerID clears it.
type FieldUpdate struct {
	TaskID  string
	ActorID string
	Notes   string

	Name           *string
	Description    *string
	StartDate      *time.Time
	ClearStartDate bool
	DueDate        *time.Time
	ClearDueDate   bool
	AssigneeID     *string
	ReviewerID     *string
	Priority       *domain.TaskPriority
	Progress       *int
	Tags           *[]string
}

type fieldDiff struct {
	field    string
	oldValue *string
	newValue *string
}

func (d fieldDiff) text() string {
	return fmt.Sprintf("%s: %s → %s", fieldLabels[d.field], displayValue(d.oldValue), displayValue(d.newValue))
}

func displayValue(v *string) string {
	if v == nil || *v == "" {
		return emptyValueText
	}
	return *v
}

// CreateTask stores a new task, records a "created" history entry and
// publishes TaskCreated.
func (c *Coordinator) CreateTask(ctx context.Context, in NewTask) (*domain.Task, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.CreateTask", trace.WithAttributes(
		attribute.String("project.id", in.ProjectID),
		attribute.String("actor.id", in.ActorID),
	))
	defer span.End()

	task, err := c.createTask(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("task.id", task.ID))
	return task, nil
}

func (c *Coordinator) createTask(ctx context.Context, in NewTask) (*domain.Task, error) {
	if _, err := c.directory.GetProject(ctx, in.ProjectID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: task name must not be empty", domain.ErrValidation)
	}
	status := in.Status
	if status == "" {
		status = domain.TaskStatusOpen
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	priority := in.Priority
	if priority == "" {
		priority = domain.TaskPriorityMedium
	}
	if !priority.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPriority, priority)
	}
	if err := checkDates(in.StartDate, in.DueDate); err != nil {
		return nil, err
	}
	assignee, err := c.resolvePerson(ctx, "assignee", in.AssigneeID)
	if err != nil {
		return nil, err
	}
	reviewer, err := c.resolvePerson(ctx, "reviewer", in.ReviewerID)
	if err != nil {
		return nil, err
	}

	code := strings.TrimSpace(in.Code)
	if code == "" {
		code = "T-" + strings.ToUpper(uuid.NewString()[:8])
	}
	actorID := in.ActorID

	draft := &domain.Task{
		Code:        code,
		Name:        name,
		Description: in.Description,
		ProjectID:   in.ProjectID,
		Status:      status,
		Priority:    priority,
		AssigneeID:  assignee,
		ReviewerID:  reviewer,
		StartDate:   in.StartDate,
		DueDate:     in.DueDate,
		Progress:    domain.ClampProgress(in.Progress),
		Tags:        normalizeTags(in.Tags),
		CreatedBy:   &actorID,
		UpdatedBy:   &actorID,
	}
	if !c.access.CanEdit(ctx, actorID, draft) {
		return nil, fmt.Errorf("%w: actor %q may not create tasks", domain.ErrPermissionDenied, actorID)
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	created, err := c.tasks.Create(storeCtx, draft)
	if err != nil {
		return nil, fmt.Errorf("%w: create task: %w", domain.ErrStoreFailure, err)
	}

	c.recordHistory(ctx, Change{
		TaskID:   created.ID,
		Field:    domain.FieldCreated,
		NewValue: ptr(string(created.Status)),
		ActorID:  &actorID,
	})
	c.publish(ctx, domain.EventTaskCreated, created, nil, actorID)

	c.logger.InfoContext(ctx, "task created",
		"task_id", created.ID,
		"code", created.Code,
		"project_id", created.ProjectID,
		"actor_id", actorID,
	)
	return created, nil
}

// UpdateFields applies a partial edit. Each changed field becomes one history
// entry; when nothing changed the current task is returned with
// domain.ErrNoOpOrStaleState.
func (c *Coordinator) UpdateFields(ctx context.Context, upd FieldUpdate) (*domain.Task, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.UpdateFields", trace.WithAttributes(
		attribute.String("task.id", upd.TaskID),
		attribute.String("actor.id", upd.ActorID),
	))
	defer span.End()

	task, err := c.updateFields(ctx, upd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return task, err
}

func (c *Coordinator) updateFields(ctx context.Context, upd FieldUpdate) (*domain.Task, error) {
	task, _, err := c.load(ctx, upd.TaskID)
	if err != nil {
		return nil, err
	}
	if !c.access.CanEdit(ctx, upd.ActorID, task) {
		return nil, fmt.Errorf("%w: actor %q may not edit task %s", domain.ErrPermissionDenied, upd.ActorID, task.ID)
	}

	next, diffs, err := c.applyUpdate(ctx, task, upd)
	if err != nil {
		return nil, err
	}
	if len(diffs) == 0 {
		return task, fmt.Errorf("%w: nothing changed on task %s", domain.ErrNoOpOrStaleState, task.ID)
	}

	actorID := upd.ActorID
	next.UpdatedBy = &actorID
	fields := make([]string, 0, len(diffs))
	for _, d := range diffs {
		fields = append(fields, d.field)
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	updated, err := c.tasks.UpdateFields(storeCtx, next, fields)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: update task %s: %w", domain.ErrStoreFailure, task.ID, err)
	}

	var notes *string
	if upd.Notes != "" {
		notes = &upd.Notes
	}
	changes := make([]Change, 0, len(diffs))
	texts := make([]string, 0, len(diffs))
	for _, d := range diffs {
		changes = append(changes, Change{
			TaskID:   updated.ID,
			Field:    d.field,
			OldValue: d.oldValue,
			NewValue: d.newValue,
			ActorID:  &actorID,
			Notes:    notes,
		})
		texts = append(texts, d.text())
	}
	c.recordHistory(ctx, changes...)
	c.publish(ctx, domain.EventTaskUpdated, updated, texts, actorID)

	c.logger.InfoContext(ctx, "task updated",
		"task_id", updated.ID,
		"actor_id", actorID,
		"fields", fields,
	)
	return updated, nil
}

func (c *Coordinator) applyUpdate(ctx context.Context, task *domain.Task, upd FieldUpdate) (*domain.Task, []fieldDiff, error) {
	next := task.Clone()
	var diffs []fieldDiff

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, nil, fmt.Errorf("%w: task name must not be empty", domain.ErrValidation)
		}
		if name != task.Name {
			next.Name = name
			diffs = append(diffs, fieldDiff{domain.FieldName, ptr(task.Name), ptr(name)})
		}
	}

	if upd.Description != nil && *upd.Description != task.Description {
		next.Description = *upd.Description
		diffs = append(diffs, fieldDiff{domain.FieldDescription, optionalText(task.Description), optionalText(next.Description)})
	}

	if d, ok := dateChange(domain.FieldStartDate, task.StartDate, upd.StartDate, upd.ClearStartDate); ok {
		next.StartDate = nextDate(upd.StartDate, upd.ClearStartDate)
		diffs = append(diffs, d)
	}
	if d, ok := dateChange(domain.FieldDueDate, task.DueDate, upd.DueDate, upd.ClearDueDate); ok {
		next.DueDate = nextDate(upd.DueDate, upd.ClearDueDate)
		diffs = append(diffs, d)
	}
	if err := checkDates(next.StartDate, next.DueDate); err != nil {
		return nil, nil, err
	}

	if upd.AssigneeID != nil {
		assignee, err := c.resolvePerson(ctx, "assignee", upd.AssigneeID)
		if err != nil {
			return nil, nil, err
		}
		if !equalOptional(task.AssigneeID, assignee) {
			next.AssigneeID = assignee
			diffs = append(diffs, fieldDiff{domain.FieldAssignee, task.AssigneeID, assignee})
		}
	}
	if upd.ReviewerID != nil {
		reviewer, err := c.resolvePerson(ctx, "reviewer", upd.ReviewerID)
		if err != nil {
			return nil, nil, err
		}
		if !equalOptional(task.ReviewerID, reviewer) {
			next.ReviewerID = reviewer
			diffs = append(diffs, fieldDiff{domain.FieldReviewer, task.ReviewerID, reviewer})
		}
	}

	if upd.Priority != nil {
		if !upd.Priority.IsValid() {
			return nil, nil, fmt.Errorf("%w: %q", domain.ErrInvalidPriority, *upd.Priority)
		}
		if *upd.Priority != task.Priority {
			next.Priority = *upd.Priority
			diffs = append(diffs, fieldDiff{domain.FieldPriority, ptr(task.Priority.Label()), ptr(next.Priority.Label())})
		}
	}

	if upd.Progress != nil {
		progress := domain.ClampProgress(*upd.Progress)
		if progress != task.Progress {
			next.Progress = progress
			diffs = append(diffs, fieldDiff{domain.FieldProgress, ptr(strconv.Itoa(task.Progress) + "%"), ptr(strconv.Itoa(progress) + "%")})
		}
	}

	if upd.Tags != nil {
		tags := normalizeTags(*upd.Tags)
		if !slices.Equal(tags, normalizeTags(task.Tags)) {
			next.Tags = tags
			diffs = append(diffs, fieldDiff{domain.FieldTags, optionalText(strings.Join(task.Tags, ", ")), optionalText(strings.Join(tags, ", "))})
		}
	}

	return next, diffs, nil
}

// SoftDelete hides a task from active views. It is authorized like a transition.
func (c *Coordinator) SoftDelete(ctx context.Context, taskID, actorID string) (*domain.Task, error) {
	task, _, err := c.load(ctx, taskID)
	if err != nil {
		return nil, err
	}

	decision := c.authorizer.EvaluateTask(ctx, actorID, task)
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", domain.ErrPermissionDenied, decision.Reason)
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	deleted, err := c.tasks.SoftDelete(storeCtx, taskID, actorID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: soft delete task %s: %w", domain.ErrStoreFailure, taskID, err)
	}

	var deletedAt *string
	if deleted.DeletedAt != nil {
		deletedAt = ptr(deleted.DeletedAt.UTC().Format(time.RFC3339))
	}
	c.recordHistory(ctx, Change{
		TaskID:   deleted.ID,
		Field:    domain.FieldDeletedAt,
		NewValue: deletedAt,
		ActorID:  &actorID,
	})
	c.publish(ctx, domain.EventTaskDeleted, deleted, nil, actorID)

	c.logger.InfoContext(ctx, "task deleted",
		"task_id", deleted.ID,
		"project_id", deleted.ProjectID,
		"actor_id", actorID,
	)
	return deleted, nil
}

// HardDelete removes a task row. Only active admins may do this; history rows stay.
func (c *Coordinator) HardDelete(ctx context.Context, taskID, actorID string) error {
	actor, err := c.directory.GetEmployee(ctx, actorID)
	if err != nil || !actor.IsActive || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: hard delete requires an active admin", domain.ErrPermissionDenied)
	}

	// Soft-deleted tasks are already gone from every view.
	active, _, err := c.load(ctx, taskID)
	if err != nil && !errors.Is(err, domain.ErrTaskNotFound) {
		return err
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	if err := c.tasks.HardDelete(storeCtx, taskID); err != nil {
		if domain.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("%w: hard delete task %s: %w", domain.ErrStoreFailure, taskID, err)
	}

	if active != nil {
		c.publish(ctx, domain.EventTaskDeleted, active, nil, actorID)
	}
	c.logger.WarnContext(ctx, "task hard deleted",
		"task_id", taskID,
		"actor_id", actorID,
	)
	return nil
}

// resolvePerson normalizes an optional employee reference and checks it exists.
func (c *Coordinator) resolvePerson(ctx context.Context, role string, id *string) (*string, error) {
	if id == nil || strings.TrimSpace(*id) == "" {
		return nil, nil
	}
	employeeID := strings.TrimSpace(*id)
	if _, err := c.directory.GetEmployee(ctx, employeeID); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", domain.ErrValidation, role, employeeID, err)
	}
	return &employeeID, nil
}

func checkDates(start, due *time.Time) error {
	if start != nil && due != nil && due.Before(*start) {
		return fmt.Errorf("%w: due date %s is before start date %s",
			domain.ErrValidation, due.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return nil
}

func dateChange(field string, current, requested *time.Time, clear bool) (fieldDiff, bool) {
	switch {
	case clear && current != nil:
		return fieldDiff{field, formatDate(current), nil}, true
	case !clear && requested != nil && (current == nil || !current.Equal(*requested)):
		return fieldDiff{field, formatDate(current), formatDate(requested)}, true
	default:
		return fieldDiff{}, false
	}
}

func nextDate(requested *time.Time, clear bool) *time.Time {
	if clear || requested == nil {
		return nil
	}
	t := *requested
	return &t
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	return ptr(t.Format(time.DateOnly))
}

func optionalText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// normalizeTags trims, drops empties and removes duplicates keeping first occurrence.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" && !slices.Contains(out, tag) {
			out = append(out, tag)
		}
	}
	return out
}
