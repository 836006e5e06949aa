package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/metrics"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/workflow"
)

const (
	// DefaultStoreTimeout bounds every task store call.
	DefaultStoreTimeout = 5 * time.Second
	// DefaultSideEffectTimeout bounds history writes after a commit.
	DefaultSideEffectTimeout = 2 * time.Second
	// DefaultTransitionNote is recorded when a move carries no note.
	DefaultTransitionNote = "moved via board"

	tracerName = "github.com/anhnq-lab/cic-ttb-erp--sub001/internal/service"
)

// Transition results used as metric labels.
const (
	resultCommitted    = "committed"
	resultNoOp         = "noop"
	resultInvalid      = "invalid"
	resultDenied       = "denied"
	resultNotFound     = "not_found"
	resultStoreFailure = "store_failure"
)

// Coordinator is the only write path for task status. It also owns field edits,
// creation and deletion so that every change leaves history and events behind.
type Coordinator struct {
	tasks      TaskStore
	directory  Directory
	audit      *AuditRecorder
	authorizer *Authorizer
	access     AccessChecker
	publisher  Publisher
	policy     workflow.Policy

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time

	storeTimeout      time.Duration
	sideEffectTimeout time.Duration
	strict            bool
	origin            string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used for swallowed failures and change logs.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithPublisher sets where committed events go.
func WithPublisher(p Publisher) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.publisher = p
		}
	}
}

// WithPolicy sets the transition legality table.
func WithPolicy(p workflow.Policy) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.policy = p
		}
	}
}

// WithAccessChecker replaces the gate for field edits.
func WithAccessChecker(a AccessChecker) Option {
	return func(c *Coordinator) {
		if a != nil {
			c.access = a
		}
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithStoreTimeout bounds task store calls.
func WithStoreTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.storeTimeout = d
		}
	}
}

// WithSideEffectTimeout bounds history writes.
func WithSideEffectTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.sideEffectTimeout = d
		}
	}
}

// WithStrictConcurrency makes status writes conditional on the expected
// current status. A lost race then fails with domain.ErrStaleState.
func WithStrictConcurrency(strict bool) Option {
	return func(c *Coordinator) {
		c.strict = strict
	}
}

// WithClock overrides the time source for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithOrigin tags published events with the id of this process.
func WithOrigin(origin string) Option {
	return func(c *Coordinator) {
		c.origin = origin
	}
}

// NewCoordinator creates a Coordinator over the given ports.
func NewCoordinator(tasks TaskStore, history HistoryStore, directory Directory, opts ...Option) *Coordinator {
	c := &Coordinator{
		tasks:             tasks,
		directory:         directory,
		audit:             NewAuditRecorder(history),
		authorizer:        NewAuthorizer(tasks, directory),
		access:            NewDirectoryAccess(directory),
		publisher:         discardPublisher{},
		policy:            workflow.Permissive(),
		logger:            slog.Default(),
		tracer:            otel.Tracer(tracerName),
		now:               time.Now,
		storeTimeout:      DefaultStoreTimeout,
		sideEffectTimeout: DefaultSideEffectTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authorizer returns the evaluator used for transitions.
func (c *Coordinator) Authorizer() *Authorizer {
	return c.authorizer
}

// Audit returns the history recorder.
func (c *Coordinator) Audit() *AuditRecorder {
	return c.audit
}

// Policy returns the active transition policy.
func (c *Coordinator) Policy() workflow.Policy {
	return c.policy
}

// GetTask returns an active task.
func (c *Coordinator) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	task, _, err := c.load(ctx, taskID)
	return task, err
}

// ListProjectTasks returns the active tasks of a project.
func (c *Coordinator) ListProjectTasks(ctx context.Context, projectID string) ([]*domain.Task, error) {
	if _, err := c.directory.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	tasks, err := c.tasks.ListByProject(storeCtx, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: list tasks of project %s: %w", domain.ErrStoreFailure, projectID, err)
	}
	return tasks, nil
}

// RequestTransition moves a task from req.FromStatus to req.ToStatus.
//
// A stale or no-op request returns the current task together with
// domain.ErrNoOpOrStaleState so callers can refresh their view. Once the store
// write succeeds the call succeeds: history and event failures are logged
// and counted only.
func (c *Coordinator) RequestTransition(ctx context.Context, req domain.TransitionRequest) (*domain.Task, error) {
	started := time.Now()
	ctx, span := c.tracer.Start(ctx, "Coordinator.RequestTransition", trace.WithAttributes(
		attribute.String("task.id", req.TaskID),
		attribute.String("task.status.from", string(req.FromStatus)),
		attribute.String("task.status.to", string(req.ToStatus)),
		attribute.String("actor.id", req.ActorID),
	))
	defer span.End()

	task, result, err := c.transition(ctx, req)

	c.metrics.IncrementTransition(result)
	c.metrics.ObserveTransitionLatency(time.Since(started))
	span.SetAttributes(attribute.String("result", result))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	}
	return task, err
}

func (c *Coordinator) transition(ctx context.Context, req domain.TransitionRequest) (*domain.Task, string, error) {
	if !req.ToStatus.IsValid() {
		return nil, resultInvalid, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, req.ToStatus)
	}

	task, result, err := c.load(ctx, req.TaskID)
	if err != nil {
		return nil, result, err
	}

	if req.FromStatus != task.Status || req.FromStatus == req.ToStatus {
		return task, resultNoOp, fmt.Errorf("%w: task %s is %s, requested %s -> %s",
			domain.ErrNoOpOrStaleState, task.ID, task.Status, req.FromStatus, req.ToStatus)
	}

	if err := c.policy.Allow(req.FromStatus, req.ToStatus); err != nil {
		return nil, resultInvalid, fmt.Errorf("policy %s: %w", c.policy.Name(), err)
	}

	decision := c.authorizer.EvaluateTask(ctx, req.ActorID, task)
	if !decision.Allowed {
		return nil, resultDenied, fmt.Errorf("%w: %s", domain.ErrPermissionDenied, decision.Reason)
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	updated, err := c.tasks.UpdateStatus(storeCtx, StatusChange{
		TaskID:      task.ID,
		From:        req.FromStatus,
		To:          req.ToStatus,
		ActorID:     req.ActorID,
		RequireFrom: c.strict,
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNoOpOrStaleState):
		return nil, resultNoOp, err
	case domain.IsNotFound(err):
		return nil, resultNotFound, err
	default:
		return nil, resultStoreFailure, fmt.Errorf("%w: update status of task %s: %w", domain.ErrStoreFailure, task.ID, err)
	}

	notes := req.Notes
	if notes == "" {
		notes = DefaultTransitionNote
	}
	actorID := req.ActorID
	c.recordHistory(ctx, Change{
		TaskID:   updated.ID,
		Field:    domain.FieldStatus,
		OldValue: ptr(string(req.FromStatus)),
		NewValue: ptr(string(req.ToStatus)),
		ActorID:  &actorID,
		Notes:    &notes,
	})

	changes := []string{StatusChangeText(req.FromStatus, req.ToStatus)}
	c.publish(ctx, domain.EventTaskStatusChanged, updated, changes, actorID)
	if req.ToStatus == domain.TaskStatusCompleted {
		c.publish(ctx, domain.EventTaskCompleted, updated, changes, actorID)
	}

	c.logger.InfoContext(ctx, "task status changed",
		"task_id", updated.ID,
		"project_id", updated.ProjectID,
		"actor_id", actorID,
		"old_status", req.FromStatus,
		"new_status", req.ToStatus,
	)

	return updated, resultCommitted, nil
}

// StatusChangeText renders a status change for event consumers.
func StatusChangeText(from, to domain.TaskStatus) string {
	return fmt.Sprintf("Trạng thái: %s → %s", from, to)
}

// load reads an active task under the store timeout.
func (c *Coordinator) load(ctx context.Context, taskID string) (*domain.Task, string, error) {
	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	task, err := c.tasks.GetByID(storeCtx, taskID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, resultNotFound, err
		}
		return nil, resultStoreFailure, fmt.Errorf("%w: load task %s: %w", domain.ErrStoreFailure, taskID, err)
	}
	if task.IsDeleted() {
		return nil, resultNotFound, domain.ErrTaskNotFound
	}
	return task, "", nil
}

// recordHistory appends entries detached from the caller's cancellation.
func (c *Coordinator) recordHistory(ctx context.Context, changes ...Change) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.sideEffectTimeout)
	defer cancel()

	for _, change := range changes {
		if _, err := c.audit.Record(ctx, change); err != nil {
			c.metrics.IncrementAuditFailure()
			c.logger.ErrorContext(ctx, "failed to record task history",
				"task_id", change.TaskID,
				"field", change.Field,
				"error", err,
			)
		}
	}
}

func (c *Coordinator) publish(ctx context.Context, kind domain.EventKind, task *domain.Task, changes []string, actorID string) {
	evt := domain.DomainEvent{
		Kind:       kind,
		ProjectID:  task.ProjectID,
		Task:       *task.Clone(),
		Changes:    append([]string(nil), changes...),
		OccurredAt: c.now(),
		Origin:     c.origin,
	}
	if actorID != "" {
		evt.ActorID = &actorID
	}
	c.publisher.Publish(ctx, evt)
}
