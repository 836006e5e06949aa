package service

import (
	"context"
	"fmt"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// Authorizer decides whether an actor may move a task.
// It never writes.
type Authorizer struct {
	tasks     TaskStore
	directory Directory
}

// NewAuthorizer creates a new Authorizer.
func NewAuthorizer(tasks TaskStore, directory Directory) *Authorizer {
	return &Authorizer{
		tasks:     tasks,
		directory: directory,
	}
}

// CanTransition reports whether actorID may change the status of taskID.
func (a *Authorizer) CanTransition(ctx context.Context, actorID, taskID string) bool {
	return a.Evaluate(ctx, actorID, taskID).Allowed
}

// Evaluate applies the assignee, project manager and elevated role rules in order.
// Any lookup failure denies.
func (a *Authorizer) Evaluate(ctx context.Context, actorID, taskID string) Decision {
	if actorID == "" {
		return deny("no actor")
	}

	task, err := a.tasks.GetByID(ctx, taskID)
	if err != nil {
		return deny(fmt.Sprintf("task %s unavailable: %v", taskID, err))
	}
	return a.EvaluateTask(ctx, actorID, task)
}

// EvaluateTask is Evaluate for a task the caller already loaded.
func (a *Authorizer) EvaluateTask(ctx context.Context, actorID string, task *domain.Task) Decision {
	actor, err := a.directory.GetEmployee(ctx, actorID)
	if err != nil {
		return deny(fmt.Sprintf("actor %s unavailable: %v", actorID, err))
	}
	if !actor.IsActive {
		return deny(fmt.Sprintf("actor %s is inactive", actorID))
	}

	if task.IsAssignedTo(actorID) {
		return allow("actor is the assignee")
	}

	project, err := a.directory.GetProject(ctx, task.ProjectID)
	if err != nil {
		return deny(fmt.Sprintf("project %s unavailable: %v", task.ProjectID, err))
	}
	if project.IsManagedBy(actorID) {
		return allow("actor manages the project")
	}

	if actor.Role.IsElevated() {
		return allow(fmt.Sprintf("actor has role %s", actor.Role))
	}

	return deny(fmt.Sprintf("actor %s is not the assignee, not the project manager and has role %s", actorID, actor.Role))
}

// DirectoryAccess is the default AccessChecker for field edits: the actor must be
// an active employee.
type DirectoryAccess struct {
	directory Directory
}

// NewDirectoryAccess creates a DirectoryAccess.
func NewDirectoryAccess(directory Directory) *DirectoryAccess {
	return &DirectoryAccess{directory: directory}
}

// CanEdit implements AccessChecker.
func (d *DirectoryAccess) CanEdit(ctx context.Context, actorID string, _ *domain.Task) bool {
	if actorID == "" {
		return false
	}
	actor, err := d.directory.GetEmployee(ctx, actorID)
	if err != nil {
		return false
	}
	return actor.IsActive
}
