package service

import (
	"context"
	"fmt"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
)

// Change describes one field change to append to a task's history.
type Change struct {
	TaskID   string
	Field    string
	OldValue *string
	NewValue *string
	ActorID  *string
	Notes    *string
}

// AuditRecorder appends and lists task history.
type AuditRecorder struct {
	store HistoryStore
}

// NewAuditRecorder creates a new AuditRecorder.
func NewAuditRecorder(store HistoryStore) *AuditRecorder {
	return &AuditRecorder{store: store}
}

// Record appends a history entry.
func (r *AuditRecorder) Record(ctx context.Context, change Change) (*domain.HistoryEntry, error) {
	if change.TaskID == "" || change.Field == "" {
		return nil, fmt.Errorf("%w: history entry needs task id and field", domain.ErrValidation)
	}

	entry := &domain.HistoryEntry{
		TaskID:   change.TaskID,
		Field:    change.Field,
		OldValue: change.OldValue,
		NewValue: change.NewValue,
		ActorID:  change.ActorID,
		Notes:    change.Notes,
	}
	if err := r.store.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append history for task %s: %w", change.TaskID, err)
	}
	return entry, nil
}

// ListFor returns the history of a task, newest first. Deleted tasks keep their history.
func (r *AuditRecorder) ListFor(ctx context.Context, taskID string) ([]*domain.HistoryEntry, error) {
	entries, err := r.store.ListByTaskID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("list history for task %s: %w", taskID, err)
	}
	return entries, nil
}

func ptr[T any](v T) *T { return &v }
