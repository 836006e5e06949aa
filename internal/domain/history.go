package domain

import "time"

// Field names recorded in task history.
const (
	FieldStatus      = "status"
	FieldName        = "name"
	FieldDescription = "description"
	FieldStartDate   = "start_date"
	FieldDueDate     = "due_date"
	FieldAssignee    = "assignee_id"
	FieldReviewer    = "reviewer_id"
	FieldPriority    = "priority"
	FieldProgress    = "progress"
	FieldTags        = "tags"
	FieldCreated     = "created"
	FieldDeletedAt   = "deleted_at"
)

// HistoryEntry is an append-only record of one field change on a task.
type HistoryEntry struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Field     string    `json:"field"`
	OldValue  *string   `json:"old_value,omitempty"`
	NewValue  *string   `json:"new_value,omitempty"`
	ActorID   *string   `json:"actor_id,omitempty"` // nil for system changes
	Notes     *string   `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsSystemChange returns true if no actor is attached to the entry.
func (e *HistoryEntry) IsSystemChange() bool {
	return e.ActorID == nil
}
