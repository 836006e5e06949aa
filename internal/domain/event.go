package domain

import "time"

// EventKind represents the type of domain event.
type EventKind string

const (
	EventTaskCreated       EventKind = "TaskCreated"
	EventTaskUpdated       EventKind = "TaskUpdated"
	EventTaskStatusChanged EventKind = "TaskStatusChanged"
	EventTaskCompleted     EventKind = "TaskCompleted"
	EventTaskDeleted       EventKind = "TaskDeleted"
)

// DomainEvent announces a committed task-level fact to subscribers.
type DomainEvent struct {
	Kind       EventKind `json:"kind"`
	ProjectID  string    `json:"project_id"`
	Task       Task      `json:"task"`
	Changes    []string  `json:"changes,omitempty"`
	ActorID    *string   `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	// Origin identifies the process that committed the change.
	Origin string `json:"origin,omitempty"`
}

// TransitionRequest asks the coordinator to move a task between statuses.
type TransitionRequest struct {
	TaskID     string
	FromStatus TaskStatus
	ToStatus   TaskStatus
	ActorID    string
	Notes      string
}
