package domain

import "time"

// TaskStatus represents the status of a task in the approval pipeline.
type TaskStatus string

const (
	TaskStatusOpen               TaskStatus = "Open"
	TaskStatusPending            TaskStatus = "Pending"
	TaskStatusInProgress         TaskStatus = "S0 InProgress"
	TaskStatusCoordination       TaskStatus = "S1 Coordination"
	TaskStatusCrossCheck         TaskStatus = "S2 CrossCheck"
	TaskStatusInternalApproval   TaskStatus = "S3 InternalApproval"
	TaskStatusLeadershipApproval TaskStatus = "S4 LeadershipApproval"
	TaskStatusReviseByLeadership TaskStatus = "S4.1 ReviseByLeadership"
	TaskStatusApproved           TaskStatus = "S5 Approved"
	TaskStatusSubmitToClient     TaskStatus = "S6 SubmitToClient"
	TaskStatusReviseByClient     TaskStatus = "S6.1 ReviseByClient"
	TaskStatusCompleted          TaskStatus = "Completed"
)

// Statuses lists every status in pipeline order, terminal last.
var Statuses = []TaskStatus{
	TaskStatusOpen,
	TaskStatusPending,
	TaskStatusInProgress,
	TaskStatusCoordination,
	TaskStatusCrossCheck,
	TaskStatusInternalApproval,
	TaskStatusLeadershipApproval,
	TaskStatusReviseByLeadership,
	TaskStatusApproved,
	TaskStatusSubmitToClient,
	TaskStatusReviseByClient,
	TaskStatusCompleted,
}

// IsValid checks if the status is one of the allowed values.
func (s TaskStatus) IsValid() bool {
	return s.Index() >= 0
}

// Index returns the position of the status in the pipeline, or -1 if unknown.
func (s TaskStatus) Index() int {
	for i, status := range Statuses {
		if status == s {
			return i
		}
	}
	return -1
}

// IsTerminal returns true for the completion state used in reporting.
// Terminal does not mean locked; locking is up to the workflow policy.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted
}

// IsEntry returns true for the entry and holding states.
func (s TaskStatus) IsEntry() bool {
	return s == TaskStatusOpen || s == TaskStatusPending
}

// TaskPriority represents the priority level of a task.
type TaskPriority string

const (
	TaskPriorityCritical TaskPriority = "Critical"
	TaskPriorityHigh     TaskPriority = "High"
	TaskPriorityMedium   TaskPriority = "Medium"
	TaskPriorityLow      TaskPriority = "Low"
)

var priorityLabels = map[TaskPriority]string{
	TaskPriorityCritical: "Khẩn cấp",
	TaskPriorityHigh:     "Cao",
	TaskPriorityMedium:   "Trung bình",
	TaskPriorityLow:      "Thấp",
}

// IsValid checks if the priority is one of the allowed values.
func (p TaskPriority) IsValid() bool {
	_, ok := priorityLabels[p]
	return ok
}

// Label returns the display label recorded in history and messages.
func (p TaskPriority) Label() string {
	if label, ok := priorityLabels[p]; ok {
		return label
	}
	return string(p)
}

// Rank orders priorities for display, most urgent first.
func (p TaskPriority) Rank() int {
	switch p {
	case TaskPriorityCritical:
		return 0
	case TaskPriorityHigh:
		return 1
	case TaskPriorityMedium:
		return 2
	case TaskPriorityLow:
		return 3
	default:
		return 4
	}
}

// Task represents a unit of work inside a project.
type Task struct {
	ID          string       `json:"id"`
	Code        string       `json:"code"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	ProjectID   string       `json:"project_id"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	AssigneeID  *string      `json:"assignee_id,omitempty"`
	ReviewerID  *string      `json:"reviewer_id,omitempty"`
	StartDate   *time.Time   `json:"start_date,omitempty"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	Progress    int          `json:"progress"`
	Tags        []string     `json:"tags"`
	DeletedAt   *time.Time   `json:"deleted_at,omitempty"`
	CreatedBy   *string      `json:"created_by,omitempty"`
	UpdatedBy   *string      `json:"updated_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// IsDeleted reports whether the task carries a soft-delete marker.
func (t *Task) IsDeleted() bool {
	return t.DeletedAt != nil
}

// IsAssignedTo checks if the task is assigned to the given employee.
func (t *Task) IsAssignedTo(employeeID string) bool {
	return t.AssigneeID != nil && *t.AssigneeID == employeeID
}

// Clone returns a deep copy so snapshots handed to events and projections
// never alias store-owned memory.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.AssigneeID = cloneString(t.AssigneeID)
	c.ReviewerID = cloneString(t.ReviewerID)
	c.CreatedBy = cloneString(t.CreatedBy)
	c.UpdatedBy = cloneString(t.UpdatedBy)
	c.StartDate = cloneTime(t.StartDate)
	c.DueDate = cloneTime(t.DueDate)
	c.DeletedAt = cloneTime(t.DeletedAt)
	if t.Tags != nil {
		c.Tags = append([]string{}, t.Tags...)
	}
	return &c
}

// ClampProgress bounds a progress percentage to [0, 100].
func ClampProgress(progress int) int {
	switch {
	case progress < 0:
		return 0
	case progress > 100:
		return 100
	default:
		return progress
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
