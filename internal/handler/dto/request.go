package dto

import (
	"fmt"
	"time"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
)

// DateLayout is the wire format of start and due dates.
const DateLayout = time.DateOnly

// CreateTaskRequest represents the request body for POST /tasks.
type CreateTaskRequest struct {
	ProjectID   string   `json:"project_id"`
	Code        string   `json:"code,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Status      string   `json:"status,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	AssigneeID  *string  `json:"assignee_id,omitempty"`
	ReviewerID  *string  `json:"reviewer_id,omitempty"`
	StartDate   *string  `json:"start_date,omitempty"`
	DueDate     *string  `json:"due_date,omitempty"`
	Progress    int      `json:"progress"`
	Tags        []string `json:"tags,omitempty"`
}

// UpdateTaskRequest represents the request body for PATCH /tasks/:id.
// Absent fields are left untouched. An empty string clears an optional field.
type UpdateTaskRequest struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	StartDate   *string   `json:"start_date,omitempty"`
	DueDate     *string   `json:"due_date,omitempty"`
	AssigneeID  *string   `json:"assignee_id,omitempty"`
	ReviewerID  *string   `json:"reviewer_id,omitempty"`
	Priority    *string   `json:"priority,omitempty"`
	Progress    *int      `json:"progress,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	Comment     string    `json:"comment,omitempty"`
}

// TransitionStatusRequest represents the request body for PATCH /tasks/:id/status.
type TransitionStatusRequest struct {
	FromStatus string `json:"from_status"`
	Status     string `json:"status"`
	Comment    string `json:"comment"`
}

// BoardMoveRequest represents the request body for POST /projects/:id/board/moves.
type BoardMoveRequest struct {
	TaskID string `json:"task_id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Note   string `json:"note,omitempty"`
}

// ListTasksFilters represents query parameters for GET /projects/:id/tasks.
type ListTasksFilters struct {
	Status     []domain.TaskStatus // ?status=Open,Pending
	Priority   []domain.TaskPriority
	AssigneeID *string // ?assignee=<id> or ?assignee=me
	Tag        string
	Overdue    bool
}

// ParseDate parses an optional date. It returns clear=true for an empty string.
func ParseDate(field string, value *string) (date *time.Time, clear bool, err error) {
	if value == nil {
		return nil, false, nil
	}
	if *value == "" {
		return nil, true, nil
	}
	parsed, err := time.Parse(DateLayout, *value)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s must be YYYY-MM-DD", domain.ErrValidation, field)
	}
	return &parsed, false, nil
}
