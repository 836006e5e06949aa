package dto

import (
	"time"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/service"
)

// TaskDetail represents the full task object.
type TaskDetail struct {
	ID            string    `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	ProjectID     string    `json:"project_id"`
	Status        string    `json:"status"`
	Priority      string    `json:"priority"`
	PriorityLabel string    `json:"priority_label"`
	AssigneeID    *string   `json:"assignee_id"`
	ReviewerID    *string   `json:"reviewer_id"`
	StartDate     *string   `json:"start_date"`
	DueDate       *string   `json:"due_date"`
	Progress      int       `json:"progress"`
	Tags          []string  `json:"tags"`
	IsOverdue     bool      `json:"is_overdue"`
	CreatedBy     *string   `json:"created_by"`
	UpdatedBy     *string   `json:"updated_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TasksListResponse represents the response for GET /projects/:id/tasks.
type TasksListResponse struct {
	Tasks []TaskDetail `json:"tasks"`
	Total int          `json:"total"`
}

// HistoryEntryInfo represents one audit record.
type HistoryEntryInfo struct {
	ID        string    `json:"id"`
	Field     string    `json:"field"`
	OldValue  *string   `json:"old_value"`
	NewValue  *string   `json:"new_value"`
	ActorID   *string   `json:"actor_id"`
	Notes     *string   `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryResponse represents the response for GET /tasks/:id/history.
type HistoryResponse struct {
	TaskID  string             `json:"task_id"`
	Entries []HistoryEntryInfo `json:"entries"`
}

// PermissionResponse represents the response for GET /tasks/:id/permissions.
type PermissionResponse struct {
	TaskID        string `json:"task_id"`
	ActorID       string `json:"actor_id"`
	CanTransition bool   `json:"can_transition"`
	Reason        string `json:"reason"`
}

// BoardColumn is one status column of a board.
type BoardColumn struct {
	Status string       `json:"status"`
	Tasks  []TaskDetail `json:"tasks"`
}

// BoardResponse represents the response for GET /projects/:id/board.
type BoardResponse struct {
	ProjectID string        `json:"project_id"`
	Columns   []BoardColumn `json:"columns"`
	Total     int           `json:"total"`
}

// ToTaskDetail converts a domain task. now decides the overdue flag.
func ToTaskDetail(task *domain.Task, now time.Time) TaskDetail {
	tags := task.Tags
	if tags == nil {
		tags = []string{}
	}
	return TaskDetail{
		ID:            task.ID,
		Code:          task.Code,
		Name:          task.Name,
		Description:   task.Description,
		ProjectID:     task.ProjectID,
		Status:        string(task.Status),
		Priority:      string(task.Priority),
		PriorityLabel: task.Priority.Label(),
		AssigneeID:    task.AssigneeID,
		ReviewerID:    task.ReviewerID,
		StartDate:     formatDate(task.StartDate),
		DueDate:       formatDate(task.DueDate),
		Progress:      task.Progress,
		Tags:          tags,
		IsOverdue:     IsOverdue(task, now),
		CreatedBy:     task.CreatedBy,
		UpdatedBy:     task.UpdatedBy,
		CreatedAt:     task.CreatedAt,
		UpdatedAt:     task.UpdatedAt,
	}
}

// ToTaskDetails converts a list of domain tasks.
func ToTaskDetails(tasks []*domain.Task, now time.Time) []TaskDetail {
	out := make([]TaskDetail, len(tasks))
	for i, task := range tasks {
		out[i] = ToTaskDetail(task, now)
	}
	return out
}

// IsOverdue reports whether a not yet completed task is past its due date.
func IsOverdue(task *domain.Task, now time.Time) bool {
	if task.DueDate == nil || task.Status.IsTerminal() {
		return false
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return task.DueDate.Before(today)
}

// ToHistoryResponse converts audit entries, newest first.
func ToHistoryResponse(taskID string, entries []*domain.HistoryEntry) HistoryResponse {
	resp := HistoryResponse{TaskID: taskID, Entries: make([]HistoryEntryInfo, len(entries))}
	for i, e := range entries {
		resp.Entries[i] = HistoryEntryInfo{
			ID:        e.ID,
			Field:     e.Field,
			OldValue:  e.OldValue,
			NewValue:  e.NewValue,
			ActorID:   e.ActorID,
			Notes:     e.Notes,
			CreatedAt: e.CreatedAt,
		}
	}
	return resp
}

// ToPermissionResponse converts an authorization decision.
func ToPermissionResponse(taskID, actorID string, d service.Decision) PermissionResponse {
	return PermissionResponse{
		TaskID:        taskID,
		ActorID:       actorID,
		CanTransition: d.Allowed,
		Reason:        d.Reason,
	}
}

// ToBoardResponse lists every status column in pipeline order, empty ones included.
func ToBoardResponse(projectID string, columns map[domain.TaskStatus][]*domain.Task, now time.Time) BoardResponse {
	resp := BoardResponse{ProjectID: projectID, Columns: make([]BoardColumn, 0, len(domain.Statuses))}
	for _, status := range domain.Statuses {
		tasks := ToTaskDetails(columns[status], now)
		resp.Columns = append(resp.Columns, BoardColumn{Status: string(status), Tasks: tasks})
		resp.Total += len(tasks)
	}
	return resp
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}
