package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/handler/dto"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/service"
)

// handleCreateTask creates a new task.
func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	var req dto.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if req.ProjectID == "" {
		respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "project_id is required")
		return
	}

	startDate, _, err := dto.ParseDate("start_date", req.StartDate)
	if err != nil {
		h.respondDomainError(w, err, nil)
		return
	}
	dueDate, _, err := dto.ParseDate("due_date", req.DueDate)
	if err != nil {
		h.respondDomainError(w, err, nil)
		return
	}

	task, err := h.coordinator.CreateTask(ctx, service.NewTask{
		ProjectID:   req.ProjectID,
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Status:      domain.TaskStatus(req.Status),
		Priority:    domain.TaskPriority(req.Priority),
		AssigneeID:  req.AssigneeID,
		ReviewerID:  req.ReviewerID,
		StartDate:   startDate,
		DueDate:     dueDate,
		Progress:    req.Progress,
		Tags:        req.Tags,
		ActorID:     actor,
	})
	if err != nil {
		h.respondDomainError(w, err, nil)
		return
	}

	respondJSON(w, http.StatusCreated, dto.ToTaskDetail(task, h.now()))
}

// handleGetTask retrieves an active task.
func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorID(w, r); !ok {
		return
	}
	taskID, ok := extractID(w, r, "task")
	if !ok {
		return
	}

	task, err := h.coordinator.GetTask(r.Context(), taskID)
	if err != nil {
		h.respondDomainError(w, err, nil)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToTaskDetail(task, h.now()))
}

// handleUpdateTask edits task fields other than status. An edit that changes
// nothing returns the task unchanged.
func (h *Handler) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	taskID, ok := extractID(w, r, "task")
	if !ok {
		return
	}

	var req dto.UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	upd := service.FieldUpdate{
		TaskID:      taskID,
		ActorID:     actor,
		Notes:       req.Comment,
		Name:        req.Name,
		Description: req.Description,
		AssigneeID:  req.AssigneeID,
		ReviewerID:  req.ReviewerID,
		Progress:    req.Progress,
		Tags:        req.Tags,
	}
	if req.Priority != nil {
		priority := domain.TaskPriority(*req.Priority)
		upd.Priority = &priority
	}

	var err error
	if upd.StartDate, upd.ClearStartDate, err = dto.ParseDate("start_date", req.StartDate); err != nil {
		h.respondDomainError(w, err, nil)
		return
	}
	if upd.DueDate, upd.ClearDueDate, err = dto.ParseDate("due_date", req.DueDate); err != nil {
		h.respondDomainError(w, err, nil)
		return
	}

	task, err := h.coordinator.UpdateFields(ctx, upd)
	if err != nil {
		if errors.Is(err, domain.ErrNoOpOrStaleState) && task != nil {
			respondJSON(w, http.StatusOK, dto.ToTaskDetail(task, h.now()))
			return
		}
		h.respondDomainError(w, err, nil)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToTaskDetail(task, h.now()))
}

// handleDeleteTask soft-deletes a task, or removes it for good with ?hard=true.
func (h *Handler) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	taskID, ok := extractID(w, r, "task")
	if !ok {
		return
	}

	if r.URL.Query().Get("hard") == "true" {
		if err := h.coordinator.HardDelete(ctx, taskID, actor); err != nil {
			h.respondDomainError(w, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	task, err := h.coordinator.SoftDelete(ctx, taskID, actor)
	if err != nil {
		h.respondDomainError(w, err, nil)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToTaskDetail(task, h.now()))
}

// handleTransitionStatus moves a task between statuses. from_status defaults
// to the current status, which turns the request into last-writer-wins.
func (h *Handler) handleTransitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	taskID, ok := extractID(w, r, "task")
	if !ok {
		return
	}

	var req dto.TransitionStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if req.Status == "" {
		respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status is required")
		return
	}

	from := domain.TaskStatus(req.FromStatus)
	if from == "" {
		current, err := h.coordinator.GetTask(ctx, taskID)
		if err != nil {
			h.respondDomainError(w, err, nil)
			return
		}
		from = current.Status
	}

	task, err := h.coordinator.RequestTransition(ctx, domain.TransitionRequest{
		TaskID:     taskID,
		FromStatus: from,
		ToStatus:   domain.TaskStatus(req.Status),
		ActorID:    actor,
		Notes:      req.Comment,
	})
	if err != nil {
		h.respondDomainError(w, err, task)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToTaskDetail(task, h.now()))
}

// handleGetHistory lists audit records of a task, newest first.
func (h *Handler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorID(w, r); !ok {
		return
	}
	taskID, ok := extractID(w, r, "task")
	if !ok {
		return
	}

	entries, err := h.coordinator.Audit().ListFor(r.Context(), taskID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch history")
		return
	}

	respondJSON(w, http.StatusOK, dto.ToHistoryResponse(taskID, entries))
}

// handleGetPermissions tells the caller whether they may move the task.
func (h *Handler) handleGetPermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	taskID, ok := extractID(w, r, "task")
	if !ok {
		return
	}

	decision := h.coordinator.Authorizer().Evaluate(r.Context(), actor, taskID)
	respondJSON(w, http.StatusOK, dto.ToPermissionResponse(taskID, actor, decision))
}

// handleListProjectTasks lists the active tasks of a project with filters.
func (h *Handler) handleListProjectTasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	projectID, ok := extractID(w, r, "project")
	if !ok {
		return
	}

	filters, err := parseListFilters(r, actor)
	if err != nil {
		h.respondDomainError(w, err, nil)
		return
	}

	tasks, err := h.coordinator.ListProjectTasks(r.Context(), projectID)
	if err != nil {
		h.respondDomainError(w, err, nil)
		return
	}

	now := h.now()
	matched := make([]*domain.Task, 0, len(tasks))
	for _, task := range tasks {
		if matchesFilters(task, filters, now) {
			matched = append(matched, task)
		}
	}

	respondJSON(w, http.StatusOK, dto.TasksListResponse{
		Tasks: dto.ToTaskDetails(matched, now),
		Total: len(matched),
	})
}

// parseListFilters reads ?status=, ?priority=, ?assignee=, ?tag= and ?overdue=.
func parseListFilters(r *http.Request, actor string) (dto.ListTasksFilters, error) {
	q := r.URL.Query()
	var filters dto.ListTasksFilters

	for _, s := range splitList(q.Get("status")) {
		status := domain.TaskStatus(s)
		if !status.IsValid() {
			return filters, errors.Join(domain.ErrInvalidStatus, errors.New("status filter: "+s))
		}
		filters.Status = append(filters.Status, status)
	}
	for _, p := range splitList(q.Get("priority")) {
		priority := domain.TaskPriority(p)
		if !priority.IsValid() {
			return filters, errors.Join(domain.ErrInvalidPriority, errors.New("priority filter: "+p))
		}
		filters.Priority = append(filters.Priority, priority)
	}
	if assignee := q.Get("assignee"); assignee != "" {
		if assignee == "me" {
			assignee = actor
		}
		filters.AssigneeID = &assignee
	}
	filters.Tag = q.Get("tag")
	filters.Overdue = q.Get("overdue") == "true"

	return filters, nil
}

func matchesFilters(task *domain.Task, f dto.ListTasksFilters, now time.Time) bool {
	if len(f.Status) > 0 && !slices.Contains(f.Status, task.Status) {
		return false
	}
	if len(f.Priority) > 0 && !slices.Contains(f.Priority, task.Priority) {
		return false
	}
	if f.AssigneeID != nil && !task.IsAssignedTo(*f.AssigneeID) {
		return false
	}
	if f.Tag != "" && !slices.Contains(task.Tags, f.Tag) {
		return false
	}
	if f.Overdue && !dto.IsOverdue(task, now) {
		return false
	}
	return true
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
