package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/board"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/handler/dto"
)

// handleGetBoard returns the live board of a project.
func (h *Handler) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorID(w, r); !ok {
		return
	}
	projectID, ok := extractID(w, r, "project")
	if !ok {
		return
	}

	projection, err := h.hub.Get(r.Context(), projectID)
	if err != nil {
		h.respondDomainError(w, err, nil)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToBoardResponse(projectID, projection.Snapshot(), h.now()))
}

// handleBoardMove applies a card drop. Dropping on the same column returns 204.
func (h *Handler) handleBoardMove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	projectID, ok := extractID(w, r, "project")
	if !ok {
		return
	}

	var req dto.BoardMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if req.TaskID == "" || req.Source == "" || req.Target == "" {
		respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "task_id, source and target are required")
		return
	}

	projection, err := h.hub.Get(ctx, projectID)
	if err != nil {
		h.respondDomainError(w, err, nil)
		return
	}
	if _, found := projection.Task(req.TaskID); !found {
		// the card may be newer than the board; make sure it belongs here
		current, err := h.coordinator.GetTask(ctx, req.TaskID)
		if err != nil {
			h.respondDomainError(w, err, nil)
			return
		}
		if current.ProjectID != projectID {
			respondError(w, http.StatusNotFound, "TASK_NOT_FOUND", "task is not on this board")
			return
		}
	}

	task, err := projection.Drop(ctx, board.Move{
		TaskID:  req.TaskID,
		Source:  domain.TaskStatus(req.Source),
		Target:  domain.TaskStatus(req.Target),
		ActorID: actor,
		Note:    req.Note,
	})
	if err != nil {
		h.respondDomainError(w, err, task)
		return
	}
	if task == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToTaskDetail(task, h.now()))
}

// handleProjectEvents streams committed events of a project as server-sent
// events until the client goes away.
func (h *Handler) handleProjectEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := actorID(w, r); !ok {
		return
	}
	projectID, ok := extractID(w, r, "project")
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Streaming unsupported")
		return
	}

	// streams outlive the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	sub := h.bus.Subscribe(projectID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case evt, open := <-sub.Events():
			if !open {
				return
			}
			if err := writeEvent(w, evt); err != nil {
				h.logger.DebugContext(ctx, "event stream closed", "project_id", projectID, "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, evt domain.DomainEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, data)
	return err
}
