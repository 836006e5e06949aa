package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/board"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/events"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/handler/dto"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/middleware"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/service"
)

// DefaultHeartbeat is the interval of keep-alive comments on event streams.
const DefaultHeartbeat = 15 * time.Second

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds the collaborators of the HTTP API.
type Deps struct {
	Coordinator *service.Coordinator
	Hub         *board.Hub
	Bus         *events.Bus
	Auth        *middleware.AuthMiddleware
	// Pinger is optional; without it /healthz always reports OK.
	Pinger Pinger
	// Metrics serves /metrics when set.
	Metrics   http.Handler
	Logger    *slog.Logger
	Now       func() time.Time
	Heartbeat time.Duration
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	coordinator *service.Coordinator
	hub         *board.Hub
	bus         *events.Bus
	auth        *middleware.AuthMiddleware
	pinger      Pinger
	metrics     http.Handler
	logger      *slog.Logger
	now         func() time.Time
	heartbeat   time.Duration
}

// New creates a new Handler instance with all dependencies.
func New(deps Deps) *Handler {
	h := &Handler{
		coordinator: deps.Coordinator,
		hub:         deps.Hub,
		bus:         deps.Bus,
		auth:        deps.Auth,
		pinger:      deps.Pinger,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		now:         deps.Now,
		heartbeat:   deps.Heartbeat,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.heartbeat <= 0 {
		h.heartbeat = DefaultHeartbeat
	}
	return h
}

// RegisterRoutes registers all HTTP routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	h.protect(mux, "POST /api/v1/tasks", h.handleCreateTask)
	h.protect(mux, "GET /api/v1/tasks/{id}", h.handleGetTask)
	h.protect(mux, "PATCH /api/v1/tasks/{id}", h.handleUpdateTask)
	h.protect(mux, "DELETE /api/v1/tasks/{id}", h.handleDeleteTask)
	h.protect(mux, "PATCH /api/v1/tasks/{id}/status", h.handleTransitionStatus)
	h.protect(mux, "GET /api/v1/tasks/{id}/history", h.handleGetHistory)
	h.protect(mux, "GET /api/v1/tasks/{id}/permissions", h.handleGetPermissions)

	h.protect(mux, "GET /api/v1/projects/{id}/tasks", h.handleListProjectTasks)
	h.protect(mux, "GET /api/v1/projects/{id}/board", h.handleGetBoard)
	h.protect(mux, "POST /api/v1/projects/{id}/board/moves", h.handleBoardMove)
	h.protect(mux, "GET /api/v1/projects/{id}/events", h.handleProjectEvents)
}

func (h *Handler) protect(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.Handle(pattern, h.auth.Authenticate(fn))
}

// handleHealthz returns 200 OK if the store is reachable.
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.logger.Error("store health check failed", "error", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a standard error response.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, dto.NewErrorResponse(code, message))
}

// respondDomainError maps err and writes it. A no-op or stale transition
// carries the current task in the body.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error, current *domain.Task) {
	status, code, message := dto.MapDomainError(err)
	if status == http.StatusConflict && current != nil {
		detail := dto.ToTaskDetail(current, h.now())
		respondJSON(w, status, dto.ConflictResponse{
			Error: dto.ErrorDetail{Code: code, Message: message},
			Task:  &detail,
		})
		return
	}
	respondError(w, status, code, message)
}

// actorID returns the authenticated employee or writes 401.
func actorID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := middleware.GetActorIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Authentication required")
		return "", false
	}
	return id, true
}

// extractID extracts the {id} path parameter.
// Returns ("", false) if missing (error already sent to client).
func extractID(w http.ResponseWriter, r *http.Request, what string) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", what+" id is required")
		return "", false
	}
	return id, true
}
