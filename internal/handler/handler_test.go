package handler_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/suite"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/board"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/events"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/handler"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/handler/dto"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/metrics"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/middleware"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/repository/memory"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/service"
)

const (
	projectID  = "p1"
	assigneeID = "e-assignee"
	managerID  = "e-manager"
	staffID    = "e-staff"
	adminID    = "e-admin"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type HandlerTestSuite struct {
	suite.Suite
	tasks       *memory.TaskStore
	directory   *memory.Directory
	bus         *events.Bus
	hub         *board.Hub
	coordinator *service.Coordinator
	auth        *middleware.AuthMiddleware
	mux         *http.ServeMux

	tokens map[string]string
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

func (s *HandlerTestSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	s.tasks = memory.NewTaskStore()
	s.directory = memory.NewDirectory()
	for _, e := range []domain.Employee{
		{ID: assigneeID, Name: "Assignee", Role: domain.RoleStaff, IsActive: true},
		{ID: managerID, Name: "Manager", Role: domain.RoleManager, IsActive: true},
		{ID: staffID, Name: "Staff", Role: domain.RoleStaff, IsActive: true},
		{ID: adminID, Name: "Admin", Role: domain.RoleAdmin, IsActive: true},
	} {
		s.directory.AddEmployee(e)
	}
	manager := managerID
	s.directory.AddProject(domain.Project{ID: projectID, Code: "P01", Name: "Tower A", ManagerID: &manager})
	s.directory.AddProject(domain.Project{ID: "p2", Code: "P02", Name: "Tower B"})

	s.bus = events.NewBus(events.WithLogger(logger), events.WithMetrics(m))
	s.coordinator = service.NewCoordinator(s.tasks, memory.NewHistoryStore(), s.directory,
		service.WithPublisher(s.bus),
		service.WithLogger(logger),
		service.WithMetrics(m),
	)
	s.hub = board.NewHub(s.bus, s.coordinator, s.coordinator, board.WithLogger(logger))
	s.auth = middleware.NewAuthMiddleware("test-secret", "", s.directory)

	s.tokens = make(map[string]string)
	for _, id := range []string{assigneeID, managerID, staffID, adminID} {
		token, err := s.auth.IssueToken(id, time.Hour)
		s.Require().NoError(err)
		s.tokens[id] = token
	}

	h := handler.New(handler.Deps{
		Coordinator: s.coordinator,
		Hub:         s.hub,
		Bus:         s.bus,
		Auth:        s.auth,
		Pinger:      stubPinger{},
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:      logger,
		Heartbeat:   50 * time.Millisecond,
	})
	s.mux = http.NewServeMux()
	h.RegisterRoutes(s.mux)
}

func (s *HandlerTestSuite) TearDownTest() {
	s.hub.Close()
	s.bus.Close()
}

// makeRequest sends a request as the given employee; an empty actor sends no token.
func (s *HandlerTestSuite) makeRequest(method, path, actor string, body any) *httptest.ResponseRecorder {
	var bodyReader io.Reader = http.NoBody
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		s.Require().NoError(err)
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[actor])
	}

	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	return w
}

func (s *HandlerTestSuite) seed(code string, status domain.TaskStatus) *domain.Task {
	assignee := assigneeID
	return s.tasks.Seed(&domain.Task{
		Code:       code,
		Name:       "Task " + code,
		ProjectID:  projectID,
		Status:     status,
		Priority:   domain.TaskPriorityMedium,
		AssigneeID: &assignee,
	})
}

func decode[T any](s *HandlerTestSuite, w *httptest.ResponseRecorder) T {
	var v T
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *HandlerTestSuite) errorCode(w *httptest.ResponseRecorder) string {
	return decode[dto.ErrorResponse](s, w).Error.Code
}

func (s *HandlerTestSuite) TestHealthz() {
	w := s.makeRequest(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, w.Code)

	h := handler.New(handler.Deps{Pinger: stubPinger{err: errors.New("down")}, Auth: s.auth})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	s.Equal(http.StatusServiceUnavailable, rec.Code)
}

func (s *HandlerTestSuite) TestMetricsEndpoint() {
	task := s.seed("T-1", domain.TaskStatusOpen)
	s.makeRequest(http.MethodPatch, "/api/v1/tasks/"+task.ID+"/status", assigneeID,
		dto.TransitionStatusRequest{Status: string(domain.TaskStatusInProgress)})

	w := s.makeRequest(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "taskflow_transitions_total")
}

func (s *HandlerTestSuite) TestRequiresToken() {
	w := s.makeRequest(http.MethodGet, "/api/v1/projects/"+projectID+"/tasks", "", nil)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *HandlerTestSuite) TestCreateTask() {
	w := s.makeRequest(http.MethodPost, "/api/v1/tasks", staffID, dto.CreateTaskRequest{
		ProjectID:  projectID,
		Name:       "Shop drawings level 3",
		AssigneeID: ptr(assigneeID),
		DueDate:    ptr("2026-11-30"),
		Tags:       []string{"MEP"},
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	task := decode[dto.TaskDetail](s, w)
	s.Equal(string(domain.TaskStatusOpen), task.Status)
	s.Equal(string(domain.TaskPriorityMedium), task.Priority)
	s.True(strings.HasPrefix(task.Code, "T-"))
	s.Require().NotNil(task.DueDate)
	s.Equal("2026-11-30", *task.DueDate)
	s.Equal([]string{"MEP"}, task.Tags)
}

func (s *HandlerTestSuite) TestCreateTask_Validation() {
	tests := []struct {
		name   string
		req    dto.CreateTaskRequest
		status int
		code   string
	}{
		{"missing project", dto.CreateTaskRequest{Name: "x"}, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"missing name", dto.CreateTaskRequest{ProjectID: projectID}, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"bad priority", dto.CreateTaskRequest{ProjectID: projectID, Name: "x", Priority: "Urgent"}, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"bad date", dto.CreateTaskRequest{ProjectID: projectID, Name: "x", DueDate: ptr("30/11/2026")}, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"unknown assignee", dto.CreateTaskRequest{ProjectID: projectID, Name: "x", AssigneeID: ptr("ghost")}, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"unknown project", dto.CreateTaskRequest{ProjectID: "nope", Name: "x"}, http.StatusNotFound, "PROJECT_NOT_FOUND"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			w := s.makeRequest(http.MethodPost, "/api/v1/tasks", staffID, tt.req)
			s.Equal(tt.status, w.Code)
			s.Equal(tt.code, s.errorCode(w))
		})
	}
}

func (s *HandlerTestSuite) TestGetTask_NotFound() {
	w := s.makeRequest(http.MethodGet, "/api/v1/tasks/missing", staffID, nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("TASK_NOT_FOUND", s.errorCode(w))
}

func (s *HandlerTestSuite) TestTransitionStatus() {
	task := s.seed("T-1", domain.TaskStatusOpen)

	w := s.makeRequest(http.MethodPatch, "/api/v1/tasks/"+task.ID+"/status", assigneeID, dto.TransitionStatusRequest{
		FromStatus: string(domain.TaskStatusOpen),
		Status:     string(domain.TaskStatusInProgress),
		Comment:    "starting",
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal(string(domain.TaskStatusInProgress), decode[dto.TaskDetail](s, w).Status)

	w = s.makeRequest(http.MethodGet, "/api/v1/tasks/"+task.ID+"/history", managerID, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	history := decode[dto.HistoryResponse](s, w)
	s.Require().Len(history.Entries, 1)
	s.Equal(domain.FieldStatus, history.Entries[0].Field)
	s.Equal("starting", *history.Entries[0].Notes)
}

func (s *HandlerTestSuite) TestTransitionStatus_Errors() {
	task := s.seed("T-1", domain.TaskStatusOpen)
	path := "/api/v1/tasks/" + task.ID + "/status"

	s.Run("denied", func() {
		w := s.makeRequest(http.MethodPatch, path, staffID, dto.TransitionStatusRequest{
			Status: string(domain.TaskStatusInProgress),
		})
		s.Equal(http.StatusForbidden, w.Code)
		s.Equal("INSUFFICIENT_ACCESS", s.errorCode(w))
	})

	s.Run("invalid status", func() {
		w := s.makeRequest(http.MethodPatch, path, assigneeID, dto.TransitionStatusRequest{Status: "Done"})
		s.Equal(http.StatusUnprocessableEntity, w.Code)
	})

	s.Run("stale source returns the current task", func() {
		w := s.makeRequest(http.MethodPatch, path, assigneeID, dto.TransitionStatusRequest{
			FromStatus: string(domain.TaskStatusPending),
			Status:     string(domain.TaskStatusInProgress),
		})
		s.Equal(http.StatusConflict, w.Code)
		conflict := decode[dto.ConflictResponse](s, w)
		s.Equal("NO_OP_OR_STALE_STATE", conflict.Error.Code)
		s.Require().NotNil(conflict.Task)
		s.Equal(string(domain.TaskStatusOpen), conflict.Task.Status)
	})
}

func (s *HandlerTestSuite) TestPermissions() {
	task := s.seed("T-1", domain.TaskStatusOpen)

	w := s.makeRequest(http.MethodGet, "/api/v1/tasks/"+task.ID+"/permissions", managerID, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.True(decode[dto.PermissionResponse](s, w).CanTransition)

	w = s.makeRequest(http.MethodGet, "/api/v1/tasks/"+task.ID+"/permissions", staffID, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	resp := decode[dto.PermissionResponse](s, w)
	s.False(resp.CanTransition)
	s.NotEmpty(resp.Reason)
}

func (s *HandlerTestSuite) TestUpdateTask() {
	task := s.seed("T-1", domain.TaskStatusOpen)
	path := "/api/v1/tasks/" + task.ID

	w := s.makeRequest(http.MethodPatch, path, staffID, dto.UpdateTaskRequest{
		Priority: ptr(string(domain.TaskPriorityHigh)),
		DueDate:  ptr("2026-12-01"),
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	updated := decode[dto.TaskDetail](s, w)
	s.Equal(string(domain.TaskPriorityHigh), updated.Priority)
	s.Equal("2026-12-01", *updated.DueDate)

	// same values again change nothing
	w = s.makeRequest(http.MethodPatch, path, staffID, dto.UpdateTaskRequest{
		Priority: ptr(string(domain.TaskPriorityHigh)),
	})
	s.Equal(http.StatusOK, w.Code)

	w = s.makeRequest(http.MethodPatch, path, staffID, dto.UpdateTaskRequest{DueDate: ptr("")})
	s.Require().Equal(http.StatusOK, w.Code)
	s.Nil(decode[dto.TaskDetail](s, w).DueDate)

	w = s.makeRequest(http.MethodGet, path+"/history", staffID, nil)
	s.Len(decode[dto.HistoryResponse](s, w).Entries, 3)
}

func (s *HandlerTestSuite) TestDeleteTask() {
	task := s.seed("T-1", domain.TaskStatusOpen)
	path := "/api/v1/tasks/" + task.ID

	w := s.makeRequest(http.MethodDelete, path, staffID, nil)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.makeRequest(http.MethodDelete, path, assigneeID, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	w = s.makeRequest(http.MethodGet, path, assigneeID, nil)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.makeRequest(http.MethodDelete, path+"?hard=true", managerID, nil)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.makeRequest(http.MethodDelete, path+"?hard=true", adminID, nil)
	s.Equal(http.StatusNoContent, w.Code)
	_, exists := s.tasks.Raw(task.ID)
	s.False(exists)
}

func (s *HandlerTestSuite) TestListProjectTasks() {
	s.seed("T-1", domain.TaskStatusOpen)
	s.seed("T-2", domain.TaskStatusInProgress)
	s.tasks.Seed(&domain.Task{Code: "T-3", Name: "unassigned", ProjectID: projectID,
		Status: domain.TaskStatusOpen, Priority: domain.TaskPriorityLow, Tags: []string{"BIM"}})

	base := "/api/v1/projects/" + projectID + "/tasks"

	w := s.makeRequest(http.MethodGet, base, staffID, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(3, decode[dto.TasksListResponse](s, w).Total)

	w = s.makeRequest(http.MethodGet, base+"?status="+url.QueryEscape(string(domain.TaskStatusInProgress)), staffID, nil)
	list := decode[dto.TasksListResponse](s, w)
	s.Require().Equal(1, list.Total)
	s.Equal("T-2", list.Tasks[0].Code)

	w = s.makeRequest(http.MethodGet, base+"?assignee=me", assigneeID, nil)
	s.Equal(2, decode[dto.TasksListResponse](s, w).Total)

	w = s.makeRequest(http.MethodGet, base+"?tag=BIM", staffID, nil)
	s.Equal(1, decode[dto.TasksListResponse](s, w).Total)

	w = s.makeRequest(http.MethodGet, base+"?status=Done", staffID, nil)
	s.Equal(http.StatusUnprocessableEntity, w.Code)

	w = s.makeRequest(http.MethodGet, "/api/v1/projects/nope/tasks", staffID, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HandlerTestSuite) TestBoard() {
	task := s.seed("T-1", domain.TaskStatusOpen)
	s.seed("T-2", domain.TaskStatusOpen)

	w := s.makeRequest(http.MethodGet, "/api/v1/projects/"+projectID+"/board", staffID, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	resp := decode[dto.BoardResponse](s, w)
	s.Len(resp.Columns, len(domain.Statuses))
	s.Equal(string(domain.TaskStatusOpen), resp.Columns[0].Status)
	s.Len(resp.Columns[0].Tasks, 2)
	s.Equal(2, resp.Total)

	moves := "/api/v1/projects/" + projectID + "/board/moves"

	w = s.makeRequest(http.MethodPost, moves, assigneeID, dto.BoardMoveRequest{
		TaskID: task.ID, Source: string(domain.TaskStatusOpen), Target: string(domain.TaskStatusOpen),
	})
	s.Equal(http.StatusNoContent, w.Code)

	w = s.makeRequest(http.MethodPost, moves, assigneeID, dto.BoardMoveRequest{
		TaskID: task.ID, Source: string(domain.TaskStatusOpen), Target: string(domain.TaskStatusInProgress),
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.makeRequest(http.MethodGet, "/api/v1/projects/"+projectID+"/board", staffID, nil)
	resp = decode[dto.BoardResponse](s, w)
	s.Len(resp.Columns[0].Tasks, 1)
	s.Len(resp.Columns[domain.TaskStatusInProgress.Index()].Tasks, 1)

	w = s.makeRequest(http.MethodPost, "/api/v1/projects/p2/board/moves", assigneeID, dto.BoardMoveRequest{
		TaskID: task.ID, Source: string(domain.TaskStatusInProgress), Target: string(domain.TaskStatusCoordination),
	})
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HandlerTestSuite) TestProjectEventStream() {
	task := s.seed("T-1", domain.TaskStatusOpen)

	srv := httptest.NewServer(s.mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/projects/"+projectID+"/events", nil)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+s.tokens[staffID])

	resp, err := srv.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("text/event-stream", resp.Header.Get("Content-Type"))

	_, err = s.coordinator.RequestTransition(ctx, domain.TransitionRequest{
		TaskID:     task.ID,
		FromStatus: domain.TaskStatusOpen,
		ToStatus:   domain.TaskStatusInProgress,
		ActorID:    assigneeID,
	})
	s.Require().NoError(err)

	scanner := bufio.NewScanner(resp.Body)
	var kind, data string
	for scanner.Scan() {
		line := scanner.Text()
		if after, ok := strings.CutPrefix(line, "event: "); ok {
			kind = after
		}
		if after, ok := strings.CutPrefix(line, "data: "); ok {
			data = after
			break
		}
	}
	s.Require().Equal(string(domain.EventTaskStatusChanged), kind)

	var evt domain.DomainEvent
	s.Require().NoError(json.Unmarshal([]byte(data), &evt))
	s.Equal(task.ID, evt.Task.ID)
	s.Equal(domain.TaskStatusInProgress, evt.Task.Status)
}

func ptr[T any](v T) *T { return &v }
