package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/metrics"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/notify/mocks"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/repository/memory"
)

type DispatcherSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	sender     *mocks.MockSender
	metrics    *metrics.Metrics
	dispatcher *Dispatcher
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.sender = mocks.NewMockSender(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())

	dir := memory.NewDirectory()
	dir.AddEmployee(domain.Employee{ID: "e1", Name: "Nguyễn Văn An", Role: domain.RoleStaff, IsActive: true})
	dir.AddEmployee(domain.Employee{ID: "m1", Name: "Trần Thị Bình", Role: domain.RoleManager, IsActive: true})
	dir.AddProject(domain.Project{ID: "p1", Code: "P01", Name: "Cầu Nhật Tân"})

	s.dispatcher = NewDispatcher(s.sender, "chat-42",
		WithDirectory(dir),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func (s *DispatcherSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *DispatcherSuite) task() domain.Task {
	assignee := "e1"
	due := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	return domain.Task{
		ID:         "t1",
		Code:       "T-001",
		Name:       "Bản vẽ kết cấu",
		ProjectID:  "p1",
		Status:     domain.TaskStatusInProgress,
		Priority:   domain.TaskPriorityHigh,
		AssigneeID: &assignee,
		DueDate:    &due,
	}
}

func (s *DispatcherSuite) TestCreatedMessageNamesAssigneeAndProject() {
	evt := domain.DomainEvent{Kind: domain.EventTaskCreated, ProjectID: "p1", Task: s.task()}

	s.sender.EXPECT().Send(gomock.Any(), "chat-42", gomock.Any()).DoAndReturn(
		func(_ context.Context, _, message string) error {
			s.Contains(message, "[T-001] Bản vẽ kết cấu")
			s.Contains(message, "Dự án: Cầu Nhật Tân")
			s.Contains(message, "Người thực hiện: Nguyễn Văn An")
			s.Contains(message, "Độ ưu tiên: Cao")
			s.Contains(message, "15/03/2026")
			return nil
		})

	s.dispatcher.Dispatch(context.Background(), evt)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.NotificationsSent.WithLabelValues("TaskCreated")))
}

func (s *DispatcherSuite) TestStatusChangedListsChanges() {
	actor := "m1"
	evt := domain.DomainEvent{
		Kind:      domain.EventTaskStatusChanged,
		ProjectID: "p1",
		Task:      s.task(),
		Changes:   []string{"Trạng thái: S0 InProgress → S2 CrossCheck"},
		ActorID:   &actor,
	}

	message := s.dispatcher.Format(context.Background(), evt)
	s.Contains(message, "- Trạng thái: S0 InProgress → S2 CrossCheck")
	s.Contains(message, "Người cập nhật: Trần Thị Bình")
}

func (s *DispatcherSuite) TestCompletedIsDistinctHeadline() {
	evt := domain.DomainEvent{Kind: domain.EventTaskCompleted, ProjectID: "p1", Task: s.task()}

	message := s.dispatcher.Format(context.Background(), evt)
	s.Contains(message, "HOÀN THÀNH: [T-001]")
	s.Contains(message, "Xác nhận bởi: hệ thống")
}

func (s *DispatcherSuite) TestUnknownIDsFallBackToRawValues() {
	task := s.task()
	unknown := "ghost"
	task.AssigneeID = &unknown
	task.ProjectID = "p-missing"
	evt := domain.DomainEvent{Kind: domain.EventTaskCreated, ProjectID: "p-missing", Task: task}

	message := s.dispatcher.Format(context.Background(), evt)
	s.Contains(message, "Người thực hiện: ghost")
	s.Contains(message, "Dự án: p-missing")
}

func (s *DispatcherSuite) TestSendFailureIsSwallowedAndCounted() {
	s.sender.EXPECT().Send(gomock.Any(), "chat-42", gomock.Any()).Return(errors.New("telegram down"))

	s.NotPanics(func() {
		s.dispatcher.Dispatch(context.Background(), domain.DomainEvent{Kind: domain.EventTaskDeleted, Task: s.task()})
	})
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.NotificationFailures))

	s.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("still down"))
	s.NoError(s.dispatcher.Handle(context.Background(), domain.DomainEvent{Kind: domain.EventTaskUpdated, Task: s.task()}))
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.NotificationFailures))
}

func (s *DispatcherSuite) TestUnknownKindSendsNothing() {
	// no Send expectation: gomock fails the test on an unexpected call
	s.dispatcher.Dispatch(context.Background(), domain.DomainEvent{Kind: "Archived", Task: s.task()})
}
