package notify

//go:generate mockgen -source=sender.go -destination=mocks/mock_sender.go -package=mocks Sender

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/metrics"
)

// Directory resolves display names. Lookups are optional; ids are shown when
// a name cannot be found.
type Directory interface {
	GetEmployee(ctx context.Context, employeeID string) (*domain.Employee, error)
	GetProject(ctx context.Context, projectID string) (*domain.Project, error)
}

// Dispatcher formats events and sends them to one target. Delivery is best
// effort: there is no retry queue.
type Dispatcher struct {
	sender    Sender
	target    string
	directory Directory
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDirectory enables name resolution in messages.
func WithDirectory(d Directory) Option {
	return func(n *Dispatcher) {
		n.directory = d
	}
}

// WithLogger sets the logger for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Dispatcher) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithMetrics sets the metrics for delivery outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Dispatcher) {
		n.metrics = m
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(sender Sender, target string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender: sender,
		target: target,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle adapts Dispatch to the event bus handler signature.
func (d *Dispatcher) Handle(ctx context.Context, evt domain.DomainEvent) error {
	d.Dispatch(ctx, evt)
	return nil
}

// Dispatch formats and sends evt. Failures are logged and counted, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, evt domain.DomainEvent) {
	message := d.Format(ctx, evt)
	if message == "" {
		return
	}

	if err := d.sender.Send(ctx, d.target, message); err != nil {
		d.metrics.IncrementNotificationFailure()
		d.logger.ErrorContext(ctx, "failed to send notification",
			"kind", evt.Kind,
			"task_id", evt.Task.ID,
			"target", d.target,
			"error", err,
		)
		return
	}
	d.metrics.IncrementNotificationSent(string(evt.Kind))
}

// Format renders the chat message for evt. Unknown kinds render empty.
func (d *Dispatcher) Format(ctx context.Context, evt domain.DomainEvent) string {
	task := &evt.Task
	title := fmt.Sprintf("[%s] %s", task.Code, task.Name)

	var b strings.Builder
	switch evt.Kind {
	case domain.EventTaskCreated:
		fmt.Fprintf(&b, "Công việc mới %s\n", title)
		fmt.Fprintf(&b, "Dự án: %s\n", d.projectName(ctx, task.ProjectID))
		fmt.Fprintf(&b, "Người thực hiện: %s\n", d.personName(ctx, task.AssigneeID, "chưa giao"))
		fmt.Fprintf(&b, "Độ ưu tiên: %s", task.Priority.Label())
		if task.DueDate != nil {
			fmt.Fprintf(&b, "\nHạn hoàn thành: %s", task.DueDate.Format("02/01/2006"))
		}
	case domain.EventTaskUpdated, domain.EventTaskStatusChanged:
		fmt.Fprintf(&b, "Cập nhật công việc %s", title)
		for _, change := range evt.Changes {
			fmt.Fprintf(&b, "\n- %s", change)
		}
		fmt.Fprintf(&b, "\nNgười cập nhật: %s", d.personName(ctx, evt.ActorID, "hệ thống"))
	case domain.EventTaskCompleted:
		fmt.Fprintf(&b, "HOÀN THÀNH: %s\n", title)
		fmt.Fprintf(&b, "Dự án: %s\n", d.projectName(ctx, task.ProjectID))
		fmt.Fprintf(&b, "Xác nhận bởi: %s", d.personName(ctx, evt.ActorID, "hệ thống"))
	case domain.EventTaskDeleted:
		fmt.Fprintf(&b, "Đã xoá công việc %s\n", title)
		fmt.Fprintf(&b, "Người xoá: %s", d.personName(ctx, evt.ActorID, "hệ thống"))
	}
	return b.String()
}

func (d *Dispatcher) personName(ctx context.Context, id *string, fallback string) string {
	if id == nil || *id == "" {
		return fallback
	}
	if d.directory != nil {
		if e, err := d.directory.GetEmployee(ctx, *id); err == nil && e.Name != "" {
			return e.Name
		}
	}
	return *id
}

func (d *Dispatcher) projectName(ctx context.Context, id string) string {
	if d.directory != nil {
		if p, err := d.directory.GetProject(ctx, id); err == nil && p.Name != "" {
			return p.Name
		}
	}
	return id
}
