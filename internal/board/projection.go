package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/metrics"
)

// ErrMoveCancelled is returned when the confirmer declines a move.
var ErrMoveCancelled = errors.New("move cancelled")

// DefaultNote is attached to board moves without a note.
const DefaultNote = "moved via board"

// Loader lists the active tasks of a project.
type Loader interface {
	ListProjectTasks(ctx context.Context, projectID string) ([]*domain.Task, error)
}

// Transitioner commits status changes.
type Transitioner interface {
	RequestTransition(ctx context.Context, req domain.TransitionRequest) (*domain.Task, error)
}

// Feed is a stream of project events that reports losses.
type Feed interface {
	Events() <-chan domain.DomainEvent
	Dropped() uint64
}

// Move is a drag from one column to another.
type Move struct {
	TaskID  string            `json:"task_id"`
	Source  domain.TaskStatus `json:"source"`
	Target  domain.TaskStatus `json:"target"`
	ActorID string            `json:"-"`
	Note    string            `json:"note,omitempty"`
}

// Confirmer asks the user to approve a move before it is sent.
type Confirmer interface {
	Confirm(ctx context.Context, move Move, task *domain.Task) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, move Move, task *domain.Task) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, move Move, task *domain.Task) (bool, error) {
	return f(ctx, move, task)
}

// Projection is a live board of one project. It is patched from committed
// tasks and bus events, and reloaded when events were missed.
type Projection struct {
	projectID string
	loader    Loader
	mover     Transitioner
	confirmer Confirmer
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu    sync.RWMutex
	tasks map[string]*domain.Task
}

// Option configures a Projection.
type Option func(*Projection)

// WithConfirmer sets the confirmation step for Drop.
func WithConfirmer(c Confirmer) Option {
	return func(p *Projection) {
		p.confirmer = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Projection) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics sets the metrics used to count reloads.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Projection) {
		p.metrics = m
	}
}

// NewProjection creates an empty projection. Call Load before use.
func NewProjection(projectID string, loader Loader, mover Transitioner, opts ...Option) *Projection {
	p := &Projection{
		projectID: projectID,
		loader:    loader,
		mover:     mover,
		logger:    slog.Default(),
		tasks:     make(map[string]*domain.Task),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProjectID returns the project shown on the board.
func (p *Projection) ProjectID() string {
	return p.projectID
}

// Load replaces the local view with the store's active tasks.
func (p *Projection) Load(ctx context.Context) error {
	tasks, err := p.loader.ListProjectTasks(ctx, p.projectID)
	if err != nil {
		return fmt.Errorf("load board %s: %w", p.projectID, err)
	}

	fresh := make(map[string]*domain.Task, len(tasks))
	for _, task := range tasks {
		if !task.IsDeleted() {
			fresh[task.ID] = task.Clone()
		}
	}

	p.mu.Lock()
	p.tasks = fresh
	p.mu.Unlock()
	return nil
}

// Snapshot returns the current columns. Cards are copies.
func (p *Projection) Snapshot() Columns {
	p.mu.RLock()
	tasks := make([]*domain.Task, 0, len(p.tasks))
	for _, task := range p.tasks {
		tasks = append(tasks, task.Clone())
	}
	p.mu.RUnlock()

	return GroupByStatus(tasks)
}

// Task returns one card.
func (p *Projection) Task(taskID string) (*domain.Task, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	task, ok := p.tasks[taskID]
	return task.Clone(), ok
}

// Apply patches the view with an event. Events about other projects and
// snapshots older than the local card are ignored.
func (p *Projection) Apply(evt domain.DomainEvent) {
	if evt.ProjectID != p.projectID {
		return
	}
	if evt.Kind == domain.EventTaskDeleted || evt.Task.IsDeleted() {
		p.remove(evt.Task.ID)
		return
	}
	p.patch(&evt.Task)
}

func (p *Projection) patch(task *domain.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current, ok := p.tasks[task.ID]; ok && current.UpdatedAt.After(task.UpdatedAt) {
		return
	}
	p.tasks[task.ID] = task.Clone()
}

func (p *Projection) remove(taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tasks, taskID)
}

// Drop handles a card dropped on another column. Dropping on the same column
// does nothing. A stale move refreshes the card from the returned task.
func (p *Projection) Drop(ctx context.Context, move Move) (*domain.Task, error) {
	if move.Source == move.Target {
		return nil, nil
	}

	if p.confirmer != nil {
		card, _ := p.Task(move.TaskID)
		ok, err := p.confirmer.Confirm(ctx, move, card)
		if err != nil {
			return nil, fmt.Errorf("confirm move: %w", err)
		}
		if !ok {
			return nil, ErrMoveCancelled
		}
	}

	note := move.Note
	if note == "" {
		note = DefaultNote
	}
	task, err := p.mover.RequestTransition(ctx, domain.TransitionRequest{
		TaskID:     move.TaskID,
		FromStatus: move.Source,
		ToStatus:   move.Target,
		ActorID:    move.ActorID,
		Notes:      note,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoOpOrStaleState) && task != nil:
			p.patch(task)
		case errors.Is(err, domain.ErrTaskNotFound):
			p.remove(move.TaskID)
		}
		return task, err
	}

	p.patch(task)
	return task, nil
}

// Run applies feed events until the feed closes or ctx is done. When the
// feed reports dropped events the view is reloaded from the store.
func (p *Projection) Run(ctx context.Context, feed Feed) error {
	seen := feed.Dropped()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-feed.Events():
			if !ok {
				return nil
			}
			if dropped := feed.Dropped(); dropped != seen {
				seen = dropped
				p.reload(ctx)
				continue
			}
			p.Apply(evt)
		}
	}
}

func (p *Projection) reload(ctx context.Context) {
	p.metrics.IncrementBoardReload()
	if err := p.Load(ctx); err != nil {
		p.logger.ErrorContext(ctx, "failed to reload board after missed events",
			"project_id", p.projectID,
			"error", err,
		)
		return
	}
	p.logger.WarnContext(ctx, "board reloaded after missed events", "project_id", p.projectID)
}
