// Package events fans committed domain events out to in-process handlers and
// project subscribers, and bridges them to Redis and Kafka.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/metrics"
)

const (
	// DefaultHandlerTimeout bounds one handler invocation.
	DefaultHandlerTimeout = 2 * time.Second
	// DefaultBufferSize is the per-subscription channel capacity.
	DefaultBufferSize = 64
)

// HandlerFunc reacts to a published event. Errors are logged and counted.
type HandlerFunc func(ctx context.Context, evt domain.DomainEvent) error

type namedHandler struct {
	name string
	fn   HandlerFunc
}

// Bus is an in-process publisher. Publish never blocks the caller: handlers
// run on their own goroutines and slow subscribers lose events instead of
// applying backpressure.
type Bus struct {
	mu       sync.RWMutex
	handlers []namedHandler
	subs     map[string]map[*Subscription]struct{}
	closed   bool
	wg       sync.WaitGroup

	logger     *slog.Logger
	metrics    *metrics.Metrics
	timeout    time.Duration
	bufferSize int
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger for handler failures.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics sets the metrics for handler failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) {
		b.metrics = m
	}
}

// WithHandlerTimeout bounds each handler call.
func WithHandlerTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithBufferSize sets the subscription channel capacity.
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// NewBus creates an empty Bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:       make(map[string]map[*Subscription]struct{}),
		logger:     slog.Default(),
		timeout:    DefaultHandlerTimeout,
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handle registers a handler for every published event.
func (b *Bus) Handle(name string, fn HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, namedHandler{name: name, fn: fn})
}

// Publish hands evt to every handler and then to the project's subscribers.
// Handlers get a context detached from ctx's cancellation.
func (b *Bus) Publish(ctx context.Context, evt domain.DomainEvent) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		b.logger.Debug("event dropped on closed bus", "kind", evt.Kind, "task_id", evt.Task.ID)
		return
	}
	handlers := b.handlers
	b.wg.Add(len(handlers))
	b.mu.RUnlock()

	base := context.WithoutCancel(ctx)
	for _, h := range handlers {
		go b.run(base, h, evt)
	}

	b.Deliver(evt)
}

func (b *Bus) run(base context.Context, h namedHandler, evt domain.DomainEvent) {
	defer b.wg.Done()

	ctx, cancel := context.WithTimeout(base, b.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			b.fail(ctx, h.name, evt, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := h.fn(ctx, evt); err != nil {
		b.fail(ctx, h.name, evt, err)
	}
}

func (b *Bus) fail(ctx context.Context, name string, evt domain.DomainEvent, err error) {
	b.metrics.IncrementHandlerFailure(name)
	b.logger.ErrorContext(ctx, "event handler failed",
		"handler", name,
		"kind", evt.Kind,
		"task_id", evt.Task.ID,
		"error", err,
	)
}

// Deliver sends evt to local subscribers of its project only. Events relayed
// from other instances enter here so they are not re-published.
func (b *Bus) Deliver(evt domain.DomainEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[evt.ProjectID] {
		select {
		case sub.ch <- evt:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Subscribe opens a subscription for one project's events.
func (b *Bus) Subscribe(projectID string) *Subscription {
	sub := &Subscription{
		bus:       b,
		projectID: projectID,
		ch:        make(chan domain.DomainEvent, b.bufferSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		sub.closed.Store(true)
		return sub
	}
	if b.subs[projectID] == nil {
		b.subs[projectID] = make(map[*Subscription]struct{})
	}
	b.subs[projectID][sub] = struct{}{}
	return sub
}

// Subscribers returns the number of open subscriptions for a project.
func (b *Bus) Subscribers(projectID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[projectID])
}

// Wait blocks until running handlers return.
func (b *Bus) Wait() {
	b.wg.Wait()
}

// Close stops accepting events, closes every subscription and waits for
// running handlers.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for projectID, subs := range b.subs {
		for sub := range subs {
			sub.closeLocked()
		}
		delete(b.subs, projectID)
	}
	b.mu.Unlock()

	b.wg.Wait()
}

// Subscription receives events of a single project.
type Subscription struct {
	bus       *Bus
	projectID string
	ch        chan domain.DomainEvent
	dropped   atomic.Uint64
	closed    atomic.Bool
}

// Events returns the receive channel. It is closed by Close.
func (s *Subscription) Events() <-chan domain.DomainEvent {
	return s.ch
}

// ProjectID returns the subscribed project.
func (s *Subscription) ProjectID() string {
	return s.projectID
}

// Dropped returns how many events were lost because the buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if subs := s.bus.subs[s.projectID]; subs != nil {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.bus.subs, s.projectID)
		}
	}
	s.closeLocked()
}

func (s *Subscription) closeLocked() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}
