package board

import (
	"context"
	"sync"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/events"
)

// Subscriber opens per-project event subscriptions.
type Subscriber interface {
	Subscribe(projectID string) *events.Subscription
}

type hubEntry struct {
	projection *Projection
	sub        *events.Subscription
}

// Hub keeps one live projection per project.
type Hub struct {
	bus    Subscriber
	loader Loader
	mover  Transitioner
	opts   []Option

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[string]*hubEntry
}

// NewHub creates a Hub. Options apply to every projection it creates.
func NewHub(bus Subscriber, loader Loader, mover Transitioner, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		bus:     bus,
		loader:  loader,
		mover:   mover,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*hubEntry),
	}
}

// Get returns the live projection of a project, loading it on first use.
func (h *Hub) Get(ctx context.Context, projectID string) (*Projection, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if entry, ok := h.entries[projectID]; ok {
		return entry.projection, nil
	}

	projection := NewProjection(projectID, h.loader, h.mover, h.opts...)
	// subscribe before loading so no commit falls between the two
	sub := h.bus.Subscribe(projectID)
	if err := projection.Load(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	h.entries[projectID] = &hubEntry{projection: projection, sub: sub}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		_ = projection.Run(h.ctx, sub)
	}()
	return projection, nil
}

// Len returns the number of live projections.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Close stops every projection.
func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	for projectID, entry := range h.entries {
		entry.sub.Close()
		delete(h.entries, projectID)
	}
	h.mu.Unlock()

	h.wg.Wait()
}
